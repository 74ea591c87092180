package raster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/store"
)

// maxEncodeAttempts bounds how often a page encode is retried with a
// larger output buffer.
const maxEncodeAttempts = 3

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// checkBlock validates a block address and buffer and returns the page
// that holds the block.
func (d *Dataset) checkBlock(pos core.BlockPos, buf []byte) (core.TilePos, error) {
	if pos.Band < 0 || pos.Band >= d.geom.Size.C {
		return core.TilePos{}, fmt.Errorf("%w: band %d of %d", core.ErrOutOfRange, pos.Band, d.geom.Size.C)
	}
	tile := d.pyr.TilePos(pos)
	if !d.pyr.Contains(tile) {
		return core.TilePos{}, fmt.Errorf("%w: block %s", core.ErrOutOfRange, pos)
	}
	if len(buf) != d.BlockBytes() {
		return core.TilePos{}, fmt.Errorf("%w: block buffer is %d bytes, want %d", core.ErrSizeMismatch, len(buf), d.BlockBytes())
	}
	return tile, nil
}

// ReadBlock reads one band of one page into dst, which must be exactly
// BlockBytes long. Pages that were never written read as the band's fill
// value, unless a pull-through source is configured.
func (d *Dataset) ReadBlock(ctx context.Context, pos core.BlockPos, dst []byte) (err error) {
	ctx, span := d.tracer.Start(ctx, "Dataset.ReadBlock")
	span.SetAttributes(attribute.String("raster.block", pos.String()))
	defer func() { endSpan(span, err) }()

	tile, err := d.checkBlock(pos, dst)
	if err != nil {
		return err
	}
	return d.readBlock(ctx, tile, pos.Band, dst, true)
}

// ReadBlockOrFill reads a block like ReadBlock, but renders a page that
// cannot be read or decoded as fill, logging a warning. Only invalid
// arguments are returned as errors.
func (d *Dataset) ReadBlockOrFill(ctx context.Context, pos core.BlockPos, dst []byte) error {
	if _, err := d.checkBlock(pos, dst); err != nil {
		return err
	}
	if err := d.ReadBlock(ctx, pos, dst); err != nil {
		d.logger.Warn("Unreadable page rendered as fill", "block", pos.String(), "error", err)
		core.Fill(dst, d.geom.DataType, d.fill[pos.Band])
	}
	return nil
}

func (d *Dataset) readBlock(ctx context.Context, tile core.TilePos, band int, dst []byte, pull bool) error {
	interleaved := d.spec.Bands > 1
	if interleaved {
		if d.page.accumulating() && d.page.tile == tile {
			return d.readAccumulating(ctx, tile, band, dst, pull)
		}
		key := blockKey{tile: tile, band: band}
		if blk, ok := d.blocks.Get(key); ok {
			copy(dst, blk)
			return nil
		}
		if d.page.holds(tile) {
			d.page.extract(band-tile.C*d.spec.Bands, dst)
			d.cacheSiblings(tile, band, d.page.buf)
			return nil
		}
	}

	rec, payload, err := d.st.Get(tile, d.rawBuf)
	if err != nil {
		return err
	}
	d.rawBuf = payload

	switch rec.Kind() {
	case store.Hole:
		if pull && d.source != nil {
			if err := d.pullThrough(ctx, tile); err != nil {
				return fmt.Errorf("pull-through %s: %w", tile, err)
			}
			return d.readBlock(ctx, tile, band, dst, false)
		}
		core.Fill(dst, d.geom.DataType, d.fill[band])
		return nil
	case store.KnownEmpty:
		core.Fill(dst, d.geom.DataType, d.fill[band])
		return nil
	}

	if !interleaved {
		if err := d.codec.Decompress(dst, payload); err != nil {
			return fmt.Errorf("page %s: %w", tile, err)
		}
		return nil
	}

	// A page collecting band writes keeps the buffer; decode aside.
	if d.page.accumulating() {
		scratch := d.scratchPage()
		if err := d.codec.Decompress(scratch, payload); err != nil {
			return fmt.Errorf("page %s: %w", tile, err)
		}
		deinterleave(dst, scratch, band-tile.C*d.spec.Bands, d.spec.Bands, d.geom.DataType.Size())
		d.cacheSiblings(tile, band, scratch)
		return nil
	}
	if err := d.codec.Decompress(d.page.buf, payload); err != nil {
		d.page.reset()
		return fmt.Errorf("page %s: %w", tile, err)
	}
	d.page.load(tile)
	d.page.extract(band-tile.C*d.spec.Bands, dst)
	d.cacheSiblings(tile, band, d.page.buf)
	return nil
}

// readAccumulating serves a read of the page that is collecting band
// writes. Bands already written come from the buffer. The stored page is
// decoded once and merged under the bands not yet written, so the page
// stays intact for the writes still to come.
func (d *Dataset) readAccumulating(ctx context.Context, tile core.TilePos, band int, dst []byte, pull bool) error {
	local := band - tile.C*d.spec.Bands
	if d.page.dirty[local] || d.page.merged {
		d.page.extract(local, dst)
		return nil
	}

	rec, payload, err := d.st.Get(tile, d.rawBuf)
	if err != nil {
		return err
	}
	d.rawBuf = payload
	switch rec.Kind() {
	case store.Hole:
		if pull && d.source != nil {
			if err := d.pullThrough(ctx, tile); err != nil {
				return fmt.Errorf("pull-through %s: %w", tile, err)
			}
			return d.readAccumulating(ctx, tile, band, dst, false)
		}
		core.Fill(dst, d.geom.DataType, d.fill[band])
		return nil
	case store.KnownEmpty:
		core.Fill(dst, d.geom.DataType, d.fill[band])
		return nil
	}

	scratch := d.scratchPage()
	if err := d.codec.Decompress(scratch, payload); err != nil {
		return fmt.Errorf("page %s: %w", tile, err)
	}
	d.page.merge(scratch)
	d.page.extract(local, dst)
	return nil
}

func (d *Dataset) scratchPage() []byte {
	if d.scratch == nil {
		d.scratch = make([]byte, d.spec.Bytes())
	}
	return d.scratch
}

// cacheSiblings stores the other bands of the decoded page in the block
// cache so that reads of those bands skip the codec.
func (d *Dataset) cacheSiblings(tile core.TilePos, band int, page []byte) {
	if !d.cacheOn {
		return
	}
	first := tile.C * d.spec.Bands
	for b := first; b < first+d.spec.Bands; b++ {
		if b == band {
			continue
		}
		key := blockKey{tile: tile, band: b}
		if _, ok := d.blocks.Get(key); ok {
			continue
		}
		blk := make([]byte, d.BlockBytes())
		deinterleave(blk, page, b-first, d.spec.Bands, d.geom.DataType.Size())
		d.blocks.Put(key, blk)
	}
}

// WriteBlock writes one band of one page. For band-separate datasets the
// page is stored at once. For pixel-interleaved datasets bands accumulate
// in the page buffer and the page is stored when its last band arrives;
// a write for a different page discards the partial one.
func (d *Dataset) WriteBlock(ctx context.Context, pos core.BlockPos, src []byte) (err error) {
	ctx, span := d.tracer.Start(ctx, "Dataset.WriteBlock")
	span.SetAttributes(attribute.String("raster.block", pos.String()))
	defer func() { endSpan(span, err) }()

	if !d.writable {
		return &core.IOError{Op: "write block", Path: d.path, Err: os.ErrPermission}
	}
	tile, err := d.checkBlock(pos, src)
	if err != nil {
		return err
	}
	if d.spec.Bands == 1 {
		return d.writePage(ctx, tile, src, store.Hole)
	}

	if d.page.accumulating() && d.page.tile != tile {
		d.logger.Warn("Discarding partially written page", "page", d.page.tile.String(),
			"bands", d.page.dirtyCount(), "write", tile.String())
		d.page.reset()
	}
	if !d.page.accumulating() {
		d.page.begin(tile)
	}
	d.page.put(pos.Band-tile.C*d.spec.Bands, src)
	if !d.page.complete() {
		span.SetAttributes(attribute.Int("raster.bands_pending", d.spec.Bands-d.page.dirtyCount()))
		return nil
	}
	err = d.writePage(ctx, tile, d.page.buf, store.Hole)
	d.page.reset()
	return err
}

// writePage stores a complete page. A page holding only fill values is
// recorded as emptyKind without a payload.
func (d *Dataset) writePage(ctx context.Context, tile core.TilePos, page []byte, emptyKind store.Kind) error {
	d.invalidate(tile)
	if d.isFillPage(page, tile.C) {
		if err := d.st.PutEmpty(tile, emptyKind); err != nil {
			return err
		}
	} else {
		n, err := d.encode(page)
		if err != nil {
			return fmt.Errorf("page %s: %w", tile, err)
		}
		if _, err := d.st.Put(tile, d.encBuf[:n]); err != nil {
			return err
		}
	}
	if tile.Level == 0 {
		d.written.Add(pageKey(d.pyr.Level(0).Pages, tile.X, tile.Y, tile.Z))
	}
	trace.SpanFromContext(ctx).AddEvent("page stored", trace.WithAttributes(attribute.String("raster.page", tile.String())))
	return nil
}

// encode compresses page into d.encBuf, growing it when the codec reports
// that it is too small.
func (d *Dataset) encode(page []byte) (int, error) {
	var err error
	for attempt := 0; attempt < maxEncodeAttempts; attempt++ {
		var n int
		n, err = d.codec.Compress(d.encBuf, page)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, core.ErrBufferTooSmall) {
			return 0, err
		}
		d.logger.Debug("Growing encode buffer", "from", len(d.encBuf), "to", 2*len(d.encBuf))
		d.encBuf = make([]byte, 2*len(d.encBuf))
	}
	return 0, err
}

// invalidate drops cached state for tile ahead of a write.
func (d *Dataset) invalidate(tile core.TilePos) {
	if d.page.holds(tile) {
		d.page.resident = false
	}
	if d.cacheOn {
		d.blocks.RemoveFunc(func(k blockKey) bool { return k.tile == tile })
	}
}

// isFillPage reports whether every sample of page, a page of band group
// group, equals its band's fill value.
func (d *Dataset) isFillPage(page []byte, group int) bool {
	nc := d.spec.Bands
	first := group * nc
	zero := true
	for b := first; b < first+nc; b++ {
		if d.fill[b] != 0 {
			zero = false
			break
		}
	}
	if zero {
		return core.IsFilled(page, d.geom.DataType, 0)
	}
	dt := d.geom.DataType
	n := len(page) / dt.Size()
	for i := 0; i < n; i++ {
		v := d.fill[first+i%nc]
		s := core.Sample(page, i, dt)
		if s != v && !(math.IsNaN(s) && math.IsNaN(v)) {
			return false
		}
	}
	return true
}

// fillPage sets every sample of page, a page of band group group, to its
// band's fill value.
func (d *Dataset) fillPage(page []byte, group int) {
	nc := d.spec.Bands
	first := group * nc
	dt := d.geom.DataType
	if nc == 1 {
		core.Fill(page, dt, d.fill[first])
		return
	}
	n := len(page) / dt.Size()
	for i := 0; i < n; i++ {
		core.PutSample(page, i, dt, d.fill[first+i%nc])
	}
}
