package raster

import (
	"context"
	"fmt"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/store"
)

// SourceProvider supplies pixels for pages that were never written. dst is
// pixel-interleaved over bands, region.W*region.H*len(bands) samples of the
// dataset's data type.
//
// A *Dataset is itself a SourceProvider, so one dataset can cache another
// of the same geometry.
type SourceProvider interface {
	ReadRegion(ctx context.Context, region core.Region, bands []int, dst []byte) error
}

var _ SourceProvider = (*Dataset)(nil)

// pullThrough fetches the page at tile from the source and stores it. An
// all-fill page is stored as KnownEmpty so the source is not asked again.
func (d *Dataset) pullThrough(ctx context.Context, tile core.TilePos) error {
	lvl := d.pyr.Level(tile.Level)
	pw, ph := d.spec.Width, d.spec.Height
	region := core.Region{
		Level: tile.Level,
		Z:     tile.Z,
		X:     tile.X * pw,
		Y:     tile.Y * ph,
	}
	region.W = min(pw, lvl.Size.X-region.X)
	region.H = min(ph, lvl.Size.Y-region.Y)

	nc := d.spec.Bands
	bands := make([]int, nc)
	for i := range bands {
		bands[i] = tile.C*nc + i
	}
	sz := d.geom.DataType.Size()
	fetched := make([]byte, region.Pixels()*nc*sz)
	if err := d.source.ReadRegion(ctx, region, bands, fetched); err != nil {
		return err
	}

	page := make([]byte, d.spec.Bytes())
	d.fillPage(page, tile.C)
	row := region.W * nc * sz
	for y := 0; y < region.H; y++ {
		copy(page[y*pw*nc*sz:], fetched[y*row:(y+1)*row])
	}
	d.logger.Debug("Page fetched from source", "page", tile.String(), "region", region.String())
	return d.writePage(ctx, tile, page, store.KnownEmpty)
}

// ReadRegion reads a pixel window of one slice of a level. dst receives the
// listed bands pixel-interleaved and must hold exactly
// region.W*region.H*len(bands) samples.
func (d *Dataset) ReadRegion(ctx context.Context, region core.Region, bands []int, dst []byte) (err error) {
	ctx, span := d.tracer.Start(ctx, "Dataset.ReadRegion")
	defer func() { endSpan(span, err) }()

	if err := d.checkRegion(region, bands, dst); err != nil {
		return err
	}
	pw, ph := d.spec.Width, d.spec.Height
	sz := d.geom.DataType.Size()
	nb := len(bands)
	blk := make([]byte, d.BlockBytes())

	for py := region.Y / ph; py*ph < region.Y+region.H; py++ {
		y0, y1 := max(region.Y, py*ph), min(region.Y+region.H, (py+1)*ph)
		for px := region.X / pw; px*pw < region.X+region.W; px++ {
			x0, x1 := max(region.X, px*pw), min(region.X+region.W, (px+1)*pw)
			for bi, band := range bands {
				pos := core.BlockPos{Level: region.Level, X: px, Y: py, Z: region.Z, Band: band}
				if err := d.readBlock(ctx, d.pyr.TilePos(pos), band, blk, true); err != nil {
					return err
				}
				for y := y0; y < y1; y++ {
					src := ((y-py*ph)*pw + (x0 - px*pw)) * sz
					out := (((y-region.Y)*region.W+(x0-region.X))*nb + bi) * sz
					if nb == 1 {
						copy(dst[out:out+(x1-x0)*sz], blk[src:])
						continue
					}
					for x := x0; x < x1; x++ {
						copy(dst[out:out+sz], blk[src:src+sz])
						src += sz
						out += nb * sz
					}
				}
			}
		}
	}
	return nil
}

func (d *Dataset) checkRegion(region core.Region, bands []int, dst []byte) error {
	if region.Level < 0 || region.Level >= d.pyr.NumLevels() {
		return fmt.Errorf("%w: level %d", core.ErrOutOfRange, region.Level)
	}
	size := d.pyr.Level(region.Level).Size
	if region.W < 1 || region.H < 1 || region.X < 0 || region.Y < 0 ||
		region.X+region.W > size.X || region.Y+region.H > size.Y ||
		region.Z < 0 || region.Z >= size.Z {
		return fmt.Errorf("%w: region %s of %s", core.ErrOutOfRange, region, size)
	}
	if len(bands) == 0 {
		return fmt.Errorf("%w: no bands requested", core.ErrOutOfRange)
	}
	for _, b := range bands {
		if b < 0 || b >= d.geom.Size.C {
			return fmt.Errorf("%w: band %d of %d", core.ErrOutOfRange, b, d.geom.Size.C)
		}
	}
	if want := region.Pixels() * len(bands) * d.geom.DataType.Size(); len(dst) != want {
		return fmt.Errorf("%w: region buffer is %d bytes, want %d", core.ErrSizeMismatch, len(dst), want)
	}
	return nil
}
