package raster

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/store"
)

// PageProblem is a page that failed verification.
type PageProblem struct {
	Tile core.TilePos
	Err  error
}

// VerifyReport summarizes a full pass over the index.
type VerifyReport struct {
	Records    int64
	Holes      int64
	KnownEmpty int64
	Present    int64
	// PayloadBytes is the sum of Present record sizes; DataBytes is the
	// data file length. The difference is space held by overwritten pages.
	PayloadBytes int64
	DataBytes    int64
	// Digest covers every decoded page and every record kind in index
	// order, so two datasets with the same content have the same digest
	// whatever their data file layout.
	Digest   [32]byte
	Problems []PageProblem
}

// OK reports whether every page was readable.
func (r *VerifyReport) OK() bool { return len(r.Problems) == 0 }

// Verify reads and decodes every Present page of every level. Page
// failures are collected in the report; only a cancelled context stops the
// walk early.
func (d *Dataset) Verify(ctx context.Context) (_ *VerifyReport, err error) {
	ctx, span := d.tracer.Start(ctx, "Dataset.Verify")
	defer func() { endSpan(span, err) }()

	rep := &VerifyReport{DataBytes: d.st.Data().Len()}
	hasher := blake3.New()
	page := make([]byte, d.spec.Bytes())
	var raw []byte
	var tag [9]byte

	for _, lvl := range d.pyr.Levels() {
		g := lvl.Pages
		for z := 0; z < g.Z; z++ {
			for y := 0; y < g.Y; y++ {
				if err := ctx.Err(); err != nil {
					return rep, err
				}
				for x := 0; x < g.X; x++ {
					for c := 0; c < g.C; c++ {
						tile := core.TilePos{Level: lvl.Index, X: x, Y: y, Z: z, C: c}
						rep.Records++
						rec, payload, err := d.st.Get(tile, raw)
						if err != nil {
							rep.Problems = append(rep.Problems, PageProblem{Tile: tile, Err: err})
							continue
						}
						raw = payload
						tag[0] = byte(rec.Kind())
						binary.LittleEndian.PutUint64(tag[1:], uint64(rep.Records-1))
						hasher.Write(tag[:])

						switch rec.Kind() {
						case store.Hole:
							rep.Holes++
							continue
						case store.KnownEmpty:
							rep.KnownEmpty++
							continue
						}
						rep.Present++
						rep.PayloadBytes += rec.Size()
						if err := d.codec.Decompress(page, payload); err != nil {
							rep.Problems = append(rep.Problems, PageProblem{Tile: tile, Err: err})
							continue
						}
						sum := blake3.Sum256(page)
						hasher.Write(sum[:])
					}
				}
			}
		}
	}
	copy(rep.Digest[:], hasher.Sum(nil))

	span.SetAttributes(
		attribute.Int64("raster.records", rep.Records),
		attribute.Int64("raster.present", rep.Present),
		attribute.Int("raster.problems", len(rep.Problems)),
	)
	for _, p := range rep.Problems {
		d.logger.Warn("Page failed verification", "page", p.Tile.String(), "error", p.Err)
	}
	return rep, nil
}

func (p PageProblem) String() string {
	return fmt.Sprintf("%s: %v", p.Tile, p.Err)
}
