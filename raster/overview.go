package raster

import (
	"context"
	"math"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/overview"
)

func (d *Dataset) builder() *overview.Builder {
	return overview.New(d, overview.Options{Logger: d.logger, Tracer: d.tracer})
}

// BuildOverviews rebuilds the overview levels for the given reduction
// factors. No factors means every level.
func (d *Dataset) BuildOverviews(ctx context.Context, factors []int) error {
	return d.builder().BuildOverviews(ctx, factors)
}

// PatchOverviews rebuilds the overview pages derived from a w×h page
// rectangle of srcLevel. See overview.Builder.PatchOverviews.
func (d *Dataset) PatchOverviews(ctx context.Context, x, y, w, h, srcLevel int, recurse bool) error {
	return d.builder().PatchOverviews(ctx, x, y, w, h, srcLevel, recurse)
}

// PatchWritten rebuilds every overview page that depends on a level 0 page
// written since the dataset was opened or last patched.
func (d *Dataset) PatchWritten(ctx context.Context) error {
	if d.written.IsEmpty() {
		return nil
	}
	g := d.pyr.Level(0).Pages
	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := -1, -1
	it := d.written.Iterator()
	for it.HasNext() {
		x, y, _ := pageCoords(g, it.Next())
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	d.logger.Info("Patching overviews of written pages", "pages", d.written.GetCardinality(),
		"x", minX, "y", minY, "w", maxX-minX+1, "h", maxY-minY+1)
	if err := d.PatchOverviews(ctx, minX, minY, maxX-minX+1, maxY-minY+1, 0, true); err != nil {
		return err
	}
	d.written.Clear()
	return nil
}

// pageKey numbers a level 0 page X + pagesX*(Y + pagesY*Z) in 64 bits.
func pageKey(pages core.Size, x, y, z int) uint64 {
	return uint64(x) + uint64(pages.X)*(uint64(y)+uint64(pages.Y)*uint64(z))
}

func pageCoords(pages core.Size, k uint64) (x, y, z int) {
	px, py := uint64(pages.X), uint64(pages.Y)
	return int(k % px), int(k / px % py), int(k / px / py)
}

// WrittenPages returns the number of distinct level 0 pages written since
// open or the last PatchWritten.
func (d *Dataset) WrittenPages() uint64 { return d.written.GetCardinality() }
