package raster

import (
	"context"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/levels"
)

// LevelView presents one pyramid level as a standalone raster.
type LevelView struct {
	ds    *Dataset
	level int
	owned bool
}

// Level returns a view of level n of the dataset. Closing the view does
// not close the dataset.
func (d *Dataset) Level(n int) (*LevelView, error) {
	if n < 0 || n >= d.pyr.NumLevels() {
		return nil, &core.ConfigError{Field: "level", Value: strconv.Itoa(n), Message: "no such pyramid level"}
	}
	return &LevelView{ds: d, level: n}, nil
}

// OpenAtLevel opens the dataset at path and returns a view of level n that
// owns the dataset handle.
func OpenAtLevel(path string, n int, opts Options) (*LevelView, error) {
	d, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	v, err := d.Level(n)
	if err != nil {
		d.Close()
		return nil, err
	}
	v.owned = true
	return v, nil
}

func (v *LevelView) Dataset() *Dataset { return v.ds }
func (v *LevelView) Level() int        { return v.level }

func (v *LevelView) info() levels.Level { return v.ds.pyr.Level(v.level) }

// Size returns the pixel size of the level.
func (v *LevelView) Size() core.Size { return v.info().Size }

// Pages returns the page grid of the level.
func (v *LevelView) Pages() core.Size { return v.info().Pages }

// GeoTransform returns the affine transform of the level: origin x, pixel
// width, row rotation, origin y, column rotation, pixel height. ok is false
// when the dataset has no bounding box.
func (v *LevelView) GeoTransform() (gt [6]float64, ok bool) {
	bb := v.ds.cfg.GeoTags.BoundingBox
	if bb == nil {
		return gt, false
	}
	size := v.ds.geom.Size
	f := float64(v.ds.pyr.Factor(v.level))
	rx := (bb.MaxX - bb.MinX) / float64(size.X)
	ry := (bb.MaxY - bb.MinY) / float64(size.Y)
	return [6]float64{bb.MinX, rx * f, 0, bb.MaxY, 0, -ry * f}, true
}

// Bound returns the extent covered by the level's pixels. Because level
// sizes round up, coarse levels can extend past the level 0 extent.
func (v *LevelView) Bound() (orb.Bound, bool) {
	gt, ok := v.GeoTransform()
	if !ok {
		return orb.Bound{}, false
	}
	size := v.Size()
	maxX := gt[0] + gt[1]*float64(size.X)
	minY := gt[3] + gt[5]*float64(size.Y)
	return orb.Bound{Min: orb.Point{gt[0], minY}, Max: orb.Point{maxX, gt[3]}}, true
}

// ReadBlock reads one band of the page at column x, row y of slice z.
func (v *LevelView) ReadBlock(ctx context.Context, x, y, z, band int, dst []byte) error {
	return v.ds.ReadBlock(ctx, core.BlockPos{Level: v.level, X: x, Y: y, Z: z, Band: band}, dst)
}

// ReadRegion reads a pixel window of slice z of the level.
func (v *LevelView) ReadRegion(ctx context.Context, z, x, y, w, h int, bands []int, dst []byte) error {
	return v.ds.ReadRegion(ctx, core.Region{Level: v.level, Z: z, X: x, Y: y, W: w, H: h}, bands, dst)
}

// Close closes the underlying dataset when the view was opened with
// OpenAtLevel.
func (v *LevelView) Close() error {
	if !v.owned {
		return nil
	}
	return v.ds.Close()
}
