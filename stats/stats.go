// Package stats computes per-band sample statistics of a pyramid level.
package stats

import (
	"context"
	"fmt"
	"math"

	"github.com/caio/go-tdigest/v4"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/levels"
)

// Source is the read surface statistics are computed from.
type Source interface {
	Pyramid() *levels.Pyramid
	DataType() core.DataType
	Bands() int
	NoData(band int) (float64, bool)
	ReadRegion(ctx context.Context, region core.Region, bands []int, dst []byte) error
}

// BandStats holds the statistics of one band. Quantiles are estimates.
type BandStats struct {
	Band   int
	Count  uint64
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64

	td *tdigest.TDigest
}

// Quantile returns the estimated q quantile, q in [0, 1].
func (s *BandStats) Quantile(q float64) float64 {
	if s.td == nil || s.Count == 0 {
		return math.NaN()
	}
	return s.td.Quantile(q)
}

// Median returns the estimated median.
func (s *BandStats) Median() float64 { return s.Quantile(0.5) }

type accumulator struct {
	td       *tdigest.TDigest
	n        uint64
	min, max float64
	mean, m2 float64
	nd       float64
	hasND    bool
}

// add folds v in with Welford's update.
func (a *accumulator) add(v float64) error {
	if math.IsNaN(v) || a.hasND && v == a.nd {
		return nil
	}
	if a.n == 0 {
		a.min, a.max = v, v
	}
	a.min, a.max = min(a.min, v), max(a.max, v)
	a.n++
	delta := v - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (v - a.mean)
	return a.td.AddWeighted(v, 1)
}

// Compute reads every pixel of slice z of level and returns one BandStats
// per band. No-data and NaN samples are skipped.
func Compute(ctx context.Context, src Source, level, z int) ([]BandStats, error) {
	pyr := src.Pyramid()
	if level < 0 || level >= pyr.NumLevels() {
		return nil, fmt.Errorf("%w: level %d", core.ErrOutOfRange, level)
	}
	lvl := pyr.Level(level)
	if z < 0 || z >= lvl.Size.Z {
		return nil, fmt.Errorf("%w: slice %d", core.ErrOutOfRange, z)
	}
	nb := src.Bands()
	dt := src.DataType()
	bands := make([]int, nb)
	accs := make([]*accumulator, nb)
	for b := range accs {
		td, err := tdigest.New()
		if err != nil {
			return nil, fmt.Errorf("tdigest.New failed: %w", err)
		}
		bands[b] = b
		accs[b] = &accumulator{td: td}
		accs[b].nd, accs[b].hasND = src.NoData(b)
	}

	page := pyr.PageSize()
	buf := make([]byte, page.X*page.Y*nb*dt.Size())
	for y := 0; y < lvl.Size.Y; y += page.Y {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < lvl.Size.X; x += page.X {
			region := core.Region{Level: level, Z: z, X: x, Y: y, W: min(page.X, lvl.Size.X-x), H: min(page.Y, lvl.Size.Y-y)}
			n := region.Pixels() * nb
			win := buf[:n*dt.Size()]
			if err := src.ReadRegion(ctx, region, bands, win); err != nil {
				return nil, err
			}
			for i := 0; i < n; i++ {
				if err := accs[i%nb].add(core.Sample(win, i, dt)); err != nil {
					return nil, fmt.Errorf("band %d: %w", i%nb, err)
				}
			}
		}
	}

	out := make([]BandStats, nb)
	for b, a := range accs {
		out[b] = BandStats{Band: b, Count: a.n, Min: a.min, Max: a.max, Mean: a.mean, td: a.td}
		if a.n > 1 {
			out[b].StdDev = math.Sqrt(a.m2 / float64(a.n-1))
		}
		if a.n == 0 {
			out[b].Min, out[b].Max, out[b].Mean = math.NaN(), math.NaN(), math.NaN()
		}
	}
	return out, nil
}
