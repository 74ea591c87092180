// Package overview derives the reduced resolution levels of a raster
// pyramid by box averaging.
package overview

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/levels"
)

// Raster is the read and write surface the builder needs.
type Raster interface {
	Pyramid() *levels.Pyramid
	DataType() core.DataType
	Bands() int
	// NoData returns the no-data value of band. No-data samples are left
	// out of averages.
	NoData(band int) (float64, bool)
	// FillValue is written for output samples with no valid input.
	FillValue(band int) float64
	ReadRegion(ctx context.Context, region core.Region, bands []int, dst []byte) error
	WriteBlock(ctx context.Context, pos core.BlockPos, src []byte) error
}

// Options configures a Builder.
type Options struct {
	Logger *slog.Logger
	Tracer trace.Tracer
}

// Builder writes overview pages. A Builder shares the raster's page buffer
// and must not run concurrently with other operations on the same raster.
type Builder struct {
	r      Raster
	pyr    *levels.Pyramid
	dt     core.DataType
	bands  []int
	noData []float64
	hasND  []bool
	fill   []float64

	src []byte
	out []byte

	pagesWritten int64

	logger *slog.Logger
	tracer trace.Tracer
}

// New returns a builder for r.
func New(r Raster, opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("mrfstore/overview")
	}
	nb := r.Bands()
	b := &Builder{
		r:      r,
		pyr:    r.Pyramid(),
		dt:     r.DataType(),
		bands:  make([]int, nb),
		noData: make([]float64, nb),
		hasND:  make([]bool, nb),
		fill:   make([]float64, nb),
		logger: opts.Logger.With("component", "OverviewBuilder"),
		tracer: opts.Tracer,
	}
	for i := range b.bands {
		b.bands[i] = i
		b.noData[i], b.hasND[i] = r.NoData(i)
		b.fill[i] = r.FillValue(i)
	}
	return b
}

// PagesWritten returns the number of overview pages written so far.
func (b *Builder) PagesWritten() int64 { return b.pagesWritten }

// outputRange maps pages [start, start+n) of one level to the pages of the
// next level they contribute to, clipped to limit.
func outputRange(start, n, scale, limit int) (int, int) {
	o := start / scale
	end := min((start+n+scale-1)/scale, limit)
	return o, end - o
}

// PatchOverviews rebuilds the pages of level srcLevel+1 covering the w×h
// page rectangle at (x, y) of level srcLevel, across all slices. With
// recurse set, the rebuilt rectangle is propagated up to the top level.
func (b *Builder) PatchOverviews(ctx context.Context, x, y, w, h, srcLevel int, recurse bool) (err error) {
	ctx, span := b.tracer.Start(ctx, "Overview.Patch")
	span.SetAttributes(
		attribute.Int("overview.src_level", srcLevel),
		attribute.IntSlice("overview.rect", []int{x, y, w, h}),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for {
		if srcLevel < 0 || srcLevel >= b.pyr.NumLevels() {
			return fmt.Errorf("%w: level %d", core.ErrOutOfRange, srcLevel)
		}
		if srcLevel == b.pyr.NumLevels()-1 {
			return nil
		}
		src := b.pyr.Level(srcLevel)
		x, y = max(x, 0), max(y, 0)
		w, h = min(w, src.Pages.X-x), min(h, src.Pages.Y-y)
		if w < 1 || h < 1 {
			return nil
		}
		dst := b.pyr.Level(srcLevel + 1)
		ox, ow := outputRange(x, w, b.pyr.Scale(), dst.Pages.X)
		oy, oh := outputRange(y, h, b.pyr.Scale(), dst.Pages.Y)

		for z := 0; z < dst.Pages.Z; z++ {
			for py := oy; py < oy+oh; py++ {
				for px := ox; px < ox+ow; px++ {
					if err := b.buildPage(ctx, dst.Index, px, py, z); err != nil {
						return err
					}
				}
			}
		}
		b.logger.Debug("Overview pages rebuilt", "level", dst.Index, "x", ox, "y", oy, "w", ow, "h", oh)
		if !recurse {
			return nil
		}
		x, y, w, h, srcLevel = ox, oy, ow, oh, dst.Index
	}
}

// BuildOverviews builds the levels named by reduction factors, each a power
// of the pyramid scale. Every level between level 0 and the coarsest
// requested one is rebuilt, since each level is derived from the one below
// it. No factors means every level.
func (b *Builder) BuildOverviews(ctx context.Context, factors []int) (err error) {
	ctx, span := b.tracer.Start(ctx, "Overview.Build")
	span.SetAttributes(attribute.IntSlice("overview.factors", factors))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	top := b.pyr.NumLevels() - 1
	if len(factors) > 0 {
		lvls := make([]int, 0, len(factors))
		for _, f := range factors {
			l, err := b.pyr.LevelForFactor(f)
			if err != nil {
				return err
			}
			lvls = append(lvls, l)
		}
		top = slices.Max(lvls)
	}
	for l := 1; l <= top; l++ {
		src := b.pyr.Level(l - 1)
		if err := b.PatchOverviews(ctx, 0, 0, src.Pages.X, src.Pages.Y, l-1, false); err != nil {
			return fmt.Errorf("build level %d: %w", l, err)
		}
		b.logger.Info("Overview level built", "level", l, "factor", b.pyr.Factor(l), "size", b.pyr.Level(l).Size.String())
	}
	return nil
}

// buildPage averages the source pixels under one output page and writes
// every band of it.
func (b *Builder) buildPage(ctx context.Context, level, px, py, z int) error {
	s := b.pyr.Scale()
	page := b.pyr.PageSize()
	pw, ph := page.X, page.Y
	srcSize := b.pyr.Level(level - 1).Size

	// Clip the source window to the source level so edge pages never read
	// past the raster.
	region := core.Region{Level: level - 1, Z: z, X: px * pw * s, Y: py * ph * s}
	region.W = min(pw*s, srcSize.X-region.X)
	region.H = min(ph*s, srcSize.Y-region.Y)

	nb := len(b.bands)
	sz := b.dt.Size()
	need := region.Pixels() * nb * sz
	if cap(b.src) < need {
		b.src = make([]byte, need)
	}
	src := b.src[:need]
	if err := b.r.ReadRegion(ctx, region, b.bands, src); err != nil {
		return fmt.Errorf("read %s: %w", region, err)
	}

	if len(b.out) != pw*ph*sz {
		b.out = make([]byte, pw*ph*sz)
	}
	for band := 0; band < nb; band++ {
		b.average(src, region.W, region.H, band)
		pos := core.BlockPos{Level: level, X: px, Y: py, Z: z, Band: band}
		if err := b.r.WriteBlock(ctx, pos, b.out); err != nil {
			return fmt.Errorf("write %s: %w", pos, err)
		}
	}
	b.pagesWritten++
	return nil
}

// average fills b.out with the scale×scale box average of band over the
// sw×sh pixel-interleaved source window. Only source samples inside the
// window, and not equal to no-data, contribute.
func (b *Builder) average(src []byte, sw, sh, band int) {
	s := b.pyr.Scale()
	page := b.pyr.PageSize()
	nb := len(b.bands)
	isFloat := b.dt.IsFloat()
	nd, hasND := b.noData[band], b.hasND[band]
	ndNaN := hasND && math.IsNaN(nd)

	for oy := 0; oy < page.Y; oy++ {
		for ox := 0; ox < page.X; ox++ {
			var sum float64
			n := 0
			for y := oy * s; y < min(oy*s+s, sh); y++ {
				for x := ox * s; x < min(ox*s+s, sw); x++ {
					v := core.Sample(src, (y*sw+x)*nb+band, b.dt)
					if hasND && (v == nd || ndNaN && math.IsNaN(v)) {
						continue
					}
					if isFloat && math.IsNaN(v) {
						continue
					}
					sum += v
					n++
				}
			}
			i := oy*page.X + ox
			switch {
			case n == 0:
				core.PutSample(b.out, i, b.dt, b.fill[band])
			case isFloat:
				core.PutSample(b.out, i, b.dt, sum/float64(n))
			default:
				core.PutSample(b.out, i, b.dt, math.Floor(sum/float64(n)+0.5))
			}
		}
	}
}
