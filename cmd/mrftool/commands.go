package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/mrfstore/config"
	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/raster"
	"github.com/INLOpen/mrfstore/stats"
	"github.com/INLOpen/mrfstore/sys"
)

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(e *env, name, args string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: mrftool %s [flags] %s\n%s", name, args, fs.FlagUsages())
	}
	return fs
}

// parseFlags parses args and returns the positional arguments, requiring at
// least want of them.
func parseFlags(fs *pflag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() < want {
		fs.Usage()
		return nil, fmt.Errorf("%s: expected at least %d argument(s), got %d", fs.Name(), want, fs.NArg())
	}
	return fs.Args(), nil
}

func (e *env) options(writable bool) raster.Options {
	cacheSize := e.cfg.Cache.BlockCacheCapacity
	if cacheSize == 0 {
		cacheSize = -1
	}
	return raster.Options{
		Writable:       writable,
		SyncWrites:     e.cfg.Writer.SyncWrites,
		LockTimeout:    config.ParseDuration(e.cfg.Writer.LockTimeout, sys.DefaultLockTimeout, e.logger),
		BlockCacheSize: cacheSize,
		Logger:         e.logger,
		Tracer:         e.tracer,
	}
}

// parseSize parses "WxH" or "WxHxZ".
func parseSize(s string) (core.Size, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) < 2 || len(parts) > 3 {
		return core.Size{}, fmt.Errorf("invalid size %q, want WxH or WxHxZ", s)
	}
	vals := make([]int, 3)
	vals[2] = 1
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 1 {
			return core.Size{}, fmt.Errorf("invalid size %q: %q is not a positive integer", s, p)
		}
		vals[i] = v
	}
	return core.Size{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

func runCreate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "create", "<dataset.mrf>")
	size := fs.String("size", "", "raster size, WxH or WxHxZ (required)")
	page := fs.String("page", "", "page size WxH (default 512x512, capped to the raster)")
	bands := fs.Int("bands", 1, "number of bands")
	dataType := fs.String("type", "Byte", "sample type: Byte, Int16, UInt16, Int32, UInt32, Float32, Float64")
	order := fs.String("order", "PIXEL", "band layout: PIXEL or BAND")
	compression := fs.String("compression", "PNG", "page codec: PNG, JPEG, NONE, DEFLATE, TIF, ZSTD, LZ4, SNAPPY")
	quality := fs.Int("quality", config.DefaultQuality, "codec quality hint")
	scale := fs.Int("scale", 2, "overview scale factor")
	noData := fs.Float64Slice("nodata", nil, "NoData value, one for all bands or one per band")
	bbox := fs.Float64Slice("bbox", nil, "bounding box min_x,min_y,max_x,max_y")
	projection := fs.String("projection", "", "projection string stored with the bounding box")
	netByteOrder := fs.Bool("net-byte-order", false, "store multi-byte samples big-endian in raw pages")
	rest, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}
	if *size == "" {
		fs.Usage()
		return errors.New("create: --size is required")
	}
	sz, err := parseSize(*size)
	if err != nil {
		return err
	}
	sz.C = *bands

	cfg := &config.DatasetConfig{Raster: config.RasterConfig{Size: sz}}
	cfg.Raster.DataType = *dataType
	cfg.Raster.Order = *order
	cfg.Raster.Compression = *compression
	cfg.Raster.Quality = quality
	cfg.Raster.NetByteOrder = *netByteOrder
	cfg.Raster.DataValues.NoData = *noData
	cfg.Rsets.Scale = *scale
	if *page != "" {
		ps, err := parseSize(*page)
		if err != nil {
			return err
		}
		cfg.Raster.PageSize = core.Size{X: ps.X, Y: ps.Y}
	}
	if len(*bbox) > 0 {
		if len(*bbox) != 4 {
			return fmt.Errorf("create: --bbox needs 4 values, got %d", len(*bbox))
		}
		b := *bbox
		cfg.GeoTags.BoundingBox = &config.BoundingBox{MinX: b[0], MinY: b[1], MaxX: b[2], MaxY: b[3]}
		cfg.GeoTags.Projection = *projection
	}

	ds, err := raster.Create(rest[0], cfg, e.options(true))
	if err != nil {
		return err
	}
	defer ds.Close()
	e.logger.Info("Dataset created", "path", ds.Path(), "levels", ds.Pyramid().NumLevels())
	return ds.Close()
}

func runInfo(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "info", "<dataset.mrf>")
	rest, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}
	ds, err := raster.Open(rest[0], e.options(false))
	if err != nil {
		return err
	}
	defer ds.Close()
	return printInfo(e.stdout, ds)
}

func printInfo(w io.Writer, ds *raster.Dataset) error {
	g := ds.Geometry()
	fmt.Fprintf(w, "Dataset:      %s\n", ds.Path())
	fmt.Fprintf(w, "Size:         %s\n", g.Size)
	fmt.Fprintf(w, "Page size:    %s\n", g.PageSize)
	fmt.Fprintf(w, "Data type:    %s\n", g.DataType)
	fmt.Fprintf(w, "Order:        %s\n", g.Order)
	fmt.Fprintf(w, "Compression:  %s (quality %d)\n", g.Compression, g.Quality)
	for b := 0; b < ds.Bands(); b++ {
		if v, ok := ds.NoData(b); ok {
			fmt.Fprintf(w, "NoData b%d:    %g\n", b, v)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nLEVEL\tSIZE\tPAGES\tRECORDS\tBOUND")
	for i := 0; i < ds.Pyramid().NumLevels(); i++ {
		v, err := ds.Level(i)
		if err != nil {
			return err
		}
		l := ds.Pyramid().Level(i)
		bound := "-"
		if b, ok := v.Bound(); ok {
			bound = fmt.Sprintf("[%g %g, %g %g]", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
		}
		fmt.Fprintf(tw, "%d\t%dx%d\t%dx%dx%d\t%d\t%s\n", i, l.Size.X, l.Size.Y, l.Pages.X, l.Pages.Y, l.Pages.C, l.Records(), bound)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, "\nFiles:")
	for _, f := range ds.ListFiles() {
		fmt.Fprintf(w, "  %s\n", f)
	}
	return nil
}

// blockFlags registers the flags addressing a single band block.
func blockFlags(fs *pflag.FlagSet) *core.BlockPos {
	pos := &core.BlockPos{}
	fs.IntVar(&pos.Level, "level", 0, "pyramid level")
	fs.IntVar(&pos.X, "x", 0, "page column")
	fs.IntVar(&pos.Y, "y", 0, "page row")
	fs.IntVar(&pos.Z, "z", 0, "slice")
	fs.IntVar(&pos.Band, "band", 0, "band")
	return pos
}

func runPut(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "put", "<dataset.mrf> <block.raw>")
	pos := blockFlags(fs)
	patch := fs.Bool("patch", false, "rebuild the overview pages covering written level 0 pages")
	rest, err := parseFlags(fs, args, 2)
	if err != nil {
		return err
	}
	ds, err := raster.Open(rest[0], e.options(true))
	if err != nil {
		return err
	}
	defer ds.Close()

	src, err := os.ReadFile(rest[1])
	if err != nil {
		return &core.IOError{Op: "read", Path: rest[1], Err: err}
	}
	if len(src) != ds.BlockBytes() {
		return fmt.Errorf("put: %s holds %d bytes, a block needs %d", rest[1], len(src), ds.BlockBytes())
	}
	if err := ds.WriteBlock(ctx, *pos, src); err != nil {
		return err
	}
	if *patch {
		if err := ds.PatchWritten(ctx); err != nil {
			return err
		}
	}
	return ds.Close()
}

func runGet(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "get", "<dataset.mrf>")
	pos := blockFlags(fs)
	out := fs.StringP("output", "o", "-", "output file, - for stdout")
	rest, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}
	ds, err := raster.Open(rest[0], e.options(false))
	if err != nil {
		return err
	}
	defer ds.Close()

	buf := make([]byte, ds.BlockBytes())
	if err := ds.ReadBlock(ctx, *pos, buf); err != nil {
		return err
	}
	if *out == "-" {
		_, err = e.stdout.Write(buf)
		return err
	}
	return sys.WriteFile(*out, buf, 0644)
}

func runOverviews(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "overviews", "<dataset.mrf>...")
	factors := fs.IntSlice("factors", nil, "overview factors to build, powers of the scale (default: every level)")
	rest, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Jobs)
	for _, path := range rest {
		g.Go(func() error {
			ds, err := raster.Open(path, e.options(true))
			if err != nil {
				return err
			}
			defer ds.Close()
			f := *factors
			if len(f) == 0 {
				top := ds.Pyramid().NumLevels() - 1
				if top == 0 {
					e.logger.Info("Dataset has a single level, nothing to build", "path", path)
					return nil
				}
				f = []int{ds.Pyramid().Factor(top)}
			}
			e.logger.Info("Building overviews", "path", path, "factors", f)
			if err := ds.BuildOverviews(gctx, f); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return ds.Close()
		})
	}
	return g.Wait()
}

func runVerify(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "verify", "<dataset.mrf>...")
	rest, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}

	reports := make([]*raster.VerifyReport, len(rest))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Jobs)
	for i, path := range rest {
		g.Go(func() error {
			ds, err := raster.Open(path, e.options(false))
			if err != nil {
				return err
			}
			defer ds.Close()
			reports[i], err = ds.Verify(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tRECORDS\tPRESENT\tEMPTY\tHOLES\tPAYLOAD\tDIGEST\tPROBLEMS")
	for i, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%x\t%d\n", rest[i], r.Records, r.Present, r.KnownEmpty, r.Holes, r.PayloadBytes, r.Digest[:8], len(r.Problems))
		if !r.OK() {
			failed++
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for i, r := range reports {
		for _, p := range r.Problems {
			fmt.Fprintf(e.stdout, "%s: %s\n", rest[i], p)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d dataset(s): %w", failed, len(rest), errProblems)
	}
	return nil
}

func runStats(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "stats", "<dataset.mrf>")
	level := fs.Int("level", 0, "pyramid level")
	z := fs.Int("z", 0, "slice")
	quantiles := fs.Float64Slice("quantiles", []float64{0.05, 0.5, 0.95}, "quantiles to estimate")
	rest, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}
	ds, err := raster.Open(rest[0], e.options(false))
	if err != nil {
		return err
	}
	defer ds.Close()

	bands, err := stats.Compute(ctx, ds, *level, *z)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	header := "BAND\tCOUNT\tMIN\tMAX\tMEAN\tSTDDEV"
	for _, q := range *quantiles {
		header += fmt.Sprintf("\tP%g", q*100)
	}
	fmt.Fprintln(tw, header)
	for i := range bands {
		b := &bands[i]
		fmt.Fprintf(tw, "%d\t%d\t%g\t%g\t%.4f\t%.4f", b.Band, b.Count, b.Min, b.Max, b.Mean, b.StdDev)
		for _, q := range *quantiles {
			fmt.Fprintf(tw, "\t%g", b.Quantile(q))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
