// Package raster reads and writes the bands of a tiled raster pyramid
// stored as an index file plus an append-only data file.
package raster

import (
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"os"

	"github.com/RoaringBitmap/roaring/roaring64"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/INLOpen/mrfstore/cache"
	"github.com/INLOpen/mrfstore/compressors"
	"github.com/INLOpen/mrfstore/config"
	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/levels"
	"github.com/INLOpen/mrfstore/store"
	"github.com/INLOpen/mrfstore/sys"
)

// blockKey names one band of one page in the block cache.
type blockKey struct {
	tile core.TilePos
	band int
}

// Dataset is an open raster. A Dataset owns a single page buffer and is not
// safe for concurrent use; callers serialize access per handle.
type Dataset struct {
	path string
	cfg  *config.DatasetConfig
	geom config.Geometry
	pyr  *levels.Pyramid
	st   *store.Store

	codec core.PageCodec
	spec  core.PageSpec
	fill  []float64

	page    *pageBuffer
	blocks  *cache.LRU[blockKey, []byte]
	cacheOn bool
	// written holds the level 0 pages written since open, keyed by
	// X + pagesX*(Y + pagesY*Z).
	written *roaring64.Bitmap

	encBuf []byte
	rawBuf []byte
	// scratch decodes a page while the page buffer is collecting writes.
	scratch []byte

	source   SourceProvider
	writable bool
	unlock   func() error

	cacheHits   *expvar.Int
	cacheMisses *expvar.Int

	logger *slog.Logger
	tracer trace.Tracer
}

// Create writes the descriptor at path and creates an empty data file and
// an index of holes sized for the whole pyramid. Unset descriptor fields
// are defaulted in cfg. The dataset is returned open for writing.
func Create(path string, cfg *config.DatasetConfig, opts Options) (*Dataset, error) {
	cfg.ApplyDefaults()
	geom, err := cfg.Geometry()
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	opts.Writable = true
	d, err := newDataset(path, cfg, geom, opts)
	if err != nil {
		return nil, err
	}
	if err := d.lock(opts); err != nil {
		return nil, err
	}
	if err := config.SaveDataset(path, cfg); err != nil {
		d.release()
		return nil, err
	}
	dataPath, indexPath := cfg.Files(path)
	d.st, err = store.Create(store.Options{
		IndexPath:  indexPath,
		DataPath:   dataPath,
		Pyramid:    d.pyr,
		Writable:   true,
		SyncWrites: opts.SyncWrites,
		Logger:     d.logger,
	})
	if err != nil {
		d.release()
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	d.logger.Info("Dataset created", "size", geom.Size.String(), "page", geom.PageSize.String(),
		"compression", geom.Compression.String(), "levels", d.pyr.NumLevels())
	return d, nil
}

// Open opens the dataset described by the descriptor at path. Any problem
// with the descriptor or the files aborts the open.
func Open(path string, opts Options) (*Dataset, error) {
	cfg, err := config.LoadDatasetFile(path)
	if err != nil {
		return nil, err
	}
	geom, err := cfg.Geometry()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if opts.Source != nil && !opts.Writable {
		return nil, &core.ConfigError{Field: "source", Value: path, Message: "a pull-through source needs a writable dataset"}
	}
	d, err := newDataset(path, cfg, geom, opts)
	if err != nil {
		return nil, err
	}
	if opts.Writable {
		if err := d.lock(opts); err != nil {
			return nil, err
		}
	}
	dataPath, indexPath := cfg.Files(path)
	d.st, err = store.Open(store.Options{
		IndexPath:  indexPath,
		DataPath:   dataPath,
		Pyramid:    d.pyr,
		Writable:   opts.Writable,
		SyncWrites: opts.SyncWrites,
		Logger:     d.logger,
	})
	if err != nil {
		d.release()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return d, nil
}

func newDataset(path string, cfg *config.DatasetConfig, geom config.Geometry, opts Options) (*Dataset, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("mrfstore/raster")
	}
	pyr, err := geom.Pyramid()
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	spec := geom.PageSpec()
	codec, err := compressors.New(spec)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}

	fill := make([]float64, geom.Size.C)
	for b := range fill {
		if v, ok := cfg.Raster.DataValues.NoDataFor(b); ok {
			fill[b] = v
		}
	}

	capacity := opts.BlockCacheSize
	if capacity == 0 {
		capacity = DefaultBlockCacheSize * geom.Size.C
	}
	d := &Dataset{
		path:        path,
		cfg:         cfg,
		geom:        geom,
		pyr:         pyr,
		codec:       codec,
		spec:        spec,
		fill:        fill,
		page:        newPageBuffer(spec),
		blocks:      cache.New[blockKey, []byte](capacity, nil),
		cacheOn:     capacity > 0,
		written:     roaring64.New(),
		encBuf:      make([]byte, compressors.BufferSize(spec)),
		source:      opts.Source,
		writable:    opts.Writable,
		cacheHits:   new(expvar.Int),
		cacheMisses: new(expvar.Int),
		logger:      opts.Logger.With("component", "RasterBand", "dataset", path),
		tracer:      opts.Tracer,
	}
	d.blocks.SetMetrics(d.cacheHits, d.cacheMisses)
	return d, nil
}

func (d *Dataset) lock(opts Options) error {
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = sys.DefaultLockTimeout
	}
	unlock, err := sys.AcquireWriterLock(d.path, timeout)
	if err != nil {
		return fmt.Errorf("open %s for writing: %w", d.path, err)
	}
	d.unlock = unlock
	return nil
}

func (d *Dataset) release() error {
	if d.unlock == nil {
		return nil
	}
	err := d.unlock()
	d.unlock = nil
	return err
}

// Close releases the files and the writer lock. A page still accumulating
// band writes is discarded.
func (d *Dataset) Close() error {
	if d.page.accumulating() {
		d.logger.Warn("Closing with a partially written page", "page", d.page.tile.String(), "bands", d.page.dirtyCount())
		d.page.reset()
	}
	var errs []error
	if d.st != nil {
		if d.writable {
			errs = append(errs, d.st.Sync())
		}
		errs = append(errs, d.st.Close())
		d.st = nil
	}
	errs = append(errs, d.release())
	return errors.Join(errs...)
}

// Path returns the descriptor path.
func (d *Dataset) Path() string { return d.path }

// Config returns the parsed descriptor.
func (d *Dataset) Config() *config.DatasetConfig { return d.cfg }

// Geometry returns the validated raster geometry.
func (d *Dataset) Geometry() config.Geometry { return d.geom }

func (d *Dataset) Pyramid() *levels.Pyramid { return d.pyr }
func (d *Dataset) DataType() core.DataType  { return d.geom.DataType }
func (d *Dataset) Bands() int               { return d.geom.Size.C }
func (d *Dataset) Writable() bool           { return d.writable }

// NoData returns the configured no-data value of band.
func (d *Dataset) NoData(band int) (float64, bool) {
	return d.cfg.Raster.DataValues.NoDataFor(band)
}

// FillValue is the value rendered for samples of band that were never
// written: the no-data value when one is configured, zero otherwise.
func (d *Dataset) FillValue(band int) float64 { return d.fill[band] }

// BlockBytes returns the size of one band of one page.
func (d *Dataset) BlockBytes() int {
	return d.spec.Width * d.spec.Height * d.spec.DataType.Size()
}

// CacheHitRate returns the block cache hit rate since open.
func (d *Dataset) CacheHitRate() float64 { return d.blocks.GetHitRate() }

// Record returns the index record of the page holding pos.
func (d *Dataset) Record(pos core.BlockPos) (store.Record, error) {
	return d.st.Record(d.pyr.TilePos(pos))
}

// ListFiles returns the descriptor, data and index paths, the ones that
// exist on disk.
func (d *Dataset) ListFiles() []string {
	data, index := d.cfg.Files(d.path)
	var files []string
	for _, p := range []string{d.path, data, index} {
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	return files
}
