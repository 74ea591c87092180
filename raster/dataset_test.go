package raster

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/mrfstore/config"
	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/sys"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rasterConfig(size, page core.Size, order, compression, dataType string) *config.DatasetConfig {
	return &config.DatasetConfig{Raster: config.RasterConfig{
		Size:        size,
		PageSize:    page,
		Order:       order,
		Compression: compression,
		DataType:    dataType,
	}}
}

func createDataset(t *testing.T, cfg *config.DatasetConfig, opts Options) *Dataset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.mrf")
	opts.Logger = quietLogger()
	d, err := Create(path, cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func readOnly(t *testing.T, path string) *Dataset {
	t.Helper()
	d, err := Open(path, Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCreate_WritesFiles(t *testing.T) {
	d := createDataset(t, rasterConfig(core.Size{X: 1000, Y: 1000}, core.Size{X: 500, Y: 500}, "", "NONE", ""), Options{})

	files := d.ListFiles()
	require.Len(t, files, 3)
	assert.Equal(t, d.Path(), files[0])
	assert.Equal(t, ".til", filepath.Ext(files[1]))
	assert.Equal(t, ".idx", filepath.Ext(files[2]))

	fi, err := os.Stat(files[2])
	require.NoError(t, err)
	assert.Equal(t, d.Pyramid().IndexSize(), fi.Size())
	assert.Equal(t, int64(5*16), fi.Size())

	// the descriptor reloads to the same geometry
	cfg, err := config.LoadDatasetFile(d.Path())
	require.NoError(t, err)
	g, err := cfg.Geometry()
	require.NoError(t, err)
	assert.Equal(t, d.Geometry(), g)
}

func TestCreate_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mrf")
	_, err := Create(path, rasterConfig(core.Size{X: 10, Y: 10}, core.Size{}, "", "GIF", ""), Options{Logger: quietLogger()})
	assert.True(t, core.IsConfigError(err))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no descriptor for a rejected config")

	_, err = Create(path, rasterConfig(core.Size{X: 10, Y: 10}, core.Size{}, "", "JPEG12", ""), Options{Logger: quietLogger()})
	assert.ErrorIs(t, err, core.ErrUnsupportedType)
}

func TestOpen_MissingFilesNamed(t *testing.T) {
	d := createDataset(t, rasterConfig(core.Size{X: 8, Y: 8}, core.Size{X: 4, Y: 4}, "", "NONE", ""), Options{})
	files := d.ListFiles()
	require.NoError(t, d.Close())

	require.NoError(t, os.Remove(files[2]))
	_, err := Open(d.Path(), Options{Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, core.IsIOError(err))
	assert.Contains(t, err.Error(), files[2])

	_, err = Open(filepath.Join(t.TempDir(), "nothing.mrf"), Options{Logger: quietLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing.mrf")
}

func TestOpen_WritableMissingDataFile(t *testing.T) {
	ctx := context.Background()
	d := createDataset(t, rasterConfig(core.Size{X: 4, Y: 4}, core.Size{X: 4, Y: 4}, "", "NONE", ""), Options{})
	require.NoError(t, d.WriteBlock(ctx, core.BlockPos{}, bytes.Repeat([]byte{1}, d.BlockBytes())))
	files := d.ListFiles()
	require.NoError(t, d.Close())
	require.NoError(t, os.Remove(files[1]))

	_, err := Open(d.Path(), Options{Writable: true, Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, core.IsIOError(err))
	assert.Contains(t, err.Error(), files[1])
	_, statErr := os.Stat(files[1])
	assert.True(t, os.IsNotExist(statErr), "data file not recreated")
}

func TestOpen_ShortIndex(t *testing.T) {
	d := createDataset(t, rasterConfig(core.Size{X: 8, Y: 8}, core.Size{X: 4, Y: 4}, "", "NONE", ""), Options{})
	index := d.ListFiles()[2]
	require.NoError(t, d.Close())
	require.NoError(t, os.Truncate(index, 16))

	_, err := Open(d.Path(), Options{Logger: quietLogger()})
	assert.True(t, core.IsIndexConsistencyError(err))
	assert.Contains(t, err.Error(), index)

	w, err := Open(d.Path(), Options{Writable: true, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	fi, err := os.Stat(index)
	require.NoError(t, err)
	assert.Equal(t, d.Pyramid().IndexSize(), fi.Size())
}

func TestOpen_SingleWriter(t *testing.T) {
	d := createDataset(t, rasterConfig(core.Size{X: 8, Y: 8}, core.Size{X: 4, Y: 4}, "", "NONE", ""), Options{})

	_, err := Open(d.Path(), Options{Writable: true, LockTimeout: 50 * time.Millisecond, Logger: quietLogger()})
	assert.ErrorIs(t, err, sys.ErrLocked)

	// readers never lock
	r := readOnly(t, d.Path())
	assert.False(t, r.Writable())

	require.NoError(t, d.Close())
	w, err := Open(d.Path(), Options{Writable: true, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestOpen_SourceNeedsWritable(t *testing.T) {
	d := createDataset(t, rasterConfig(core.Size{X: 8, Y: 8}, core.Size{X: 4, Y: 4}, "", "NONE", ""), Options{})
	_, err := Open(d.Path(), Options{Source: d, Logger: quietLogger()})
	assert.True(t, core.IsConfigError(err))
}

func TestLevelView(t *testing.T) {
	cfg := rasterConfig(core.Size{X: 6, Y: 6}, core.Size{X: 4, Y: 4}, "", "NONE", "")
	cfg.GeoTags.BoundingBox = &config.BoundingBox{MinX: 0, MinY: 0, MaxX: 600, MaxY: 600}
	d := createDataset(t, cfg, Options{})
	require.Equal(t, 2, d.Pyramid().NumLevels())

	v0, err := d.Level(0)
	require.NoError(t, err)
	gt, ok := v0.GeoTransform()
	require.True(t, ok)
	assert.Equal(t, [6]float64{0, 100, 0, 600, 0, -100}, gt)

	v1, err := d.Level(1)
	require.NoError(t, err)
	assert.Equal(t, core.Size{X: 3, Y: 3, Z: 1, C: 1}, v1.Size())
	assert.Equal(t, core.Size{X: 1, Y: 1, Z: 1, C: 1}, v1.Pages())
	gt, _ = v1.GeoTransform()
	assert.Equal(t, [6]float64{0, 200, 0, 600, 0, -200}, gt)
	b, ok := v1.Bound()
	require.True(t, ok)
	assert.Equal(t, 600.0, b.Max[0])
	assert.Equal(t, 0.0, b.Min[1])
	require.NoError(t, v1.Close())

	_, err = d.Level(2)
	assert.True(t, core.IsConfigError(err))

	blk := make([]byte, d.BlockBytes())
	for i := range blk {
		blk[i] = 5
	}
	require.NoError(t, d.WriteBlock(context.Background(), core.BlockPos{Level: 1}, blk))

	view, err := OpenAtLevel(d.Path(), 1, Options{Logger: quietLogger()})
	require.NoError(t, err)
	out := make([]byte, d.BlockBytes())
	require.NoError(t, view.ReadBlock(context.Background(), 0, 0, 0, 0, out))
	assert.Equal(t, blk, out)

	win := make([]byte, 4)
	require.NoError(t, view.ReadRegion(context.Background(), 0, 1, 1, 2, 2, []int{0}, win))
	assert.Equal(t, []byte{5, 5, 5, 5}, win)
	require.NoError(t, view.Close())

	_, err = OpenAtLevel(d.Path(), 7, Options{Logger: quietLogger()})
	assert.Error(t, err)
}
