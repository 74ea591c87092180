package stats

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/mrfstore/config"
	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/raster"
)

func TestCompute(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewDataset(core.Size{X: 10, Y: 10, C: 2})
	cfg.Raster.PageSize = core.Size{X: 4, Y: 4}
	cfg.Raster.Compression = "DEFLATE"
	cfg.Raster.DataType = "UInt16"
	cfg.Raster.DataValues.NoData = []float64{0}
	d, err := raster.Create(filepath.Join(t.TempDir(), "s.mrf"), cfg, raster.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	defer d.Close()

	// band 0 holds x+10y+1 inside the raster, band 1 a constant 5
	pages := d.Pyramid().Level(0).Pages
	for py := 0; py < pages.Y; py++ {
		for px := 0; px < pages.X; px++ {
			b0 := make([]byte, d.BlockBytes())
			b1 := make([]byte, d.BlockBytes())
			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					gx, gy := px*4+x, py*4+y
					if gx < 10 && gy < 10 {
						core.PutSample(b0, y*4+x, core.TypeUInt16, float64(gx+10*gy+1))
						core.PutSample(b1, y*4+x, core.TypeUInt16, 5)
					}
				}
			}
			require.NoError(t, d.WriteBlock(ctx, core.BlockPos{X: px, Y: py, Band: 0}, b0))
			require.NoError(t, d.WriteBlock(ctx, core.BlockPos{X: px, Y: py, Band: 1}, b1))
		}
	}

	got, err := Compute(ctx, d, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, uint64(100), got[0].Count)
	assert.Equal(t, 1.0, got[0].Min)
	assert.Equal(t, 100.0, got[0].Max)
	assert.InDelta(t, 50.5, got[0].Mean, 1e-9)
	assert.InDelta(t, 29.0115, got[0].StdDev, 1e-3)
	assert.InDelta(t, 50.5, got[0].Median(), 2)

	assert.Equal(t, uint64(100), got[1].Count)
	assert.Equal(t, 5.0, got[1].Min)
	assert.Equal(t, 5.0, got[1].Quantile(0.9))
	assert.Zero(t, got[1].StdDev)

	// the coarsest level is all no-data until overviews exist
	top := d.Pyramid().NumLevels() - 1
	empty, err := Compute(ctx, d, top, 0)
	require.NoError(t, err)
	assert.Zero(t, empty[0].Count)
	assert.True(t, math.IsNaN(empty[0].Mean))
	assert.True(t, math.IsNaN(empty[0].Median()))

	_, err = Compute(ctx, d, top+1, 0)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
	_, err = Compute(ctx, d, 0, 1)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
}
