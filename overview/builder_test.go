package overview

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/levels"
)

// memRaster keeps every level as one pixel-interleaved image.
type memRaster struct {
	pyr    *levels.Pyramid
	dt     core.DataType
	nb     int
	noData map[int]float64
	images [][]byte
	writes map[int]int
}

func newMemRaster(t *testing.T, size, page core.Size, dt core.DataType) *memRaster {
	t.Helper()
	pyr, err := levels.New(size, page, 2)
	require.NoError(t, err)
	m := &memRaster{pyr: pyr, dt: dt, nb: max(size.C, 1), noData: map[int]float64{}, writes: map[int]int{}}
	for _, l := range pyr.Levels() {
		m.images = append(m.images, make([]byte, l.Size.X*l.Size.Y*m.nb*dt.Size()))
	}
	return m
}

func (m *memRaster) Pyramid() *levels.Pyramid { return m.pyr }
func (m *memRaster) DataType() core.DataType  { return m.dt }
func (m *memRaster) Bands() int               { return m.nb }

func (m *memRaster) NoData(band int) (float64, bool) {
	v, ok := m.noData[band]
	return v, ok
}

func (m *memRaster) FillValue(band int) float64 { return m.noData[band] }

func (m *memRaster) index(level, x, y, band int) int {
	return (y*m.pyr.Level(level).Size.X+x)*m.nb + band
}

func (m *memRaster) get(level, x, y, band int) float64 {
	return core.Sample(m.images[level], m.index(level, x, y, band), m.dt)
}

func (m *memRaster) set(level, x, y, band int, v float64) {
	core.PutSample(m.images[level], m.index(level, x, y, band), m.dt, v)
}

func (m *memRaster) ReadRegion(_ context.Context, r core.Region, bands []int, dst []byte) error {
	i := 0
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			for _, b := range bands {
				core.PutSample(dst, i, m.dt, m.get(r.Level, x, y, b))
				i++
			}
		}
	}
	return nil
}

func (m *memRaster) WriteBlock(_ context.Context, pos core.BlockPos, src []byte) error {
	page := m.pyr.PageSize()
	size := m.pyr.Level(pos.Level).Size
	for y := 0; y < page.Y; y++ {
		for x := 0; x < page.X; x++ {
			gx, gy := pos.X*page.X+x, pos.Y*page.Y+y
			if gx < size.X && gy < size.Y {
				m.set(pos.Level, gx, gy, pos.Band, core.Sample(src, y*page.X+x, m.dt))
			}
		}
	}
	m.writes[pos.Level]++
	return nil
}

func newTestBuilder(m *memRaster) *Builder {
	return New(m, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestOutputRange(t *testing.T) {
	testCases := []struct {
		start, n, limit  int
		wantStart, wantN int
	}{
		{0, 2, 10, 0, 1},
		{0, 1, 10, 0, 1},
		{1, 1, 10, 0, 1},
		{1, 2, 10, 0, 2}, // odd start widens the output
		{3, 2, 10, 1, 2},
		{0, 9, 4, 0, 4}, // clipped to the next level
	}
	for _, tc := range testCases {
		s, n := outputRange(tc.start, tc.n, 2, tc.limit)
		assert.Equal(t, tc.wantStart, s, "start for %+v", tc)
		assert.Equal(t, tc.wantN, n, "count for %+v", tc)
	}
}

func TestBuildOverviews_FourPages(t *testing.T) {
	m := newMemRaster(t, core.Size{X: 8, Y: 8}, core.Size{X: 4, Y: 4}, core.TypeByte)
	require.Equal(t, 2, m.pyr.NumLevels())
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			m.set(0, x, y, 0, float64(10*(1+x/4+2*(y/4))))
		}
	}
	require.NoError(t, newTestBuilder(m).BuildOverviews(context.Background(), nil))

	// each output pixel averages four equal samples
	assert.Equal(t, 10.0, m.get(1, 0, 0, 0))
	assert.Equal(t, 20.0, m.get(1, 3, 0, 0))
	assert.Equal(t, 30.0, m.get(1, 0, 3, 0))
	assert.Equal(t, 40.0, m.get(1, 3, 3, 0))
}

func TestAverage_RoundingBias(t *testing.T) {
	m := newMemRaster(t, core.Size{X: 2, Y: 2}, core.Size{X: 1, Y: 1}, core.TypeByte)
	vals := []float64{10, 20, 30, 40}
	for i, v := range vals {
		m.set(0, i%2, i/2, 0, v)
	}
	require.NoError(t, newTestBuilder(m).BuildOverviews(context.Background(), nil))
	assert.Equal(t, 25.0, m.get(1, 0, 0, 0)) // floor(100/4 + 0.5)

	m.set(0, 0, 0, 0, 1)
	m.set(0, 1, 0, 0, 2)
	m.set(0, 0, 1, 0, 1)
	m.set(0, 1, 1, 0, 2)
	require.NoError(t, newTestBuilder(m).BuildOverviews(context.Background(), nil))
	assert.Equal(t, 2.0, m.get(1, 0, 0, 0)) // floor(1.5 + 0.5)
}

func TestAverage_FloatHasNoBias(t *testing.T) {
	m := newMemRaster(t, core.Size{X: 2, Y: 2}, core.Size{X: 1, Y: 1}, core.TypeFloat32)
	m.set(0, 0, 0, 0, 1)
	m.set(0, 1, 0, 0, 2)
	m.set(0, 0, 1, 0, 1)
	m.set(0, 1, 1, 0, 2)
	require.NoError(t, newTestBuilder(m).BuildOverviews(context.Background(), nil))
	assert.Equal(t, 1.5, m.get(1, 0, 0, 0))
}

func TestBuildOverviews_ConstantHasNoDrift(t *testing.T) {
	for _, dt := range []core.DataType{core.TypeByte, core.TypeInt16, core.TypeUInt16, core.TypeInt32, core.TypeFloat64} {
		t.Run(dt.String(), func(t *testing.T) {
			m := newMemRaster(t, core.Size{X: 9, Y: 7, C: 2}, core.Size{X: 2, Y: 2, C: 2}, dt)
			for y := 0; y < 7; y++ {
				for x := 0; x < 9; x++ {
					m.set(0, x, y, 0, 117)
					m.set(0, x, y, 1, 3)
				}
			}
			require.NoError(t, newTestBuilder(m).BuildOverviews(context.Background(), nil))
			for l := 1; l < m.pyr.NumLevels(); l++ {
				size := m.pyr.Level(l).Size
				for y := 0; y < size.Y; y++ {
					for x := 0; x < size.X; x++ {
						require.Equal(t, 117.0, m.get(l, x, y, 0), "level %d (%d,%d)", l, x, y)
						require.Equal(t, 3.0, m.get(l, x, y, 1), "level %d (%d,%d)", l, x, y)
					}
				}
			}
		})
	}
}

func TestBuildOverviews_EdgeUsesValidSamplesOnly(t *testing.T) {
	// 5x3 is not a multiple of page*scale, so the last output column and
	// row see fewer than four samples.
	m := newMemRaster(t, core.Size{X: 5, Y: 3}, core.Size{X: 2, Y: 2}, core.TypeByte)
	require.Equal(t, 3, m.pyr.NumLevels())
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			m.set(0, x, y, 0, float64(10*x+y))
		}
	}
	require.NoError(t, newTestBuilder(m).BuildOverviews(context.Background(), nil))

	assert.Equal(t, core.Size{X: 3, Y: 2, Z: 1, C: 1}, m.pyr.Level(1).Size)
	assert.Equal(t, 6.0, m.get(1, 0, 0, 0))  // (0+1+10+11)/4 = 5.5 -> 6
	assert.Equal(t, 41.0, m.get(1, 2, 0, 0)) // (40+41)/2 = 40.5 -> 41
	assert.Equal(t, 7.0, m.get(1, 0, 1, 0))  // (2+12)/2 = 7
	assert.Equal(t, 42.0, m.get(1, 2, 1, 0)) // only (4,2)

	// level 2 is 2x1 and averages the level 1 values under it
	assert.Equal(t, core.Size{X: 2, Y: 1, Z: 1, C: 1}, m.pyr.Level(2).Size)
	want := math.Floor((m.get(1, 0, 0, 0)+m.get(1, 1, 0, 0)+m.get(1, 0, 1, 0)+m.get(1, 1, 1, 0))/4 + 0.5)
	assert.Equal(t, want, m.get(2, 0, 0, 0))
	assert.Equal(t, math.Floor((41.0+42.0)/2+0.5), m.get(2, 1, 0, 0))
}

func TestAverage_SkipsNoData(t *testing.T) {
	m := newMemRaster(t, core.Size{X: 4, Y: 2}, core.Size{X: 2, Y: 1}, core.TypeByte)
	m.noData[0] = 0
	// left group: two no-data samples and 10, 20; right group all no-data
	m.set(0, 0, 0, 0, 0)
	m.set(0, 1, 0, 0, 10)
	m.set(0, 0, 1, 0, 20)
	m.set(0, 1, 1, 0, 0)
	require.NoError(t, newTestBuilder(m).BuildOverviews(context.Background(), nil))
	assert.Equal(t, 15.0, m.get(1, 0, 0, 0))
	assert.Equal(t, 0.0, m.get(1, 1, 0, 0))
}

func TestPatchOverviews_Recurse(t *testing.T) {
	m := newMemRaster(t, core.Size{X: 16, Y: 16}, core.Size{X: 2, Y: 2}, core.TypeByte)
	require.Equal(t, 4, m.pyr.NumLevels()) // 8x8, 4x4, 2x2, 1x1 page grids
	b := newTestBuilder(m)

	require.NoError(t, b.PatchOverviews(context.Background(), 3, 3, 1, 1, 0, false))
	assert.Equal(t, 1, m.writes[1])
	assert.Zero(t, m.writes[2])

	m.writes = map[int]int{}
	require.NoError(t, b.PatchOverviews(context.Background(), 3, 3, 2, 1, 0, true))
	// pages 3..4 of level 0 touch output pages 1..2 of level 1
	assert.Equal(t, 2, m.writes[1])
	assert.Equal(t, 2, m.writes[2])
	assert.Equal(t, 1, m.writes[3])

	m.writes = map[int]int{}
	require.NoError(t, b.PatchOverviews(context.Background(), 0, 0, 1, 1, 3, true))
	assert.Empty(t, m.writes, "top level has nothing above it")

	err := b.PatchOverviews(context.Background(), 0, 0, 1, 1, 9, true)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
}

func TestBuildOverviews_Factors(t *testing.T) {
	m := newMemRaster(t, core.Size{X: 16, Y: 16}, core.Size{X: 2, Y: 2}, core.TypeByte)
	b := newTestBuilder(m)

	require.NoError(t, b.BuildOverviews(context.Background(), []int{2}))
	assert.Equal(t, 16, m.writes[1])
	assert.Zero(t, m.writes[2])

	m.writes = map[int]int{}
	require.NoError(t, b.BuildOverviews(context.Background(), []int{4}))
	assert.Equal(t, 16, m.writes[1], "intermediate levels are rebuilt")
	assert.Equal(t, 4, m.writes[2])
	assert.Zero(t, m.writes[3])

	err := b.BuildOverviews(context.Background(), []int{3})
	assert.True(t, core.IsConfigError(err))
	assert.Equal(t, int64(16+16+4), b.PagesWritten())
}
