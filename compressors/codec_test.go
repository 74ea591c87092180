package compressors

import (
	"math/rand"
	"testing"

	"github.com/INLOpen/mrfstore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPage(spec core.PageSpec, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	page := make([]byte, spec.Bytes())
	// smooth ramps with some noise so every codec has something to work on
	n := spec.Width * spec.Height * spec.Bands
	for i := 0; i < n; i++ {
		v := float64((i/spec.Bands)%spec.Width+rng.Intn(4)) * 3
		if spec.DataType.IsSigned() && i%5 == 0 {
			v = -v
		}
		core.PutSample(page, i, spec.DataType, v)
	}
	return page
}

func roundTrip(t *testing.T, spec core.PageSpec, page []byte) []byte {
	t.Helper()
	codec, err := New(spec)
	require.NoError(t, err)
	assert.Equal(t, spec.Compression, codec.Type())

	enc := make([]byte, BufferSize(spec))
	n, err := codec.Compress(enc, page)
	require.NoError(t, err)
	require.Positive(t, n)

	out := make([]byte, spec.Bytes())
	require.NoError(t, codec.Decompress(out, enc[:n]))
	return out
}

func TestLossless_RoundTrip(t *testing.T) {
	kinds := []core.CompressionType{
		core.CompressionNone, core.CompressionDeflate, core.CompressionZSTD,
		core.CompressionLZ4, core.CompressionSnappy,
	}
	types := []core.DataType{
		core.TypeByte, core.TypeInt16, core.TypeUInt16, core.TypeInt32,
		core.TypeUInt32, core.TypeFloat32, core.TypeFloat64,
	}
	for _, ct := range kinds {
		for _, dt := range types {
			for _, netOrder := range []bool{false, true} {
				spec := core.PageSpec{Compression: ct, Width: 37, Height: 19, Bands: 2, DataType: dt, Quality: 85, NetByteOrder: netOrder}
				t.Run(ct.String()+"/"+dt.String(), func(t *testing.T) {
					page := testPage(spec, int64(dt))
					assert.Equal(t, page, roundTrip(t, spec, page))
				})
			}
		}
	}
}

func TestImage_RoundTrip(t *testing.T) {
	for _, ct := range []core.CompressionType{core.CompressionPNG, core.CompressionTIFF} {
		for _, dt := range []core.DataType{core.TypeByte, core.TypeInt16, core.TypeUInt16} {
			for _, bands := range []int{1, 3, 4} {
				spec := core.PageSpec{Compression: ct, Width: 33, Height: 17, Bands: bands, DataType: dt, Quality: 85}
				spec.TIFF.Deflate = true
				spec.TIFF.Predictor = dt == core.TypeByte
				t.Run(ct.String()+"/"+dt.String(), func(t *testing.T) {
					page := testPage(spec, int64(bands))
					assert.Equal(t, page, roundTrip(t, spec, page))
				})
			}
		}
	}
}

func TestNone_NetByteOrderStoresBigEndian(t *testing.T) {
	spec := core.PageSpec{Compression: core.CompressionNone, Width: 2, Height: 1, Bands: 1, DataType: core.TypeUInt16, NetByteOrder: true}
	codec, err := New(spec)
	require.NoError(t, err)
	page := []byte{0x34, 0x12, 0x78, 0x56}
	enc := make([]byte, 4)
	n, err := codec.Compress(enc, page)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, enc[:n])
	assert.Equal(t, []byte{0x34, 0x12, 0x78, 0x56}, page, "source page must not be modified")

	spec.NetByteOrder = false
	codec, err = New(spec)
	require.NoError(t, err)
	n, err = codec.Compress(enc, page)
	require.NoError(t, err)
	assert.Equal(t, page, enc[:n])
}

func TestDeflateLevel(t *testing.T) {
	assert.Equal(t, 0, DeflateLevel(0))
	assert.Equal(t, 0, DeflateLevel(9))
	assert.Equal(t, 8, DeflateLevel(85))
	assert.Equal(t, 9, DeflateLevel(99))
	assert.Equal(t, 9, DeflateLevel(250))
	assert.Equal(t, 0, DeflateLevel(-3))
}

func TestCompress_BufferTooSmall(t *testing.T) {
	for _, ct := range []core.CompressionType{core.CompressionNone, core.CompressionDeflate, core.CompressionPNG, core.CompressionSnappy} {
		spec := core.PageSpec{Compression: ct, Width: 64, Height: 64, Bands: 1, DataType: core.TypeByte, Quality: 85}
		codec, err := New(spec)
		require.NoError(t, err)
		dst := make([]byte, 8)
		n, err := codec.Compress(dst, testPage(spec, 1))
		assert.Zero(t, n, ct.String())
		assert.ErrorIs(t, err, core.ErrBufferTooSmall, ct.String())
		assert.Len(t, dst, 8)
	}
}

func TestDecompress_SizeMismatch(t *testing.T) {
	for _, ct := range []core.CompressionType{
		core.CompressionNone, core.CompressionDeflate, core.CompressionZSTD,
		core.CompressionLZ4, core.CompressionSnappy,
	} {
		small := core.PageSpec{Compression: ct, Width: 16, Height: 16, Bands: 1, DataType: core.TypeByte}
		big := small
		big.Height = 32

		page := make([]byte, small.Bytes())
		for i := range page {
			page[i] = byte(i % 16)
		}
		codec, err := New(small)
		require.NoError(t, err)
		enc := make([]byte, BufferSize(small))
		n, err := codec.Compress(enc, page)
		require.NoError(t, err)

		bigCodec, err := New(big)
		require.NoError(t, err)
		err = bigCodec.Decompress(make([]byte, big.Bytes()), enc[:n])
		assert.ErrorIs(t, err, core.ErrSizeMismatch, ct.String())

		// wrong destination length for the page geometry
		err = codec.Decompress(make([]byte, 10), enc[:n])
		assert.ErrorIs(t, err, core.ErrSizeMismatch, ct.String())
	}
}

func TestDecompress_CorruptStream(t *testing.T) {
	garbage := []byte("this is definitely not a compressed page")
	for _, ct := range []core.CompressionType{
		core.CompressionDeflate, core.CompressionZSTD, core.CompressionPNG,
		core.CompressionJPEG, core.CompressionTIFF,
	} {
		spec := core.PageSpec{Compression: ct, Width: 8, Height: 8, Bands: 1, DataType: core.TypeByte}
		codec, err := New(spec)
		require.NoError(t, err)
		err = codec.Decompress(make([]byte, spec.Bytes()), garbage)
		assert.ErrorIs(t, err, core.ErrCorruptStream, ct.String())
		assert.True(t, core.IsCodecError(err))
	}
}

func TestNew_Unsupported(t *testing.T) {
	testCases := []struct {
		name string
		spec core.PageSpec
	}{
		{"jpeg12", core.PageSpec{Compression: core.CompressionJPEG12, Width: 8, Height: 8, Bands: 1, DataType: core.TypeByte}},
		{"jpeg uint16", core.PageSpec{Compression: core.CompressionJPEG, Width: 8, Height: 8, Bands: 1, DataType: core.TypeUInt16}},
		{"jpeg 4 bands", core.PageSpec{Compression: core.CompressionJPEG, Width: 8, Height: 8, Bands: 4, DataType: core.TypeByte}},
		{"png float", core.PageSpec{Compression: core.CompressionPNG, Width: 8, Height: 8, Bands: 1, DataType: core.TypeFloat32}},
		{"png 2 bands", core.PageSpec{Compression: core.CompressionPNG, Width: 8, Height: 8, Bands: 2, DataType: core.TypeByte}},
		{"tiff int32", core.PageSpec{Compression: core.CompressionTIFF, Width: 8, Height: 8, Bands: 1, DataType: core.TypeInt32}},
		{"empty page", core.PageSpec{Compression: core.CompressionNone, Width: 0, Height: 8, Bands: 1}},
		{"unknown", core.PageSpec{Compression: 99, Width: 8, Height: 8, Bands: 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrUnsupportedType)
		})
	}
}

func TestCompress_WrongInputSize(t *testing.T) {
	spec := core.PageSpec{Compression: core.CompressionDeflate, Width: 8, Height: 8, Bands: 1, DataType: core.TypeByte}
	codec, err := New(spec)
	require.NoError(t, err)
	_, err = codec.Compress(make([]byte, 1024), make([]byte, 63))
	assert.ErrorIs(t, err, core.ErrSizeMismatch)
}
