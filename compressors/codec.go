// Package compressors implements the page codecs. The set is closed: New
// selects one implementation per dataset from its CompressionType.
package compressors

import (
	"fmt"

	"github.com/INLOpen/mrfstore/bitmask"
	"github.com/INLOpen/mrfstore/core"
)

// New returns the codec for spec. Unsupported combinations of codec,
// sample type and band count fail with a CodecError of kind
// ErrUnsupportedType.
func New(spec core.PageSpec) (core.PageCodec, error) {
	if spec.Width < 1 || spec.Height < 1 || spec.Bands < 1 || spec.DataType.Size() == 0 {
		return nil, unsupported(spec.Compression, "page %dx%dx%d %s", spec.Width, spec.Height, spec.Bands, spec.DataType)
	}
	switch spec.Compression {
	case core.CompressionNone:
		return NewNoneCodec(spec), nil
	case core.CompressionDeflate:
		return NewDeflateCodec(spec), nil
	case core.CompressionZSTD:
		return NewZstdCodec(spec)
	case core.CompressionLZ4:
		return NewLZ4Codec(spec), nil
	case core.CompressionSnappy:
		return NewSnappyCodec(spec), nil
	case core.CompressionPNG:
		return NewPNGCodec(spec)
	case core.CompressionJPEG:
		return NewJPEGCodec(spec)
	case core.CompressionJPEG12:
		return nil, unsupported(spec.Compression, "12 bit JPEG has no encoder in this build")
	case core.CompressionTIFF:
		return NewTIFFCodec(spec)
	}
	return nil, unsupported(spec.Compression, "unknown compression %d", uint8(spec.Compression))
}

// BufferSize returns a destination size large enough for any page encoded
// with spec in practice. Callers still handle ErrBufferTooSmall.
func BufferSize(spec core.PageSpec) int {
	n := spec.Bytes()
	size := n + n/2 + 1024
	if spec.Compression == core.CompressionJPEG && spec.ZenMask {
		mask := bitmask.New(spec.Width, spec.Height, bitmask.Unit8x8)
		packed := bitmask.MaxPackedLen(mask.Size())
		size += packed + zenSegments(packed)*(4+len(zenTag)) + 16
	}
	return size
}

func unsupported(ct core.CompressionType, format string, args ...any) error {
	return core.NewCodecError(ct, "configure", core.ErrUnsupportedType, fmt.Errorf(format, args...))
}

// checkRaw validates the raw side of a Compress or Decompress call.
func checkRaw(ct core.CompressionType, op string, spec core.PageSpec, raw []byte) error {
	if len(raw) != spec.Bytes() {
		return core.NewCodecError(ct, op, core.ErrSizeMismatch,
			fmt.Errorf("page buffer is %d bytes, want %d", len(raw), spec.Bytes()))
	}
	return nil
}

// copyOut copies an encoded page into the caller's destination.
func copyOut(ct core.CompressionType, dst, enc []byte) (int, error) {
	if len(enc) > len(dst) {
		return 0, core.NewCodecError(ct, "compress", core.ErrBufferTooSmall,
			fmt.Errorf("need %d bytes, have %d", len(enc), len(dst)))
	}
	return copy(dst, enc), nil
}

// byteOrder converts between the little-endian page layout in memory and
// the order stored by byte stream codecs. Only datasets created with
// net byte order store multi-byte samples big-endian.
type byteOrder struct {
	swap bool
	dt   core.DataType
}

func newByteOrder(spec core.PageSpec) byteOrder {
	return byteOrder{swap: spec.NetByteOrder && spec.DataType.Size() > 1, dt: spec.DataType}
}

// stored returns src in stored order. When a swap is needed the result is
// a copy held in scratch, which must be large enough.
func (o byteOrder) stored(src, scratch []byte) []byte {
	if !o.swap {
		return src
	}
	out := scratch[:len(src)]
	copy(out, src)
	core.SwapBytes(out, o.dt)
	return out
}

// load converts a decoded page from stored order in place.
func (o byteOrder) load(page []byte) {
	if o.swap {
		core.SwapBytes(page, o.dt)
	}
}
