package compressors

import (
	"errors"

	"github.com/INLOpen/mrfstore/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Codec stores pages as single lz4 blocks. A page lz4 cannot shrink is
// stored as is; a payload of exactly page size is therefore raw.
type LZ4Codec struct {
	spec  core.PageSpec
	order byteOrder
}

var _ core.PageCodec = (*LZ4Codec)(nil)

func NewLZ4Codec(spec core.PageSpec) *LZ4Codec {
	return &LZ4Codec{spec: spec, order: newByteOrder(spec)}
}

func (c *LZ4Codec) Compress(dst, src []byte) (int, error) {
	if err := checkRaw(c.Type(), "compress", c.spec, src); err != nil {
		return 0, err
	}
	var scratch []byte
	if c.order.swap {
		scratch = make([]byte, len(src))
	}
	in := c.order.stored(src, scratch)

	tmp := make([]byte, lz4.CompressBlockBound(len(in)))
	n, err := lz4.CompressBlock(in, tmp, nil)
	if err != nil {
		return 0, core.NewCodecError(c.Type(), "compress", core.ErrCorruptStream, err)
	}
	if n == 0 || n >= len(in) {
		return copyOut(c.Type(), dst, in)
	}
	return copyOut(c.Type(), dst, tmp[:n])
}

func (c *LZ4Codec) Decompress(dst, src []byte) error {
	if err := checkRaw(c.Type(), "decompress", c.spec, dst); err != nil {
		return err
	}
	if len(src) == len(dst) {
		copy(dst, src)
		c.order.load(dst)
		return nil
	}
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			return core.NewCodecError(c.Type(), "decompress", core.ErrSizeMismatch, err)
		}
		return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, err)
	}
	if n != len(dst) {
		return sizeMismatch(c.Type(), n, len(dst))
	}
	c.order.load(dst)
	return nil
}

func (c *LZ4Codec) Type() core.CompressionType {
	return core.CompressionLZ4
}
