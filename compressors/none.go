package compressors

import (
	"github.com/INLOpen/mrfstore/core"
)

// NoneCodec stores pages uncompressed.
type NoneCodec struct {
	spec  core.PageSpec
	order byteOrder
}

var _ core.PageCodec = (*NoneCodec)(nil)

func NewNoneCodec(spec core.PageSpec) *NoneCodec {
	return &NoneCodec{spec: spec, order: newByteOrder(spec)}
}

func (c *NoneCodec) Compress(dst, src []byte) (int, error) {
	if err := checkRaw(c.Type(), "compress", c.spec, src); err != nil {
		return 0, err
	}
	n, err := copyOut(c.Type(), dst, src)
	if err != nil {
		return 0, err
	}
	c.order.load(dst[:n]) // the swap is its own inverse
	return n, nil
}

func (c *NoneCodec) Decompress(dst, src []byte) error {
	if err := checkRaw(c.Type(), "decompress", c.spec, dst); err != nil {
		return err
	}
	if len(src) != len(dst) {
		return core.NewCodecError(c.Type(), "decompress", core.ErrSizeMismatch, nil)
	}
	copy(dst, src)
	c.order.load(dst)
	return nil
}

func (c *NoneCodec) Type() core.CompressionType {
	return core.CompressionNone
}
