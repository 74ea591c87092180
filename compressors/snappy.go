package compressors

import (
	"github.com/INLOpen/mrfstore/core"
	"github.com/golang/snappy"
)

// SnappyCodec stores pages in the snappy block format.
type SnappyCodec struct {
	spec  core.PageSpec
	order byteOrder
}

var _ core.PageCodec = (*SnappyCodec)(nil)

func NewSnappyCodec(spec core.PageSpec) *SnappyCodec {
	return &SnappyCodec{spec: spec, order: newByteOrder(spec)}
}

func (c *SnappyCodec) Compress(dst, src []byte) (int, error) {
	if err := checkRaw(c.Type(), "compress", c.spec, src); err != nil {
		return 0, err
	}
	var scratch []byte
	if c.order.swap {
		scratch = make([]byte, len(src))
	}
	in := c.order.stored(src, scratch)
	if len(dst) >= snappy.MaxEncodedLen(len(in)) {
		return len(snappy.Encode(dst, in)), nil
	}
	return copyOut(c.Type(), dst, snappy.Encode(nil, in))
}

func (c *SnappyCodec) Decompress(dst, src []byte) error {
	if err := checkRaw(c.Type(), "decompress", c.spec, dst); err != nil {
		return err
	}
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, err)
	}
	if n != len(dst) {
		return sizeMismatch(c.Type(), n, len(dst))
	}
	if _, err := snappy.Decode(dst, src); err != nil {
		return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, err)
	}
	c.order.load(dst)
	return nil
}

func (c *SnappyCodec) Type() core.CompressionType {
	return core.CompressionSnappy
}
