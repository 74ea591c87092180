package compressors

import (
	"sync"

	"github.com/INLOpen/mrfstore/core"
	"github.com/klauspost/compress/zstd"
)

// ZstdCodec stores pages as zstd frames.
type ZstdCodec struct {
	spec  core.PageSpec
	order byteOrder
	level zstd.EncoderLevel

	encOnce sync.Once
	enc     *zstd.Encoder
	decOnce sync.Once
	dec     *zstd.Decoder
	initErr error
}

var _ core.PageCodec = (*ZstdCodec)(nil)

func NewZstdCodec(spec core.PageSpec) (*ZstdCodec, error) {
	c := &ZstdCodec{
		spec:  spec,
		order: newByteOrder(spec),
		level: zstd.EncoderLevelFromZstd(max(DeflateLevel(spec.Quality), 1)),
	}
	return c, nil
}

// encoder and decoder are created on first use; both are safe for
// concurrent EncodeAll/DecodeAll calls.
func (c *ZstdCodec) encoder() (*zstd.Encoder, error) {
	c.encOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level), zstd.WithEncoderCRC(true))
		if err != nil {
			c.initErr = err
			return
		}
		c.enc = enc
	})
	return c.enc, c.initErr
}

func (c *ZstdCodec) decoder() (*zstd.Decoder, error) {
	c.decOnce.Do(func() {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(c.spec.Bytes())+1<<20))
		if err != nil {
			c.initErr = err
			return
		}
		c.dec = dec
	})
	return c.dec, c.initErr
}

func (c *ZstdCodec) Compress(dst, src []byte) (int, error) {
	if err := checkRaw(c.Type(), "compress", c.spec, src); err != nil {
		return 0, err
	}
	enc, err := c.encoder()
	if err != nil {
		return 0, core.NewCodecError(c.Type(), "compress", core.ErrUnsupportedType, err)
	}
	var scratch []byte
	if c.order.swap {
		scratch = make([]byte, len(src))
	}
	buf := core.GetBuffer()
	defer core.PutBuffer(buf)
	out := enc.EncodeAll(c.order.stored(src, scratch), buf.AvailableBuffer())
	return copyOut(c.Type(), dst, out)
}

func (c *ZstdCodec) Decompress(dst, src []byte) error {
	if err := checkRaw(c.Type(), "decompress", c.spec, dst); err != nil {
		return err
	}
	dec, err := c.decoder()
	if err != nil {
		return core.NewCodecError(c.Type(), "decompress", core.ErrUnsupportedType, err)
	}
	out, err := dec.DecodeAll(src, dst[:0])
	if err != nil {
		return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, err)
	}
	if len(out) != len(dst) {
		return sizeMismatch(c.Type(), len(out), len(dst))
	}
	if &out[0] != &dst[0] {
		copy(dst, out)
	}
	c.order.load(dst)
	return nil
}

func (c *ZstdCodec) Type() core.CompressionType {
	return core.CompressionZSTD
}
