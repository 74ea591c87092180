package compressors

import (
	"bytes"
	"image/png"

	"github.com/INLOpen/mrfstore/core"
)

// PNGCodec stores each page as a PNG image. Lossless for Byte, Int16 and
// UInt16 pages of 1, 3 or 4 bands.
type PNGCodec struct {
	spec core.PageSpec
	enc  png.Encoder
}

var _ core.PageCodec = (*PNGCodec)(nil)

type pngBufferPool struct {
	pool *core.GenericPool[*png.EncoderBuffer]
}

func (p pngBufferPool) Get() *png.EncoderBuffer  { return p.pool.Get() }
func (p pngBufferPool) Put(b *png.EncoderBuffer) { p.pool.Put(b) }

var pngBuffers = pngBufferPool{pool: core.NewGenericPool(func() *png.EncoderBuffer { return nil })}

// pngLevel maps a 0-99 quality onto the encoder's four levels.
func pngLevel(quality int) png.CompressionLevel {
	switch l := DeflateLevel(quality); {
	case l == 0:
		return png.NoCompression
	case l <= 3:
		return png.BestSpeed
	case l <= 7:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func NewPNGCodec(spec core.PageSpec) (*PNGCodec, error) {
	if err := imageSupport(core.CompressionPNG, spec, core.TypeByte, core.TypeInt16, core.TypeUInt16); err != nil {
		return nil, err
	}
	return &PNGCodec{
		spec: spec,
		enc:  png.Encoder{CompressionLevel: pngLevel(spec.Quality), BufferPool: pngBuffers},
	}, nil
}

func (c *PNGCodec) Compress(dst, src []byte) (int, error) {
	if err := checkRaw(c.Type(), "compress", c.spec, src); err != nil {
		return 0, err
	}
	buf := core.GetBuffer()
	defer core.PutBuffer(buf)
	if err := c.enc.Encode(buf, pageImage(c.spec, src)); err != nil {
		return 0, core.NewCodecError(c.Type(), "compress", core.ErrCorruptStream, err)
	}
	return copyOut(c.Type(), dst, buf.Bytes())
}

func (c *PNGCodec) Decompress(dst, src []byte) error {
	if err := checkRaw(c.Type(), "decompress", c.spec, dst); err != nil {
		return err
	}
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, err)
	}
	return imagePage(c.Type(), c.spec, img, dst)
}

func (c *PNGCodec) Type() core.CompressionType {
	return core.CompressionPNG
}
