package compressors

import (
	"bytes"

	"github.com/INLOpen/mrfstore/core"
	"golang.org/x/image/tiff"
)

// TIFFCodec stores each page as a complete single image TIFF file, using
// the container's own deflate compression and horizontal predictor.
type TIFFCodec struct {
	spec core.PageSpec
	opts tiff.Options
}

var _ core.PageCodec = (*TIFFCodec)(nil)

func NewTIFFCodec(spec core.PageSpec) (*TIFFCodec, error) {
	if err := imageSupport(core.CompressionTIFF, spec, core.TypeByte, core.TypeInt16, core.TypeUInt16); err != nil {
		return nil, err
	}
	opts := tiff.Options{Compression: tiff.Uncompressed, Predictor: spec.TIFF.Predictor}
	if spec.TIFF.Deflate {
		opts.Compression = tiff.Deflate
	}
	return &TIFFCodec{spec: spec, opts: opts}, nil
}

func (c *TIFFCodec) Compress(dst, src []byte) (int, error) {
	if err := checkRaw(c.Type(), "compress", c.spec, src); err != nil {
		return 0, err
	}
	buf := core.GetBuffer()
	defer core.PutBuffer(buf)
	if err := tiff.Encode(buf, pageImage(c.spec, src), &c.opts); err != nil {
		return 0, core.NewCodecError(c.Type(), "compress", core.ErrCorruptStream, err)
	}
	return copyOut(c.Type(), dst, buf.Bytes())
}

func (c *TIFFCodec) Decompress(dst, src []byte) error {
	if err := checkRaw(c.Type(), "decompress", c.spec, dst); err != nil {
		return err
	}
	img, err := tiff.Decode(bytes.NewReader(src))
	if err != nil {
		return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, err)
	}
	return imagePage(c.Type(), c.spec, img, dst)
}

func (c *TIFFCodec) Type() core.CompressionType {
	return core.CompressionTIFF
}
