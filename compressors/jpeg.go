package compressors

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/INLOpen/mrfstore/bitmask"
	"github.com/INLOpen/mrfstore/core"
)

// zenTag starts the APP3 segment that carries the validity mask.
const zenTag = "Zen\x00"

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP3 = 0xE3
)

// JPEGCodec stores 8 bit pages of 1 or 3 bands as baseline JPEG. With the
// zen mask enabled, pixels whose bands are all zero are recorded in an
// APP3 segment and restored exactly on decode.
type JPEGCodec struct {
	spec    core.PageSpec
	quality int
}

var _ core.PageCodec = (*JPEGCodec)(nil)

func NewJPEGCodec(spec core.PageSpec) (*JPEGCodec, error) {
	if spec.DataType != core.TypeByte {
		return nil, unsupported(core.CompressionJPEG, "JPEG pages hold Byte samples, not %s", spec.DataType)
	}
	if spec.Bands != 1 && spec.Bands != 3 {
		return nil, unsupported(core.CompressionJPEG, "JPEG pages hold 1 or 3 bands, not %d", spec.Bands)
	}
	return &JPEGCodec{spec: spec, quality: min(max(spec.Quality, 1), 100)}, nil
}

func (c *JPEGCodec) Compress(dst, src []byte) (int, error) {
	if err := checkRaw(c.Type(), "compress", c.spec, src); err != nil {
		return 0, err
	}
	buf := core.GetBuffer()
	defer core.PutBuffer(buf)
	if err := jpeg.Encode(buf, pageImage(c.spec, src), &jpeg.Options{Quality: c.quality}); err != nil {
		return 0, core.NewCodecError(c.Type(), "compress", core.ErrCorruptStream, err)
	}
	out := buf.Bytes()
	if c.spec.ZenMask {
		mask := bitmask.FromSamples(src, c.spec.Width, c.spec.Height, c.spec.Bands, bitmask.Unit8x8)
		var chunk []byte
		if !mask.Full() {
			chunk = mask.Store()
		}
		out = withZenChunk(out, chunk)
	}
	return copyOut(c.Type(), dst, out)
}

func (c *JPEGCodec) Decompress(dst, src []byte) error {
	if err := checkRaw(c.Type(), "decompress", c.spec, dst); err != nil {
		return err
	}
	chunk, hasMask, err := findZenChunk(src)
	if err != nil {
		return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, err)
	}
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, err)
	}
	if ycc, ok := img.(*image.YCbCr); ok {
		if c.spec.Bands == 1 {
			img = &image.Gray{Pix: ycc.Y, Stride: ycc.YStride, Rect: ycc.Rect}
		} else {
			rgba := image.NewRGBA(ycc.Rect)
			draw.Draw(rgba, rgba.Rect, ycc, ycc.Rect.Min, draw.Src)
			img = rgba
		}
	}
	if err := imagePage(c.Type(), c.spec, img, dst); err != nil {
		return err
	}
	if !hasMask {
		return nil
	}
	// an empty chunk stands for a full mask
	mask := bitmask.New(c.spec.Width, c.spec.Height, bitmask.Unit8x8)
	if len(chunk) > 0 {
		if err := mask.Load(chunk); err != nil {
			return core.NewCodecError(c.Type(), "decompress", core.ErrCorruptStream, fmt.Errorf("zen mask: %w", err))
		}
	}
	bitmask.Apply(mask, dst, c.spec.Bands)
	return nil
}

func (c *JPEGCodec) Type() core.CompressionType {
	return core.CompressionJPEG
}

// maxZenPayload is the mask payload one APP3 segment can carry. Longer
// masks continue in further zen segments, concatenated on decode.
const maxZenPayload = 0xffff - 2 - len(zenTag)

// zenSegments returns the number of APP3 segments a mask of n bytes needs.
func zenSegments(n int) int { return max(1, (n+maxZenPayload-1)/maxZenPayload) }

// withZenChunk inserts the zen mask right after the SOI marker, as one
// APP3 segment or as consecutive ones when it is too long for one.
func withZenChunk(jpg, chunk []byte) []byte {
	nseg := zenSegments(len(chunk))
	out := make([]byte, 0, len(jpg)+len(chunk)+nseg*(4+len(zenTag)))
	out = append(out, jpg[:2]...)
	for i := 0; i < nseg; i++ {
		part := chunk[min(i*maxZenPayload, len(chunk)):min((i+1)*maxZenPayload, len(chunk))]
		seg := 2 + len(zenTag) + len(part)
		out = append(out, 0xFF, markerAPP3, byte(seg>>8), byte(seg))
		out = append(out, zenTag...)
		out = append(out, part...)
	}
	return append(out, jpg[2:]...)
}

// findZenChunk scans the marker segments before the first scan for zen
// APP3 segments and returns their payloads joined in stream order.
func findZenChunk(jpg []byte) ([]byte, bool, error) {
	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != markerSOI {
		return nil, false, fmt.Errorf("missing SOI marker")
	}
	var chunk []byte
	found := 0
	for i := 2; i+4 <= len(jpg); {
		if jpg[i] != 0xFF {
			break
		}
		m := jpg[i+1]
		switch {
		case m == 0xFF:
			i++
			continue
		case m == markerSOS || m == markerEOI:
			return chunk, found > 0, nil
		case m == 0x01 || (m >= 0xD0 && m <= 0xD7):
			i += 2
			continue
		}
		l := int(jpg[i+2])<<8 | int(jpg[i+3])
		if l < 2 || i+2+l > len(jpg) {
			return nil, false, fmt.Errorf("segment %#x at %d overruns the stream", m, i)
		}
		if m == markerAPP3 && l >= 2+len(zenTag) && string(jpg[i+4:i+4+len(zenTag)]) == zenTag {
			part := jpg[i+4+len(zenTag) : i+2+l]
			if found == 0 {
				chunk = part
			} else {
				if found == 1 {
					chunk = append([]byte(nil), chunk...)
				}
				chunk = append(chunk, part...)
			}
			found++
		}
		i += 2 + l
	}
	return chunk, found > 0, nil
}
