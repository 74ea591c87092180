package compressors

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"github.com/INLOpen/mrfstore/core"
)

// Image codecs see a page as a standalone image of the page dimensions.
// 16 bit samples are big-endian inside image.Image pixel buffers and
// little-endian in pages, so every 16 bit copy below swaps.

// imageSupport reports whether a page with the given sample type and band
// count maps to an image.Image the standard encoders can write.
func imageSupport(ct core.CompressionType, spec core.PageSpec, types ...core.DataType) error {
	ok := false
	for _, dt := range types {
		if dt == spec.DataType {
			ok = true
		}
	}
	if !ok {
		return unsupported(ct, "%s pages cannot hold %s samples", ct, spec.DataType)
	}
	switch spec.Bands {
	case 1, 3, 4:
		return nil
	}
	return unsupported(ct, "%s pages cannot hold %d bands", ct, spec.Bands)
}

// pageImage wraps a page in an image.Image. 8 bit pages alias src; 16 bit
// pages are copied.
func pageImage(spec core.PageSpec, src []byte) image.Image {
	r := image.Rect(0, 0, spec.Width, spec.Height)
	w, nc := spec.Width, spec.Bands
	if spec.DataType.Size() == 1 {
		switch nc {
		case 1:
			return &image.Gray{Pix: src, Stride: w, Rect: r}
		case 3:
			img := image.NewRGBA(r)
			for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
				img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = src[i], src[i+1], src[i+2], 0xff
			}
			return img
		default:
			return &image.NRGBA{Pix: src, Stride: 4 * w, Rect: r}
		}
	}

	switch nc {
	case 1:
		img := image.NewGray16(r)
		swap16(img.Pix, src)
		return img
	case 3:
		img := image.NewRGBA64(r)
		for i, j := 0, 0; i < len(src); i, j = i+6, j+8 {
			swap16(img.Pix[j:j+6], src[i:i+6])
			img.Pix[j+6], img.Pix[j+7] = 0xff, 0xff
		}
		return img
	default:
		img := image.NewNRGBA64(r)
		swap16(img.Pix, src)
		return img
	}
}

// swap16 copies 16 bit samples from src to dst reversing their byte order.
func swap16(dst, src []byte) {
	for i := 0; i+1 < len(src); i += 2 {
		binary.BigEndian.PutUint16(dst[i:], binary.LittleEndian.Uint16(src[i:]))
	}
}

// imagePage copies a decoded image into a page. Images of the exact type
// pageImage produces take a fast path; other color models are converted.
func imagePage(ct core.CompressionType, spec core.PageSpec, img image.Image, dst []byte) error {
	b := img.Bounds()
	if b.Dx() != spec.Width || b.Dy() != spec.Height {
		return core.NewCodecError(ct, "decompress", core.ErrSizeMismatch,
			fmt.Errorf("decoded %dx%d image, page is %dx%d", b.Dx(), b.Dy(), spec.Width, spec.Height))
	}
	nc := spec.Bands
	wide := spec.DataType.Size() == 2

	switch m := img.(type) {
	case *image.Gray:
		if nc == 1 && !wide {
			for y := 0; y < spec.Height; y++ {
				copy(dst[y*spec.Width:(y+1)*spec.Width], m.Pix[y*m.Stride:])
			}
			return nil
		}
	case *image.Gray16:
		if nc == 1 && wide {
			row := 2 * spec.Width
			for y := 0; y < spec.Height; y++ {
				swap16(dst[y*row:(y+1)*row], m.Pix[y*m.Stride:y*m.Stride+row])
			}
			return nil
		}
	case *image.RGBA:
		if nc == 3 && !wide && m.Opaque() {
			i := 0
			for y := 0; y < spec.Height; y++ {
				row := m.Pix[y*m.Stride : y*m.Stride+4*spec.Width]
				for j := 0; j < len(row); j += 4 {
					dst[i], dst[i+1], dst[i+2] = row[j], row[j+1], row[j+2]
					i += 3
				}
			}
			return nil
		}
	case *image.RGBA64:
		if nc == 3 && wide && m.Opaque() {
			i := 0
			for y := 0; y < spec.Height; y++ {
				row := m.Pix[y*m.Stride : y*m.Stride+8*spec.Width]
				for j := 0; j < len(row); j += 8 {
					swap16(dst[i:i+6], row[j:j+6])
					i += 6
				}
			}
			return nil
		}
	case *image.NRGBA:
		if nc == 4 && !wide {
			row := 4 * spec.Width
			for y := 0; y < spec.Height; y++ {
				copy(dst[y*row:(y+1)*row], m.Pix[y*m.Stride:])
			}
			return nil
		}
	}

	if nc == 1 && !isGrayModel(img.ColorModel()) {
		return core.NewCodecError(ct, "decompress", core.ErrWrongInputType,
			fmt.Errorf("decoded color image for a single band page"))
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			comps := [4]uint16{c.R, c.G, c.B, c.A}
			for k := 0; k < nc; k++ {
				v := comps[k]
				if wide {
					binary.LittleEndian.PutUint16(dst[i:], v)
					i += 2
				} else {
					dst[i] = uint8(v >> 8)
					i++
				}
			}
		}
	}
	return nil
}

func isGrayModel(m color.Model) bool {
	return m == color.GrayModel || m == color.Gray16Model
}
