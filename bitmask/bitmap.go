// Package bitmask holds the per-pixel validity mask carried inside lossy
// pages, and the run length codec used to store it.
package bitmask

import (
	"encoding/binary"
	"fmt"
)

// Unit is the edge length of the square pixel block packed in one word.
type Unit int

const (
	// Unit4x4 packs 4x4 pixels in a 16 bit word.
	Unit4x4 Unit = 4
	// Unit8x8 packs 8x8 pixels in a 64 bit word.
	Unit8x8 Unit = 8
)

// wordBytes is the serialized size of one word.
func (u Unit) wordBytes() int { return int(u) * int(u) / 8 }

// BitMap2D is a 1 bit per pixel mask of a w x h image. Bits are grouped in
// aligned square blocks so that runs of equal words compress well.
type BitMap2D struct {
	w, h int
	unit Unit
	lw   int // words per row of blocks
	bits []uint64
}

// New returns a w x h mask with every bit set.
func New(w, h int, unit Unit) *BitMap2D {
	if unit != Unit4x4 {
		unit = Unit8x8
	}
	u := int(unit)
	lw := (w-1)/u + 1
	m := &BitMap2D{
		w:    w,
		h:    h,
		unit: unit,
		lw:   lw,
		bits: make([]uint64, lw*((h-1)/u+1)),
	}
	m.Fill(true)
	return m
}

func (m *BitMap2D) Width() int  { return m.w }
func (m *BitMap2D) Height() int { return m.h }
func (m *BitMap2D) Unit() Unit  { return m.unit }

func (m *BitMap2D) full() uint64 {
	if m.unit == Unit4x4 {
		return 0xffff
	}
	return ^uint64(0)
}

func (m *BitMap2D) locate(x, y int) (int, uint64) {
	u := int(m.unit)
	return m.lw*(y/u) + x/u, uint64(1) << (u*(y%u) + x%u)
}

// IsSet reports whether pixel (x, y) is valid.
func (m *BitMap2D) IsSet(x, y int) bool {
	i, bit := m.locate(x, y)
	return m.bits[i]&bit != 0
}

func (m *BitMap2D) Set(x, y int) {
	i, bit := m.locate(x, y)
	m.bits[i] |= bit
}

func (m *BitMap2D) Clear(x, y int) {
	i, bit := m.locate(x, y)
	m.bits[i] &^= bit
}

// Fill sets or clears every bit.
func (m *BitMap2D) Fill(v bool) {
	var w uint64
	if v {
		w = m.full()
	}
	for i := range m.bits {
		m.bits[i] = w
	}
}

// Full reports whether every pixel is valid.
func (m *BitMap2D) Full() bool {
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if !m.IsSet(x, y) {
				return false
			}
		}
	}
	return true
}

// Size returns the serialized size in bytes.
func (m *BitMap2D) Size() int { return len(m.bits) * m.unit.wordBytes() }

// MarshalBinary returns the words in little-endian order.
func (m *BitMap2D) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, m.Size())
	for _, w := range m.bits {
		if m.unit == Unit4x4 {
			out = binary.LittleEndian.AppendUint16(out, uint16(w))
		} else {
			out = binary.LittleEndian.AppendUint64(out, w)
		}
	}
	return out, nil
}

// UnmarshalBinary loads words written by MarshalBinary. The geometry of m
// must match the one the data was produced with.
func (m *BitMap2D) UnmarshalBinary(b []byte) error {
	if len(b) != m.Size() {
		return fmt.Errorf("bitmask: %d bytes for a %dx%d mask, want %d", len(b), m.w, m.h, m.Size())
	}
	step := m.unit.wordBytes()
	for i := range m.bits {
		if m.unit == Unit4x4 {
			m.bits[i] = uint64(binary.LittleEndian.Uint16(b[i*step:]))
		} else {
			m.bits[i] = binary.LittleEndian.Uint64(b[i*step:])
		}
	}
	return nil
}

// Store returns the run length packed form of the mask.
func (m *BitMap2D) Store() []byte {
	raw, _ := m.MarshalBinary()
	return Pack(raw)
}

// Load replaces the mask with the content of a Store result.
func (m *BitMap2D) Load(packed []byte) error {
	raw := make([]byte, m.Size())
	if err := Unpack(raw, packed); err != nil {
		return err
	}
	return m.UnmarshalBinary(raw)
}

// FromSamples builds a mask for a pixel interleaved 8 bit image with nc
// components. A pixel is valid when any of its components is nonzero.
func FromSamples(pix []byte, w, h, nc int, unit Unit) *BitMap2D {
	m := New(w, h, unit)
	for y := 0; y < h; y++ {
		row := pix[y*w*nc:]
		for x := 0; x < w; x++ {
			zero := true
			for _, v := range row[x*nc : x*nc+nc] {
				if v != 0 {
					zero = false
					break
				}
			}
			if zero {
				m.Clear(x, y)
			}
		}
	}
	return m
}

// Apply forces pix to agree with the mask: components of valid pixels that
// decoded as zero become 1, components of invalid pixels become 0. It
// returns the number of samples changed.
func Apply(m *BitMap2D, pix []byte, nc int) int {
	count := 0
	for y := 0; y < m.h; y++ {
		row := pix[y*m.w*nc:]
		for x := 0; x < m.w; x++ {
			s := row[x*nc : x*nc+nc]
			if m.IsSet(x, y) {
				for c := range s {
					if s[c] == 0 {
						s[c] = 1
						count++
					}
				}
				continue
			}
			for c := range s {
				if s[c] != 0 {
					s[c] = 0
					count++
				}
			}
		}
	}
	return count
}
