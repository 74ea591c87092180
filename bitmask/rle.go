package bitmask

import (
	"errors"
)

// Marker-byte run length encoding.
//
// A run of 4 or more identical bytes is written as the marker followed by
// a count and the value:
//
//	4..255          marker, n, value
//	256..767        marker, n>>8 (1 or 2), n&0xff, value
//	768..768+65535  marker, 3, (n-768)>>8, (n-768)&0xff, value
//
// Shorter runs are copied literally; a literal marker byte is escaped by a
// following zero.

// DefaultMarker is the marker used when none is chosen from the data.
const DefaultMarker = 0xC3

// MaxRun is the longest run a single sequence can describe.
const MaxRun = 768 + 0xffff

var (
	ErrShortBuffer = errors.New("rle: destination too small")
	ErrTruncated   = errors.New("rle: packed data does not fill the destination")
)

func runLength(s []byte) int {
	n := min(len(s), MaxRun)
	c := s[0]
	for i := 1; i < n; i++ {
		if s[i] != c {
			return i
		}
	}
	return n
}

// Encode appends the run length encoding of src, using marker, to dst.
func Encode(dst, src []byte, marker byte) []byte {
	for len(src) > 0 {
		b := src[0]
		run := runLength(src)

		if run < 4 {
			for j := 0; j < run; j++ {
				dst = append(dst, b)
				if b == marker {
					dst = append(dst, 0)
				}
			}
			src = src[run:]
			continue
		}

		dst = append(dst, marker)
		switch {
		case run >= 0x300:
			src = src[0x300:]
			run -= 0x300
			dst = append(dst, 3, byte(run>>8))
		case run >= 0x100:
			dst = append(dst, byte(run>>8))
		}
		dst = append(dst, byte(run), b)
		src = src[run:]
	}
	return dst
}

// Decode expands src, encoded with marker, into dst. It stops when either
// dst is full or src is exhausted and returns the number of bytes written.
// A run that would overflow dst stops decoding before it is written.
func Decode(dst, src []byte, marker byte) int {
	n := 0
	i := 0
	next := func() (byte, bool) {
		if i >= len(src) {
			return 0, false
		}
		i++
		return src[i-1], true
	}

	for i < len(src) && n < len(dst) {
		b, _ := next()
		if b != marker {
			dst[n] = b
			n++
			continue
		}

		b, ok := next()
		if !ok {
			return n
		}
		if b == 0 {
			dst[n] = marker
			n++
			continue
		}

		run := int(b)
		if b < 4 {
			run *= 256
			if b, ok = next(); !ok {
				return n
			}
			if run == 768 {
				run += 256 * int(b)
				if b, ok = next(); !ok {
					return n
				}
			}
			run += int(b)
		}
		v, ok := next()
		if !ok {
			return n
		}
		if len(dst)-n < run {
			return n
		}
		fill := dst[n : n+run]
		for j := range fill {
			fill[j] = v
		}
		n += run
	}
	return n
}

// LeastUsed returns the byte value that occurs least often in src. Ties go
// to the lowest value.
func LeastUsed(src []byte) byte {
	var hist [256]int
	for _, b := range src {
		hist[b]++
	}
	best := 0
	for v := 1; v < 256; v++ {
		if hist[v] < hist[best] {
			best = v
		}
	}
	return byte(best)
}

// MaxPackedLen is the worst case length of Pack output for n input bytes.
func MaxPackedLen(n int) int { return 1 + n + n/256 }

// Pack encodes src using its least used byte as the marker. The marker is
// stored as the first byte of the output.
func Pack(src []byte) []byte {
	marker := LeastUsed(src)
	dst := make([]byte, 1, MaxPackedLen(len(src)))
	dst[0] = marker
	return Encode(dst, src, marker)
}

// Unpack decodes the output of Pack into dst. It fails unless dst is
// filled exactly.
func Unpack(dst, src []byte) error {
	if len(src) == 0 {
		if len(dst) == 0 {
			return nil
		}
		return ErrTruncated
	}
	if Decode(dst, src[1:], src[0]) != len(dst) {
		return ErrTruncated
	}
	return nil
}
