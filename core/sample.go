package core

import (
	"encoding/binary"
	"math"
)

// Pages are held in memory with little-endian samples. Sample and PutSample
// are the only place that knows how a value of each DataType is laid out.

// Sample returns sample i of buf as a float64.
func Sample(buf []byte, i int, dt DataType) float64 {
	switch dt {
	case TypeByte:
		return float64(buf[i])
	case TypeInt16:
		return float64(int16(binary.LittleEndian.Uint16(buf[2*i:])))
	case TypeUInt16:
		return float64(binary.LittleEndian.Uint16(buf[2*i:]))
	case TypeInt32:
		return float64(int32(binary.LittleEndian.Uint32(buf[4*i:])))
	case TypeUInt32:
		return float64(binary.LittleEndian.Uint32(buf[4*i:]))
	case TypeFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	case TypeFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return 0
}

// PutSample stores v as sample i of buf, saturating integer types.
func PutSample(buf []byte, i int, dt DataType, v float64) {
	switch dt {
	case TypeByte:
		buf[i] = uint8(clamp(v, 0, math.MaxUint8))
	case TypeInt16:
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(int16(clamp(v, math.MinInt16, math.MaxInt16))))
	case TypeUInt16:
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(clamp(v, 0, math.MaxUint16)))
	case TypeInt32:
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(int32(clamp(v, math.MinInt32, math.MaxInt32))))
	case TypeUInt32:
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(clamp(v, 0, math.MaxUint32)))
	case TypeFloat32:
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	case TypeFloat64:
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Fill sets every sample of buf to v.
func Fill(buf []byte, dt DataType, v float64) {
	if v == 0 {
		clear(buf)
		return
	}
	sz := dt.Size()
	if len(buf) < sz {
		return
	}
	PutSample(buf, 0, dt, v)
	for n := sz; n < len(buf); n *= 2 {
		copy(buf[n:], buf[:n])
	}
}

// IsFilled reports whether every sample of buf equals v.
func IsFilled(buf []byte, dt DataType, v float64) bool {
	if v == 0 {
		for _, b := range buf {
			if b != 0 {
				return false
			}
		}
		return true
	}
	nan := math.IsNaN(v)
	n := len(buf) / dt.Size()
	for i := 0; i < n; i++ {
		s := Sample(buf, i, dt)
		if nan && math.IsNaN(s) {
			continue
		}
		if s != v {
			return false
		}
	}
	return true
}

// SwapBytes reverses the byte order of every sample of buf in place. It is
// a no-op for single byte samples.
func SwapBytes(buf []byte, dt DataType) {
	switch dt.Size() {
	case 2:
		for i := 0; i+1 < len(buf); i += 2 {
			buf[i], buf[i+1] = buf[i+1], buf[i]
		}
	case 4:
		for i := 0; i+3 < len(buf); i += 4 {
			binary.BigEndian.PutUint32(buf[i:], binary.LittleEndian.Uint32(buf[i:]))
		}
	case 8:
		for i := 0; i+7 < len(buf); i += 8 {
			binary.BigEndian.PutUint64(buf[i:], binary.LittleEndian.Uint64(buf[i:]))
		}
	}
}
