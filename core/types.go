package core

import (
	"fmt"
	"strings"
)

// CompressionType identifies the page codec of a dataset.
// It is fixed when the dataset is created and recorded in the descriptor.
type CompressionType byte

const (
	CompressionPNG     CompressionType = 0
	CompressionJPEG    CompressionType = 1
	CompressionNone    CompressionType = 2
	CompressionDeflate CompressionType = 3
	CompressionTIFF    CompressionType = 4
	CompressionJPEG12  CompressionType = 5
	CompressionZSTD    CompressionType = 6
	CompressionLZ4     CompressionType = 7
	CompressionSnappy  CompressionType = 8
)

var compressionNames = map[CompressionType]string{
	CompressionPNG:     "PNG",
	CompressionJPEG:    "JPEG",
	CompressionNone:    "NONE",
	CompressionDeflate: "DEFLATE",
	CompressionTIFF:    "TIF",
	CompressionJPEG12:  "JPEG12",
	CompressionZSTD:    "ZSTD",
	CompressionLZ4:     "LZ4",
	CompressionSnappy:  "SNAPPY",
}

// data file extension per codec
var compressionExt = map[CompressionType]string{
	CompressionPNG:     ".ppg",
	CompressionJPEG:    ".pjg",
	CompressionNone:    ".til",
	CompressionDeflate: ".pzp",
	CompressionTIFF:    ".ptf",
	CompressionJPEG12:  ".pjg",
	CompressionZSTD:    ".pzs",
	CompressionLZ4:     ".plz",
	CompressionSnappy:  ".psz",
}

// String returns the descriptor name of the CompressionType.
func (ct CompressionType) String() string {
	if s, ok := compressionNames[ct]; ok {
		return s
	}
	return "unknown"
}

// Ext returns the default data file extension for pages of this type.
func (ct CompressionType) Ext() string {
	if s, ok := compressionExt[ct]; ok {
		return s
	}
	return ".dat"
}

// Lossy reports whether decoded pages may differ from what was encoded.
func (ct CompressionType) Lossy() bool {
	return ct == CompressionJPEG || ct == CompressionJPEG12
}

// ParseCompression maps a descriptor name to a CompressionType. Matching is
// case insensitive; "TIFF" and "ZLIB" are accepted as aliases.
func ParseCompression(name string) (CompressionType, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	switch n {
	case "TIFF":
		return CompressionTIFF, nil
	case "ZLIB":
		return CompressionDeflate, nil
	}
	for ct, s := range compressionNames {
		if s == n {
			return ct, nil
		}
	}
	return 0, &ConfigError{Field: "compression", Value: name, Message: "unknown compression"}
}

// DataType is the sample type of a raster.
type DataType uint8

const (
	TypeByte DataType = iota
	TypeInt16
	TypeUInt16
	TypeInt32
	TypeUInt32
	TypeFloat32
	TypeFloat64
)

var dataTypeNames = [...]string{"Byte", "Int16", "UInt16", "Int32", "UInt32", "Float32", "Float64"}

func (dt DataType) String() string {
	if int(dt) < len(dataTypeNames) {
		return dataTypeNames[dt]
	}
	return fmt.Sprintf("DataType(%d)", uint8(dt))
}

// Size returns the number of bytes per sample.
func (dt DataType) Size() int {
	switch dt {
	case TypeByte:
		return 1
	case TypeInt16, TypeUInt16:
		return 2
	case TypeInt32, TypeUInt32, TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	}
	return 0
}

func (dt DataType) IsFloat() bool { return dt == TypeFloat32 || dt == TypeFloat64 }

func (dt DataType) IsSigned() bool {
	return dt == TypeInt16 || dt == TypeInt32 || dt.IsFloat()
}

// ParseDataType accepts the names returned by DataType.String, case insensitive.
func ParseDataType(name string) (DataType, error) {
	for i, s := range dataTypeNames {
		if strings.EqualFold(s, strings.TrimSpace(name)) {
			return DataType(i), nil
		}
	}
	return 0, &ConfigError{Field: "data_type", Value: name, Message: "unknown data type"}
}

// PixelOrder is the layout of bands inside a page.
type PixelOrder uint8

const (
	// OrderInterleaved stores all bands of a pixel together in one page.
	OrderInterleaved PixelOrder = iota
	// OrderSeparate stores one band per page.
	OrderSeparate
	// OrderSequential stores one band per page, bands in sequence.
	OrderSequential
)

func (o PixelOrder) String() string {
	switch o {
	case OrderInterleaved:
		return "PIXEL"
	case OrderSeparate:
		return "BAND"
	case OrderSequential:
		return "LINE"
	}
	return "unknown"
}

// Interleaved reports whether a page carries more than one band.
func (o PixelOrder) Interleaved() bool { return o == OrderInterleaved }

func ParsePixelOrder(name string) (PixelOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "PIXEL", "INTERLEAVED":
		return OrderInterleaved, nil
	case "BAND", "SEPARATE":
		return OrderSeparate, nil
	case "LINE", "SEQUENTIAL":
		return OrderSequential, nil
	}
	return 0, &ConfigError{Field: "order", Value: name, Message: "unknown pixel order"}
}

// Size is a four dimensional extent: X columns, Y rows, Z slices, C bands.
// It is used both for pixel extents and for page-count grids.
type Size struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z,omitempty"`
	C int `yaml:"c,omitempty"`
}

// Count returns the product of all four dimensions.
func (s Size) Count() int64 {
	return int64(s.X) * int64(s.Y) * int64(max(s.Z, 1)) * int64(max(s.C, 1))
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", s.X, s.Y, s.Z, s.C)
}

// TilePos addresses one page: a band group inside a slice at a given grid
// position of a pyramid level.
type TilePos struct {
	Level int
	X     int
	Y     int
	Z     int
	C     int
}

func (p TilePos) String() string {
	return fmt.Sprintf("L%d(%d,%d,z%d,c%d)", p.Level, p.X, p.Y, p.Z, p.C)
}

// BlockPos addresses the samples of one band inside one page.
type BlockPos struct {
	Level int
	X     int
	Y     int
	Z     int
	Band  int
}

func (p BlockPos) String() string {
	return fmt.Sprintf("L%d(%d,%d,z%d,b%d)", p.Level, p.X, p.Y, p.Z, p.Band)
}

// Region is a pixel window of one slice of a pyramid level.
type Region struct {
	Level int
	Z     int
	X     int
	Y     int
	W     int
	H     int
}

func (r Region) String() string {
	return fmt.Sprintf("L%d z%d [%d,%d %dx%d]", r.Level, r.Z, r.X, r.Y, r.W, r.H)
}

// Pixels returns the number of pixels in the window.
func (r Region) Pixels() int { return r.W * r.H }

// PageSpec describes a page to the codec layer.
type PageSpec struct {
	Compression  CompressionType
	Width        int
	Height       int
	Bands        int
	DataType     DataType
	Quality      int
	NetByteOrder bool
	ZenMask      bool
	TIFF         TIFFOptions
}

// TIFFOptions are the per-page filter options of the TIF container codec.
type TIFFOptions struct {
	Deflate   bool
	Predictor bool
}

// Bytes returns the raw size of one page.
func (ps PageSpec) Bytes() int {
	return ps.Width * ps.Height * ps.Bands * ps.DataType.Size()
}

// PageCodec encodes and decodes whole pages. Implementations are
// selected once per dataset.
type PageCodec interface {
	// Compress encodes src into dst and returns the encoded length. It
	// fails with ErrBufferTooSmall instead of growing dst.
	Compress(dst, src []byte) (int, error)
	// Decompress decodes src into dst, which must come out exactly full.
	Decompress(dst, src []byte) error
	// Type returns the CompressionType identifier for this codec.
	Type() CompressionType
}
