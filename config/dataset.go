package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/levels"
	"github.com/INLOpen/mrfstore/sys"
)

// DescriptorExt is the extension of dataset descriptor files.
const DescriptorExt = ".mrf"

// IndexExt is the extension of index files.
const IndexExt = ".idx"

// DefaultPageSize is the page edge used when the descriptor names none.
const DefaultPageSize = 512

// DefaultQuality is the codec quality used when the descriptor names none.
const DefaultQuality = 85

// TIFFConfig holds the per-page filter options of the TIF codec.
type TIFFConfig struct {
	Compression string `yaml:"compression"` // "deflate" or "none"
	Predictor   bool   `yaml:"predictor"`
}

// DataValuesConfig holds per-band sample values. A list with a single
// entry applies to every band.
type DataValuesConfig struct {
	NoData []float64 `yaml:"no_data,omitempty"`
	Min    []float64 `yaml:"min,omitempty"`
	Max    []float64 `yaml:"max,omitempty"`
}

// RasterConfig describes the raster geometry and page encoding.
type RasterConfig struct {
	Size         core.Size        `yaml:"size"`
	PageSize     core.Size        `yaml:"page_size"`
	DataType     string           `yaml:"data_type"`
	Order        string           `yaml:"order"`
	Compression  string           `yaml:"compression"`
	Quality      *int             `yaml:"quality,omitempty"` // nil selects DefaultQuality; 0 is a valid setting
	NetByteOrder bool             `yaml:"net_byte_order,omitempty"`
	ZenMask      bool             `yaml:"zen_mask,omitempty"`
	TIFF         TIFFConfig       `yaml:"tiff,omitempty"`
	DataValues   DataValuesConfig `yaml:"data_values,omitempty"`
	DataFile     string           `yaml:"data_file,omitempty"`
	IndexFile    string           `yaml:"index_file,omitempty"`
}

// RsetsConfig describes the overview pyramid.
type RsetsConfig struct {
	Scale int `yaml:"scale"`
}

// BoundingBox is the georeferenced extent of level 0.
type BoundingBox struct {
	MinX float64 `yaml:"min_x"`
	MinY float64 `yaml:"min_y"`
	MaxX float64 `yaml:"max_x"`
	MaxY float64 `yaml:"max_y"`
}

// Bound returns the box as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

// GeoTagsConfig holds optional georeferencing.
type GeoTagsConfig struct {
	BoundingBox *BoundingBox `yaml:"bounding_box,omitempty"`
	Projection  string       `yaml:"projection,omitempty"`
}

// DatasetConfig is the YAML descriptor of a dataset.
type DatasetConfig struct {
	Raster  RasterConfig  `yaml:"raster"`
	Rsets   RsetsConfig   `yaml:"rsets"`
	GeoTags GeoTagsConfig `yaml:"geo_tags,omitempty"`
}

// Geometry is the validated, typed form of a DatasetConfig.
type Geometry struct {
	Size         core.Size
	PageSize     core.Size
	DataType     core.DataType
	Order        core.PixelOrder
	Compression  core.CompressionType
	Quality      int
	NetByteOrder bool
	ZenMask      bool
	TIFF         core.TIFFOptions
	Scale        int
}

// PageSpec returns the codec view of one page.
func (g Geometry) PageSpec() core.PageSpec {
	return core.PageSpec{
		Compression:  g.Compression,
		Width:        g.PageSize.X,
		Height:       g.PageSize.Y,
		Bands:        g.PageSize.C,
		DataType:     g.DataType,
		Quality:      g.Quality,
		NetByteOrder: g.NetByteOrder,
		ZenMask:      g.ZenMask,
		TIFF:         g.TIFF,
	}
}

// Pyramid builds the level layout for the geometry.
func (g Geometry) Pyramid() (*levels.Pyramid, error) {
	return levels.New(g.Size, g.PageSize, g.Scale)
}

// NewDataset returns a descriptor for a raster of the given size with every
// other field defaulted.
func NewDataset(size core.Size) *DatasetConfig {
	cfg := &DatasetConfig{Raster: RasterConfig{Size: size}}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields: page size 512 capped to the raster,
// PNG, pixel interleaved, quality 85, Byte samples and scale 2.
func (c *DatasetConfig) ApplyDefaults() {
	r := &c.Raster
	r.Size.Z = max(r.Size.Z, 1)
	r.Size.C = max(r.Size.C, 1)
	if r.DataType == "" {
		r.DataType = core.TypeByte.String()
	}
	if r.Order == "" {
		r.Order = core.OrderInterleaved.String()
	}
	if r.Compression == "" {
		r.Compression = core.CompressionPNG.String()
	}
	if r.Quality == nil {
		q := DefaultQuality
		r.Quality = &q
	}
	if r.PageSize.X == 0 {
		r.PageSize.X = min(DefaultPageSize, max(r.Size.X, 1))
	}
	if r.PageSize.Y == 0 {
		r.PageSize.Y = min(DefaultPageSize, max(r.Size.Y, 1))
	}
	if r.Size.X > 0 {
		r.PageSize.X = min(r.PageSize.X, r.Size.X)
	}
	if r.Size.Y > 0 {
		r.PageSize.Y = min(r.PageSize.Y, r.Size.Y)
	}
	r.PageSize.Z = max(r.PageSize.Z, 1)
	if r.PageSize.C == 0 {
		if order, err := core.ParsePixelOrder(r.Order); err == nil && order.Interleaved() {
			r.PageSize.C = r.Size.C
		} else {
			r.PageSize.C = 1
		}
	}
	if r.TIFF.Compression == "" {
		r.TIFF.Compression = "deflate"
	}
	if c.Rsets.Scale == 0 {
		c.Rsets.Scale = levels.DefaultScale
	}
}

// Geometry validates the descriptor and returns its typed form. Every
// failure is a *core.ConfigError.
func (c *DatasetConfig) Geometry() (Geometry, error) {
	r := c.Raster
	g := Geometry{
		Size:         r.Size,
		PageSize:     r.PageSize,
		Quality:      DefaultQuality,
		NetByteOrder: r.NetByteOrder,
		ZenMask:      r.ZenMask,
		TIFF:         core.TIFFOptions{Predictor: r.TIFF.Predictor},
		Scale:        c.Rsets.Scale,
	}
	var err error
	if g.DataType, err = core.ParseDataType(r.DataType); err != nil {
		return g, err
	}
	if g.Order, err = core.ParsePixelOrder(r.Order); err != nil {
		return g, err
	}
	if g.Compression, err = core.ParseCompression(r.Compression); err != nil {
		return g, err
	}
	switch strings.ToLower(r.TIFF.Compression) {
	case "deflate", "zip":
		g.TIFF.Deflate = true
	case "none", "":
	default:
		return g, &core.ConfigError{Field: "tiff.compression", Value: r.TIFF.Compression, Message: "expected deflate or none"}
	}
	if r.Quality != nil {
		g.Quality = *r.Quality
	}
	if g.Quality < 0 || g.Quality > 100 {
		return g, &core.ConfigError{Field: "quality", Value: fmt.Sprint(g.Quality), Message: "must be between 0 and 100"}
	}
	wantC := 1
	if g.Order.Interleaved() {
		wantC = g.Size.C
	}
	if g.PageSize.C != wantC {
		return g, &core.ConfigError{
			Field:   "page_size.c",
			Value:   fmt.Sprint(g.PageSize.C),
			Message: fmt.Sprintf("%s order needs %d bands per page", g.Order, wantC),
		}
	}
	if g.ZenMask && g.Compression != core.CompressionJPEG {
		return g, &core.ConfigError{Field: "zen_mask", Value: "true", Message: "only JPEG pages carry a validity mask"}
	}
	for name, vals := range map[string][]float64{"no_data": r.DataValues.NoData, "min": r.DataValues.Min, "max": r.DataValues.Max} {
		if len(vals) > 1 && len(vals) != g.Size.C {
			return g, &core.ConfigError{
				Field:   "data_values." + name,
				Value:   fmt.Sprint(vals),
				Message: fmt.Sprintf("need 1 or %d values", g.Size.C),
			}
		}
	}
	if bb := c.GeoTags.BoundingBox; bb != nil && (bb.MaxX <= bb.MinX || bb.MaxY <= bb.MinY) {
		return g, &core.ConfigError{Field: "geo_tags.bounding_box", Value: fmt.Sprint(*bb), Message: "empty extent"}
	}
	// Pyramid construction covers the remaining size and scale checks.
	if _, err := g.Pyramid(); err != nil {
		return g, err
	}
	return g, nil
}

// Validate reports the first problem with the descriptor, if any.
func (c *DatasetConfig) Validate() error {
	_, err := c.Geometry()
	return err
}

func bandValue(vals []float64, band int) (float64, bool) {
	switch {
	case len(vals) == 0:
		return 0, false
	case len(vals) == 1:
		return vals[0], true
	case band >= 0 && band < len(vals):
		return vals[band], true
	}
	return 0, false
}

// NoDataFor returns the no-data value of band, if one is configured.
func (v DataValuesConfig) NoDataFor(band int) (float64, bool) { return bandValue(v.NoData, band) }

// MinFor returns the declared minimum of band.
func (v DataValuesConfig) MinFor(band int) (float64, bool) { return bandValue(v.Min, band) }

// MaxFor returns the declared maximum of band.
func (v DataValuesConfig) MaxFor(band int) (float64, bool) { return bandValue(v.Max, band) }

// Files returns the data and index paths for a descriptor stored at
// descriptorPath. Relative names resolve against the descriptor directory.
func (c *DatasetConfig) Files(descriptorPath string) (data, index string) {
	dir := filepath.Dir(descriptorPath)
	base := strings.TrimSuffix(filepath.Base(descriptorPath), filepath.Ext(descriptorPath))
	data, index = c.Raster.DataFile, c.Raster.IndexFile
	if data == "" {
		ext := ".dat"
		if ct, err := core.ParseCompression(c.Raster.Compression); err == nil {
			ext = ct.Ext()
		}
		data = base + ext
	}
	if index == "" {
		index = base + IndexExt
	}
	if !filepath.IsAbs(data) {
		data = filepath.Join(dir, data)
	}
	if !filepath.IsAbs(index) {
		index = filepath.Join(dir, index)
	}
	return data, index
}

// LoadDataset reads a descriptor, applies defaults and validates it.
func LoadDataset(r io.Reader) (*DatasetConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset descriptor: %w", err)
	}
	cfg := &DatasetConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &core.ConfigError{Field: "descriptor", Message: err.Error()}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatasetFile reads the descriptor at path.
func LoadDatasetFile(path string) (*DatasetConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	cfg, err := LoadDataset(f)
	if err != nil {
		return nil, fmt.Errorf("descriptor %s: %w", path, err)
	}
	return cfg, nil
}

// WriteDataset encodes cfg as YAML.
func WriteDataset(w io.Writer, cfg *DatasetConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode dataset descriptor: %w", err)
	}
	return enc.Close()
}

// SaveDataset writes cfg to path, replacing any existing descriptor.
func SaveDataset(path string, cfg *DatasetConfig) error {
	var buf bytes.Buffer
	if err := WriteDataset(&buf, cfg); err != nil {
		return err
	}
	if err := sys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return &core.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
