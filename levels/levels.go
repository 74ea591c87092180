// Package levels computes the page layout of a raster pyramid: how many
// pages each resolution level has and where each page's record lives in
// the index file.
package levels

import (
	"fmt"

	"github.com/INLOpen/mrfstore/core"
)

// RecordSize is the size in bytes of one index record.
const RecordSize = 16

// DefaultScale is the linear reduction factor between adjacent levels.
const DefaultScale = 2

// PageCount returns the number of pages of size page needed to cover total.
func PageCount(total, page int) int {
	if total <= 0 || page <= 0 {
		return 0
	}
	return (total-1)/page + 1
}

// Level is one resolution of the pyramid.
type Level struct {
	Index int
	// Size is the pixel extent of the level. Z and C are the slice and band
	// counts, which do not shrink with resolution.
	Size core.Size
	// Pages is the page grid. C is the number of band groups.
	Pages core.Size
	// Base is the number of records stored before this level.
	Base int64
}

// Records returns the number of index records of the level.
func (l Level) Records() int64 { return l.Pages.Count() }

// Pyramid is the full set of levels for a raster geometry. Level 0 is full
// resolution and the last level is a single page.
type Pyramid struct {
	size   core.Size
	page   core.Size
	scale  int
	levels []Level
}

// New builds the pyramid for a raster of the given size tiled by page.
// Slice and band counts default to 1 when zero. Pages hold a single slice.
func New(size, page core.Size, scale int) (*Pyramid, error) {
	size.Z = max(size.Z, 1)
	size.C = max(size.C, 1)
	page.Z = max(page.Z, 1)
	page.C = max(page.C, 1)

	switch {
	case size.X < 1 || size.Y < 1:
		return nil, &core.ConfigError{Field: "size", Value: size.String(), Message: "raster must be at least 1x1"}
	case page.X < 1 || page.Y < 1:
		return nil, &core.ConfigError{Field: "page_size", Value: page.String(), Message: "page must be at least 1x1"}
	case page.Z != 1:
		return nil, &core.ConfigError{Field: "page_size", Value: page.String(), Message: "pages hold exactly one slice"}
	case page.C > size.C:
		return nil, &core.ConfigError{Field: "page_size", Value: page.String(), Message: "page has more bands than the raster"}
	case scale < 2:
		return nil, &core.ConfigError{Field: "scale", Value: fmt.Sprint(scale), Message: "scale must be at least 2"}
	}

	p := &Pyramid{size: size, page: page, scale: scale}
	cur := size
	var base int64
	for i := 0; ; i++ {
		lvl := Level{
			Index: i,
			Size:  cur,
			Pages: core.Size{
				X: PageCount(cur.X, page.X),
				Y: PageCount(cur.Y, page.Y),
				Z: cur.Z,
				C: PageCount(cur.C, page.C),
			},
			Base: base,
		}
		p.levels = append(p.levels, lvl)
		base += lvl.Records()
		if lvl.Pages.X*lvl.Pages.Y == 1 {
			break
		}
		cur.X = PageCount(cur.X, scale)
		cur.Y = PageCount(cur.Y, scale)
	}
	return p, nil
}

func (p *Pyramid) Size() core.Size     { return p.size }
func (p *Pyramid) PageSize() core.Size { return p.page }
func (p *Pyramid) Scale() int          { return p.scale }
func (p *Pyramid) NumLevels() int      { return len(p.levels) }

// Level returns level i. It panics if i is out of range, like a slice index.
func (p *Pyramid) Level(i int) Level { return p.levels[i] }

// Levels returns a copy of all levels, finest first.
func (p *Pyramid) Levels() []Level {
	out := make([]Level, len(p.levels))
	copy(out, p.levels)
	return out
}

// RecordCount returns the number of records of the whole pyramid.
func (p *Pyramid) RecordCount() int64 {
	last := p.levels[len(p.levels)-1]
	return last.Base + last.Records()
}

// IndexSize returns the byte size the index file needs.
func (p *Pyramid) IndexSize() int64 { return p.RecordCount() * RecordSize }

// Contains reports whether pos addresses a page of the pyramid.
func (p *Pyramid) Contains(pos core.TilePos) bool {
	if pos.Level < 0 || pos.Level >= len(p.levels) {
		return false
	}
	g := p.levels[pos.Level].Pages
	return pos.X >= 0 && pos.X < g.X &&
		pos.Y >= 0 && pos.Y < g.Y &&
		pos.Z >= 0 && pos.Z < g.Z &&
		pos.C >= 0 && pos.C < g.C
}

// RecordIndex returns the ordinal of the record for pos. Within a level the
// band group varies fastest, then the column, the row and the slice.
func (p *Pyramid) RecordIndex(pos core.TilePos) (int64, error) {
	if !p.Contains(pos) {
		return 0, fmt.Errorf("%w: %s", core.ErrOutOfRange, pos)
	}
	lvl := p.levels[pos.Level]
	g := lvl.Pages
	n := int64(pos.C) + int64(g.C)*(int64(pos.X)+int64(g.X)*(int64(pos.Y)+int64(g.Y)*int64(pos.Z)))
	return lvl.Base + n, nil
}

// IndexOffset returns the byte offset of the record for pos in the index file.
func (p *Pyramid) IndexOffset(pos core.TilePos) (int64, error) {
	n, err := p.RecordIndex(pos)
	if err != nil {
		return 0, err
	}
	return n * RecordSize, nil
}

// TilePos converts a block address to the page that holds it.
func (p *Pyramid) TilePos(b core.BlockPos) core.TilePos {
	return core.TilePos{Level: b.Level, X: b.X, Y: b.Y, Z: b.Z, C: b.Band / p.page.C}
}

// LevelForFactor maps an overview reduction factor to a level number. The
// factor must be a power of the pyramid scale.
func (p *Pyramid) LevelForFactor(factor int) (int, error) {
	f := 1
	for i := range p.levels {
		if f == factor {
			return i, nil
		}
		f *= p.scale
	}
	return 0, &core.ConfigError{Field: "overview factor", Value: fmt.Sprint(factor),
		Message: fmt.Sprintf("must be a power of %d not above %d", p.scale, f/p.scale)}
}

// Factor returns the reduction factor of level i relative to level 0.
func (p *Pyramid) Factor(i int) int {
	f := 1
	for ; i > 0; i-- {
		f *= p.scale
	}
	return f
}
