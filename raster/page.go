package raster

import (
	"github.com/INLOpen/mrfstore/core"
)

// pageBuffer is the single decoded page owned by a Dataset. It is either
// resident (holding the decoded contents of tile) or accumulating band
// writes for tile, never both.
type pageBuffer struct {
	tile     core.TilePos
	resident bool
	// merged marks the bands not yet written as holding the stored page.
	merged bool
	dirty  []bool
	ndirty int
	buf    []byte
	bands  int
	sz     int
}

func newPageBuffer(spec core.PageSpec) *pageBuffer {
	return &pageBuffer{
		buf:   make([]byte, spec.Bytes()),
		dirty: make([]bool, spec.Bands),
		bands: spec.Bands,
		sz:    spec.DataType.Size(),
	}
}

func (p *pageBuffer) holds(tile core.TilePos) bool {
	return p.resident && p.tile == tile
}

func (p *pageBuffer) accumulating() bool { return p.ndirty > 0 }
func (p *pageBuffer) dirtyCount() int    { return p.ndirty }
func (p *pageBuffer) complete() bool     { return p.ndirty == p.bands }

func (p *pageBuffer) reset() {
	p.resident = false
	p.merged = false
	clear(p.dirty)
	p.ndirty = 0
}

// load marks buf as holding the decoded contents of tile.
func (p *pageBuffer) load(tile core.TilePos) {
	p.reset()
	p.tile = tile
	p.resident = true
}

// begin starts accumulating band writes for tile.
func (p *pageBuffer) begin(tile core.TilePos) {
	p.reset()
	p.tile = tile
	clear(p.buf)
}

// put interleaves one band block into the page and marks the band dirty.
func (p *pageBuffer) put(band int, src []byte) {
	interleave(p.buf, src, band, p.bands, p.sz)
	if !p.dirty[band] {
		p.dirty[band] = true
		p.ndirty++
	}
}

// merge copies the bands not yet written from stored, a decoded page of
// the same tile.
func (p *pageBuffer) merge(stored []byte) {
	step := p.bands * p.sz
	for b := 0; b < p.bands; b++ {
		if p.dirty[b] {
			continue
		}
		for off := b * p.sz; off < len(p.buf); off += step {
			copy(p.buf[off:off+p.sz], stored[off:off+p.sz])
		}
	}
	p.merged = true
}

// extract copies band out of the resident page.
func (p *pageBuffer) extract(band int, dst []byte) {
	deinterleave(dst, p.buf, band, p.bands, p.sz)
}

// interleave writes the samples of src as band of an nc-band page.
func interleave(page, src []byte, band, nc, sz int) {
	if nc == 1 {
		copy(page, src)
		return
	}
	n := len(src) / sz
	if sz == 1 {
		for i := 0; i < n; i++ {
			page[i*nc+band] = src[i]
		}
		return
	}
	for i := 0; i < n; i++ {
		o := (i*nc + band) * sz
		copy(page[o:o+sz], src[i*sz:i*sz+sz])
	}
}

// deinterleave copies every nc-th sample of page, starting at band, into dst.
func deinterleave(dst, page []byte, band, nc, sz int) {
	if nc == 1 {
		copy(dst, page)
		return
	}
	n := len(dst) / sz
	if sz == 1 {
		for i := 0; i < n; i++ {
			dst[i] = page[i*nc+band]
		}
		return
	}
	for i := 0; i < n; i++ {
		o := (i*nc + band) * sz
		copy(dst[i*sz:i*sz+sz], page[o:o+sz])
	}
}
