// Package store implements the paired index and data files of a dataset.
//
// The index is a flat array of 16-byte big-endian {offset, size} records,
// one per page of every pyramid level. The data file is an append-only
// blob the records point into.
package store

import (
	"encoding/binary"
	"fmt"

	"github.com/INLOpen/mrfstore/levels"
)

// Kind distinguishes the three meanings an index record can carry.
type Kind uint8

const (
	// Hole is a page that was never written. It reads as the fill value.
	Hole Kind = iota
	// KnownEmpty is a page explicitly recorded as all background. It reads
	// as the fill value and is never fetched from a pull-through source.
	KnownEmpty
	// Present is a page with a payload in the data file.
	Present
)

func (k Kind) String() string {
	switch k {
	case Hole:
		return "hole"
	case KnownEmpty:
		return "known-empty"
	case Present:
		return "present"
	}
	return "unknown"
}

// knownEmptyOffset is stored in the offset field of a KnownEmpty record.
// Any nonzero value marks the record; readers accept all of them.
const knownEmptyOffset = 1

// Record is one decoded index entry. The zero value is a Hole.
type Record struct {
	kind   Kind
	offset uint64
	size   uint64
}

func HoleRecord() Record { return Record{} }

func KnownEmptyRecord() Record { return Record{kind: KnownEmpty, offset: knownEmptyOffset} }

// PresentRecord describes a payload of size bytes at offset. A zero size
// yields a Hole or KnownEmpty record, following the on-disk rule.
func PresentRecord(offset, size uint64) Record {
	return classify(offset, size)
}

func classify(offset, size uint64) Record {
	switch {
	case size > 0:
		return Record{kind: Present, offset: offset, size: size}
	case offset != 0:
		return Record{kind: KnownEmpty, offset: offset}
	}
	return Record{}
}

func (r Record) Kind() Kind { return r.kind }

// Offset returns the payload offset. It is meaningful only for Present.
func (r Record) Offset() int64 { return int64(r.offset) }

// Size returns the payload length; zero unless Present.
func (r Record) Size() int64 { return int64(r.size) }

// Empty reports whether the record has no payload.
func (r Record) Empty() bool { return r.kind != Present }

func (r Record) String() string {
	if r.kind == Present {
		return fmt.Sprintf("present[%d,+%d]", r.offset, r.size)
	}
	return r.kind.String()
}

// AppendBinary appends the 16-byte on-disk form of r to b.
func (r Record) AppendBinary(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, r.offset)
	return binary.BigEndian.AppendUint64(b, r.size)
}

// DecodeRecord parses the 16-byte on-disk form.
func DecodeRecord(b []byte) (Record, error) {
	if len(b) < levels.RecordSize {
		return Record{}, fmt.Errorf("index record needs %d bytes, got %d", levels.RecordSize, len(b))
	}
	return classify(binary.BigEndian.Uint64(b[0:8]), binary.BigEndian.Uint64(b[8:16])), nil
}
