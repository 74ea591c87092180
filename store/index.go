package store

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/levels"
	"github.com/INLOpen/mrfstore/sys"
)

// Index is the index file of a dataset.
type Index struct {
	f        sys.FileHandle
	path     string
	pyramid  *levels.Pyramid
	writable bool
	buf      [levels.RecordSize]byte
}

// CreateIndex creates (or truncates) the index file at path and sizes it
// for every record of the pyramid. All records start as holes.
func CreateIndex(path string, pyr *levels.Pyramid) (*Index, error) {
	f, err := sys.Create(path)
	if err != nil {
		return nil, &core.IOError{Op: "create", Path: path, Err: err}
	}
	if err := f.Truncate(pyr.IndexSize()); err != nil {
		f.Close()
		return nil, &core.IOError{Op: "truncate", Path: path, Err: err}
	}
	return &Index{f: f, path: path, pyramid: pyr, writable: true}, nil
}

// OpenIndex opens an existing index file. A writable index shorter than
// the pyramid requires is zero-extended, so the missing records read as
// holes. A read-only index that is too short is an IndexConsistencyError.
func OpenIndex(path string, pyr *levels.Pyramid, writable bool) (*Index, error) {
	var f sys.FileHandle
	var err error
	if writable {
		f, err = sys.OpenFile(path, os.O_RDWR, 0)
	} else {
		f, err = sys.Open(path)
	}
	if err != nil {
		return nil, &core.IOError{Op: "open", Path: path, Err: err}
	}
	size, err := sys.FileSize(f)
	if err != nil {
		f.Close()
		return nil, &core.IOError{Op: "stat", Path: path, Err: err}
	}
	if need := pyr.IndexSize(); size < need {
		if !writable {
			f.Close()
			return nil, &core.IndexConsistencyError{Path: path, Offset: size, Limit: need}
		}
		if err := f.Truncate(need); err != nil {
			f.Close()
			return nil, &core.IOError{Op: "extend", Path: path, Err: err}
		}
	}
	return &Index{f: f, path: path, pyramid: pyr, writable: writable}, nil
}

func (ix *Index) Path() string { return ix.path }

// Read returns the record for pos.
func (ix *Index) Read(pos core.TilePos) (Record, error) {
	off, err := ix.pyramid.IndexOffset(pos)
	if err != nil {
		return Record{}, err
	}
	if _, err := ix.f.ReadAt(ix.buf[:], off); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, &core.IOError{Op: fmt.Sprintf("read record %s", pos), Path: ix.path, Err: err}
	}
	return DecodeRecord(ix.buf[:])
}

// Write stores rec as the record for pos.
func (ix *Index) Write(pos core.TilePos, rec Record) error {
	if !ix.writable {
		return &core.IOError{Op: "write record", Path: ix.path, Err: os.ErrPermission}
	}
	off, err := ix.pyramid.IndexOffset(pos)
	if err != nil {
		return err
	}
	b := rec.AppendBinary(ix.buf[:0])
	if _, err := ix.f.WriteAt(b, off); err != nil {
		return &core.IOError{Op: fmt.Sprintf("write record %s", pos), Path: ix.path, Err: err}
	}
	return nil
}

func (ix *Index) Sync() error {
	if err := ix.f.Sync(); err != nil {
		return &core.IOError{Op: "sync", Path: ix.path, Err: err}
	}
	return nil
}

func (ix *Index) Close() error {
	if err := ix.f.Close(); err != nil {
		return &core.IOError{Op: "close", Path: ix.path, Err: err}
	}
	return nil
}
