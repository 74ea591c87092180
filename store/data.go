package store

import (
	"fmt"
	"io"
	"os"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/sys"
)

// Data is the append-only payload file of a dataset.
type Data struct {
	f        sys.FileHandle
	path     string
	writable bool
	// end is the last known file length. It only grows.
	end int64
}

// CreateData creates (or truncates) an empty data file.
func CreateData(path string) (*Data, error) {
	f, err := sys.Create(path)
	if err != nil {
		return nil, &core.IOError{Op: "create", Path: path, Err: err}
	}
	return &Data{f: f, path: path, writable: true}, nil
}

// OpenData opens an existing data file. A missing file is an error for
// writable opens too; only CreateData makes one.
func OpenData(path string, writable bool) (*Data, error) {
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
	end, err := sys.FileSize(f)
	if err != nil {
		f.Close()
		return nil, &core.IOError{Op: "stat", Path: path, Err: err}
	}
	return &Data{f: f, path: path, writable: writable, end: end}, nil
}

func (d *Data) Path() string { return d.path }

// Len returns the data file length as last observed.
func (d *Data) Len() int64 { return d.end }

// Append writes p at the end of the file and returns its offset.
func (d *Data) Append(p []byte) (int64, error) {
	if !d.writable {
		return 0, &core.IOError{Op: "append", Path: d.path, Err: os.ErrPermission}
	}
	off, err := d.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, &core.IOError{Op: "seek", Path: d.path, Err: err}
	}
	n, err := d.f.Write(p)
	if err != nil {
		return 0, &core.IOError{Op: "append", Path: d.path, Err: err}
	}
	if n != len(p) {
		return 0, &core.IOError{Op: "append", Path: d.path, Err: io.ErrShortWrite}
	}
	d.end = max(d.end, off+int64(n))
	return off, nil
}

// Read returns the payload of rec, reusing buf when it is large enough.
// A range past the end of the file is an IndexConsistencyError.
func (d *Data) Read(rec Record, buf []byte) ([]byte, error) {
	if rec.Kind() != Present {
		return buf[:0], nil
	}
	off, size := rec.Offset(), rec.Size()
	if off < 0 || size < 0 || off+size > d.end {
		// another process may have appended since we last looked
		if err := d.refresh(); err != nil {
			return nil, err
		}
		if off < 0 || size < 0 || off+size > d.end {
			return nil, &core.IndexConsistencyError{Path: d.path, Offset: off, Size: size, Limit: d.end}
		}
	}
	if int64(cap(buf)) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	if _, err := d.f.ReadAt(buf, off); err != nil {
		return nil, &core.IOError{Op: fmt.Sprintf("read [%d,+%d]", off, size), Path: d.path, Err: err}
	}
	return buf, nil
}

func (d *Data) refresh() error {
	end, err := sys.FileSize(d.f)
	if err != nil {
		return &core.IOError{Op: "stat", Path: d.path, Err: err}
	}
	d.end = end
	return nil
}

func (d *Data) Sync() error {
	if err := d.f.Sync(); err != nil {
		return &core.IOError{Op: "sync", Path: d.path, Err: err}
	}
	return nil
}

func (d *Data) Close() error {
	if err := d.f.Close(); err != nil {
		return &core.IOError{Op: "close", Path: d.path, Err: err}
	}
	return nil
}
