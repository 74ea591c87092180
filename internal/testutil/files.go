// Package testutil holds file helpers shared by the storage and raster tests.
package testutil

import (
	"os"
	"testing"

	"github.com/INLOpen/mrfstore/sys"
)

// RequireFilesPresent fails the test unless every path exists as a regular file.
func RequireFilesPresent(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			t.Fatalf("expected file %s: %v", p, err)
		}
		if fi.IsDir() {
			t.Fatalf("expected %s to be a file, found a directory", p)
		}
	}
}

// OverwriteAt replaces len(data) bytes of the file at path starting at off.
func OverwriteAt(t *testing.T, path string, off int64, data []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, off); err != nil {
		t.Fatalf("write %s at %d: %v", path, off, err)
	}
}

// failingWrites passes everything through except Write.
type failingWrites struct {
	sys.FileHandle
	err error
}

func (f failingWrites) Write(p []byte) (int, error) { return 0, f.err }

// FailWrites makes every handle later opened on path through sys.OpenFile
// fail its Write calls with err. The original handler is restored when the
// test ends.
func FailWrites(t *testing.T, path string, err error) {
	t.Helper()
	orig := sys.OpenFile
	sys.OpenFile = func(name string, flag int, perm os.FileMode) (sys.FileHandle, error) {
		f, openErr := orig(name, flag, perm)
		if openErr != nil || name != path {
			return f, openErr
		}
		return failingWrites{FileHandle: f, err: err}, nil
	}
	t.Cleanup(func() { sys.OpenFile = orig })
}
