package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/mrfstore/sys"
)

func TestOverwriteAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0644))
	OverwriteAt(t, path, 2, []byte("XY"))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abXYef", string(got))
	RequireFilesPresent(t, path)
}

func TestFailWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	other := filepath.Join(dir, "other")
	errFull := errors.New("disk full")

	t.Run("injected", func(t *testing.T) {
		FailWrites(t, target, errFull)

		f, err := sys.OpenFile(target, os.O_CREATE|os.O_RDWR, 0644)
		require.NoError(t, err)
		defer f.Close()
		_, err = f.Write([]byte("x"))
		assert.ErrorIs(t, err, errFull)

		g, err := sys.OpenFile(other, os.O_CREATE|os.O_RDWR, 0644)
		require.NoError(t, err)
		defer g.Close()
		_, err = g.Write([]byte("x"))
		assert.NoError(t, err)
	})

	// restored by the subtest cleanup
	f, err := sys.OpenFile(target, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write([]byte("y"))
	assert.NoError(t, err)
}
