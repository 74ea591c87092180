package sys

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWriterLock_Exclusive(t *testing.T) {
	base := filepath.Join(t.TempDir(), "scene.mrf")

	release, err := AcquireWriterLock(base, 200*time.Millisecond)
	require.NoError(t, err)

	pid, since, err := LockOwner(base)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.WithinDuration(t, time.Now(), since, time.Minute)

	_, err = AcquireWriterLock(base, 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release())
	_, statErr := os.Stat(base + ".lock")
	assert.True(t, os.IsNotExist(statErr), "lock file should be removed on release")

	release2, err := AcquireWriterLock(base, 200*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, release2())
}

func TestFileHandlers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.til")

	f, err := Create(path)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("abcdef"), 4)
	require.NoError(t, err)
	size, err := FileSize(f)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
	require.NoError(t, f.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	buf := make([]byte, 3)
	_, err = r.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, "bcd", string(buf))

	_, err = r.Write([]byte("x"))
	assert.Error(t, err, "read-only handle must reject writes")
}
