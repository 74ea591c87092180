package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/internal/testutil"
	"github.com/INLOpen/mrfstore/levels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPyramid(t *testing.T) *levels.Pyramid {
	t.Helper()
	p, err := levels.New(core.Size{X: 1000, Y: 1000, C: 1}, core.Size{X: 500, Y: 500, C: 1}, 2)
	require.NoError(t, err)
	return p
}

func testOptions(t *testing.T, pyr *levels.Pyramid) Options {
	dir := t.TempDir()
	return Options{
		IndexPath: filepath.Join(dir, "scene.idx"),
		DataPath:  filepath.Join(dir, "scene.til"),
		Pyramid:   pyr,
		Writable:  true,
	}
}

func TestDecodeRecord_Kinds(t *testing.T) {
	testCases := []struct {
		name   string
		offset uint64
		size   uint64
		want   Kind
	}{
		{"hole", 0, 0, Hole},
		{"known empty", 1, 0, KnownEmpty},
		{"known empty any offset", 12345, 0, KnownEmpty},
		{"present at zero", 0, 10, Present},
		{"present", 77, 3, Present},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := PresentRecord(tc.offset, tc.size).AppendBinary(nil)
			require.Len(t, raw, levels.RecordSize)
			rec, err := DecodeRecord(raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, rec.Kind())
			if tc.want == Present {
				assert.Equal(t, int64(tc.offset), rec.Offset())
				assert.Equal(t, int64(tc.size), rec.Size())
			}
		})
	}

	_, err := DecodeRecord(make([]byte, 8))
	assert.Error(t, err)
}

func TestRecord_BigEndianLayout(t *testing.T) {
	raw := PresentRecord(0x0102, 0x0304).AppendBinary(nil)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2, 0, 0, 0, 0, 0, 0, 3, 4}, raw)
	assert.Equal(t, make([]byte, 16), HoleRecord().AppendBinary(nil))
}

func TestCreate_AllHoles(t *testing.T) {
	pyr := testPyramid(t)
	opts := testOptions(t, pyr)
	s, err := Create(opts)
	require.NoError(t, err)
	defer s.Close()

	fi, err := os.Stat(opts.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, pyr.IndexSize(), fi.Size())

	for _, pos := range []core.TilePos{{}, {X: 1, Y: 1}, {Level: 1}} {
		rec, err := s.Record(pos)
		require.NoError(t, err)
		assert.Equal(t, Hole, rec.Kind())
	}
}

func TestPutGet(t *testing.T) {
	pyr := testPyramid(t)
	opts := testOptions(t, pyr)
	s, err := Create(opts)
	require.NoError(t, err)

	first, err := s.Put(core.TilePos{X: 1}, []byte("first page"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Offset())

	second, err := s.Put(core.TilePos{Y: 1}, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), second.Offset())

	// overwriting appends, the old bytes stay unreferenced
	third, err := s.Put(core.TilePos{X: 1}, []byte("rewritten"))
	require.NoError(t, err)
	assert.Equal(t, int64(16), third.Offset())

	require.NoError(t, s.PutEmpty(core.TilePos{Level: 1}, KnownEmpty))
	require.NoError(t, s.Close())

	opts.Writable = false
	r, err := Open(opts)
	require.NoError(t, err)
	defer r.Close()

	rec, payload, err := r.Get(core.TilePos{X: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, Present, rec.Kind())
	assert.Equal(t, "rewritten", string(payload))

	_, payload, err = r.Get(core.TilePos{Y: 1}, make([]byte, 0, 64))
	require.NoError(t, err)
	assert.Equal(t, "second", string(payload))

	rec, payload, err = r.Get(core.TilePos{Level: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, KnownEmpty, rec.Kind())
	assert.Empty(t, payload)

	_, err = r.Put(core.TilePos{}, []byte("x"))
	assert.True(t, core.IsIOError(err))
}

func TestPut_EmptyPayloadRejected(t *testing.T) {
	s, err := Create(testOptions(t, testPyramid(t)))
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Put(core.TilePos{}, nil)
	assert.Error(t, err)
	assert.Error(t, s.PutEmpty(core.TilePos{}, Present))
}

func TestOpen_ShortIndex(t *testing.T) {
	pyr := testPyramid(t)
	opts := testOptions(t, pyr)
	require.NoError(t, os.WriteFile(opts.IndexPath, make([]byte, 16), 0644))
	require.NoError(t, os.WriteFile(opts.DataPath, nil, 0644))

	opts.Writable = false
	_, err := Open(opts)
	require.Error(t, err)
	assert.True(t, core.IsIndexConsistencyError(err))
	assert.Contains(t, err.Error(), opts.IndexPath)

	opts.Writable = true
	s, err := Open(opts)
	require.NoError(t, err)
	defer s.Close()
	fi, err := os.Stat(opts.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, pyr.IndexSize(), fi.Size())
	rec, err := s.Record(core.TilePos{Level: 1})
	require.NoError(t, err)
	assert.Equal(t, Hole, rec.Kind())
}

func TestOpen_MissingFilesNamed(t *testing.T) {
	for _, writable := range []bool{false, true} {
		opts := testOptions(t, testPyramid(t))
		opts.Writable = writable

		_, err := Open(opts)
		require.Error(t, err)
		assert.True(t, core.IsIOError(err))
		assert.Contains(t, err.Error(), opts.DataPath, "writable=%v", writable)
		_, statErr := os.Stat(opts.DataPath)
		assert.True(t, os.IsNotExist(statErr), "open must not create the data file")

		require.NoError(t, os.WriteFile(opts.DataPath, nil, 0644))
		_, err = Open(opts)
		require.Error(t, err)
		assert.True(t, core.IsIOError(err))
		assert.Contains(t, err.Error(), opts.IndexPath, "writable=%v", writable)
	}
}

func TestOpen_WritableMissingDataLeavesIndex(t *testing.T) {
	opts := testOptions(t, testPyramid(t))
	require.NoError(t, os.WriteFile(opts.IndexPath, make([]byte, 16), 0644))

	_, err := Open(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), opts.DataPath)
	fi, err := os.Stat(opts.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, int64(16), fi.Size(), "short index not extended by a failed open")
}

func TestGet_RecordPastDataEnd(t *testing.T) {
	opts := testOptions(t, testPyramid(t))
	s, err := Create(opts)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Index().Write(core.TilePos{}, PresentRecord(100, 50)))
	_, _, err = s.Get(core.TilePos{}, nil)
	require.Error(t, err)
	assert.True(t, core.IsIndexConsistencyError(err))

	// other records are unaffected
	_, err = s.Put(core.TilePos{X: 1}, []byte("ok"))
	require.NoError(t, err)
	_, payload, err := s.Get(core.TilePos{X: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(payload))
}

func TestRead_ShortIndexIsIOError(t *testing.T) {
	opts := testOptions(t, testPyramid(t))
	s, err := Create(opts)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, os.Truncate(opts.IndexPath, 8))
	_, err = s.Record(core.TilePos{})
	require.Error(t, err)
	assert.True(t, core.IsIOError(err))
}

var errDiskFull = errors.New("no space left on device")

func TestPut_DataFailureLeavesRecord(t *testing.T) {
	pyr := testPyramid(t)
	opts := testOptions(t, pyr)
	s, err := Create(opts)
	require.NoError(t, err)
	_, err = s.Put(core.TilePos{}, []byte("kept"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	testutil.FailWrites(t, opts.DataPath, errDiskFull)

	s, err = Open(opts)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Put(core.TilePos{}, []byte("lost"))
	require.Error(t, err)
	assert.True(t, core.IsIOError(err))
	assert.ErrorIs(t, err, errDiskFull)

	_, payload, err := s.Get(core.TilePos{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(payload))
}
