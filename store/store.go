package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/INLOpen/mrfstore/core"
	"github.com/INLOpen/mrfstore/levels"
)

// Options configures a Store.
type Options struct {
	IndexPath string
	DataPath  string
	Pyramid   *levels.Pyramid
	Writable  bool
	// SyncWrites flushes the data file before each index update so a
	// record never names bytes that are not yet on stable storage.
	SyncWrites bool
	Logger     *slog.Logger
}

// Store pairs an index with its data file and keeps the write ordering:
// the payload is appended first, the record written second.
type Store struct {
	index      *Index
	data       *Data
	syncWrites bool
	logger     *slog.Logger
}

// Create makes a new, empty pair of files.
func Create(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	data, err := CreateData(opts.DataPath)
	if err != nil {
		return nil, err
	}
	index, err := CreateIndex(opts.IndexPath, opts.Pyramid)
	if err != nil {
		data.Close()
		return nil, err
	}
	return newStore(index, data, opts), nil
}

// Open opens an existing pair of files.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	// Data first: a failed open leaves the index untouched.
	data, err := OpenData(opts.DataPath, opts.Writable)
	if err != nil {
		return nil, err
	}
	index, err := OpenIndex(opts.IndexPath, opts.Pyramid, opts.Writable)
	if err != nil {
		data.Close()
		return nil, err
	}
	return newStore(index, data, opts), nil
}

func newStore(index *Index, data *Data, opts Options) *Store {
	return &Store{
		index:      index,
		data:       data,
		syncWrites: opts.SyncWrites,
		logger:     opts.Logger.With("component", "Store"),
	}
}

func (s *Store) Index() *Index { return s.index }
func (s *Store) Data() *Data   { return s.data }

// Record returns the index record for pos.
func (s *Store) Record(pos core.TilePos) (Record, error) {
	return s.index.Read(pos)
}

// Get returns the record for pos and its payload, read into buf when it
// fits. The payload is empty unless the record is Present.
func (s *Store) Get(pos core.TilePos, buf []byte) (Record, []byte, error) {
	rec, err := s.index.Read(pos)
	if err != nil {
		return Record{}, nil, err
	}
	payload, err := s.data.Read(rec, buf)
	if err != nil {
		return rec, nil, fmt.Errorf("page %s: %w", pos, err)
	}
	return rec, payload, nil
}

// Put appends payload and points the record for pos at it.
func (s *Store) Put(pos core.TilePos, payload []byte) (Record, error) {
	if len(payload) == 0 {
		return Record{}, fmt.Errorf("page %s: empty payload, use PutEmpty", pos)
	}
	off, err := s.data.Append(payload)
	if err != nil {
		return Record{}, err
	}
	if s.syncWrites {
		if err := s.data.Sync(); err != nil {
			return Record{}, err
		}
	}
	rec := PresentRecord(uint64(off), uint64(len(payload)))
	if err := s.index.Write(pos, rec); err != nil {
		// the appended bytes are now unreferenced, which is harmless
		s.logger.Warn("Index write failed after data append", "page", pos.String(), "offset", off, "error", err)
		return Record{}, err
	}
	return rec, nil
}

// PutEmpty records pos as a Hole or as KnownEmpty without storing a payload.
func (s *Store) PutEmpty(pos core.TilePos, kind Kind) error {
	var rec Record
	switch kind {
	case Hole:
		rec = HoleRecord()
	case KnownEmpty:
		rec = KnownEmptyRecord()
	default:
		return fmt.Errorf("page %s: PutEmpty with kind %s", pos, kind)
	}
	return s.index.Write(pos, rec)
}

// Sync flushes both files, data first.
func (s *Store) Sync() error {
	if err := s.data.Sync(); err != nil {
		return err
	}
	return s.index.Sync()
}

func (s *Store) Close() error {
	return errors.Join(s.data.Close(), s.index.Close())
}
