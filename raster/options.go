package raster

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// DefaultBlockCacheSize is the number of band blocks cached per band when
// Options.BlockCacheSize is zero.
const DefaultBlockCacheSize = 8

// Options configures how a dataset is opened.
type Options struct {
	// Writable opens the index and data files for writing and takes the
	// single-writer lock on the descriptor.
	Writable bool
	// SyncWrites flushes the data file before each index record is written.
	SyncWrites bool
	// LockTimeout bounds the wait for the writer lock. Zero means
	// sys.DefaultLockTimeout.
	LockTimeout time.Duration
	// BlockCacheSize is the capacity of the de-interleaved block cache.
	// Zero selects DefaultBlockCacheSize blocks per band; negative disables it.
	BlockCacheSize int
	// Source, when set, is queried for pages that were never written. The
	// fetched page is stored before it is returned, so Source requires a
	// writable dataset.
	Source SourceProvider

	Logger *slog.Logger
	Tracer trace.Tracer
}
