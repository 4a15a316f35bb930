// Package journal implements the Journal Reader (C1): a lazy, restartable
// stream of raw change records for one volume, abstracted behind one
// contract so platform-native and emulated backends can share a caller.
//
// The one backend in this package is the fsnotify-backed emulation in
// internal/journal/fswatch.go; there is no native USN-journal backend. It
// translates fsnotify operations to reason bits where a direct equivalent
// exists, and records without one end up ActivityType-unknown (spec §4.1).
package journal

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Sentinel errors surfaced by Reader implementations; the Collector and
// Runner use errors.Is to decide fatal-vs-retry per the error taxonomy.
var (
	ErrUnsupportedVolume = errors.New("journal: volume not supported")
	ErrPermissionDenied  = errors.New("journal: permission denied")
	ErrJournalAbsent     = errors.New("journal: journal absent for volume")
	ErrInvalidCursor     = errors.New("journal: cursor invalid for this journal")
)

// RawRecord is one unprocessed change record as produced by a Reader,
// before the Collector normalizes it into an Activity.
type RawRecord struct {
	ReferenceNumber uint64
	Timestamp       time.Time
	FilePath        string
	FileName        string
	IsDirectory     bool
	FileSize        *int64
	ReasonBits      []string // e.g. "FILE_CREATE", "DATA_EXTEND", "RENAME_NEW_NAME"
	USN             uint64
}

// Metadata describes a volume's journal at query time.
type Metadata struct {
	JournalID uint64
	FirstUSN  uint64
	NextUSN   uint64
}

// Reader is the contract every journal backend (native or emulated) must
// satisfy: open once, query metadata, read successive batches from a
// cursor, close once. Two Readers for the same volume is a configuration
// error (spec §5) — callers are responsible for that invariant, not Reader
// implementations.
type Reader interface {
	// Open acquires the handle for a volume. Must be called once before
	// any other method.
	Open(ctx context.Context) error

	// QueryMetadata returns the journal's current identity and range.
	QueryMetadata(ctx context.Context) (Metadata, error)

	// ReadBatch returns records at or after nextUSN, in ascending journal
	// order, and the USN to resume from on the next call. The returned
	// USN is always >= the USN passed in. An empty batch with a nil error
	// means "nothing new yet", not a failure.
	ReadBatch(ctx context.Context, nextUSN uint64, maxRecords int) ([]RawRecord, uint64, error)

	// Close releases the handle. Safe to call multiple times.
	Close() error

	// Volume identifies the volume this Reader is bound to.
	Volume() string
}

// Counters tracks the error taxonomy counters a Reader must report (§4.1).
type Counters struct {
	AccessErrorCount int64
	ErrorCount       int64
	NotFoundCount    int64
}

// CountingReader maintains a Reader's error counters. Backends embed this
// rather than reimplementing counter bookkeeping.
type CountingReader struct {
	accessErr int64
	err       int64
	notFound  int64
}

func (c *CountingReader) recordAccessError() { atomic.AddInt64(&c.accessErr, 1) }
func (c *CountingReader) recordError()       { atomic.AddInt64(&c.err, 1) }
func (c *CountingReader) recordNotFound()    { atomic.AddInt64(&c.notFound, 1) }

// Counters returns a snapshot of the current counter values.
func (c *CountingReader) Counters() Counters {
	return Counters{
		AccessErrorCount: atomic.LoadInt64(&c.accessErr),
		ErrorCount:       atomic.LoadInt64(&c.err),
		NotFoundCount:    atomic.LoadInt64(&c.notFound),
	}
}

// classify maps an error to the appropriate counter and decides whether the
// cycle should treat it as recoverable.
func (c *CountingReader) classify(err error) (recoverable bool) {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrUnsupportedVolume):
		c.recordAccessError()
		return false
	case errors.Is(err, ErrJournalAbsent):
		c.recordNotFound()
		return false
	case errors.Is(err, ErrInvalidCursor):
		c.recordError()
		return true
	default:
		c.recordError()
		return true
	}
}
