package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-io/actmem/internal/collector"
	"github.com/corvid-io/actmem/internal/consolidator"
	"github.com/corvid-io/actmem/internal/entity"
	"github.com/corvid-io/actmem/internal/eventbus"
	"github.com/corvid-io/actmem/internal/hottier"
	"github.com/corvid-io/actmem/internal/journal"
	"github.com/corvid-io/actmem/internal/scoring"
)

// fakeReader is a minimal in-memory journal.Reader, mirroring the
// Collector package's own test double.
type fakeReader struct {
	volume  string
	records []journal.RawRecord
	nextUSN uint64
}

func (f *fakeReader) Open(ctx context.Context) error { return nil }

func (f *fakeReader) QueryMetadata(ctx context.Context) (journal.Metadata, error) {
	return journal.Metadata{JournalID: 1, FirstUSN: 0, NextUSN: f.nextUSN}, nil
}

func (f *fakeReader) ReadBatch(ctx context.Context, nextUSN uint64, maxRecords int) ([]journal.RawRecord, uint64, error) {
	var out []journal.RawRecord
	for _, r := range f.records {
		if r.USN >= nextUSN {
			out = append(out, r)
		}
	}
	return out, f.nextUSN, nil
}

func (f *fakeReader) Close() error   { return nil }
func (f *fakeReader) Volume() string { return f.volume }

func newTestRunner(t *testing.T, reader *fakeReader) (*Runner, hottier.Store) {
	t.Helper()
	coll := collector.New(entity.New(), reader)
	scorer := scoring.New()
	hot := hottier.NewMemoryStore()
	cons := consolidator.New(hot, nil)

	r := New(Options{
		Volumes:  []string{reader.volume},
		Interval: time.Hour,
		LockDir:  t.TempDir(),
	}, coll, scorer, hot, cons, nil)
	return r, hot
}

func TestRunCycleStoresCollectedActivitiesInHotTier(t *testing.T) {
	now := time.Now().UTC()
	reader := &fakeReader{
		volume: "C:",
		records: []journal.RawRecord{
			{ReferenceNumber: 1, Timestamp: now, FilePath: `C:\a.txt`, FileName: "a.txt", ReasonBits: []string{"FILE_CREATE"}, USN: 1},
		},
		nextUSN: 2,
	}
	r, hot := newTestRunner(t, reader)

	r.runCycle(context.Background())

	assert.Equal(t, 1, hot.Count(context.Background()))
}

func TestRunCycleDispatchesBatchStoredEvent(t *testing.T) {
	now := time.Now().UTC()
	reader := &fakeReader{
		volume: "C:",
		records: []journal.RawRecord{
			{ReferenceNumber: 1, Timestamp: now, FilePath: `C:\a.txt`, FileName: "a.txt", ReasonBits: []string{"FILE_CREATE"}, USN: 1},
		},
		nextUSN: 2,
	}
	r, _ := newTestRunner(t, reader)

	bus := eventbus.New()
	var seen []eventbus.EventType
	bus.Register(&captureHandler{types: []eventbus.EventType{eventbus.EventBatchCollected, eventbus.EventBatchStored}, out: &seen})
	r.SetBus(bus)

	r.runCycle(context.Background())

	assert.Contains(t, seen, eventbus.EventBatchCollected)
	assert.Contains(t, seen, eventbus.EventBatchStored)
}

func TestAcquireVolumeLocksRejectsDoubleReader(t *testing.T) {
	reader := &fakeReader{volume: "C:", nextUSN: 1}
	r, _ := newTestRunner(t, reader)

	require.NoError(t, r.acquireVolumeLocks())
	defer r.releaseVolumeLocks()

	r2, _ := newTestRunner(t, reader)
	r2.opts.LockDir = r.opts.LockDir
	err := r2.acquireVolumeLocks()
	assert.Error(t, err)
}

func TestRecordCycleErrorResetsCollectorAtThreshold(t *testing.T) {
	reader := &fakeReader{volume: "C:", nextUSN: 1}
	r, _ := newTestRunner(t, reader)
	r.opts.AutoReset = true
	r.opts.ErrorThreshold = 2

	r.recordCycleError()
	assert.Equal(t, 1, r.consecutiveErrors)
	r.recordCycleError()
	assert.Equal(t, 0, r.consecutiveErrors)
}

type captureHandler struct {
	types []eventbus.EventType
	out   *[]eventbus.EventType
}

func (h *captureHandler) ID() string                   { return "capture" }
func (h *captureHandler) Handles() []eventbus.EventType { return h.types }
func (h *captureHandler) Priority() int                { return 0 }
func (h *captureHandler) Handle(_ context.Context, e *eventbus.Event, _ *eventbus.Result) error {
	*h.out = append(*h.out, e.Type)
	return nil
}
