package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-io/actmem/internal/entity"
	"github.com/corvid-io/actmem/internal/journal"
)

// fakeReader is a minimal in-memory journal.Reader for exercising the
// Collector without depending on fsnotify or native platform journals.
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

func (f *fakeReader) Close() error    { return nil }
func (f *fakeReader) Volume() string  { return f.volume }

func TestCollectMapsReasonBitsToActivityType(t *testing.T) {
	now := time.Now().UTC()
	r := &fakeReader{
		volume: "C:",
		records: []journal.RawRecord{
			{ReferenceNumber: 1, Timestamp: now, FilePath: `C:\a.txt`, FileName: "a.txt", ReasonBits: []string{"FILE_CREATE"}, USN: 1},
			{ReferenceNumber: 2, Timestamp: now, FilePath: `C:\b.txt`, FileName: "b.txt", ReasonBits: []string{"FILE_DELETE"}, USN: 2},
			{ReferenceNumber: 3, Timestamp: now, FilePath: `C:\c.txt`, FileName: "c.txt", ReasonBits: []string{"DATA_EXTEND"}, USN: 3},
			{ReferenceNumber: 4, Timestamp: now, FilePath: `C:\d.txt`, FileName: "d.txt", ReasonBits: []string{"CLOSE"}, USN: 4},
		},
		nextUSN: 5,
	}

	c := New(entity.New(), r)
	batch, err := c.Collect(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, batch.Activities, 4)

	byPath := map[string]*struct {
		activityType string
	}{}
	for _, a := range batch.Activities {
		byPath[a.FilePath] = &struct{ activityType string }{string(a.ActivityType)}
	}
	assert.Equal(t, "create", byPath[`C:\a.txt`].activityType)
	assert.Equal(t, "delete", byPath[`C:\b.txt`].activityType)
	assert.Equal(t, "modify", byPath[`C:\c.txt`].activityType)
	assert.Equal(t, "close", byPath[`C:\d.txt`].activityType)
}

func TestCollectMergesRenamePairWithinBatch(t *testing.T) {
	now := time.Now().UTC()
	r := &fakeReader{
		volume: "C:",
		records: []journal.RawRecord{
			{ReferenceNumber: 10, Timestamp: now, FilePath: `C:\old.txt`, FileName: "old.txt", ReasonBits: []string{"RENAME_OLD_NAME"}, USN: 1},
			{ReferenceNumber: 10, Timestamp: now.Add(time.Millisecond), FilePath: `C:\new.txt`, FileName: "new.txt", ReasonBits: []string{"RENAME_NEW_NAME"}, USN: 2},
		},
		nextUSN: 3,
	}

	c := New(entity.New(), r)
	batch, err := c.Collect(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, batch.Activities, 1, "OLD/NEW halves for the same reference number must merge into one rename activity")

	a := batch.Activities[0]
	assert.Equal(t, "rename", string(a.ActivityType))
	assert.Equal(t, `C:\new.txt`, a.FilePath)
	assert.Equal(t, "old.txt", a.Attributes["old_name"])
	assert.Equal(t, "new.txt", a.Attributes["new_name"])
}

func TestCollectPreservesEntityIDAcrossRename(t *testing.T) {
	now := time.Now().UTC()
	r1 := &fakeReader{
		volume: "C:",
		records: []journal.RawRecord{
			{ReferenceNumber: 5, Timestamp: now, FilePath: `C:\first.txt`, FileName: "first.txt", ReasonBits: []string{"FILE_CREATE"}, USN: 1},
		},
		nextUSN: 2,
	}
	resolver := entity.New()
	c := New(resolver, r1)
	batch1, err := c.Collect(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, batch1.Activities, 1)
	originalEntityID := batch1.Activities[0].EntityID

	r2 := &fakeReader{
		volume: "C:",
		records: []journal.RawRecord{
			{ReferenceNumber: 5, Timestamp: now, FilePath: `C:\first.txt`, FileName: "first.txt", ReasonBits: []string{"RENAME_OLD_NAME"}, USN: 2},
			{ReferenceNumber: 5, Timestamp: now.Add(time.Millisecond), FilePath: `C:\second.txt`, FileName: "second.txt", ReasonBits: []string{"RENAME_NEW_NAME"}, USN: 3},
		},
		nextUSN: 4,
	}
	c2 := New(resolver, r2)
	batch2, err := c2.Collect(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, batch2.Activities, 1)
	assert.Equal(t, originalEntityID, batch2.Activities[0].EntityID, "rename must preserve entity_id")
}

func TestResetStateClearsCursors(t *testing.T) {
	r := &fakeReader{volume: "C:", nextUSN: 100}
	c := New(entity.New(), r)
	_, err := c.Collect(context.Background(), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, uint64(100), c.cursors["C:"])

	c.ResetState()
	assert.Empty(t, c.cursors)
}
