package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSWatchReaderOrdersRecordsByUSN(t *testing.T) {
	dir := t.TempDir()
	r := NewFSWatchReader("testvol", dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, r.Open(ctx))
	defer r.Close()

	f := filepath.Join(dir, "report.docx")
	require.NoError(t, os.WriteFile(f, []byte("hello"), 0o600))
	require.NoError(t, os.WriteFile(f, []byte("hello world"), 0o600))

	require.Eventually(t, func() bool {
		meta, err := r.QueryMetadata(ctx)
		return err == nil && meta.NextUSN >= 1
	}, 2*time.Second, 10*time.Millisecond)

	batch, next, err := r.ReadBatch(ctx, 0, 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, next, uint64(1))

	for i := 1; i < len(batch); i++ {
		assert.LessOrEqual(t, batch[i-1].USN, batch[i].USN, "records must be returned in ascending journal order")
	}
}

func TestFSWatchReaderNextUSNNeverRegresses(t *testing.T) {
	dir := t.TempDir()
	r := NewFSWatchReader("testvol", dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Open(ctx))
	defer r.Close()

	_, next1, err := r.ReadBatch(ctx, 0, 10)
	require.NoError(t, err)

	f := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o600))
	require.Eventually(t, func() bool {
		meta, _ := r.QueryMetadata(ctx)
		return meta.NextUSN >= 1
	}, 2*time.Second, 10*time.Millisecond)

	_, next2, err := r.ReadBatch(ctx, next1, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, next2, next1)
}
