package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-io/actmem/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiers.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRecord(id, entityID string) *types.TierRecord {
	now := time.Now().UTC()
	return &types.TierRecord{
		Activity: types.Activity{
			ActivityID:   id,
			EntityID:     entityID,
			Timestamp:    now,
			ActivityType: types.ActivityModify,
			FilePath:     `C:\` + id + ".txt",
			FileName:     id + ".txt",
			Volume:       "C:",
		},
		Version:        1,
		InsertedAt:     now,
		BackReferences: []string{"src-" + id},
	}
}

func TestInsertAndGetByEntityRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []*types.TierRecord{newRecord("a1", "e1"), newRecord("a2", "e1"), newRecord("a3", "e2")}
	require.NoError(t, s.Insert(ctx, types.TierWarm, records))

	got, err := s.GetByEntity(ctx, types.TierWarm, "e1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	count, err := s.Count(ctx, types.TierWarm)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestInsertIsIdempotentByActivityID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	record := newRecord("dup1", "e1")

	require.NoError(t, s.Insert(ctx, types.TierWarm, []*types.TierRecord{record}))
	require.NoError(t, s.Insert(ctx, types.TierWarm, []*types.TierRecord{record}))

	count, err := s.Count(ctx, types.TierWarm)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, types.TierWarm, []*types.TierRecord{newRecord("del1", "e1")}))

	require.NoError(t, s.Delete(ctx, types.TierWarm, []string{"del1"}))

	count, err := s.Count(ctx, types.TierWarm)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestListEntityIDsReturnsDistinctEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, types.TierWarm, []*types.TierRecord{
		newRecord("a1", "e1"), newRecord("a2", "e1"), newRecord("a3", "e2"),
	}))

	ids, err := s.ListEntityIDs(ctx, types.TierWarm)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1", "e2"}, ids)
}

func TestTiersAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, types.TierWarm, []*types.TierRecord{newRecord("w1", "e1")}))
	require.NoError(t, s.Insert(ctx, types.TierCold, []*types.TierRecord{newRecord("c1", "e1")}))

	warmCount, err := s.Count(ctx, types.TierWarm)
	require.NoError(t, err)
	coldCount, err := s.Count(ctx, types.TierCold)
	require.NoError(t, err)
	assert.EqualValues(t, 1, warmCount)
	assert.EqualValues(t, 1, coldCount)
}
