package consolidator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-io/actmem/internal/hottier"
	"github.com/corvid-io/actmem/internal/types"
)

// fakeWarmCold is an in-memory stand-in for the sqlite-backed WarmColdStore.
type fakeWarmCold struct {
	byTier map[types.Tier]map[string]*types.TierRecord // tier -> activity_id -> record
}

func newFakeWarmCold() *fakeWarmCold {
	return &fakeWarmCold{byTier: map[types.Tier]map[string]*types.TierRecord{
		types.TierWarm: {},
		types.TierCold: {},
	}}
}

func (f *fakeWarmCold) Insert(ctx context.Context, tier types.Tier, records []*types.TierRecord) error {
	for _, r := range records {
		f.byTier[tier][r.ActivityID] = r
	}
	return nil
}

func (f *fakeWarmCold) GetByEntity(ctx context.Context, tier types.Tier, entityID string) ([]*types.TierRecord, error) {
	var out []*types.TierRecord
	for _, r := range f.byTier[tier] {
		if r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeWarmCold) Delete(ctx context.Context, tier types.Tier, activityIDs []string) error {
	for _, id := range activityIDs {
		delete(f.byTier[tier], id)
	}
	return nil
}

func (f *fakeWarmCold) ListEntityIDs(ctx context.Context, tier types.Tier) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range f.byTier[tier] {
		if _, ok := seen[r.EntityID]; !ok {
			seen[r.EntityID] = struct{}{}
			ids = append(ids, r.EntityID)
		}
	}
	return ids, nil
}

func newHotActivity(id, entityID string, at time.Time, score float64) *types.Activity {
	return &types.Activity{
		ActivityID:      id,
		EntityID:        entityID,
		Timestamp:       at,
		ActivityType:    types.ActivityModify,
		FilePath:        `C:\` + id + ".txt",
		Volume:          "C:",
		ImportanceScore: score,
	}
}

func TestRunHotToWarmPromotesHighImportanceGroup(t *testing.T) {
	now := time.Now().UTC()
	// Default 4-day TTL; timestamps placed so expiry lands just inside the
	// scan window, as it would near the real TTL boundary, while age (~95h)
	// comfortably clears should_consolidate's sensory->short_term threshold.
	hot := hottier.NewMemoryStore(hottier.WithTTL(hottier.DefaultTTL), hottier.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	nearExpiry := now.Add(-hottier.DefaultTTL + 30*time.Minute)
	_, err := hot.StoreActivities(ctx, []*types.Activity{
		newHotActivity("a1", "e1", nearExpiry, 0.9),
		newHotActivity("a2", "e1", nearExpiry, 0.8),
	})
	require.NoError(t, err)

	warmCold := newFakeWarmCold()
	c := New(hot, warmCold, WithScanWindow(2*time.Hour), WithClock(func() time.Time { return now }))

	result, err := c.RunHotToWarm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PromotedToWarm)
	assert.Len(t, warmCold.byTier[types.TierWarm], 1)
	assert.Equal(t, 0, hot.Count(ctx), "promoted hot records must be deleted")
}

func TestRunHotToWarmLeavesLowImportanceGroupAlone(t *testing.T) {
	now := time.Now().UTC()
	hot := hottier.NewMemoryStore(hottier.WithTTL(hottier.DefaultTTL), hottier.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	// Also near expiry (so it is scanned at all), but importance is too
	// low to pass should_consolidate regardless of age.
	nearExpiry := now.Add(-hottier.DefaultTTL + 30*time.Minute)
	_, err := hot.StoreActivities(ctx, []*types.Activity{newHotActivity("a1", "e1", nearExpiry, 0.05)})
	require.NoError(t, err)

	warmCold := newFakeWarmCold()
	c := New(hot, warmCold, WithScanWindow(2*time.Hour), WithClock(func() time.Time { return now }))

	result, err := c.RunHotToWarm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.PromotedToWarm)
	assert.Equal(t, 1, hot.Count(ctx), "low-importance group must survive until TTL expiry, not be promoted")
}

func TestRunWarmToColdPromotesAgedHighImportanceEntity(t *testing.T) {
	now := time.Now().UTC()
	hot := hottier.NewMemoryStore(hottier.WithClock(func() time.Time { return now }))
	warmCold := newFakeWarmCold()

	warmCold.byTier[types.TierWarm]["w1"] = &types.TierRecord{
		Activity: types.Activity{
			ActivityID:      "w1",
			EntityID:        "e1",
			Timestamp:       now.Add(-200 * time.Hour),
			ImportanceScore: 0.9,
			FilePath:        `C:\w1.txt`,
		},
		InsertedAt: now.Add(-200 * time.Hour),
	}

	c := New(hot, warmCold, WithClock(func() time.Time { return now }))
	result, err := c.RunWarmToCold(context.Background(), []string{"e1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PromotedToCold)
	assert.Empty(t, warmCold.byTier[types.TierWarm])
	assert.Len(t, warmCold.byTier[types.TierCold], 1)
}

func TestWarmEntityIDsListsDistinctEntities(t *testing.T) {
	now := time.Now().UTC()
	hot := hottier.NewMemoryStore(hottier.WithClock(func() time.Time { return now }))
	warmCold := newFakeWarmCold()
	warmCold.byTier[types.TierWarm]["w1"] = &types.TierRecord{Activity: types.Activity{ActivityID: "w1", EntityID: "e1"}}
	warmCold.byTier[types.TierWarm]["w2"] = &types.TierRecord{Activity: types.Activity{ActivityID: "w2", EntityID: "e1"}}
	warmCold.byTier[types.TierWarm]["w3"] = &types.TierRecord{Activity: types.Activity{ActivityID: "w3", EntityID: "e2"}}

	c := New(hot, warmCold, WithClock(func() time.Time { return now }))
	ids, err := c.WarmEntityIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1", "e2"}, ids)
}
