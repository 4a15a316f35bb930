// Package hottier implements the Hot Tier Recorder (C4): the sole writer
// of the hot TierRecord collection, with a default TTL, idempotent
// insert-by-activity_id, and the statistics/query surface the rest of the
// pipeline reads from.
package hottier

import (
	"context"
	"time"

	"github.com/corvid-io/actmem/internal/types"
)

// DefaultTTL is the hot-tier expiry window a Store applies unless it is
// constructed with WithTTL (spec §4.4).
const DefaultTTL = 4 * 24 * time.Hour

// Store is the Hot Tier Recorder's public contract. Both the in-memory and
// Redis-backed implementations satisfy it so the Runner can switch backends
// without touching caller code (spec §4.4's registration-assigned
// collection name is orthogonal to which Store backs it).
type Store interface {
	// StoreActivities persists each activity as a TierRecord with
	// expiry = timestamp + ttl, returning the activity_ids that were
	// successfully written. A single bad record does not fail the batch;
	// re-inserting an activity_id that already exists is a no-op that
	// still reports the id as stored (idempotence, spec invariant 5).
	StoreActivities(ctx context.Context, batch []*types.Activity) ([]string, error)

	// GetRecent returns unexpired activities from the last `hours`,
	// most-recent-first, capped at limit.
	GetRecent(ctx context.Context, hours int, limit int) ([]*types.Activity, error)

	// GetStatistics summarizes the live (unexpired) collection.
	GetStatistics(ctx context.Context) (types.Statistics, error)

	// ScanExpiring returns unexpired hot records whose expiry falls within
	// the next `within` duration, grouped by nothing in particular — the
	// Consolidator does its own entity_id grouping over the result.
	ScanExpiring(ctx context.Context, within time.Duration) ([]*types.TierRecord, error)

	// DeleteActivities removes hot records by activity_id, used by the
	// Consolidator once a group has been promoted to warm.
	DeleteActivities(ctx context.Context, activityIDs []string) error

	// Count returns the number of live (unexpired) records.
	Count(ctx context.Context) int

	// Close releases backend resources.
	Close() error
}

// Option configures a Store at construction time.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

func newOptions(opts ...Option) *options {
	o := &options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTTL overrides the default hot-tier expiry window.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the store's clock; used by tests to exercise TTL
// expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func toTierRecord(a *types.Activity, now time.Time, ttl time.Duration) *types.TierRecord {
	expiry := a.Timestamp.Add(ttl)
	return &types.TierRecord{
		Activity:   *a.Clone(),
		Version:    1,
		InsertedAt: now,
		ExpiresAt:  &expiry,
	}
}

func bucketStatistics(records []*types.TierRecord, now time.Time) types.Statistics {
	stats := types.Statistics{
		ByType:       make(map[string]int64),
		ByImportance: make(map[string]int64),
		ByTime:       make(map[string]int64),
	}
	for _, r := range records {
		if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			continue
		}
		stats.TotalCount++
		stats.ByType[string(r.ActivityType)]++
		stats.ByImportance[types.ImportanceBucket(r.ImportanceScore)]++

		age := now.Sub(r.Timestamp)
		switch {
		case age <= time.Hour:
			stats.ByTime["last_hour"]++
		case age <= 24*time.Hour:
			stats.ByTime["last_day"]++
		case age <= 7*24*time.Hour:
			stats.ByTime["last_week"]++
		default:
			stats.ByTime["older"]++
		}
	}
	return stats
}
