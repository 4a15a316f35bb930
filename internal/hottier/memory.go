package hottier

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvid-io/actmem/internal/types"
)

// memoryStore is the default in-memory Store implementation, used by tests
// and by cmd/activityd whenever no Redis URL is configured. It is not a
// fallback for a failed backend: when the Redis store fails to initialize,
// cmd/activityd exits with status 1.
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]*types.TierRecord
	ttl     time.Duration
	now     func() time.Time
	closed  atomic.Bool
}

// NewMemoryStore creates an in-memory hot tier Store.
func NewMemoryStore(opts ...Option) Store {
	o := newOptions(opts...)
	return &memoryStore{
		records: make(map[string]*types.TierRecord),
		ttl:     o.ttl,
		now:     o.now,
	}
}

func (s *memoryStore) StoreActivities(ctx context.Context, batch []*types.Activity) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var ids []string
	for _, a := range batch {
		if a == nil || a.ActivityID == "" {
			continue
		}
		if _, exists := s.records[a.ActivityID]; exists {
			ids = append(ids, a.ActivityID)
			continue
		}
		s.records[a.ActivityID] = toTierRecord(a, now, s.ttl)
		ids = append(ids, a.ActivityID)
	}
	return ids, nil
}

func (s *memoryStore) GetRecent(ctx context.Context, hours int, limit int) ([]*types.Activity, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	var matched []*types.Activity
	for _, r := range s.records {
		if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			continue
		}
		if r.Timestamp.Before(cutoff) {
			continue
		}
		matched = append(matched, r.Activity.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *memoryStore) GetStatistics(ctx context.Context) (types.Statistics, error) {
	if s.closed.Load() {
		return types.Statistics{}, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*types.TierRecord
	for _, r := range s.records {
		all = append(all, r)
	}
	return bucketStatistics(all, s.now().UTC()), nil
}

func (s *memoryStore) ScanExpiring(ctx context.Context, within time.Duration) ([]*types.TierRecord, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	horizon := now.Add(within)

	var out []*types.TierRecord
	for _, r := range s.records {
		if r.ExpiresAt == nil {
			continue
		}
		if r.ExpiresAt.After(now) && !r.ExpiresAt.After(horizon) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memoryStore) DeleteActivities(ctx context.Context, activityIDs []string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range activityIDs {
		delete(s.records, id)
	}
	return nil
}

func (s *memoryStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now().UTC()
	count := 0
	for _, r := range s.records {
		if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			continue
		}
		count++
	}
	return count
}

func (s *memoryStore) Close() error {
	s.closed.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*types.TierRecord)
	return nil
}
