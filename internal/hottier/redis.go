package hottier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corvid-io/actmem/internal/types"
)

const (
	defaultNamespace = "actmem"
)

// RedisOption configures a Redis-backed Store.
type RedisOption func(*redisStore)

// WithNamespace sets the key namespace prefix for Redis keys.
func WithNamespace(ns string) RedisOption {
	return func(s *redisStore) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

// redisStore implements Store using Redis: each TierRecord is stored as a
// JSON value under its activity_id key with a matching Redis TTL, an index
// set tracks known ids, and a sorted set keyed by expiry unix-seconds lets
// ScanExpiring use ZRANGEBYSCORE instead of a full collection walk.
type redisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	now       func() time.Time
	closed    atomic.Bool
}

// NewRedisStore creates a Redis-backed hot tier Store. redisURL is a
// standard redis:// connection string.
func NewRedisStore(redisURL string, opts ...Option) (Store, error) {
	return NewRedisStoreWithOptions(redisURL, nil, opts...)
}

// NewRedisStoreWithOptions additionally accepts RedisOption values (e.g.
// WithNamespace) alongside the common hottier.Option set.
func NewRedisStoreWithOptions(redisURL string, redisOpts []RedisOption, opts ...Option) (Store, error) {
	o := newOptions(opts...)

	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(parsed)

	s := &redisStore{
		client:    client,
		namespace: defaultNamespace,
		ttl:       o.ttl,
		now:       o.now,
	}
	for _, opt := range redisOpts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return s, nil
}

func (s *redisStore) recordKey(id string) string { return s.namespace + ":activity:" + id }
func (s *redisStore) indexKey() string            { return s.namespace + ":activity:index" }
func (s *redisStore) expiryKey() string            { return s.namespace + ":activity:expiry" }

func (s *redisStore) StoreActivities(ctx context.Context, batch []*types.Activity) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	now := s.now().UTC()
	var ids []string
	for _, a := range batch {
		if a == nil || a.ActivityID == "" {
			continue
		}

		exists, err := s.client.Exists(ctx, s.recordKey(a.ActivityID)).Result()
		if err != nil {
			continue
		}
		if exists > 0 {
			ids = append(ids, a.ActivityID)
			continue
		}

		record := toTierRecord(a, now, s.ttl)
		data, err := json.Marshal(record)
		if err != nil {
			continue
		}

		// The key expires with the record (timestamp + ttl), not ttl after
		// insertion.
		keyTTL := record.ExpiresAt.Sub(now)
		if keyTTL <= 0 {
			keyTTL = time.Millisecond
		}

		pipe := s.client.Pipeline()
		pipe.Set(ctx, s.recordKey(a.ActivityID), data, keyTTL)
		pipe.SAdd(ctx, s.indexKey(), a.ActivityID)
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(record.ExpiresAt.Unix()), Member: a.ActivityID})
		if _, err := pipe.Exec(ctx); err != nil {
			continue
		}
		ids = append(ids, a.ActivityID)
	}
	return ids, nil
}

func (s *redisStore) loadAll(ctx context.Context) ([]*types.TierRecord, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching records: %w", err)
	}

	var out []*types.TierRecord
	var expired []interface{}
	for i, v := range values {
		if v == nil {
			expired = append(expired, ids[i])
			continue
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r types.TierRecord
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	if len(expired) > 0 {
		s.client.SRem(ctx, s.indexKey(), expired...)
		s.client.ZRem(ctx, s.expiryKey(), expired...)
	}
	return out, nil
}

func (s *redisStore) GetRecent(ctx context.Context, hours int, limit int) ([]*types.Activity, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	var matched []*types.Activity
	for _, r := range all {
		if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			continue
		}
		if r.Timestamp.Before(cutoff) {
			continue
		}
		matched = append(matched, r.Activity.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *redisStore) GetStatistics(ctx context.Context) (types.Statistics, error) {
	if s.closed.Load() {
		return types.Statistics{}, ErrClosed
	}
	all, err := s.loadAll(ctx)
	if err != nil {
		return types.Statistics{}, err
	}
	return bucketStatistics(all, s.now().UTC()), nil
}

func (s *redisStore) ScanExpiring(ctx context.Context, within time.Duration) ([]*types.TierRecord, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	now := s.now().UTC()
	horizon := now.Add(within)

	ids, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", now.Unix()),
		Max: fmt.Sprintf("%d", horizon.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scanning expiry set: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching expiring records: %w", err)
	}

	var out []*types.TierRecord
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r types.TierRecord
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

func (s *redisStore) DeleteActivities(ctx context.Context, activityIDs []string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(activityIDs) == 0 {
		return nil
	}

	keys := make([]string, len(activityIDs))
	members := make([]interface{}, len(activityIDs))
	for i, id := range activityIDs {
		keys[i] = s.recordKey(id)
		members[i] = id
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, s.indexKey(), members...)
	pipe.ZRem(ctx, s.expiryKey(), members...)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Count(ctx context.Context) int {
	if s.closed.Load() {
		return 0
	}
	n, err := s.client.ZCount(ctx, s.expiryKey(), fmt.Sprintf("%d", s.now().UTC().Unix()), "+inf").Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (s *redisStore) Close() error {
	s.closed.Store(true)
	return s.client.Close()
}
