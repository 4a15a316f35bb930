// Package consolidator implements the Tier Consolidator (C5): on a cadence
// separate from ingestion, it scans hot records nearing expiry, groups them
// by entity_id, and promotes groups that pass should_consolidate into a
// warm tier summary record, then repeats the pattern for warm->cold.
package consolidator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/corvid-io/actmem/internal/hottier"
	"github.com/corvid-io/actmem/internal/scoring"
	"github.com/corvid-io/actmem/internal/types"
)

// consolidatorTracer is the OTel tracer for per-entity promotion spans.
var consolidatorTracer = otel.Tracer("github.com/corvid-io/actmem/internal/consolidator")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Tier-transition names as understood by scoring.ShouldConsolidate; these
// are separate from types.Tier's hot/warm/cold storage labels because the
// scorer's transition table is keyed by the original memory-tier
// nomenclature (sensory/short_term/long_term/archival).
const (
	tierSensory   = "sensory"
	tierShortTerm = "short_term"
	tierLongTerm  = "long_term"
)

// DefaultScanWindow is how far into the future "nearing expiry" looks, by
// default matched to the default hourly cadence.
const DefaultScanWindow = time.Hour

// WarmColdStore is the persistence contract the Consolidator needs for the
// warm and cold tiers; internal/storage/sqlite.Store satisfies it.
type WarmColdStore interface {
	Insert(ctx context.Context, tier types.Tier, records []*types.TierRecord) error
	GetByEntity(ctx context.Context, tier types.Tier, entityID string) ([]*types.TierRecord, error)
	Delete(ctx context.Context, tier types.Tier, activityIDs []string) error
	ListEntityIDs(ctx context.Context, tier types.Tier) ([]string, error)
}

// Consolidator runs the hot->warm and warm->cold promotion passes.
type Consolidator struct {
	hot        hottier.Store
	warmCold   WarmColdStore
	scanWindow time.Duration
	now        func() time.Time
}

// Option configures a Consolidator.
type Option func(*Consolidator)

// WithScanWindow overrides how far into the future expiry is scanned.
func WithScanWindow(d time.Duration) Option {
	return func(c *Consolidator) {
		if d > 0 {
			c.scanWindow = d
		}
	}
}

// WithClock overrides the consolidator's clock; used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Consolidator) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Consolidator over a hot Store and a warm/cold Store.
func New(hot hottier.Store, warmCold WarmColdStore, opts ...Option) *Consolidator {
	c := &Consolidator{
		hot:        hot,
		warmCold:   warmCold,
		scanWindow: DefaultScanWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result summarizes one consolidation pass.
type Result struct {
	PromotedToWarm int
	PromotedToCold int
}

// RunHotToWarm scans hot records nearing expiry, groups by entity_id,
// promotes passing groups to a warm TierRecord, and deletes the source hot
// records. Groups that fail should_consolidate are left untouched and
// simply expire via TTL.
func (c *Consolidator) RunHotToWarm(ctx context.Context) (Result, error) {
	ctx, span := consolidatorTracer.Start(ctx, "actmem.consolidation.hot_to_warm",
		trace.WithAttributes(attribute.String("tier.from", tierSensory), attribute.String("tier.to", tierShortTerm)))
	defer span.End()

	expiring, err := c.hot.ScanExpiring(ctx, c.scanWindow)
	if err != nil {
		endSpan(span, err)
		return Result{}, fmt.Errorf("scanning hot tier: %w", err)
	}

	groups := groupByEntity(expiring)
	now := c.now().UTC()

	var promoted int
	for entityID, group := range groups {
		scores := make([]float64, len(group))
		for i, r := range group {
			scores[i] = r.ImportanceScore
		}
		combined := scoring.CombineImportanceScores(scores)
		age := now.Sub(oldestTimestamp(group)).Hours()

		if !scoring.ShouldConsolidate(combined, age, tierSensory, tierShortTerm) {
			continue
		}

		summary := summarize(entityID, group, combined, now)
		if err := c.warmCold.Insert(ctx, types.TierWarm, []*types.TierRecord{summary}); err != nil {
			endSpan(span, err)
			return Result{}, fmt.Errorf("inserting warm summary for %s: %w", entityID, err)
		}

		ids := make([]string, len(group))
		for i, r := range group {
			ids[i] = r.ActivityID
		}
		if err := c.hot.DeleteActivities(ctx, ids); err != nil {
			endSpan(span, err)
			return Result{}, fmt.Errorf("deleting promoted hot records for %s: %w", entityID, err)
		}
		promoted++
	}

	span.SetAttributes(attribute.Int("entities.scanned", len(groups)), attribute.Int("entities.promoted", promoted))
	endSpan(span, nil)
	return Result{PromotedToWarm: promoted}, nil
}

// WarmEntityIDs lists the entity_ids currently holding warm records, for the
// Runner to pass into RunWarmToCold on its own consolidation cadence.
func (c *Consolidator) WarmEntityIDs(ctx context.Context) ([]string, error) {
	ids, err := c.warmCold.ListEntityIDs(ctx, types.TierWarm)
	if err != nil {
		return nil, fmt.Errorf("listing warm entity ids: %w", err)
	}
	return ids, nil
}

// RunWarmToCold applies the same pattern one tier further: it is handed the
// candidate entity_ids whose warm records are due for re-evaluation (the
// Runner supplies these from its own cadence bookkeeping, since the warm
// store has no TTL-driven "expiring soon" notion of its own) and promotes
// passing entities to cold.
func (c *Consolidator) RunWarmToCold(ctx context.Context, entityIDs []string) (Result, error) {
	ctx, span := consolidatorTracer.Start(ctx, "actmem.consolidation.warm_to_cold",
		trace.WithAttributes(attribute.String("tier.from", tierShortTerm), attribute.String("tier.to", tierLongTerm),
			attribute.Int("entities.candidates", len(entityIDs))))
	defer span.End()

	now := c.now().UTC()
	var promoted int

	for _, entityID := range entityIDs {
		group, err := c.warmCold.GetByEntity(ctx, types.TierWarm, entityID)
		if err != nil {
			endSpan(span, err)
			return Result{}, fmt.Errorf("loading warm records for %s: %w", entityID, err)
		}
		if len(group) == 0 {
			continue
		}

		scores := make([]float64, len(group))
		for i, r := range group {
			scores[i] = r.ImportanceScore
		}
		combined := scoring.CombineImportanceScores(scores)
		age := now.Sub(oldestTimestamp(group)).Hours()

		if !scoring.ShouldConsolidate(combined, age, tierShortTerm, tierLongTerm) {
			continue
		}

		summary := summarize(entityID, group, combined, now)
		if err := c.warmCold.Insert(ctx, types.TierCold, []*types.TierRecord{summary}); err != nil {
			endSpan(span, err)
			return Result{}, fmt.Errorf("inserting cold summary for %s: %w", entityID, err)
		}

		ids := make([]string, len(group))
		for i, r := range group {
			ids[i] = r.ActivityID
		}
		if err := c.warmCold.Delete(ctx, types.TierWarm, ids); err != nil {
			endSpan(span, err)
			return Result{}, fmt.Errorf("deleting promoted warm records for %s: %w", entityID, err)
		}
		promoted++
	}

	span.SetAttributes(attribute.Int("entities.promoted", promoted))
	endSpan(span, nil)
	return Result{PromotedToCold: promoted}, nil
}

func groupByEntity(records []*types.TierRecord) map[string][]*types.TierRecord {
	groups := make(map[string][]*types.TierRecord)
	for _, r := range records {
		groups[r.EntityID] = append(groups[r.EntityID], r)
	}
	return groups
}

func oldestTimestamp(records []*types.TierRecord) time.Time {
	oldest := records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
	}
	return oldest
}

// summarize builds the promoted tier record per spec §4.5: the
// highest-importance source activity's attributes, the union of paths
// observed (a sorted JSON array under the "paths" attribute, its length
// under "paths_observed"), the aggregate access_count, and back_references
// listing every source activity_id.
func summarize(entityID string, group []*types.TierRecord, combinedScore float64, now time.Time) *types.TierRecord {
	sorted := make([]*types.TierRecord, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ImportanceScore > sorted[j].ImportanceScore })
	best := sorted[0]

	paths := make(map[string]struct{})
	var accessCount int64
	backRefs := make([]string, 0, len(group))
	for _, r := range group {
		paths[r.FilePath] = struct{}{}
		accessCount += r.AccessCount
		backRefs = append(backRefs, r.ActivityID)
	}
	pathList := make([]string, 0, len(paths))
	for p := range paths {
		pathList = append(pathList, p)
	}
	sort.Strings(pathList)

	attrs := make(map[string]string, len(best.Attributes)+2)
	for k, v := range best.Attributes {
		attrs[k] = v
	}
	pathsJSON, _ := json.Marshal(pathList)
	attrs["paths"] = string(pathsJSON)
	attrs["paths_observed"] = fmt.Sprintf("%d", len(pathList))

	return &types.TierRecord{
		Activity: types.Activity{
			ActivityID:      fmt.Sprintf("sum-%s-%d", entityID, now.UnixNano()),
			EntityID:        entityID,
			Timestamp:       best.Timestamp,
			ActivityType:    best.ActivityType,
			FilePath:        best.FilePath,
			FileName:        best.FileName,
			Volume:          best.Volume,
			Attributes:      attrs,
			ImportanceScore: combinedScore,
			AccessCount:     accessCount,
		},
		Version:        1,
		InsertedAt:     now,
		BackReferences: backRefs,
	}
}
