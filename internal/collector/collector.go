// Package collector implements the Activity Collector (C2): normalizes raw
// journal records into Activity values, tracks per-volume resume cursors,
// and groups records into batches.
package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/corvid-io/actmem/internal/entity"
	"github.com/corvid-io/actmem/internal/idgen"
	"github.com/corvid-io/actmem/internal/journal"
	"github.com/corvid-io/actmem/internal/types"
)

// Batch is one cycle's worth of normalized activities plus the Reader
// cursors to persist once the batch is durably handed off.
type Batch struct {
	Activities []*types.Activity
	Cursors    map[string]types.Cursor // volume -> cursor after this batch
}

// Collector pulls raw records from one or more journal.Readers, normalizes
// them into Activities via the fixed reason-bit mapping table, resolves
// entity identity through an entity.Resolver, and groups the result into a
// Batch. It owns the in-memory resume cursor for each configured volume.
type Collector struct {
	mu       sync.Mutex
	readers  []journal.Reader
	cursors  map[string]uint64
	resolver *entity.Resolver
	maxBatch int
}

// New creates a Collector over the given readers, one per volume.
func New(resolver *entity.Resolver, readers ...journal.Reader) *Collector {
	return &Collector{
		readers:  readers,
		cursors:  make(map[string]uint64),
		resolver: resolver,
		maxBatch: 1000,
	}
}

// ResetState discards in-memory cursors, used by the Runner's auto-reset
// policy (spec §4.2, §4.7).
func (c *Collector) ResetState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors = make(map[string]uint64)
}

// Cursors returns a snapshot of the per-volume resume cursors, for callers
// persisting them to the cursor state file (spec §6) across restarts.
func (c *Collector) Cursors() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.cursors))
	for k, v := range c.cursors {
		out[k] = v
	}
	return out
}

// SeedCursors primes the in-memory cursors from a previously persisted
// snapshot, used at startup when the cursor state file option is enabled.
func (c *Collector) SeedCursors(cursors map[string]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range cursors {
		c.cursors[k] = v
	}
}

// Collect pulls one batch from each configured Reader, bounded by
// cycleDeadline, normalizes the raw records, and returns the combined
// Batch. A per-Reader read failure does not abort the whole cycle — it is
// skipped and its volume simply produces no activities this cycle (the
// Reader's own counters record the failure; see spec §7 "Transient I/O").
func (c *Collector) Collect(ctx context.Context, cycleDeadline time.Time) (*Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := &Batch{Cursors: make(map[string]types.Cursor)}

	for _, r := range c.readers {
		if time.Now().After(cycleDeadline) {
			break
		}
		volume := r.Volume()

		meta, err := retryRead(ctx, cycleDeadline, func() (journal.Metadata, error) { return r.QueryMetadata(ctx) })
		if err != nil {
			continue
		}

		cursor := c.cursors[volume]
		if cursor == 0 {
			cursor = meta.FirstUSN
		}

		type readResult struct {
			raw  []journal.RawRecord
			next uint64
		}
		result, err := retryRead(ctx, cycleDeadline, func() (readResult, error) {
			raw, next, err := r.ReadBatch(ctx, cursor, c.maxBatch)
			return readResult{raw: raw, next: next}, err
		})
		if err != nil {
			continue
		}
		raw, next := result.raw, result.next
		c.cursors[volume] = next
		batch.Cursors[volume] = types.Cursor{VolumeID: volume, JournalID: meta.JournalID, NextUSN: next}

		activities := c.normalize(volume, raw)
		batch.Activities = append(batch.Activities, activities...)
	}

	return batch, nil
}

// retryRead retries a Reader call against transient errors (spec §7
// "Transient I/O") with exponential backoff, bounded so a single volume's
// retries can never consume more than what remains of the cycle deadline.
// Permanent errors (unsupported volume, permission denied, journal absent)
// fail immediately rather than retrying.
func retryRead[T any](ctx context.Context, cycleDeadline time.Time, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 25 * time.Millisecond
	bo.MaxElapsedTime = time.Until(cycleDeadline)

	var result T
	err := backoff.Retry(func() error {
		var opErr error
		result, opErr = op()
		if opErr != nil && !isTransient(opErr) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}, backoff.WithContext(bo, ctx))

	return result, err
}

// isTransient reports whether err is recoverable by retrying, per the §7
// error taxonomy. Unsupported/denied/absent journals won't change within a
// cycle's lifetime, so retrying them would only waste the cycle budget.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, journal.ErrUnsupportedVolume),
		errors.Is(err, journal.ErrPermissionDenied),
		errors.Is(err, journal.ErrJournalAbsent):
		return false
	default:
		return true
	}
}

// pendingRename tracks the half of a rename pair seen so far within one
// normalize() call, keyed by reference number.
type pendingRename struct {
	activity *types.Activity
	oldName  string
	newName  string
}

// normalize converts raw records for one volume into Activities, applying
// the fixed reason-bit -> activity_type mapping (spec §4.2) and merging
// OLD/NEW rename halves that appear in the same batch into one rename
// Activity.
func (c *Collector) normalize(volume string, raw []journal.RawRecord) []*types.Activity {
	renames := make(map[uint64]*pendingRename)
	var out []*types.Activity

	for _, rec := range raw {
		activityType, isOld, isNew := classifyReasons(rec.ReasonBits)

		if isOld || isNew {
			pending, exists := renames[rec.ReferenceNumber]
			if !exists {
				pending = &pendingRename{}
				renames[rec.ReferenceNumber] = pending
			}
			if isOld {
				pending.oldName = rec.FileName
			}
			if isNew {
				pending.newName = rec.FileName
			}

			switch {
			case pending.activity == nil && isOld:
				// OLD half seen first, no NEW yet: register it as an orphan
				// so a NEW half arriving in a later batch can still match it
				// via the sliding-window basename check (spec §4.6).
				pending.activity = c.toActivity(volume, rec, types.ActivityRename)
				entityRec := c.resolver.ResolveOrphanedOld(volume, rec.ReferenceNumber, rec.FilePath, rec.Timestamp)
				pending.activity.EntityID = entityRec.EntityID
			case pending.activity == nil && isNew:
				// NEW half seen with no OLD half for this reference number:
				// the same-reference-number link is unknown, so fall back
				// to the probable-rename basename match instead of treating
				// this as a same-path "rename".
				pending.activity = c.toActivity(volume, rec, types.ActivityRename)
				entityRec := c.resolver.ResolveProbableRename(volume, rec.ReferenceNumber, rec.FilePath, rec.Timestamp)
				pending.activity.EntityID = entityRec.EntityID
			case isNew:
				// OLD half already pending for this reference number: the
				// canonical same-reference-number rename.
				entityRec := c.resolver.ResolveRename(volume, rec.ReferenceNumber, pending.activity.FilePath, rec.FilePath, rec.Timestamp)
				pending.activity.EntityID = entityRec.EntityID
				pending.activity.FilePath = rec.FilePath
				pending.activity.FileName = rec.FileName
			}

			if pending.oldName != "" && pending.newName != "" {
				pending.activity.Attributes["old_name"] = pending.oldName
				pending.activity.Attributes["new_name"] = pending.newName
				out = append(out, pending.activity)
				delete(renames, rec.ReferenceNumber)
			}
			continue
		}

		a := c.toActivity(volume, rec, activityType)
		entityRec := c.resolver.Observe(volume, rec.ReferenceNumber, rec.FilePath)
		a.EntityID = entityRec.EntityID
		out = append(out, a)
	}

	// Any rename half whose partner did not arrive in this batch (OLD or
	// NEW) still surfaces as a rename record for the path it was seen at,
	// rather than being silently dropped; old_name/new_name are set only on
	// completed pairs, so such a record carries neither.
	for _, pending := range renames {
		if pending.activity != nil {
			out = append(out, pending.activity)
		}
	}

	return out
}

func (c *Collector) toActivity(volume string, rec journal.RawRecord, activityType types.ActivityType) *types.Activity {
	return &types.Activity{
		ActivityID:   idgen.GenerateActivityID(volume, rec.ReferenceNumber, rec.USN),
		Timestamp:    rec.Timestamp.UTC(),
		ActivityType: activityType,
		FilePath:     rec.FilePath,
		FileName:     rec.FileName,
		IsDirectory:  rec.IsDirectory,
		FileSize:     rec.FileSize,
		Volume:       volume,
		Attributes:   map[string]string{},
	}
}

// reasonMapping is the fixed table from spec §4.2.
var reasonMapping = map[string]types.ActivityType{
	"FILE_CREATE":       types.ActivityCreate,
	"FILE_DELETE":       types.ActivityDelete,
	"DATA_OVERWRITE":    types.ActivityModify,
	"DATA_EXTEND":       types.ActivityModify,
	"DATA_TRUNCATION":   types.ActivityModify,
	"SECURITY_CHANGE":   types.ActivitySecurityChange,
	"BASIC_INFO_CHANGE": types.ActivityInfoChange,
	"CLOSE":             types.ActivityClose,
}

// classifyReasons maps a record's reason bits to an activity_type per the
// fixed table, reporting separately whether a rename-old or rename-new bit
// is present so the caller can pair them within a batch.
func classifyReasons(bits []string) (activityType types.ActivityType, isOld bool, isNew bool) {
	if len(bits) == 0 {
		return types.ActivityUnknown, false, false
	}

	for _, b := range bits {
		switch b {
		case "RENAME_OLD_NAME":
			isOld = true
		case "RENAME_NEW_NAME":
			isNew = true
		}
	}
	if isOld || isNew {
		return types.ActivityRename, isOld, isNew
	}

	// CLOSE only counts if no other, more specific reason is present.
	onlyClose := true
	for _, b := range bits {
		if b != "CLOSE" {
			onlyClose = false
			break
		}
	}
	if onlyClose {
		return types.ActivityClose, false, false
	}

	for _, b := range bits {
		if t, ok := reasonMapping[b]; ok && t != types.ActivityClose {
			return t, false, false
		}
	}
	return types.ActivityUnknown, false, false
}
