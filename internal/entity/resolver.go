// Package entity implements the Entity Resolver (C6): maintains a stable
// entity_id per file across renames and moves, keyed by (volume,
// file_reference_number).
package entity

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvid-io/actmem/internal/types"
)

// DefaultRenameWindow is how far back the resolver looks for a probable
// rename match when only the NEW half of a rename pair is observed.
const DefaultRenameWindow = 60 * time.Second

type key struct {
	volume string
	ref    uint64
}

// orphanedOld records an OLD-name sighting whose matching NEW half has not
// yet (or may never) arrive, kept around for the sliding-window match.
type orphanedOld struct {
	entityID string
	basename string
	seenAt   time.Time
}

// Resolver maps (volume, file_reference_number) to a stable entity_id and
// tracks rename history. Safe for concurrent use.
type Resolver struct {
	mu           sync.RWMutex
	byRef        map[key]*types.Entity
	renameWindow time.Duration
	orphans      []orphanedOld
	now          func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRenameWindow overrides the sliding window used to match an orphaned
// OLD-name sighting against a later NEW-name sighting.
func WithRenameWindow(d time.Duration) Option {
	return func(r *Resolver) { r.renameWindow = d }
}

// WithClock overrides the resolver's clock; used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates an empty Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		byRef:        make(map[key]*types.Entity),
		renameWindow: DefaultRenameWindow,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe resolves the entity_id for a sighting of (volume, referenceNumber)
// at path, creating a new Entity on first sighting. It does not itself
// decide rename semantics — see ResolveRename for the OLD/NEW pairing case.
func (r *Resolver) Observe(volume string, referenceNumber uint64, path string) *types.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observeLocked(volume, referenceNumber, path)
}

func (r *Resolver) observeLocked(volume string, referenceNumber uint64, path string) *types.Entity {
	k := key{volume: volume, ref: referenceNumber}
	if e, ok := r.byRef[k]; ok {
		return e
	}
	now := r.now().UTC()
	e := &types.Entity{
		EntityID:            uuid.NewString(),
		Path:                path,
		FileReferenceNumber: referenceNumber,
		Volume:              volume,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	r.byRef[k] = e
	return e
}

// ResolveRename applies a rename event where both the OLD and NEW reference
// numbers are known and equal (the common case: a rename keeps the same
// file reference number). The entity's path is updated to newPath and
// oldPath is appended to prior_paths with its validity window; entity_id
// is unchanged.
func (r *Resolver) ResolveRename(volume string, referenceNumber uint64, oldPath, newPath string, at time.Time) *types.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.observeLocked(volume, referenceNumber, oldPath)
	validFrom := e.UpdatedAt
	e.PriorPaths = append(e.PriorPaths, types.PriorPath{
		Path:      oldPath,
		ValidFrom: validFrom,
		ValidTo:   at.UTC(),
	})
	e.Path = newPath
	e.UpdatedAt = at.UTC()
	return e
}

// ResolveOrphanedOld records an OLD-name sighting whose NEW half is not yet
// known (e.g. split across batches), so a later ResolveProbableRename call
// can still attach it.
func (r *Resolver) ResolveOrphanedOld(volume string, referenceNumber uint64, oldPath string, at time.Time) *types.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.observeLocked(volume, referenceNumber, oldPath)
	r.orphans = append(r.orphans, orphanedOld{
		entityID: e.EntityID,
		basename: filepath.Base(oldPath),
		seenAt:   at.UTC(),
	})
	return e
}

// ResolveProbableRename handles the case where a NEW-name sighting arrives
// with no matching OLD reference number (the OLD record was lost — a
// different reference number, or never captured). The NEW path's reference
// number goes through the same lookup as Observe: an unseen number gets a
// new entity, a known one returns its existing entity. If an orphaned OLD
// sighting with the same basename was seen within the rename window, that
// entity's prior_paths records the
// probable source path so downstream consumers can still link the two,
// even though entity_id does not carry over (identity via reference number
// was lost, so a fresh identity is the conservative choice).
func (r *Resolver) ResolveProbableRename(volume string, newReferenceNumber uint64, newPath string, at time.Time) *types.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.observeLocked(volume, newReferenceNumber, newPath)
	basename := filepath.Base(newPath)
	at = at.UTC()

	var kept []orphanedOld
	matched := false
	for _, o := range r.orphans {
		if matched || at.Sub(o.seenAt) > r.renameWindow || strings.EqualFold(o.basename, "") {
			kept = append(kept, o)
			continue
		}
		if strings.EqualFold(o.basename, basename) {
			e.PriorPaths = append(e.PriorPaths, types.PriorPath{
				Path:      "probable-rename-of:" + o.entityID,
				ValidFrom: o.seenAt,
				ValidTo:   at,
			})
			matched = true
			continue
		}
		kept = append(kept, o)
	}
	r.orphans = kept
	return e
}

// Lookup returns the entity currently associated with (volume,
// referenceNumber), or nil if none has been observed.
func (r *Resolver) Lookup(volume string, referenceNumber uint64) *types.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byRef[key{volume: volume, ref: referenceNumber}]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}
