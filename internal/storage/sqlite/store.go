// Package sqlite implements the warm and cold tier persistence backing the
// Tier Consolidator (C5): a single `tier_records` table partitioned by a
// `tier` column, written through prepared statements in chunks of 1000
// records per insert, the chunk size ported from the reference uploader's
// bulk-insert batching.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/corvid-io/actmem/internal/types"
)

// insertChunkSize bounds how many records go into a single transaction,
// grounded on the reference uploader's chunked bulk-insert batching.
const insertChunkSize = 1000

// Store persists warm and cold TierRecords to a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert bulk-inserts records into the given tier, chunked at
// insertChunkSize records per transaction. A single bad record within a
// chunk does not abort the chunk's transaction; it is skipped.
func (s *Store) Insert(ctx context.Context, tier types.Tier, records []*types.TierRecord) error {
	for start := 0; start < len(records); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.insertChunk(ctx, tier, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertChunk(ctx context.Context, tier types.Tier, records []*types.TierRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO tier_records (
	activity_id, entity_id, tier, timestamp, activity_type, file_path, file_name,
	is_directory, file_size, volume, attributes, importance_score, access_count,
	search_hits, version, inserted_at, back_references
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(activity_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			continue
		}
		backRefs, err := json.Marshal(r.BackReferences)
		if err != nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			r.ActivityID, r.EntityID, string(tier), r.Timestamp.UTC().Format(time.RFC3339Nano),
			string(r.ActivityType), r.FilePath, r.FileName, r.IsDirectory, r.FileSize, r.Volume,
			string(attrs), r.ImportanceScore, r.AccessCount, r.SearchHits, r.Version,
			r.InsertedAt.UTC().Format(time.RFC3339Nano), string(backRefs),
		); err != nil {
			continue
		}
	}

	return tx.Commit()
}

// GetByEntity returns all records for a given entity_id within a tier,
// used by the Consolidator to merge an entity's warm history when
// promoting to cold.
func (s *Store) GetByEntity(ctx context.Context, tier types.Tier, entityID string) ([]*types.TierRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT activity_id, entity_id, timestamp, activity_type, file_path, file_name,
	is_directory, file_size, volume, attributes, importance_score, access_count,
	search_hits, version, inserted_at, back_references
FROM tier_records WHERE tier = ? AND entity_id = ?`, string(tier), entityID)
	if err != nil {
		return nil, fmt.Errorf("querying by entity: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListEntityIDs returns the distinct entity_ids with at least one record in
// the given tier, used by the Consolidator to find warm-tier candidates for
// its warm->cold pass (the warm store has no TTL-driven expiry queue of its
// own the way the hot tier's ScanExpiring does).
func (s *Store) ListEntityIDs(ctx context.Context, tier types.Tier) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT entity_id FROM tier_records WHERE tier = ?`, string(tier))
	if err != nil {
		return nil, fmt.Errorf("listing entity ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning entity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes records by activity_id from a tier.
func (s *Store) Delete(ctx context.Context, tier types.Tier, activityIDs []string) error {
	if len(activityIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM tier_records WHERE tier = ? AND activity_id = ?`)
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range activityIDs {
		if _, err := stmt.ExecContext(ctx, string(tier), id); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of records stored in a tier.
func (s *Store) Count(ctx context.Context, tier types.Tier) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tier_records WHERE tier = ?`, string(tier)).Scan(&n)
	return n, err
}

func scanRecords(rows *sql.Rows) ([]*types.TierRecord, error) {
	var out []*types.TierRecord
	for rows.Next() {
		var r types.TierRecord
		var ts, insertedAt, attrs, backRefs string
		var activityType string
		if err := rows.Scan(
			&r.ActivityID, &r.EntityID, &ts, &activityType, &r.FilePath, &r.FileName,
			&r.IsDirectory, &r.FileSize, &r.Volume, &attrs, &r.ImportanceScore, &r.AccessCount,
			&r.SearchHits, &r.Version, &insertedAt, &backRefs,
		); err != nil {
			return nil, fmt.Errorf("scanning tier record: %w", err)
		}
		r.ActivityType = types.ActivityType(activityType)
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			r.Timestamp = parsed
		}
		if parsed, err := time.Parse(time.RFC3339Nano, insertedAt); err == nil {
			r.InsertedAt = parsed
		}
		if attrs != "" {
			_ = json.Unmarshal([]byte(attrs), &r.Attributes)
		}
		if backRefs != "" {
			_ = json.Unmarshal([]byte(backRefs), &r.BackReferences)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
