// Package migrations holds the numbered, idempotent schema migrations for
// the warm/cold tier store, applied in ascending order at startup.
package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateInitSchema creates the tier_records table and its indices if they
// do not already exist. Safe to run on every startup.
func MigrateInitSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS tier_records (
	activity_id       TEXT NOT NULL PRIMARY KEY,
	entity_id         TEXT NOT NULL,
	tier              TEXT NOT NULL,
	timestamp         TEXT NOT NULL,
	activity_type     TEXT NOT NULL,
	file_path         TEXT NOT NULL,
	file_name         TEXT NOT NULL,
	is_directory      INTEGER NOT NULL DEFAULT 0,
	file_size         INTEGER,
	volume            TEXT NOT NULL,
	attributes        TEXT,
	importance_score  REAL NOT NULL DEFAULT 0,
	access_count      INTEGER NOT NULL DEFAULT 0,
	search_hits       INTEGER NOT NULL DEFAULT 0,
	version           INTEGER NOT NULL DEFAULT 1,
	inserted_at       TEXT NOT NULL,
	back_references   TEXT
)`)
	if err != nil {
		return fmt.Errorf("creating tier_records table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_tier_records_entity ON tier_records(entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tier_records_tier ON tier_records(tier)`,
		`CREATE INDEX IF NOT EXISTS idx_tier_records_timestamp ON tier_records(timestamp)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}
