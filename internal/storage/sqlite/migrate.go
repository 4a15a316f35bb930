package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/corvid-io/actmem/internal/storage/sqlite/migrations"
)

// migrationFuncs runs in order; new migrations are appended, never
// reordered or removed, mirroring the teacher's numbered-file convention.
var migrationFuncs = []func(*sql.DB) error{
	migrations.MigrateInitSchema,
}

func migrate(db *sql.DB) error {
	for i, m := range migrationFuncs {
		if err := m(db); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
