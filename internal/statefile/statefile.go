// Package statefile persists the Collector's per-volume resume cursors
// across restarts (spec §6's "Cursor state file"), active only when the
// Runner's use_state_file option is set. Adapted from
// internal/configfile's load/save idiom: a single JSON file under the
// project's .actmem directory, missing-file-is-not-an-error on load.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the cursor state file's name under the project directory.
const FileName = "cursors.json"

// Path returns the cursor state file path under actmemDir.
func Path(actmemDir string) string {
	return filepath.Join(actmemDir, FileName)
}

// Load reads the persisted cursor snapshot, returning an empty map (not an
// error) if the file does not yet exist.
func Load(actmemDir string) (map[string]uint64, error) {
	data, err := os.ReadFile(Path(actmemDir)) // #nosec G304 - controlled path from caller
	if os.IsNotExist(err) {
		return map[string]uint64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cursors.json: %w", err)
	}

	var cursors map[string]uint64
	if err := json.Unmarshal(data, &cursors); err != nil {
		return nil, fmt.Errorf("parsing cursors.json: %w", err)
	}
	return cursors, nil
}

// Save writes the cursor snapshot, creating actmemDir if needed.
func Save(actmemDir string, cursors map[string]uint64) error {
	if err := os.MkdirAll(actmemDir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", actmemDir, err)
	}

	data, err := json.MarshalIndent(cursors, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cursors.json: %w", err)
	}
	if err := os.WriteFile(Path(actmemDir), data, 0o600); err != nil {
		return fmt.Errorf("writing cursors.json: %w", err)
	}
	return nil
}
