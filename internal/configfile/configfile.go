// Package configfile manages the lightweight on-disk project marker
// (.actmem/metadata.json), adapted from the teacher's configfile package:
// same JSON-marshaled struct under a fixed name within the project
// directory, retargeted to the fields this pipeline actually needs.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the project marker file's name under the project directory.
const FileName = "metadata.json"

// Config is the persisted project marker.
type Config struct {
	HotTierDatabase  string `json:"hot_tier_database,omitempty"`
	WarmColdDatabase string `json:"warm_cold_database,omitempty"`
	ProjectName      string `json:"project_name,omitempty"`
}

// DefaultConfig returns the marker written by a fresh project.
func DefaultConfig() *Config {
	return &Config{
		WarmColdDatabase: "tiers.db",
	}
}

// Path returns the marker file path under actmemDir (typically
// <project_root>/.actmem).
func Path(actmemDir string) string {
	return filepath.Join(actmemDir, FileName)
}

// Load reads the marker file, returning (nil, nil) if it does not exist.
func Load(actmemDir string) (*Config, error) {
	data, err := os.ReadFile(Path(actmemDir)) // #nosec G304 - controlled path from caller
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata.json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing metadata.json: %w", err)
	}
	return &cfg, nil
}

// Save writes the marker file, creating actmemDir if needed.
func (c *Config) Save(actmemDir string) error {
	if err := os.MkdirAll(actmemDir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", actmemDir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metadata.json: %w", err)
	}
	if err := os.WriteFile(Path(actmemDir), data, 0o600); err != nil {
		return fmt.Errorf("writing metadata.json: %w", err)
	}
	return nil
}

// WarmColdPath returns the full path to the warm/cold SQLite database.
func (c *Config) WarmColdPath(actmemDir string) string {
	if c.WarmColdDatabase == "" {
		return filepath.Join(actmemDir, "tiers.db")
	}
	return filepath.Join(actmemDir, c.WarmColdDatabase)
}
