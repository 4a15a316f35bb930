package configfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	actmemDir := filepath.Join(dir, ".actmem")

	cfg := DefaultConfig()
	cfg.ProjectName = "example"
	require.NoError(t, cfg.Save(actmemDir))

	loaded, err := Load(actmemDir)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "example", loaded.ProjectName)
	assert.Equal(t, "tiers.db", loaded.WarmColdDatabase)
}

func TestLoadReturnsNilWhenMarkerMissing(t *testing.T) {
	dir := t.TempDir()
	loaded, err := Load(filepath.Join(dir, ".actmem"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestWarmColdPathDefaultsWhenUnset(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, filepath.Join("x", "tiers.db"), cfg.WarmColdPath("x"))
}
