package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsApplyWithoutConfigFileOrEnv(t *testing.T) {
	v, err := Initialize("", nil)
	require.NoError(t, err)

	cfg, err := LoadRunnerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Duration)
	assert.Equal(t, 4, cfg.TTLDays)
	assert.True(t, cfg.BackupToFiles)
	assert.Equal(t, 3, cfg.ErrorThreshold)
}

func TestEnvironmentOverridesDefault(t *testing.T) {
	t.Setenv("ACTMEM_TTL_DAYS", "7")

	v, err := Initialize("", nil)
	require.NoError(t, err)
	cfg, err := LoadRunnerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.TTLDays)
}

func TestConfigYamlUnderProjectRootIsRead(t *testing.T) {
	dir := t.TempDir()
	actmemDir := filepath.Join(dir, ".actmem")
	require.NoError(t, os.MkdirAll(actmemDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(actmemDir, "config.yaml"), []byte("ttl_days: 10\n"), 0o600))

	v, err := Initialize(dir, nil)
	require.NoError(t, err)
	cfg, err := LoadRunnerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.TTLDays)
}
