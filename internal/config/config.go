// Package config loads the Integrated Runner's option table (spec §4.7)
// through viper, in precedence order: CLI flags > environment variables
// (ACTMEM_* prefix) > <project_root>/.actmem/config.yaml > defaults.
// Adapted from the teacher's internal/config package, which wired the same
// precedence chain through viper for its own, much larger option set; this
// is the same wiring collapsed onto the Runner's ten options.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix every Runner option binds
// under, e.g. ACTMEM_INTERVAL.
const EnvPrefix = "ACTMEM"

// RunnerConfig mirrors the Integrated Runner's option table (spec §4.7).
type RunnerConfig struct {
	Volumes                []string      `mapstructure:"volumes"`
	Interval                time.Duration `mapstructure:"interval"`
	Duration                time.Duration `mapstructure:"duration"`
	TTLDays                 int           `mapstructure:"ttl_days"`
	BackupToFiles           bool          `mapstructure:"backup_to_files"`
	MaxFileSizeMB           int           `mapstructure:"max_file_size_mb"`
	UseStateFile            bool          `mapstructure:"use_state_file"`
	AutoReset               bool          `mapstructure:"auto_reset"`
	ErrorThreshold          int           `mapstructure:"error_threshold"`
	EmptyResultsThreshold   int           `mapstructure:"empty_results_threshold"`
}

// defaults mirrors the §4.7 defaults column.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"interval":                 30,
		"duration":                 24,
		"ttl_days":                 4,
		"backup_to_files":          true,
		"max_file_size_mb":         100,
		"use_state_file":           false,
		"auto_reset":               true,
		"error_threshold":          3,
		"empty_results_threshold":  3,
	}
}

// Initialize builds a *viper.Viper bound to flags (if provided), the
// ACTMEM_* environment, an optional config.yaml under projectRoot, and the
// §4.7 defaults, in that precedence order.
func Initialize(projectRoot string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	if projectRoot != "" {
		v.AddConfigPath(projectRoot + "/.actmem")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("reading config.yaml: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	return v, nil
}

// LoadRunnerConfig unmarshals the bound viper instance into a RunnerConfig.
func LoadRunnerConfig(v *viper.Viper) (*RunnerConfig, error) {
	var cfg RunnerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling runner config: %w", err)
	}
	cfg.Interval *= time.Second
	cfg.Duration *= time.Hour
	return &cfg, nil
}
