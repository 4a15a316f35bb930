// Command activityd runs the Tiered Activity Memory Pipeline's Integrated
// Runner (C7): it schedules Collector cycles against one or more watched
// volumes, scores and records activities into the hot tier, and runs the
// Tier Consolidator on its own cadence, until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvid-io/actmem/internal/collector"
	"github.com/corvid-io/actmem/internal/config"
	"github.com/corvid-io/actmem/internal/configfile"
	"github.com/corvid-io/actmem/internal/consolidator"
	"github.com/corvid-io/actmem/internal/debug"
	"github.com/corvid-io/actmem/internal/entity"
	"github.com/corvid-io/actmem/internal/eventbus"
	"github.com/corvid-io/actmem/internal/hottier"
	"github.com/corvid-io/actmem/internal/journal"
	"github.com/corvid-io/actmem/internal/registration"
	"github.com/corvid-io/actmem/internal/runner"
	"github.com/corvid-io/actmem/internal/scoring"
	"github.com/corvid-io/actmem/internal/statefile"
	"github.com/corvid-io/actmem/internal/storage/sqlite"
)

var (
	// Version is the current version of activityd (overridden by ldflags at build time).
	Version = "0.1.0"
	// Build can be set via ldflags at compile time.
	Build = "dev"
)

var (
	projectRoot string
	volumes     []string
	redisURL    string
	natsURL     string
	logFormat   string
	verboseFlag bool
	quietFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "activityd",
	Short: "activityd - tiered activity memory pipeline",
	Long:  `Ingests filesystem change activity, scores it for importance, and consolidates it through hot, warm, and cold tiers.`,
	RunE:  runPipeline,
}

func init() {
	rootCmd.Flags().StringSliceVar(&volumes, "volumes", nil, "Directories to watch, one Reader per entry (required)")
	rootCmd.Flags().StringVar(&projectRoot, "project-root", ".", "Project root holding .actmem/ state")
	rootCmd.Flags().Int("interval", 0, "Collector cycle interval in seconds (default 30)")
	rootCmd.Flags().Int("duration", 0, "Total run duration in hours, 0 = until stopped")
	// Flag names below match internal/config's mapstructure keys
	// (underscored) rather than the usual hyphenated CLI convention, so
	// viper's BindPFlags binds them to the same RunnerConfig fields that
	// config.yaml and ACTMEM_* env vars use.
	rootCmd.Flags().Int("ttl_days", 0, "Hot tier TTL in days (default 4)")
	rootCmd.Flags().Bool("backup_to_files", false, "Write each cycle's batch to a JSONL backup file")
	rootCmd.Flags().Int("max_file_size_mb", 0, "Max JSONL backup file size in MB (default 100); reported at startup only, each cycle's backup is written to its own file without a size check")
	rootCmd.Flags().Bool("use_state_file", false, "Persist and resume Collector cursors across restarts")
	rootCmd.Flags().Bool("auto_reset", false, "Reset Collector state after consecutive errors or empty cycles")
	rootCmd.Flags().Int("error_threshold", 0, "Consecutive cycle errors before auto-reset (default 3)")
	rootCmd.Flags().Int("empty_results_threshold", 0, "Consecutive empty cycles before auto-reset (default 3)")
	rootCmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL for the hot tier (default: in-memory store)")
	rootCmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS URL for optional JetStream event publication")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "text", "Structured log format: text or json")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.Flags().Bool("version", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetBool("version"); v {
		fmt.Printf("activityd version %s (%s)\n", Version, Build)
		return nil
	}

	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)

	if err := os.Setenv("ACTMEM_PROJECT_ROOT", projectRoot); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to set project root env: %v\n", err)
	}

	v, err := config.Initialize(projectRoot, cmd.Flags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadRunnerConfig(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load runner config: %v\n", err)
		os.Exit(1)
	}
	if len(volumes) > 0 {
		cfg.Volumes = volumes
	}
	if len(cfg.Volumes) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no volumes configured (pass --volumes)")
		os.Exit(1)
	}

	log := newLogger(logFormat)

	actmemDir := filepath.Join(projectRoot, ".actmem")
	marker, err := configfile.Load(actmemDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read project marker: %v\n", err)
		os.Exit(1)
	}
	if marker == nil {
		marker = configfile.DefaultConfig()
		if err := marker.Save(actmemDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write project marker: %v\n", err)
			os.Exit(1)
		}
	}

	warmCold, err := sqlite.Open(marker.WarmColdPath(actmemDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open warm/cold database: %v\n", err)
		os.Exit(1)
	}

	hot, err := newHotTier(redisURL, cfg.TTLDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize hot tier: %v\n", err)
		os.Exit(1)
	}

	reg := registration.New("actmem")
	if _, err := reg.Register(registration.Registration{
		ServiceName: "activityd",
		ServiceUUID: strings.Join(cfg.Volumes, ","),
		Version:     Version,
		Type:        "recorder",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: registration failed: %v\n", err)
		os.Exit(1)
	}

	resolver := entity.New()
	readers := make([]journal.Reader, 0, len(cfg.Volumes))
	for _, vol := range cfg.Volumes {
		readers = append(readers, journal.NewFSWatchReader(vol, vol))
	}
	for _, r := range readers {
		if err := r.Open(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open reader for %s: %v\n", r.Volume(), err)
			os.Exit(1)
		}
	}

	coll := collector.New(resolver, readers...)
	if cfg.UseStateFile {
		cursors, err := statefile.Load(actmemDir)
		if err != nil {
			log.Warn("failed to load cursor state file", "error", err)
		} else {
			coll.SeedCursors(cursors)
		}
	}

	scorer := scoring.New()
	cons := consolidator.New(hot, warmCold)

	bus := eventbus.New()
	if natsURL != "" {
		if err := wireJetStream(bus, natsURL); err != nil {
			log.Warn("NATS JetStream unavailable, continuing without it", "error", err)
		}
	}

	rOpts := runner.Options{
		Volumes:               cfg.Volumes,
		Interval:              cfg.Interval,
		Duration:              cfg.Duration,
		TTLDays:               cfg.TTLDays,
		BackupToFiles:         cfg.BackupToFiles,
		MaxFileSizeMB:         cfg.MaxFileSizeMB,
		UseStateFile:          cfg.UseStateFile,
		AutoReset:             cfg.AutoReset,
		ErrorThreshold:        cfg.ErrorThreshold,
		EmptyResultsThreshold: cfg.EmptyResultsThreshold,
		BackupDir:             actmemDir,
		LockDir:               actmemDir,
	}

	run := runner.New(rOpts, coll, scorer, hot, cons, log)
	run.SetBus(bus)

	log.Info("starting activityd",
		"version", Version,
		"volumes", cfg.Volumes,
		"interval", rOpts.Interval,
		"duration", rOpts.Duration,
		"ttl_days", rOpts.TTLDays,
		"backup_to_files", rOpts.BackupToFiles,
		"max_file_size_mb", rOpts.MaxFileSizeMB,
		"use_state_file", rOpts.UseStateFile,
		"auto_reset", rOpts.AutoReset,
		"error_threshold", rOpts.ErrorThreshold,
		"empty_results_threshold", rOpts.EmptyResultsThreshold,
		"hot_tier_backend", hotTierBackendName(redisURL),
		"jetstream_enabled", bus.JetStreamEnabled(),
	)

	runErr := run.Run(context.Background())

	if cfg.UseStateFile {
		if err := statefile.Save(actmemDir, coll.Cursors()); err != nil {
			log.Warn("failed to persist cursor state file", "error", err)
		}
	}
	for _, r := range readers {
		_ = r.Close()
	}
	_ = warmCold.Close()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
	return nil
}

func newLogger(format string) *slog.Logger {
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	return slog.New(handler)
}

func newHotTier(redisURL string, ttlDays int) (hottier.Store, error) {
	ttl := time.Duration(ttlDays) * 24 * time.Hour
	if redisURL == "" {
		return hottier.NewMemoryStore(hottier.WithTTL(ttl)), nil
	}
	return hottier.NewRedisStore(redisURL, hottier.WithTTL(ttl))
}

func hotTierBackendName(redisURL string) string {
	if redisURL == "" {
		return "memory"
	}
	return "redis"
}

func wireJetStream(bus *eventbus.Bus, natsURL string) error {
	js, err := eventbus.ConnectJetStream(natsURL)
	if err != nil {
		return err
	}
	bus.SetJetStream(js)
	return nil
}
