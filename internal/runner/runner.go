// Package runner implements the Integrated Runner (C7): the supervisor
// that schedules Collector cycles at a configured interval, feeds each
// batch through the Scorer and Hot Tier Recorder, and runs the
// Consolidator on its own, longer cadence.
//
// Adapted from cmd/bd/daemon_event_loop.go's event loop: signal handling
// through signal.NotifyContext, and one select loop over two tickers (the
// ingestion cycle and the consolidation cadence) that runs each cycle or
// pass to completion before selecting again.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/corvid-io/actmem/internal/collector"
	"github.com/corvid-io/actmem/internal/consolidator"
	"github.com/corvid-io/actmem/internal/eventbus"
	"github.com/corvid-io/actmem/internal/hottier"
	"github.com/corvid-io/actmem/internal/jsonl"
	"github.com/corvid-io/actmem/internal/obslog"
	"github.com/corvid-io/actmem/internal/scoring"
	"github.com/corvid-io/actmem/internal/types"
	"github.com/corvid-io/actmem/internal/volumelock"
)

// runnerTracer is the OTel tracer for cycle- and consolidation-level spans.
// It uses the global provider, which is a no-op until telemetry is
// configured by the caller.
var runnerTracer = otel.Tracer("github.com/corvid-io/actmem/internal/runner")

var runnerMetrics struct {
	cycleActivities metric.Int64Counter
	cycleErrors     metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/corvid-io/actmem/internal/runner")
	runnerMetrics.cycleActivities, _ = m.Int64Counter("actmem.cycle.activities",
		metric.WithDescription("Activities stored to the hot tier per cycle"),
		metric.WithUnit("{activity}"),
	)
	runnerMetrics.cycleErrors, _ = m.Int64Counter("actmem.cycle.errors",
		metric.WithDescription("Cycles that failed to collect or store activities"),
		metric.WithUnit("{error}"),
	)
}

// endSpan records an error, if any, and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Options mirrors the Integrated Runner's option table (spec §4.7).
type Options struct {
	Volumes               []string
	Interval              time.Duration
	Duration              time.Duration // 0 = until stopped
	TTLDays               int
	BackupToFiles         bool
	MaxFileSizeMB         int
	UseStateFile          bool
	AutoReset             bool
	ErrorThreshold        int
	EmptyResultsThreshold int

	// ConsolidationInterval is the Consolidator's cadence; not part of the
	// spec table (which only names the ingestion loop's options) but
	// required to run it on a separate task, per §5.
	ConsolidationInterval time.Duration

	// BackupDir is where JSONL backups are written when BackupToFiles is
	// set. Defaults to the current directory.
	BackupDir string

	// GraceShutdown is reported in the shutdown log line. Run does not wait
	// on it: a cycle in progress when the signal arrives runs under a
	// context that the signal cancels.
	GraceShutdown time.Duration

	// LockDir holds the per-volume lock files that enforce the
	// single-reader-per-volume rule. Defaults to BackupDir when unset.
	LockDir string
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.TTLDays <= 0 {
		o.TTLDays = 4
	}
	if o.MaxFileSizeMB <= 0 {
		o.MaxFileSizeMB = 100
	}
	if o.ErrorThreshold <= 0 {
		o.ErrorThreshold = 3
	}
	if o.EmptyResultsThreshold <= 0 {
		o.EmptyResultsThreshold = 3
	}
	if o.ConsolidationInterval <= 0 {
		o.ConsolidationInterval = time.Hour
	}
	if o.GraceShutdown <= 0 {
		o.GraceShutdown = 30 * time.Second
	}
	if o.BackupDir == "" {
		o.BackupDir = "."
	}
	if o.LockDir == "" {
		o.LockDir = o.BackupDir
	}
}

// Runner supervises the ingestion cycle and the consolidator.
type Runner struct {
	opts         Options
	collector    *collector.Collector
	scorer       *scoring.Scorer
	hot          hottier.Store
	consolidator *consolidator.Consolidator
	bus          *eventbus.Bus
	log          *slog.Logger

	volumeLocks []*volumelock.Lock

	consecutiveErrors int
	consecutiveEmpty  int
}

// New creates a Runner over the already-constructed pipeline components.
func New(opts Options, coll *collector.Collector, scorer *scoring.Scorer, hot hottier.Store, cons *consolidator.Consolidator, log *slog.Logger) *Runner {
	opts.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		opts:         opts,
		collector:    coll,
		scorer:       scorer,
		hot:          hot,
		consolidator: cons,
		log:          log,
	}
}

// SetBus attaches an event bus that the Runner dispatches lifecycle events
// to as it runs cycles and consolidation passes. Optional; a Runner with no
// bus attached still runs normally.
func (r *Runner) SetBus(bus *eventbus.Bus) {
	r.bus = bus
}

func (r *Runner) dispatch(ctx context.Context, event *eventbus.Event) {
	if r.bus == nil {
		return
	}
	if _, err := r.bus.Dispatch(ctx, event); err != nil {
		r.log.Warn("event dispatch failed", "type", event.Type, "error", err)
	}
}

// Run blocks until the configured duration elapses, a shutdown signal
// arrives, or ctx is canceled, running ingestion cycles and consolidator
// passes on their own cadences. Returns nil on clean shutdown.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.acquireVolumeLocks(); err != nil {
		return err
	}
	defer r.releaseVolumeLocks()

	r.log.Info("runner starting",
		"volumes", r.opts.Volumes,
		"interval", r.opts.Interval,
		"duration", r.opts.Duration,
		"ttl_days", r.opts.TTLDays,
		"backup_to_files", r.opts.BackupToFiles,
		"max_file_size_mb", r.opts.MaxFileSizeMB,
		"use_state_file", r.opts.UseStateFile,
		"auto_reset", r.opts.AutoReset,
		"error_threshold", r.opts.ErrorThreshold,
		"empty_results_threshold", r.opts.EmptyResultsThreshold,
	)

	var deadline time.Time
	if r.opts.Duration > 0 {
		deadline = time.Now().Add(r.opts.Duration)
	}

	cycleTicker := time.NewTicker(r.opts.Interval)
	defer cycleTicker.Stop()

	consolidateTicker := time.NewTicker(r.opts.ConsolidationInterval)
	defer consolidateTicker.Stop()

	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			r.log.Info("runner stopping: duration elapsed")
			return nil
		}

		select {
		case <-ctx.Done():
			return r.shutdown(ctx)

		case <-cycleTicker.C:
			r.runCycle(ctx)

		case <-consolidateTicker.C:
			r.runConsolidation(ctx)
		}
	}
}

// acquireVolumeLocks takes one lock per configured volume, releasing any
// already-held locks if a later one fails so a partial run never leaves
// some volumes locked and others not (spec §5: a configuration error must
// not silently proceed on the volumes that did lock).
func (r *Runner) acquireVolumeLocks() error {
	for _, vol := range r.opts.Volumes {
		lock, err := volumelock.Acquire(r.opts.LockDir, vol)
		if err != nil {
			r.dispatch(context.Background(), &eventbus.Event{Type: eventbus.EventVolumeLockDenied, Volume: vol, Error: err.Error()})
			r.releaseVolumeLocks()
			return fmt.Errorf("acquiring lock for volume %s: %w", vol, err)
		}
		r.volumeLocks = append(r.volumeLocks, lock)
	}
	return nil
}

func (r *Runner) releaseVolumeLocks() {
	for _, lock := range r.volumeLocks {
		_ = lock.Close()
	}
	r.volumeLocks = nil
}

func (r *Runner) shutdown(parent context.Context) error {
	r.log.Info("shutdown signal received, finishing in-progress work", "grace", r.opts.GraceShutdown)
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.GraceShutdown)
	defer cancel()
	_ = parent

	// One last cycle is not started. Any cycle that was in flight has
	// already returned before ctx.Done() was observed, since cycles run
	// synchronously inside the select loop; nothing here waits on the
	// grace timeout.
	if r.hot != nil {
		_ = r.hot.Close()
	}
	select {
	case <-ctx.Done():
	default:
	}
	r.log.Info("runner stopped cleanly")
	return nil
}

// runCycle runs one Collector->Scorer->Recorder pass bounded by the
// configured interval, and applies the auto-reset policy on its result.
func (r *Runner) runCycle(ctx context.Context) {
	ctx, span := runnerTracer.Start(ctx, "actmem.cycle",
		trace.WithAttributes(attribute.StringSlice("volumes", r.opts.Volumes)))
	defer span.End()

	cycleDeadline := time.Now().Add(r.opts.Interval)
	cycleCtx, cancel := context.WithDeadline(ctx, cycleDeadline)
	defer cancel()

	batch, err := r.collector.Collect(cycleCtx, cycleDeadline)
	if err != nil {
		r.recordCycleError()
		r.log.Error("cycle failed", "error", err)
		obslog.LogEvent("cycle_error", "", err.Error())
		r.dispatch(ctx, &eventbus.Event{Type: eventbus.EventCycleError, Error: err.Error()})
		runnerMetrics.cycleErrors.Add(ctx, 1)
		endSpan(span, err)
		return
	}

	for _, a := range batch.Activities {
		a.ImportanceScore = r.scorer.Score(a, 0)
	}

	r.dispatch(ctx, &eventbus.Event{Type: eventbus.EventBatchCollected, Count: len(batch.Activities)})

	ids, err := r.hot.StoreActivities(cycleCtx, batch.Activities)
	if err != nil {
		r.recordCycleError()
		r.log.Error("storing batch failed", "error", err)
		obslog.LogEvent("store_error", "", err.Error())
		r.dispatch(ctx, &eventbus.Event{Type: eventbus.EventCycleError, Error: err.Error()})
		runnerMetrics.cycleErrors.Add(ctx, 1)
		endSpan(span, err)
		return
	}

	if r.opts.BackupToFiles && len(batch.Activities) > 0 {
		r.backupBatch(batch.Activities)
	}

	if len(ids) == 0 {
		r.recordEmptyCycle()
	} else {
		r.consecutiveErrors = 0
		r.consecutiveEmpty = 0
	}

	r.log.Info("cycle complete", "activities", len(ids))
	obslog.LogEvent("cycle_complete", "", fmt.Sprintf("activities=%d", len(ids)))
	r.dispatch(ctx, &eventbus.Event{Type: eventbus.EventBatchStored, Count: len(ids)})
	runnerMetrics.cycleActivities.Add(ctx, int64(len(ids)))
	span.SetAttributes(attribute.Int("activities.stored", len(ids)))
	endSpan(span, nil)
}

func (r *Runner) recordCycleError() {
	r.consecutiveErrors++
	if r.opts.AutoReset && r.consecutiveErrors >= r.opts.ErrorThreshold {
		r.log.Warn("resetting collector state after consecutive failures", "count", r.consecutiveErrors)
		r.collector.ResetState()
		r.consecutiveErrors = 0
	}
}

func (r *Runner) recordEmptyCycle() {
	r.consecutiveEmpty++
	if r.opts.AutoReset && r.consecutiveEmpty >= r.opts.EmptyResultsThreshold {
		r.log.Warn("resetting collector state after consecutive empty cycles", "count", r.consecutiveEmpty)
		r.collector.ResetState()
		r.consecutiveEmpty = 0
	}
}

// ResetUnconditionally resets collector state regardless of threshold
// counters, for recursion-depth or similarly structural errors (spec
// §4.7).
func (r *Runner) ResetUnconditionally() {
	r.collector.ResetState()
	r.consecutiveErrors = 0
	r.consecutiveEmpty = 0
}

func (r *Runner) backupBatch(activities []*types.Activity) {
	filename := fmt.Sprintf("%s/batch-%s.jsonl", r.opts.BackupDir, time.Now().UTC().Format("20060102T150405Z"))
	if err := jsonl.WriteActivitiesToFile(filename, activities); err != nil {
		r.log.Error("jsonl backup failed", "error", err)
	}
}

// runConsolidation runs both consolidation passes on the consolidation
// ticker's cadence: hot->warm first, then warm->cold over every entity_id
// the hot->warm pass (or an earlier one) has left sitting in the warm tier.
// A warm->cold failure is logged and reported but does not undo the
// hot->warm promotion that already committed.
func (r *Runner) runConsolidation(ctx context.Context) {
	if r.consolidator == nil {
		return
	}

	ctx, span := runnerTracer.Start(ctx, "actmem.consolidation")
	defer span.End()

	hotToWarm, err := r.consolidator.RunHotToWarm(ctx)
	if err != nil {
		r.log.Error("hot->warm consolidation failed", "error", err)
		obslog.LogEvent("consolidation_error", "", err.Error())
		r.dispatch(ctx, &eventbus.Event{Type: eventbus.EventConsolidationHotToWarm, Error: err.Error()})
		endSpan(span, err)
		return
	}
	r.log.Info("hot->warm consolidation complete", "promoted_to_warm", hotToWarm.PromotedToWarm)
	obslog.LogEvent("consolidation_complete", "", fmt.Sprintf("promoted_to_warm=%d", hotToWarm.PromotedToWarm))
	r.dispatch(ctx, &eventbus.Event{Type: eventbus.EventConsolidationHotToWarm, Count: hotToWarm.PromotedToWarm})
	span.SetAttributes(attribute.Int("promoted_to_warm", hotToWarm.PromotedToWarm))

	warmIDs, err := r.consolidator.WarmEntityIDs(ctx)
	if err != nil {
		r.log.Error("listing warm entity ids failed", "error", err)
		obslog.LogEvent("consolidation_error", "", err.Error())
		r.dispatch(ctx, &eventbus.Event{Type: eventbus.EventConsolidationWarmToCold, Error: err.Error()})
		endSpan(span, err)
		return
	}

	warmToCold, err := r.consolidator.RunWarmToCold(ctx, warmIDs)
	if err != nil {
		r.log.Error("warm->cold consolidation failed", "error", err)
		obslog.LogEvent("consolidation_error", "", err.Error())
		r.dispatch(ctx, &eventbus.Event{Type: eventbus.EventConsolidationWarmToCold, Error: err.Error()})
		endSpan(span, err)
		return
	}
	r.log.Info("warm->cold consolidation complete", "promoted_to_cold", warmToCold.PromotedToCold)
	obslog.LogEvent("consolidation_complete", "", fmt.Sprintf("promoted_to_cold=%d", warmToCold.PromotedToCold))
	r.dispatch(ctx, &eventbus.Event{Type: eventbus.EventConsolidationWarmToCold, Count: warmToCold.PromotedToCold})
	span.SetAttributes(attribute.Int("promoted_to_cold", warmToCold.PromotedToCold))
	endSpan(span, nil)
}
