package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-uat/metrics"
	"github.com/ethereum-optimism/infra/op-uat/reporting"
	"github.com/ethereum-optimism/infra/op-uat/scenario"
	"github.com/ethereum-optimism/infra/op-uat/types"
)

const (
	// MaxReasonableConcurrency is the worker count above which a warning is logged.
	MaxReasonableConcurrency = 32
	DefaultDrainTimeout      = 10 * time.Minute
)

// Config contains dispatcher configuration
type Config struct {
	Engine       Engine
	Registry     *scenario.Registry
	Collector    *reporting.Collector
	Log          log.Logger
	DrainTimeout time.Duration
	Progress     ProgressIndicator
	Tracer       trace.Tracer
}

// RunSummary describes how a dispatch ended. Scenario verdicts live in the collector.
type RunSummary struct {
	Workers    int
	Partitions int
	Completed  int
	Drained    bool
	Duration   time.Duration
	Stats      reporting.Stats
}

// Dispatcher runs feature partitions on a fixed pool of workers.
type Dispatcher struct {
	engine       Engine
	registry     *scenario.Registry
	collector    *reporting.Collector
	log          log.Logger
	drainTimeout time.Duration
	progress     ProgressIndicator
	tracer       trace.Tracer
}

// NewDispatcher creates a new dispatcher instance
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("context registry is required")
	}
	if cfg.Collector == nil {
		return nil, errors.New("outcome collector is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("uat dispatcher")
	}
	return &Dispatcher{
		engine:       cfg.Engine,
		registry:     cfg.Registry,
		collector:    cfg.Collector,
		log:          cfg.Log.New("component", "dispatcher"),
		drainTimeout: cfg.DrainTimeout,
		progress:     cfg.Progress,
		tracer:       cfg.Tracer,
	}, nil
}

// Run hands partitions to workerCount workers in order and blocks until every
// partition has finished or the drain timeout, measured from the start of Run,
// elapses. On timeout the run context is canceled, bound contexts are released
// and the stalled workers are abandoned; the summary reports Drained=false.
// The caller flushes the collector afterwards in both cases.
func (d *Dispatcher) Run(ctx context.Context, partitions []types.FeaturePartition, workerCount int) (*RunSummary, error) {
	start := time.Now()
	if workerCount < 1 {
		d.log.Warn("Invalid worker count, using 1", "requested", workerCount)
		workerCount = 1
	}
	if workerCount > MaxReasonableConcurrency {
		d.log.Warn("Very high concurrency requested", "concurrency", workerCount,
			"recommendation", "Consider using lower values to avoid exhausting the browser grid")
	}

	summary := &RunSummary{Workers: workerCount, Partitions: len(partitions)}
	d.progress.StartRun(len(partitions))
	defer d.progress.CompleteRun()

	parent := ctx
	runCtx, cancel := context.WithCancel(parent)
	defer cancel()

	ctx, span := d.tracer.Start(runCtx, "uat run", trace.WithAttributes(
		attribute.Int("workers", workerCount),
		attribute.Int("features", len(partitions)),
	))
	defer span.End()

	d.log.Info("Dispatching features", "features", len(partitions), "workers", workerCount, "drainTimeout", d.drainTimeout)

	work := make(chan types.FeaturePartition)
	var completed atomic.Int64
	var wg conc.WaitGroup
	for i := 1; i <= workerCount; i++ {
		id := types.WorkerID(i)
		wg.Go(func() {
			d.work(ctx, id, work, &completed)
		})
	}

	go func() {
		defer close(work)
		for _, p := range partitions {
			select {
			case work <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if r := wg.WaitAndRecover(); r != nil {
			d.log.Error("Worker panicked outside a feature", "panic", r.Value, "stack", string(r.Stack))
		}
	}()

	timer := time.NewTimer(d.drainTimeout)
	defer timer.Stop()

	select {
	case <-done:
		summary.Drained = true
	case <-timer.C:
		d.log.Error("Drain timeout elapsed, abandoning stalled workers",
			"timeout", d.drainTimeout, "completed", completed.Load(), "features", len(partitions))
		span.SetStatus(codes.Error, "drain timeout")
		cancel()
		if err := d.registry.ReleaseAll(); err != nil {
			d.log.Warn("Failed to release abandoned contexts", "err", err)
		}
	}

	summary.Completed = int(completed.Load())
	summary.Duration = time.Since(start)
	summary.Stats = d.collector.Summary()
	d.log.Info("Dispatch finished",
		"drained", summary.Drained,
		"completed", summary.Completed,
		"passed", summary.Stats.Passed,
		"failed", summary.Stats.Failed,
		"skipped", summary.Stats.Skipped,
		"duration", summary.Duration)

	if summary.Drained && parent.Err() != nil {
		// interrupted rather than finished
		return summary, context.Cause(parent)
	}
	return summary, nil
}

func (d *Dispatcher) work(ctx context.Context, id types.WorkerID, work <-chan types.FeaturePartition, completed *atomic.Int64) {
	for p := range work {
		if ctx.Err() != nil {
			return
		}
		d.runPartition(ctx, id, p)
		completed.Add(1)
	}
}

func (d *Dispatcher) runPartition(ctx context.Context, id types.WorkerID, p types.FeaturePartition) {
	start := time.Now()
	logger := d.log.New("worker", id, "feature", p.Name)
	ctx, span := d.tracer.Start(ctx, fmt.Sprintf("feature %s", p.Name), trace.WithAttributes(
		attribute.String("path", p.Path),
		attribute.String("worker", id.String()),
	))
	defer span.End()

	metrics.RecordWorkerBusy(true)
	defer metrics.RecordWorkerBusy(false)

	hooks := &workerHooks{
		id:        id,
		partition: p,
		registry:  d.registry,
		collector: d.collector,
		progress:  d.progress,
		tracer:    d.tracer,
		log:       logger,
	}

	logger.Debug("Running feature", "scenarios", p.ScenarioCount)
	var pc panics.Catcher
	pc.Try(func() {
		if err := d.engine.Run(ctx, p, hooks); err != nil {
			logger.Error("Engine failed to run feature", "err", err)
			metrics.RecordErrorDetails("engine", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	})
	if r := pc.Recovered(); r != nil {
		logger.Error("Recovered from panic while running feature", "panic", r.Value, "stack", string(r.Stack))
		metrics.RecordError("feature_panic")
		span.SetStatus(codes.Error, "panic")
		hooks.abandon(ctx, r.AsError())
	}
	// the context must never outlive the partition, whatever happened above
	if err := d.registry.Release(id, hooks.current); err != nil {
		logger.Warn("Failed to release scenario context", "err", err)
	}

	metrics.RecordFeatureDuration(p.ID, time.Since(start))
	d.progress.CompleteFeature(p.Name)
}
