package uat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-uat/bdd"
	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/locator"
	"github.com/ethereum-optimism/infra/op-uat/logging"
	"github.com/ethereum-optimism/infra/op-uat/metrics"
	"github.com/ethereum-optimism/infra/op-uat/registry"
	"github.com/ethereum-optimism/infra/op-uat/reporting"
	"github.com/ethereum-optimism/infra/op-uat/runner"
	"github.com/ethereum-optimism/infra/op-uat/scenario"
	"github.com/ethereum-optimism/infra/op-uat/service"
	"github.com/ethereum-optimism/infra/op-uat/wait"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

const (
	ResultPass    = "pass"
	ResultFail    = "fail"
	ResultTimeout = "timeout"
)

// RunResult is the outcome of one full pass over the features directory.
type RunResult struct {
	RunID     string
	ReportDir string
	Summary   *runner.RunSummary
	Stats     reporting.Stats
	Duration  time.Duration
}

// Result folds the run into pass, fail or timeout.
func (r *RunResult) Result() string {
	switch {
	case r.Summary != nil && !r.Summary.Drained:
		return ResultTimeout
	case r.Stats.Failed > 0:
		return ResultFail
	default:
		return ResultPass
	}
}

func (r *RunResult) String() string {
	return fmt.Sprintf("run %s %s: %d scenarios, %d passed, %d failed, %d skipped in %s (report: %s)",
		r.RunID, r.Result(), r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped,
		r.Duration.Round(time.Millisecond), r.ReportDir)
}

// ReportPublisher is told about every finished run.
type ReportPublisher interface {
	SetLatestRun(dir string, status service.RunStatus)
}

// uat implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &uat{}

// uat is a UI acceptance tester that runs tagged BDD scenarios in browsers.
type uat struct {
	ctx       context.Context
	config    *Config
	version   string
	features  *registry.Registry
	contexts  *scenario.Registry
	scheduler RunScheduler
	service   *service.Service
	publisher ReportPublisher
	console   io.Writer

	mu     sync.Mutex
	result *RunResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*uat, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	factory := browser.NewChromeFactory(config.Browser, config.Log)
	return newUAT(ctx, config, version, factory, shutdownCallback)
}

func newUAT(ctx context.Context, config *Config, version string, factory browser.Factory, shutdownCallback func(error)) (*uat, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.New()
	}
	if config.WaitPolicy == (wait.Policy{}) {
		config.WaitPolicy = wait.DefaultPolicy()
	}

	config.Log.Debug("Creating UAT with config",
		"featuresDir", config.FeaturesDir,
		"tags", config.Tags,
		"concurrency", config.Concurrency,
		"drainTimeout", config.DrainTimeout,
		"browser", config.Browser.Endpoint(),
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	features, err := registry.NewRegistry(registry.Config{
		Log:         config.Log,
		FeaturesDir: config.FeaturesDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create feature registry: %w", err)
	}

	tables := locator.DefaultTables()
	if config.LocatorsFile != "" {
		tables, err = locator.LoadTables(config.LocatorsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load locator tables: %w", err)
		}
	}

	contexts, err := scenario.NewRegistry(scenario.Config{
		Factory:  factory,
		Locators: tables,
		Policy:   config.WaitPolicy,
		Log:      config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context registry: %w", err)
	}

	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}
	u := &uat{
		ctx:              ctx,
		config:           config,
		version:          version,
		features:         features,
		contexts:         contexts,
		scheduler:        NewIntervalScheduler(config.RunInterval, config.RunOnce, config.Log),
		console:          os.Stdout,
		shutdownCallback: shutdownCallback,
	}
	if config.HealthzAddr != "" {
		u.service = service.New(service.Config{
			HealthzAddr:    config.HealthzAddr,
			MetricsEnabled: config.Metrics.Enabled,
			MetricsHost:    config.Metrics.ListenAddr,
			MetricsPort:    config.Metrics.ListenPort,
		}, config.Log)
		u.publisher = u.service.Healthz
	}
	config.Log.Info("uat.New: created feature and context registries",
		"features", len(features.Partitions()), "scenarios", features.ScenarioCount())
	return u, nil
}

// Start implements the cliapp.Lifecycle interface.
func (u *uat) Start(ctx context.Context) error {
	u.ctx = ctx
	u.running.Store(true)

	if u.service != nil {
		u.service.Start(ctx)
	}

	if u.config.RunOnce {
		u.config.Log.Info("Starting op-uat in run-once mode")
	} else {
		u.config.Log.Info("Starting op-uat in continuous mode", "interval", u.config.RunInterval)
	}

	u.scheduler.RegisterCallback(u.runTests)
	if err := u.scheduler.Start(ctx); err != nil {
		u.config.Log.Error("Runtime error running scenarios", "err", err)
		return err
	}

	if !u.config.RunOnce {
		u.config.Log.Debug("op-uat started successfully")
		return nil
	}

	u.config.Log.Info("Scenarios completed, exiting (run-once mode)")
	if result := u.Result(); result != nil && result.Result() == ResultFail {
		u.config.Log.Warn("Run-once run completed with failures, returning exit code 1")
		return NewScenarioFailureError(result)
	}
	go func() {
		u.shutdownCallback(nil)
	}()
	return nil
}

// runTests performs one run and keeps its result.
func (u *uat) runTests(ctx context.Context) error {
	u.config.Log.Info("Running all scenarios...")
	result, err := u.execute(ctx)
	if result != nil {
		u.mu.Lock()
		u.result = result
		u.mu.Unlock()
		fmt.Fprintln(u.console, result.String())
	}
	if err != nil {
		u.config.Log.Error("Runtime error running scenarios", "err", err)
		return NewRuntimeError(StageRun, err)
	}
	u.config.Log.Info("Run completed", "run_id", result.RunID, "result", result.Result())
	return nil
}

// execute discovers features, dispatches them and flushes the report. The
// report is flushed even when the run timed out or was interrupted.
func (u *uat) execute(ctx context.Context) (*RunResult, error) {
	if err := u.features.Reload(); err != nil {
		return nil, err
	}
	partitions := u.features.Partitions()
	if len(partitions) == 0 {
		u.config.Log.Warn("No features found", "dir", u.config.FeaturesDir)
	}

	runID := uuid.New().String()
	logger := u.config.Log.New("run_id", runID)

	files, err := logging.NewFileLogger(u.config.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	defer func() {
		if err := files.Complete(); err != nil {
			logger.Warn("Failed to close feature logs", "err", err)
		}
	}()

	html, err := reporting.NewHTMLRenderer(files.GetRunDir())
	if err != nil {
		return nil, fmt.Errorf("failed to create html report: %w", err)
	}
	sink := reporting.NewTreeSink(runID,
		html,
		reporting.NewTextRenderer(files.GetRunDir(), true),
		reporting.NewTableRenderer(u.console, fmt.Sprintf("UI Acceptance Results (%s)", runID)),
	)
	collector := reporting.NewCollector(sink, logger)

	engine := bdd.NewEngine(bdd.Config{
		Tags:   u.config.Tags,
		Log:    logger,
		Files:  files,
		Report: collector,
	})

	progress := runner.NewNoOpProgressIndicator()
	if u.config.ShowProgress {
		progress = runner.NewConsoleProgressIndicator(logger, u.config.ProgressInterval)
	}

	dispatcher, err := runner.NewDispatcher(runner.Config{
		Engine:       engine,
		Registry:     u.contexts,
		Collector:    collector,
		Log:          logger,
		DrainTimeout: u.config.DrainTimeout,
		Progress:     progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	summary, runErr := dispatcher.Run(ctx, partitions, u.config.Concurrency)
	if err := collector.Flush(); err != nil {
		// reporting failures never change the verdict
		logger.Warn("Report flush failed", "err", err)
	}

	result := &RunResult{
		RunID:     runID,
		ReportDir: files.GetRunDir(),
		Summary:   summary,
		Stats:     collector.Summary(),
		Duration:  summary.Duration,
	}
	metrics.RecordRun(runID, result.Result(),
		result.Stats.Passed, result.Stats.Failed, result.Stats.Skipped, result.Duration)
	if u.publisher != nil {
		u.publisher.SetLatestRun(result.ReportDir, service.RunStatus{
			RunID:    runID,
			Result:   result.Result(),
			Passed:   result.Stats.Passed,
			Failed:   result.Stats.Failed,
			Skipped:  result.Stats.Skipped,
			Drained:  summary.Drained,
			Duration: result.Duration.String(),
		})
	}

	if runErr != nil {
		return result, fmt.Errorf("run %s interrupted: %w", runID, runErr)
	}
	if !summary.Drained {
		return result, fmt.Errorf("run %s: %w after %s", runID, ErrDrainTimeout, u.config.DrainTimeout)
	}
	return result, nil
}

// Result returns the most recent run, or nil before the first one finished.
func (u *uat) Result() *RunResult {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.result
}

// Stop implements the cliapp.Lifecycle interface.
func (u *uat) Stop(ctx context.Context) error {
	u.config.Log.Info("Stopping op-uat")
	if !u.running.Load() {
		u.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	u.running.Store(false)

	var errs []error
	if err := u.scheduler.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := u.scheduler.WaitForShutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := u.contexts.ReleaseAll(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release browser sessions: %w", err))
	}
	if u.service != nil {
		u.service.Shutdown()
	}

	u.config.Log.Info("op-uat stopped")
	return errors.Join(errs...)
}

// Stopped implements the cliapp.Lifecycle interface.
func (u *uat) Stopped() bool {
	return !u.running.Load()
}
