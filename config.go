package uat

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/flags"
	"github.com/ethereum-optimism/infra/op-uat/wait"
)

// Config holds the application configuration
type Config struct {
	FeaturesDir      string
	Tags             string
	Concurrency      int           // Number of workers, each owning one browser session at a time
	DrainTimeout     time.Duration // Upper bound on a whole run before the report is flushed anyway
	Browser          browser.Config
	WaitPolicy       wait.Policy
	LocatorsFile     string        // Optional YAML or TOML locator table
	LogDir           string        // Directory to store run reports and feature logs
	RunInterval      time.Duration // Interval between runs
	RunOnce          bool          // Indicates if the service should exit after one run
	ShowProgress     bool
	ProgressInterval time.Duration
	HealthzAddr      string // Empty disables the healthz and report server
	Metrics          opmetrics.CLIConfig
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger, featuresDir string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if featuresDir == "" {
		return nil, errors.New("features directory is required")
	}

	absFeaturesDir, err := filepath.Abs(featuresDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for features directory '%s': %w", featuresDir, err)
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	var locators string
	if path := ctx.String(flags.Locators.Name); path != "" {
		locators, err = filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for locator table '%s': %w", path, err)
		}
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}

	tags := ctx.String(flags.Tags.Name)
	if tags == "" {
		tags = flags.Tags.Value
	}

	browserCfg := browser.DefaultConfig()
	browserCfg.Headless = ctx.Bool(flags.Headless.Name) || flags.HeadlessForced()
	browserCfg.RemoteURL = ctx.String(flags.RemoteURL.Name)
	browserCfg.ChromePath = ctx.String(flags.ChromePath.Name)
	browserCfg.LaunchRate = ctx.Float64(flags.SessionLaunchRate.Name)
	if browserCfg.LaunchRate < 0 {
		return nil, fmt.Errorf("session launch rate must not be negative, got %v", browserCfg.LaunchRate)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	return &Config{
		FeaturesDir:      absFeaturesDir,
		Tags:             tags,
		Concurrency:      concurrency,
		DrainTimeout:     ctx.Duration(flags.DrainTimeout.Name),
		Browser:          browserCfg,
		WaitPolicy:       wait.DefaultPolicy(),
		LocatorsFile:     locators,
		LogDir:           logDir,
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		HealthzAddr:      ctx.String(flags.HealthzAddr.Name),
		Metrics:          opmetrics.ReadCLIConfig(ctx),
		Log:              log,
	}, nil
}
