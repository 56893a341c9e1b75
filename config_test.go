package uat

import (
	"flag"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-uat/flags"
	"github.com/ethereum-optimism/infra/op-uat/reporting"
	"github.com/ethereum-optimism/infra/op-uat/wait"
)

func newCLIContext(t *testing.T, args map[string]string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags.Flags {
		require.NoError(t, f.Apply(set))
	}
	for name, value := range args {
		require.NoError(t, set.Set(name, value))
	}
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestNewConfig(t *testing.T) {
	t.Setenv(flags.PipelineExecutionEnv, "")
	features := t.TempDir()
	logDir := filepath.Join(t.TempDir(), "logs")

	tests := []struct {
		name    string
		args    map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "features flag is required",
			args:    map[string]string{},
			wantErr: true,
		},
		{
			name: "defaults",
			args: map[string]string{flags.FeaturesDir.Name: features},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, features, cfg.FeaturesDir)
				assert.Equal(t, "@Test", cfg.Tags)
				assert.Equal(t, 2, cfg.Concurrency)
				assert.Equal(t, 10*time.Minute, cfg.DrainTimeout)
				assert.True(t, cfg.RunOnce)
				assert.False(t, cfg.Browser.Headless)
				assert.Empty(t, cfg.LocatorsFile)
				assert.Equal(t, wait.DefaultPolicy(), cfg.WaitPolicy)
				assert.True(t, filepath.IsAbs(cfg.LogDir))
			},
		},
		{
			name: "explicit values",
			args: map[string]string{
				flags.FeaturesDir.Name:       features,
				flags.Tags.Name:              "@Smoke",
				flags.Concurrency.Name:       "4",
				flags.RunInterval.Name:       "1h",
				flags.Headless.Name:          "true",
				flags.RemoteURL.Name:         "ws://grid:9222",
				flags.SessionLaunchRate.Name: "0.5",
				flags.LogDir.Name:            logDir,
				flags.Locators.Name:          "locators.yaml",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "@Smoke", cfg.Tags)
				assert.Equal(t, 4, cfg.Concurrency)
				assert.False(t, cfg.RunOnce)
				assert.Equal(t, time.Hour, cfg.RunInterval)
				assert.True(t, cfg.Browser.Headless)
				assert.Equal(t, "ws://grid:9222", cfg.Browser.RemoteURL)
				assert.Equal(t, 0.5, cfg.Browser.LaunchRate)
				assert.Equal(t, logDir, cfg.LogDir)
				assert.True(t, filepath.IsAbs(cfg.LocatorsFile))
			},
		},
		{
			name: "zero concurrency rejected",
			args: map[string]string{
				flags.FeaturesDir.Name: features,
				flags.Concurrency.Name: "0",
			},
			wantErr: true,
		},
		{
			name: "negative launch rate rejected",
			args: map[string]string{
				flags.FeaturesDir.Name:       features,
				flags.SessionLaunchRate.Name: "-1",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newCLIContext(t, tt.args)
			cfg, err := NewConfig(ctx, log.NewLogger(log.DiscardHandler()), ctx.String(flags.FeaturesDir.Name))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestPipelineExecutionForcesHeadless(t *testing.T) {
	t.Setenv(flags.PipelineExecutionEnv, "true")
	ctx := newCLIContext(t, map[string]string{flags.FeaturesDir.Name: t.TempDir()})
	cfg, err := NewConfig(ctx, log.NewLogger(log.DiscardHandler()), ctx.String(flags.FeaturesDir.Name))
	require.NoError(t, err)
	assert.True(t, cfg.Browser.Headless)
}

func TestErrorClassification(t *testing.T) {
	runtimeErr := NewRuntimeError(StageConfigure, assert.AnError)
	assert.True(t, IsRuntimeError(runtimeErr))
	assert.ErrorIs(t, runtimeErr, assert.AnError)
	assert.False(t, IsScenarioFailureError(runtimeErr))
	assert.Equal(t, "op-uat aborted during configure: "+assert.AnError.Error(), runtimeErr.Error())

	drained := NewRuntimeError(StageRun, fmt.Errorf("run abc: %w after 1s", ErrDrainTimeout))
	assert.Equal(t, StageDrain, drained.Stage)
	assert.ErrorIs(t, drained, ErrDrainTimeout)
	assert.Equal(t, StageRun, NewRuntimeError(StageRun, assert.AnError).Stage)

	failure := NewScenarioFailureError(&RunResult{RunID: "abc", Stats: reporting.Stats{Total: 3, Passed: 2, Failed: 1}})
	assert.True(t, IsScenarioFailureError(fmt.Errorf("start: %w", failure)))
	assert.False(t, IsRuntimeError(failure))
	assert.Equal(t, "run abc: 1 of 3 scenarios failed", failure.Error())
	assert.False(t, IsScenarioFailureError(nil))
	assert.False(t, IsRuntimeError(nil))
}
