package flags

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_UAT"

// PipelineExecutionEnv forces headless browsers when set, as CI runners have no display.
const PipelineExecutionEnv = "PIPELINE_EXECUTION"

var (
	FeaturesDir = &cli.StringFlag{
		Name:     "features",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "FEATURES"),
		Usage:    "Path to the directory from which to discover .feature files",
	}
	Tags = &cli.StringFlag{
		Name:    "tags",
		Value:   "@Test",
		EnvVars: append(opservice.PrefixEnvVar(EnvVarPrefix, "TAGS"), "TAGS"),
		Usage:   "Tag expression selecting the scenarios to run (eg. '@Test && ~@wip')",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   2,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of concurrent workers, each with its own browser session",
	}
	DrainTimeout = &cli.DurationFlag{
		Name:    "drain-timeout",
		Value:   10 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DRAIN_TIMEOUT"),
		Usage:   "Maximum time to wait for all workers before flushing the report",
	}
	Headless = &cli.BoolFlag{
		Name:    "headless",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEADLESS"),
		Usage:   "Run the browser without a window. Forced on when " + PipelineExecutionEnv + " is set.",
	}
	RemoteURL = &cli.StringFlag{
		Name:    "remote-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REMOTE_URL"),
		Usage:   "DevTools endpoint of a remote browser grid. Empty launches a local browser.",
	}
	ChromePath = &cli.StringFlag{
		Name:    "chrome-path",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CHROME_PATH"),
		Usage:   "Path to a local Chrome binary. Empty uses the one found on PATH.",
	}
	SessionLaunchRate = &cli.Float64Flag{
		Name:    "session-launch-rate",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SESSION_LAUNCH_RATE"),
		Usage:   "Maximum browser sessions started per second (0 = unlimited)",
	}
	Locators = &cli.StringFlag{
		Name:    "locators",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOCATORS"),
		Usage:   "Path to a YAML or TOML locator table. Empty uses the built-in table.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store run reports and feature logs",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Log periodic progress updates while scenarios run",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is enabled",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz and report server",
	}
)

var requiredFlags = []cli.Flag{
	FeaturesDir,
}

var optionalFlags = []cli.Flag{
	Tags,
	Concurrency,
	DrainTimeout,
	Headless,
	RemoteURL,
	ChromePath,
	SessionLaunchRate,
	Locators,
	LogDir,
	RunInterval,
	ShowProgress,
	ProgressInterval,
	HealthzAddr,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}

// HeadlessForced reports whether the environment demands a headless browser.
func HeadlessForced() bool {
	v, ok := os.LookupEnv(PipelineExecutionEnv)
	return ok && v != "" && v != "false" && v != "0"
}
