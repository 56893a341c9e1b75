package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	uat "github.com/ethereum-optimism/infra/op-uat"
	"github.com/ethereum-optimism/infra/op-uat/exitcodes"
	"github.com/ethereum-optimism/infra/op-uat/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-uat"
	app.Usage = "UI Acceptance Tester"
	app.Description = "op-uat runs tagged BDD feature files against real browsers and publishes an HTML report"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = exitErrHandler
	return app
}

func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		cli.HandleExitCoder(exitErr)
		return
	}
	cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
}

// exitCode maps typed errors to process exit codes. Unclassified errors are
// treated as scenario failures, matching the default cli behaviour.
func exitCode(err error) int {
	if uat.IsRuntimeError(err) {
		return exitcodes.RuntimeErr
	}
	return exitcodes.ForError(err, func(error) bool { return true })
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := uat.NewConfig(ctx, log, ctx.String(flags.FeaturesDir.Name))
	if err != nil {
		return nil, uat.NewRuntimeError(uat.StageConfigure, err)
	}

	cfg.Log.Debug("Config", "config", cfg)

	svc, err := uat.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, uat.NewRuntimeError(uat.StageStart, err)
	}
	return svc, nil
}
