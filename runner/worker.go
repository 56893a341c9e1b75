package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/reporting"
	"github.com/ethereum-optimism/infra/op-uat/scenario"
	"github.com/ethereum-optimism/infra/op-uat/types"
)

// screenshotTimeout bounds failure screenshots so a hung browser cannot stall
// the worker after a step has already failed.
const screenshotTimeout = 10 * time.Second

// workerHooks are the Hooks handed to the engine for one partition on one
// worker. They are only ever called from that worker's goroutine.
type workerHooks struct {
	id        types.WorkerID
	partition types.FeaturePartition
	registry  *scenario.Registry
	collector *reporting.Collector
	progress  ProgressIndicator
	tracer    trace.Tracer
	log       log.Logger

	// set once the session could not be created; the rest of the partition is skipped
	aborted bool

	inFlight   *types.ScenarioInfo
	current    *scenario.Context
	started    time.Time
	span       trace.Span
	failedStep string
	stackTrace string
	screenshot []byte
}

var _ Hooks = (*workerHooks)(nil)

func (h *workerHooks) BeforeScenario(ctx context.Context, info types.ScenarioInfo) (*scenario.Context, error) {
	h.reset(info)
	_, h.span = h.tracer.Start(ctx, fmt.Sprintf("scenario %s", info.Name),
		trace.WithAttributes(
			attribute.String("feature", info.FeatureID),
			attribute.String("worker", h.id.String()),
		))
	h.collector.BeginScenario(h.id, info)
	h.progress.StartScenario(info.Name)

	if h.aborted {
		return nil, ErrWorkerAborted
	}
	sc, err := h.registry.Acquire(ctx, h.id)
	if err != nil {
		if browser.IsSessionCreationError(err) {
			h.aborted = true
			h.log.Error("Browser session unavailable, skipping rest of feature", "scenario", info.Name, "err", err)
		}
		return nil, err
	}
	h.current = sc
	return sc, nil
}

func (h *workerHooks) AfterStep(ctx context.Context, step types.StepRecord, err error) {
	if h.current == nil {
		// no context was bound, so the step never ran; the engine may still
		// report it when the scenario setup failed
		h.log.Debug("Ignoring step without a scenario context", "step", step.String())
		return
	}
	h.collector.RecordStep(h.id, step, err == nil)
	if err == nil || h.failedStep != "" {
		return
	}
	h.failedStep = step.Text
	h.stackTrace = fmt.Sprintf("%+v", err)
	h.screenshot = h.captureScreenshot(ctx)
	h.log.Debug("Step failed", "step", step.String(), "err", err)
}

func (h *workerHooks) AfterScenario(ctx context.Context, info types.ScenarioInfo, err error) {
	if h.inFlight == nil {
		h.log.Warn("AfterScenario without BeforeScenario", "scenario", info.Name)
		h.reset(info)
	}
	status := types.ScenarioPassed
	switch {
	case errors.Is(err, ErrWorkerAborted):
		status = types.ScenarioSkipped
	case err != nil:
		status = types.ScenarioFailed
		if h.stackTrace == "" {
			h.stackTrace = fmt.Sprintf("%+v", err)
		}
	}

	h.collector.RecordScenarioEnd(h.id, types.ScenarioOutcome{
		ScenarioID:        info.ID,
		FeatureID:         info.FeatureID,
		ScenarioName:      info.Name,
		Status:            status,
		FailedStepText:    h.failedStep,
		FailureStackTrace: h.stackTrace,
		Screenshot:        h.screenshot,
		Worker:            h.id,
		Duration:          time.Since(h.started),
	})

	if relErr := h.registry.Release(h.id, h.current); relErr != nil {
		h.log.Warn("Failed to release scenario context", "scenario", info.Name, "err", relErr)
	}
	h.progress.UpdateScenario(info.Name, status)

	if h.span != nil {
		h.span.SetAttributes(attribute.String("status", string(status)))
		if status == types.ScenarioFailed {
			h.span.RecordError(err)
			h.span.SetStatus(codes.Error, h.failedStep)
		}
		h.span.End()
	}
	h.inFlight = nil
	h.current = nil
	h.span = nil
}

// abandon closes out a scenario that never reached AfterScenario, e.g. because
// the engine panicked mid-scenario.
func (h *workerHooks) abandon(ctx context.Context, err error) {
	if h.inFlight == nil {
		return
	}
	h.AfterScenario(ctx, *h.inFlight, err)
}

func (h *workerHooks) reset(info types.ScenarioInfo) {
	h.inFlight = &info
	h.current = nil
	h.started = time.Now()
	h.failedStep = ""
	h.stackTrace = ""
	h.screenshot = nil
}

func (h *workerHooks) captureScreenshot(ctx context.Context) []byte {
	if h.current == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()
	png, err := h.current.Session.Screenshot(ctx)
	if err != nil {
		h.collector.ReportError("screenshot", err)
		return nil
	}
	return png
}
