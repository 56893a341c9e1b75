package uat

import (
	"errors"
	"fmt"
)

// ErrDrainTimeout is wrapped by the error of a run whose workers were still
// busy when the drain timeout elapsed.
var ErrDrainTimeout = errors.New("drain timeout elapsed")

// Stages reported by a RuntimeError.
const (
	StageConfigure = "configure"
	StageStart     = "start"
	StageRun       = "run"
	StageDrain     = "drain"
)

// RuntimeError means op-uat itself could not finish a run, as opposed to a
// scenario failing inside one. The cli exits with code 2.
type RuntimeError struct {
	Stage string
	Err   error
}

func (e *RuntimeError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("op-uat aborted: %v", e.Err)
	}
	return fmt.Sprintf("op-uat aborted during %s: %v", e.Stage, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError tags err with the stage it happened in. A run error caused by
// the drain timeout is reported as StageDrain.
func NewRuntimeError(stage string, err error) *RuntimeError {
	if stage == StageRun && errors.Is(err, ErrDrainTimeout) {
		stage = StageDrain
	}
	return &RuntimeError{Stage: stage, Err: err}
}

func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return errors.As(err, &runtimeErr)
}

// ScenarioFailureError is returned from a run-once run in which at least one
// selected scenario failed. The cli exits with code 1.
type ScenarioFailureError struct {
	RunID  string
	Failed int
	Total  int
}

func (e *ScenarioFailureError) Error() string {
	return fmt.Sprintf("run %s: %d of %d scenarios failed", e.RunID, e.Failed, e.Total)
}

// NewScenarioFailureError summarises the failed scenarios of result.
func NewScenarioFailureError(result *RunResult) *ScenarioFailureError {
	return &ScenarioFailureError{RunID: result.RunID, Failed: result.Stats.Failed, Total: result.Stats.Total}
}

func IsScenarioFailureError(err error) bool {
	var failure *ScenarioFailureError
	return errors.As(err, &failure)
}
