package runner

import (
	"context"
	"errors"

	"github.com/ethereum-optimism/infra/op-uat/scenario"
	"github.com/ethereum-optimism/infra/op-uat/types"
)

// ErrWorkerAborted is returned from BeforeScenario once the worker's session
// could not be created. The engine must not run the scenario's steps.
var ErrWorkerAborted = errors.New("worker aborted: browser session unavailable")

// Engine executes the scenarios of one partition sequentially, in file order.
type Engine interface {
	Run(ctx context.Context, partition types.FeaturePartition, hooks Hooks) error
}

// Hooks are called by the engine around every scenario and step.
//
// If BeforeScenario returns an error the engine must skip the steps and still
// call AfterScenario with that error. AfterStep is only called for steps that
// executed; err is nil when the step passed.
type Hooks interface {
	BeforeScenario(ctx context.Context, info types.ScenarioInfo) (*scenario.Context, error)
	AfterStep(ctx context.Context, step types.StepRecord, err error)
	AfterScenario(ctx context.Context, info types.ScenarioInfo, err error)
}
