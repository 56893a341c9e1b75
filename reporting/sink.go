// Package reporting aggregates scenario outcomes into a report tree and renders it.
package reporting

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-uat/types"
)

// Sink receives the report tree as scenarios finish.
type Sink interface {
	CreateFeatureNode(name string) FeatureNode
	Flush() error
}

// FeatureNode groups the scenarios of one feature file.
type FeatureNode interface {
	CreateScenario(name string, status types.ScenarioStatus, duration time.Duration) ScenarioNode
	AttachLog(text string)
}

// ScenarioNode holds the steps of one scenario.
type ScenarioNode interface {
	CreateStep(keyword types.StepKeyword, text string) StepNode
}

// StepNode is marked exactly once.
type StepNode interface {
	MarkPassed()
	MarkFailed(detail FailureDetail)
	MarkSkipped()
}

// FailureDetail is attached to the failing step of a scenario.
type FailureDetail struct {
	StepText   string
	StackTrace string
	Screenshot []byte
}

// ReportingError wraps a failure inside the reporting layer. It is logged and
// counted, never returned to a scenario.
type ReportingError struct {
	Op  string
	Err error
}

func (e *ReportingError) Error() string {
	return fmt.Sprintf("reporting %s: %v", e.Op, e.Err)
}

func (e *ReportingError) Unwrap() error {
	return e.Err
}
