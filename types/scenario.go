package types

import (
	"fmt"
	"strings"
	"time"
)

// WorkerID identifies one slot of the worker pool. Every per-worker call in the
// runner, registry and collector is keyed by it.
type WorkerID int

func (w WorkerID) String() string {
	return fmt.Sprintf("worker-%d", int(w))
}

// StepKeyword is the Gherkin keyword a step was written with.
type StepKeyword string

const (
	KeywordGiven StepKeyword = "Given"
	KeywordWhen  StepKeyword = "When"
	KeywordThen  StepKeyword = "Then"
	KeywordAnd   StepKeyword = "And"
	KeywordOther StepKeyword = "Other"
)

// ParseStepKeyword maps a written keyword (including trailing space) onto a StepKeyword.
// "But" is folded into And.
func ParseStepKeyword(s string) StepKeyword {
	switch strings.TrimSpace(s) {
	case "Given":
		return KeywordGiven
	case "When":
		return KeywordWhen
	case "Then":
		return KeywordThen
	case "And", "But":
		return KeywordAnd
	default:
		return KeywordOther
	}
}

// StepRecord is one step of a scenario as executed by the BDD engine.
type StepRecord struct {
	Keyword        StepKeyword
	Text           string
	ExecutionOrder int // 1-based position within the scenario
}

func (s StepRecord) String() string {
	return fmt.Sprintf("%s %s", s.Keyword, s.Text)
}

// ScenarioStatus is the final verdict for a scenario.
type ScenarioStatus string

const (
	ScenarioPassed  ScenarioStatus = "passed"
	ScenarioFailed  ScenarioStatus = "failed"
	ScenarioSkipped ScenarioStatus = "skipped"
)

// ScenarioInfo describes a scenario about to run.
type ScenarioInfo struct {
	ID        string
	FeatureID string
	Name      string
	Tags      []string
	Steps     []StepRecord
}

// ScenarioOutcome is the immutable result of one scenario.
type ScenarioOutcome struct {
	ScenarioID        string
	FeatureID         string
	ScenarioName      string
	Status            ScenarioStatus
	FailedStepText    string
	FailureStackTrace string
	Screenshot        []byte // only set when Status is ScenarioFailed
	Worker            WorkerID
	Duration          time.Duration
}

// FeaturePartition is the unit of work handed to a single worker: one feature file.
type FeaturePartition struct {
	ID            string // feature file base name
	Path          string
	Name          string
	ScenarioCount int
}
