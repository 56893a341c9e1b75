// Package bdd runs Gherkin feature files through godog and reports every
// scenario and step to the runner's hooks.
package bdd

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-uat/logging"
	"github.com/ethereum-optimism/infra/op-uat/runner"
	"github.com/ethereum-optimism/infra/op-uat/scenario"
	"github.com/ethereum-optimism/infra/op-uat/types"
)

const DefaultTags = "@Test"

type ctxKey int

const scenarioKey ctxKey = 0

// FromContext returns the scenario context bound by the before-scenario hook.
func FromContext(ctx context.Context) *scenario.Context {
	sc, _ := ctx.Value(scenarioKey).(*scenario.Context)
	return sc
}

// FeatureLogSink receives the captured engine output of a feature.
type FeatureLogSink interface {
	AttachFeatureLog(featureID string, text string)
}

// Config contains engine configuration
type Config struct {
	Tags string
	Log  log.Logger
	// Files, when set, receives the cleaned output of every feature.
	Files *logging.FileLogger
	// Report, when set, has the cleaned output attached to the feature node.
	Report FeatureLogSink
	// Steps registers additional step definitions after the standard library.
	Steps func(sc *godog.ScenarioContext)
}

// Engine runs one godog suite per partition.
type Engine struct {
	tags   string
	log    log.Logger
	files  *logging.FileLogger
	report FeatureLogSink
	steps  func(sc *godog.ScenarioContext)
}

var _ runner.Engine = (*Engine)(nil)

func NewEngine(cfg Config) *Engine {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Engine{
		tags:   cfg.Tags,
		log:    cfg.Log.New("component", "bdd"),
		files:  cfg.Files,
		report: cfg.Report,
		steps:  cfg.Steps,
	}
}

// Run executes the partition's scenarios in file order. Scenario failures are
// reported through hooks, not returned; only a suite that could not run at all
// is an error.
func (e *Engine) Run(ctx context.Context, p types.FeaturePartition, hooks runner.Hooks) error {
	var out bytes.Buffer
	st := &suiteState{partition: p, hooks: hooks, log: e.log.New("feature", p.Name)}

	suite := godog.TestSuite{
		Name: p.Name,
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			st.initialize(sc)
			RegisterSteps(sc, st.log)
			if e.steps != nil {
				e.steps(sc)
			}
		},
		Options: &godog.Options{
			Format:         "pretty",
			Output:         &out,
			NoColors:       true,
			Paths:          []string{p.Path},
			Tags:           e.tags,
			Concurrency:    1,
			Strict:         true,
			DefaultContext: ctx,
		},
	}

	status := suite.Run()
	e.publishOutput(p, out.String())

	switch status {
	case 0, 1:
		return nil
	default:
		return fmt.Errorf("godog could not run %s: exit status %d", p.Path, status)
	}
}

func (e *Engine) publishOutput(p types.FeaturePartition, raw string) {
	cleaned := logging.CleanOutput(raw)
	if e.files != nil {
		var err error
		if cleaned, err = e.files.LogFeatureOutput(p.ID, raw); err != nil {
			e.log.Warn("Failed to write feature log", "feature", p.ID, "err", err)
		}
	}
	if e.report != nil {
		e.report.AttachFeatureLog(p.Name, cleaned)
	}
}

// suiteState maps godog's pickles onto runner types. godog runs a suite with
// Concurrency 1, so no locking is needed.
type suiteState struct {
	partition types.FeaturePartition
	hooks     runner.Hooks
	log       log.Logger

	infos map[string]types.ScenarioInfo
	steps map[string]types.StepRecord

	// setupFailed is set while the current scenario has no bound context.
	// godog still reports its first step as failed; that report is dropped.
	setupFailed bool
}

func (s *suiteState) initialize(sc *godog.ScenarioContext) {
	if s.infos == nil {
		s.infos = make(map[string]types.ScenarioInfo)
		s.steps = make(map[string]types.StepRecord)
	}

	sc.Before(func(ctx context.Context, pickle *godog.Scenario) (context.Context, error) {
		info := s.scenarioInfo(pickle)
		sctx, err := s.hooks.BeforeScenario(ctx, info)
		s.setupFailed = err != nil
		if err != nil {
			return ctx, err
		}
		return context.WithValue(ctx, scenarioKey, sctx), nil
	})

	sc.StepContext().After(func(ctx context.Context, step *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
		if s.setupFailed {
			return ctx, err
		}
		record, ok := s.steps[step.Id]
		if !ok {
			record = types.StepRecord{Keyword: types.KeywordOther, Text: step.Text}
		}
		switch status {
		case godog.StepPassed:
			s.hooks.AfterStep(ctx, record, nil)
		case godog.StepFailed:
			s.hooks.AfterStep(ctx, record, err)
		case godog.StepUndefined:
			s.hooks.AfterStep(ctx, record, orDefault(err, fmt.Errorf("%w: %s", godog.ErrUndefined, step.Text)))
		case godog.StepPending:
			s.hooks.AfterStep(ctx, record, orDefault(err, fmt.Errorf("%w: %s", godog.ErrPending, step.Text)))
		case godog.StepAmbiguous:
			s.hooks.AfterStep(ctx, record, orDefault(err, fmt.Errorf("%w: %s", godog.ErrAmbiguous, step.Text)))
		}
		return ctx, err
	})

	sc.After(func(ctx context.Context, pickle *godog.Scenario, err error) (context.Context, error) {
		info, ok := s.infos[pickle.Id]
		if !ok {
			info = s.scenarioInfo(pickle)
		}
		s.hooks.AfterScenario(ctx, info, err)
		s.setupFailed = false
		delete(s.infos, pickle.Id)
		return ctx, err
	})
}

func (s *suiteState) scenarioInfo(pickle *godog.Scenario) types.ScenarioInfo {
	info := types.ScenarioInfo{
		ID:        s.partition.ID + "#" + pickle.Id,
		FeatureID: s.partition.Name,
		Name:      pickle.Name,
	}
	for _, tag := range pickle.Tags {
		info.Tags = append(info.Tags, tag.Name)
	}
	info.Steps = StepRecords(pickle.Steps)
	for i, step := range pickle.Steps {
		s.steps[step.Id] = info.Steps[i]
	}
	s.infos[pickle.Id] = info
	return info
}

// StepRecords derives written keywords from the pickle step types: context is
// Given, action is When, outcome is Then, and a repeat of the previous type is
// And.
func StepRecords(steps []*messages.PickleStep) []types.StepRecord {
	records := make([]types.StepRecord, len(steps))
	var prev messages.PickleStepType
	for i, step := range steps {
		keyword := types.KeywordOther
		switch {
		case step.Type == messages.PickleStepType_UNKNOWN || step.Type == "":
		case i > 0 && step.Type == prev:
			keyword = types.KeywordAnd
		case step.Type == messages.PickleStepType_CONTEXT:
			keyword = types.KeywordGiven
		case step.Type == messages.PickleStepType_ACTION:
			keyword = types.KeywordWhen
		case step.Type == messages.PickleStepType_OUTCOME:
			keyword = types.KeywordThen
		}
		prev = step.Type
		records[i] = types.StepRecord{
			Keyword:        keyword,
			Text:           strings.TrimSpace(step.Text),
			ExecutionOrder: i + 1,
		}
	}
	return records
}

func orDefault(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
