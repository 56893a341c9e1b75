package reporting

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-uat/types"
)

// Stats counts scenarios or steps by status.
type Stats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

func (s *Stats) add(status types.ScenarioStatus) {
	s.Total++
	switch status {
	case types.ScenarioPassed:
		s.Passed++
	case types.ScenarioFailed:
		s.Failed++
	case types.ScenarioSkipped:
		s.Skipped++
	}
}

// Status folds the counts into a single verdict.
func (s Stats) Status() types.ScenarioStatus {
	switch {
	case s.Failed > 0:
		return types.ScenarioFailed
	case s.Passed > 0:
		return types.ScenarioPassed
	default:
		return types.ScenarioSkipped
	}
}

// Report is an immutable snapshot of the tree, handed to renderers.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Features []*FeatureReport
	Stats    Stats
}

type FeatureReport struct {
	Name      string
	Log       string
	Scenarios []*ScenarioReport
	Stats     Stats
}

type ScenarioReport struct {
	Name      string
	Status    types.ScenarioStatus
	Duration  time.Duration
	Steps     []*StepReport
	StepStats Stats
}

type StepReport struct {
	Keyword types.StepKeyword
	Text    string
	Status  types.ScenarioStatus
	Failure *FailureDetail
}

// Renderer turns a finished report into an artifact.
type Renderer interface {
	Render(r *Report) error
}

var _ Sink = (*TreeSink)(nil)

// TreeSink keeps the report in memory and renders it on Flush.
type TreeSink struct {
	runID     string
	started   time.Time
	renderers []Renderer

	mu       sync.Mutex
	features []*featureNode
}

func NewTreeSink(runID string, renderers ...Renderer) *TreeSink {
	return &TreeSink{
		runID:     runID,
		started:   time.Now(),
		renderers: renderers,
	}
}

func (s *TreeSink) CreateFeatureNode(name string) FeatureNode {
	n := &featureNode{name: name}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = append(s.features, n)
	return n
}

// Flush renders the current snapshot through every renderer.
func (s *TreeSink) Flush() error {
	report := s.Report()
	var errs []error
	for _, r := range s.renderers {
		errs = append(errs, r.Render(report))
	}
	return errors.Join(errs...)
}

// Report takes a snapshot of the tree.
func (s *TreeSink) Report() *Report {
	s.mu.Lock()
	features := append([]*featureNode(nil), s.features...)
	s.mu.Unlock()

	r := &Report{
		RunID:    s.runID,
		Started:  s.started,
		Duration: time.Since(s.started),
	}
	for _, f := range features {
		fr := f.snapshot()
		r.Features = append(r.Features, fr)
		for _, sc := range fr.Scenarios {
			r.Stats.add(sc.Status)
		}
	}
	return r
}

type featureNode struct {
	name string

	mu        sync.Mutex
	log       string
	scenarios []*scenarioNode
}

func (f *featureNode) CreateScenario(name string, status types.ScenarioStatus, duration time.Duration) ScenarioNode {
	n := &scenarioNode{name: name, status: status, duration: duration}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scenarios = append(f.scenarios, n)
	return n
}

func (f *featureNode) AttachLog(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log += text
}

func (f *featureNode) snapshot() *FeatureReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr := &FeatureReport{Name: f.name, Log: f.log}
	for _, sc := range f.scenarios {
		sr := sc.snapshot()
		fr.Scenarios = append(fr.Scenarios, sr)
		fr.Stats.add(sr.Status)
	}
	return fr
}

type scenarioNode struct {
	name     string
	status   types.ScenarioStatus
	duration time.Duration

	mu    sync.Mutex
	steps []*stepNode
}

func (s *scenarioNode) CreateStep(keyword types.StepKeyword, text string) StepNode {
	n := &stepNode{keyword: keyword, text: text}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, n)
	return n
}

func (s *scenarioNode) snapshot() *ScenarioReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr := &ScenarioReport{Name: s.name, Status: s.status, Duration: s.duration}
	for _, st := range s.steps {
		step := st.snapshot()
		sr.Steps = append(sr.Steps, step)
		sr.StepStats.add(step.Status)
	}
	return sr
}

type stepNode struct {
	keyword types.StepKeyword
	text    string

	mu      sync.Mutex
	status  types.ScenarioStatus
	failure *FailureDetail
}

func (n *stepNode) mark(status types.ScenarioStatus, failure *FailureDetail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status != "" {
		return
	}
	n.status = status
	n.failure = failure
}

func (n *stepNode) MarkPassed()  { n.mark(types.ScenarioPassed, nil) }
func (n *stepNode) MarkSkipped() { n.mark(types.ScenarioSkipped, nil) }
func (n *stepNode) MarkFailed(detail FailureDetail) {
	n.mark(types.ScenarioFailed, &detail)
}

func (n *stepNode) snapshot() *StepReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	status := n.status
	if status == "" {
		status = types.ScenarioSkipped
	}
	return &StepReport{Keyword: n.keyword, Text: n.text, Status: status, Failure: n.failure}
}
