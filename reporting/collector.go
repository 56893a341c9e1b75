package reporting

import (
	"errors"
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/ethereum-optimism/infra/op-uat/metrics"
	"github.com/ethereum-optimism/infra/op-uat/types"
)

// ErrFlushed is returned by Flush when the collector was already flushed.
var ErrFlushed = errors.New("collector already flushed")

// executedStep is a step that reached its after-step hook.
type executedStep struct {
	record types.StepRecord
	failed bool
}

// stepQueue tracks the scenario a single worker is running. Declared steps
// wait in pending until the engine reports them; anything still pending when
// the scenario ends never ran.
type stepQueue struct {
	info     types.ScenarioInfo
	pending  *linkedlistqueue.Queue
	executed []executedStep
	started  time.Time
}

func newStepQueue(info types.ScenarioInfo) *stepQueue {
	q := &stepQueue{info: info, pending: linkedlistqueue.New(), started: time.Now()}
	for _, s := range info.Steps {
		q.pending.Enqueue(s)
	}
	return q
}

// Collector turns per-step and per-scenario events from concurrent workers into
// the report tree. Each worker owns its step queue; the feature map is the only
// state shared between workers on the hot path.
type Collector struct {
	sink Sink
	log  log.Logger

	queues sync.Map // types.WorkerID -> *stepQueue

	// sealMu is held shared while events are written and exclusively by Flush,
	// so nothing lands in the sink after it has been rendered.
	sealMu sync.RWMutex
	sealed bool

	featuresMu sync.Mutex
	features   map[string]FeatureNode

	outcomesMu sync.Mutex
	outcomes   []types.ScenarioOutcome
	seen       map[string]struct{}
}

func NewCollector(sink Sink, logger log.Logger) *Collector {
	if logger == nil {
		logger = log.New()
	}
	return &Collector{
		sink:     sink,
		log:      logger.New("component", "collector"),
		features: make(map[string]FeatureNode),
		seen:     make(map[string]struct{}),
	}
}

// BeginScenario seeds the worker's step queue with the scenario's declared steps
// in source order.
func (c *Collector) BeginScenario(worker types.WorkerID, info types.ScenarioInfo) {
	if prev, loaded := c.queues.Swap(worker, newStepQueue(info)); loaded {
		c.log.Warn("Scenario started before previous one ended",
			"worker", worker, "previous", prev.(*stepQueue).info.Name, "scenario", info.Name)
	}
}

// RecordStep records a step that finished executing on worker. The head of the
// pending queue is consumed so the remaining steps stay in order.
func (c *Collector) RecordStep(worker types.WorkerID, record types.StepRecord, passed bool) {
	v, ok := c.queues.Load(worker)
	if !ok {
		c.log.Warn("Step recorded outside a scenario", "worker", worker, "step", record.String())
		return
	}
	q := v.(*stepQueue)
	if head, ok := q.pending.Dequeue(); ok {
		declared := head.(types.StepRecord)
		if declared.Text != record.Text {
			c.log.Debug("Executed step differs from declared step",
				"worker", worker, "declared", declared.String(), "executed", record.String())
		}
		if record.Keyword == "" {
			record.Keyword = declared.Keyword
		}
	}
	q.executed = append(q.executed, executedStep{record: record, failed: !passed})
}

// RecordScenarioEnd writes the finished scenario to the sink. Steps that
// executed are emitted in order; declared steps that never ran are emitted as
// skipped. Duplicate or late outcomes are dropped.
func (c *Collector) RecordScenarioEnd(worker types.WorkerID, outcome types.ScenarioOutcome) {
	c.sealMu.RLock()
	defer c.sealMu.RUnlock()

	var q *stepQueue
	if v, ok := c.queues.LoadAndDelete(worker); ok {
		q = v.(*stepQueue)
	}
	if c.sealed {
		c.log.Warn("Dropping outcome recorded after flush", "worker", worker, "scenario", outcome.ScenarioName)
		return
	}
	if outcome.Status != types.ScenarioFailed {
		outcome.FailedStepText = ""
		outcome.FailureStackTrace = ""
		outcome.Screenshot = nil
	}
	if outcome.Worker == 0 {
		outcome.Worker = worker
	}
	if q != nil && outcome.Duration == 0 {
		outcome.Duration = time.Since(q.started)
	}
	if !c.storeOutcome(outcome) {
		c.log.Warn("Dropping duplicate outcome", "scenario", outcome.ScenarioID)
		return
	}
	metrics.RecordScenario(outcome.FeatureID, outcome.Status)

	c.reportSafely("scenario", func() {
		feature := c.featureNode(outcome.FeatureID)
		node := feature.CreateScenario(outcome.ScenarioName, outcome.Status, outcome.Duration)
		c.emitSteps(node, q, outcome)
	})
}

func (c *Collector) emitSteps(node ScenarioNode, q *stepQueue, outcome types.ScenarioOutcome) {
	detail := FailureDetail{
		StepText:   outcome.FailedStepText,
		StackTrace: outcome.FailureStackTrace,
		Screenshot: outcome.Screenshot,
	}
	failureShown := false
	if q != nil {
		for _, s := range q.executed {
			step := node.CreateStep(s.record.Keyword, s.record.Text)
			if s.failed {
				detail.StepText = s.record.Text
				step.MarkFailed(detail)
				failureShown = true
				metrics.RecordStep(types.ScenarioFailed)
				continue
			}
			step.MarkPassed()
			metrics.RecordStep(types.ScenarioPassed)
		}
	}
	// a failure outside any step, such as session setup, still needs a home
	if outcome.Status == types.ScenarioFailed && !failureShown {
		text := outcome.FailedStepText
		if text == "" {
			text = "scenario setup"
		}
		detail.StepText = text
		node.CreateStep(types.KeywordOther, text).MarkFailed(detail)
	}
	if q == nil {
		return
	}
	if outcome.Status == types.ScenarioPassed && !q.pending.Empty() {
		c.log.Warn("Scenario passed with steps left unexecuted",
			"scenario", outcome.ScenarioName, "remaining", q.pending.Size())
	}
	for !q.pending.Empty() {
		v, _ := q.pending.Dequeue()
		s := v.(types.StepRecord)
		node.CreateStep(s.Keyword, s.Text).MarkSkipped()
		metrics.RecordStep(types.ScenarioSkipped)
	}
}

// AttachFeatureLog appends captured engine output to the feature's node.
func (c *Collector) AttachFeatureLog(featureID string, text string) {
	if text == "" {
		return
	}
	c.sealMu.RLock()
	defer c.sealMu.RUnlock()
	if c.sealed {
		return
	}
	c.reportSafely("feature-log", func() {
		c.featureNode(featureID).AttachLog(text)
	})
}

// ReportError logs and counts a failure in a reporting side path.
func (c *Collector) ReportError(op string, err error) {
	if err == nil {
		return
	}
	rerr := &ReportingError{Op: op, Err: err}
	c.log.Error("Reporting failed", "op", op, "err", rerr)
	metrics.RecordReportingError(op, rerr)
}

// Flush seals the collector and renders the sink. Events arriving afterwards are
// dropped. Scenarios whose worker never reported an end are logged.
func (c *Collector) Flush() error {
	c.sealMu.Lock()
	if c.sealed {
		c.sealMu.Unlock()
		return ErrFlushed
	}
	c.sealed = true
	c.sealMu.Unlock()

	c.queues.Range(func(k, v any) bool {
		q := v.(*stepQueue)
		c.log.Warn("Scenario did not finish before flush", "worker", k, "scenario", q.info.Name)
		return true
	})

	var err error
	c.reportSafely("flush", func() {
		err = c.sink.Flush()
	})
	if err != nil {
		c.ReportError("flush", err)
	}
	return err
}

// Outcomes returns the recorded outcomes in completion order.
func (c *Collector) Outcomes() []types.ScenarioOutcome {
	c.outcomesMu.Lock()
	defer c.outcomesMu.Unlock()
	return append([]types.ScenarioOutcome(nil), c.outcomes...)
}

// Summary counts recorded outcomes by status.
func (c *Collector) Summary() Stats {
	c.outcomesMu.Lock()
	defer c.outcomesMu.Unlock()
	var s Stats
	for _, o := range c.outcomes {
		s.add(o.Status)
	}
	return s
}

func (c *Collector) storeOutcome(o types.ScenarioOutcome) bool {
	c.outcomesMu.Lock()
	defer c.outcomesMu.Unlock()
	if o.ScenarioID != "" {
		if _, dup := c.seen[o.ScenarioID]; dup {
			return false
		}
		c.seen[o.ScenarioID] = struct{}{}
	}
	c.outcomes = append(c.outcomes, o)
	return true
}

func (c *Collector) featureNode(featureID string) FeatureNode {
	c.featuresMu.Lock()
	defer c.featuresMu.Unlock()
	if n, ok := c.features[featureID]; ok {
		return n
	}
	n := c.sink.CreateFeatureNode(featureID)
	c.features[featureID] = n
	return n
}

func (c *Collector) reportSafely(op string, fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		c.ReportError(op, r.AsError())
	}
}
