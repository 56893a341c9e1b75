package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/browser/browsertest"
	"github.com/ethereum-optimism/infra/op-uat/reporting"
	"github.com/ethereum-optimism/infra/op-uat/scenario"
	"github.com/ethereum-optimism/infra/op-uat/types"
	"github.com/ethereum-optimism/infra/op-uat/wait"
)

type fakeStep struct {
	text  string
	err   error
	panic bool
	block <-chan struct{}
}

type fakeScenario struct {
	name  string
	steps []fakeStep
}

// scriptedEngine runs canned scenarios per feature, calling hooks the way the
// real engine does.
type scriptedEngine struct {
	features map[string][]fakeScenario
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (e *scriptedEngine) Run(ctx context.Context, p types.FeaturePartition, hooks Hooks) error {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		m := e.maxInFlight.Load()
		if n <= m || e.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	scenarios, ok := e.features[p.ID]
	if !ok {
		return fmt.Errorf("unknown feature %s", p.ID)
	}
	for i, fs := range scenarios {
		info := types.ScenarioInfo{ID: fmt.Sprintf("%s:%d", p.ID, i), FeatureID: p.ID, Name: fs.name}
		for j, st := range fs.steps {
			info.Steps = append(info.Steps, types.StepRecord{Keyword: types.KeywordGiven, Text: st.text, ExecutionOrder: j + 1})
		}

		sc, err := hooks.BeforeScenario(ctx, info)
		if err != nil {
			// godog reports the first step as failed when setup fails
			if len(info.Steps) > 0 {
				hooks.AfterStep(ctx, info.Steps[0], err)
			}
			hooks.AfterScenario(ctx, info, err)
			continue
		}
		var scenarioErr error
		for j, st := range fs.steps {
			if e.delay > 0 {
				time.Sleep(e.delay)
			}
			if st.block != nil {
				<-st.block
			}
			if st.panic {
				panic("step exploded")
			}
			if _, navErr := sc.Page.CurrentURL(ctx); navErr != nil {
				st.err = navErr
			}
			hooks.AfterStep(ctx, info.Steps[j], st.err)
			if st.err != nil {
				scenarioErr = st.err
				break
			}
		}
		hooks.AfterScenario(ctx, info, scenarioErr)
	}
	return nil
}

type harness struct {
	factory   browser.Factory
	fakes     *browsertest.Factory
	registry  *scenario.Registry
	sink      *reporting.TreeSink
	collector *reporting.Collector
}

func newHarness(t *testing.T, factory browser.Factory) *harness {
	t.Helper()
	fakes, _ := factory.(*browsertest.Factory)
	logger := log.NewLogger(log.DiscardHandler())
	reg, err := scenario.NewRegistry(scenario.Config{Factory: factory, Policy: wait.DefaultPolicy(), Log: logger})
	require.NoError(t, err)
	sink := reporting.NewTreeSink("test-run")
	return &harness{
		factory:   factory,
		fakes:     fakes,
		registry:  reg,
		sink:      sink,
		collector: reporting.NewCollector(sink, logger),
	}
}

func (h *harness) dispatcher(t *testing.T, engine Engine, drain time.Duration) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(Config{
		Engine:       engine,
		Registry:     h.registry,
		Collector:    h.collector,
		Log:          log.NewLogger(log.DiscardHandler()),
		DrainTimeout: drain,
	})
	require.NoError(t, err)
	return d
}

func partitions(ids ...string) []types.FeaturePartition {
	out := make([]types.FeaturePartition, len(ids))
	for i, id := range ids {
		out[i] = types.FeaturePartition{ID: id, Path: id + ".feature", Name: id, ScenarioCount: 1}
	}
	return out
}

func outcomesByID(outcomes []types.ScenarioOutcome) map[string]types.ScenarioOutcome {
	m := make(map[string]types.ScenarioOutcome, len(outcomes))
	for _, o := range outcomes {
		m[o.ScenarioID] = o
	}
	return m
}

func passing(name string, steps ...string) fakeScenario {
	fs := fakeScenario{name: name}
	for _, s := range steps {
		fs.steps = append(fs.steps, fakeStep{text: s})
	}
	return fs
}

func TestNewDispatcherValidation(t *testing.T) {
	h := newHarness(t, &browsertest.Factory{})
	_, err := NewDispatcher(Config{Registry: h.registry, Collector: h.collector})
	assert.Error(t, err)
	_, err = NewDispatcher(Config{Engine: &scriptedEngine{}, Collector: h.collector})
	assert.Error(t, err)
	_, err = NewDispatcher(Config{Engine: &scriptedEngine{}, Registry: h.registry})
	assert.Error(t, err)
}

func TestDispatcherRespectsWorkerCount(t *testing.T) {
	h := newHarness(t, &browsertest.Factory{})
	engine := &scriptedEngine{delay: 20 * time.Millisecond, features: map[string][]fakeScenario{}}
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		engine.features[id] = []fakeScenario{passing("s-"+id, "one", "two")}
	}

	summary, err := h.dispatcher(t, engine, time.Minute).Run(context.Background(), partitions(ids...), 2)
	require.NoError(t, err)

	assert.True(t, summary.Drained)
	assert.Equal(t, 5, summary.Completed)
	assert.Equal(t, 2, summary.Workers)
	assert.LessOrEqual(t, engine.maxInFlight.Load(), int32(2))
	assert.Len(t, h.collector.Outcomes(), 5)
	assert.Equal(t, 0, h.registry.Active())
	for _, s := range h.fakes.Sessions() {
		assert.True(t, s.Closed(), "session %s left open", s.ID())
	}
}

func TestDispatcherClampsWorkerCount(t *testing.T) {
	h := newHarness(t, &browsertest.Factory{})
	engine := &scriptedEngine{features: map[string][]fakeScenario{"a": {passing("s", "x")}}}
	summary, err := h.dispatcher(t, engine, time.Minute).Run(context.Background(), partitions("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Workers)
	assert.Equal(t, int32(1), engine.maxInFlight.Load())
}

func TestDispatcherEndToEnd(t *testing.T) {
	h := newHarness(t, &browsertest.Factory{})
	engine := &scriptedEngine{features: map[string][]fakeScenario{
		"login": {
			passing("good password", "the login page", "I sign in", "I see my account"),
			passing("logout", "I am signed in", "I sign out"),
		},
		"search": {{
			name: "no results",
			steps: []fakeStep{
				{text: "the search page"},
				{text: "I search for nothing", err: errors.New("element not found")},
				{text: "I see an empty list"},
			},
		}},
	}}

	summary, err := h.dispatcher(t, engine, time.Minute).Run(context.Background(), partitions("login", "search"), 2)
	require.NoError(t, err)
	require.True(t, summary.Drained)
	require.NoError(t, h.collector.Flush())

	outcomes := outcomesByID(h.collector.Outcomes())
	require.Len(t, outcomes, 3)
	assert.Equal(t, types.ScenarioPassed, outcomes["login:0"].Status)
	assert.Equal(t, types.ScenarioPassed, outcomes["login:1"].Status)

	failed := outcomes["search:0"]
	assert.Equal(t, types.ScenarioFailed, failed.Status)
	assert.Equal(t, "I search for nothing", failed.FailedStepText)
	assert.Contains(t, failed.FailureStackTrace, "element not found")
	assert.NotEmpty(t, failed.Screenshot)
	assert.Equal(t, reporting.Stats{Total: 3, Passed: 2, Failed: 1}, summary.Stats)

	report := h.sink.Report()
	require.Len(t, report.Features, 2)
	for _, f := range report.Features {
		if f.Name != "search" {
			continue
		}
		steps := f.Scenarios[0].Steps
		require.Len(t, steps, 3)
		assert.Equal(t, types.ScenarioPassed, steps[0].Status)
		assert.Equal(t, types.ScenarioFailed, steps[1].Status)
		assert.Equal(t, types.ScenarioSkipped, steps[2].Status)
	}
}

func TestDispatcherPreservesFileOrderWithinFeature(t *testing.T) {
	h := newHarness(t, &browsertest.Factory{})
	var scenarios []fakeScenario
	for i := 0; i < 6; i++ {
		scenarios = append(scenarios, passing(fmt.Sprintf("scenario %d", i), "step"))
	}
	engine := &scriptedEngine{features: map[string][]fakeScenario{"ordered": scenarios, "other": scenarios}}

	_, err := h.dispatcher(t, engine, time.Minute).Run(context.Background(), partitions("ordered", "other"), 2)
	require.NoError(t, err)

	var names []string
	for _, o := range h.collector.Outcomes() {
		if o.FeatureID == "ordered" {
			names = append(names, o.ScenarioName)
		}
	}
	require.Len(t, names, 6)
	for i, name := range names {
		assert.Equal(t, fmt.Sprintf("scenario %d", i), name)
	}
}

// failFirstFactory fails the first n session creations.
type failFirstFactory struct {
	inner *browsertest.Factory
	n     atomic.Int32
}

func (f *failFirstFactory) Create(ctx context.Context) (browser.Session, error) {
	if f.n.Add(-1) >= 0 {
		return nil, &browser.SessionCreationError{Endpoint: "grid", Err: errors.New("no capacity")}
	}
	return f.inner.Create(ctx)
}

func TestDispatcherSessionFailureSkipsRestOfFeature(t *testing.T) {
	factory := &failFirstFactory{inner: &browsertest.Factory{}}
	factory.n.Store(1)
	h := newHarness(t, factory)
	engine := &scriptedEngine{features: map[string][]fakeScenario{
		"broken": {passing("first", "a"), passing("second", "b"), passing("third", "c")},
		"fine":   {passing("only", "d")},
	}}

	summary, err := h.dispatcher(t, engine, time.Minute).Run(context.Background(), partitions("broken", "fine"), 1)
	require.NoError(t, err)
	require.True(t, summary.Drained)

	outcomes := outcomesByID(h.collector.Outcomes())
	require.Len(t, outcomes, 4)
	assert.Equal(t, types.ScenarioFailed, outcomes["broken:0"].Status)
	assert.Contains(t, outcomes["broken:0"].FailureStackTrace, "no capacity")
	assert.Empty(t, outcomes["broken:0"].FailedStepText)
	assert.Nil(t, outcomes["broken:0"].Screenshot)
	assert.Equal(t, types.ScenarioSkipped, outcomes["broken:1"].Status)
	assert.Equal(t, types.ScenarioSkipped, outcomes["broken:2"].Status)
	assert.Equal(t, types.ScenarioPassed, outcomes["fine:0"].Status)
	assert.Len(t, factory.inner.Sessions(), 1)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	h := newHarness(t, &browsertest.Factory{})
	engine := &scriptedEngine{features: map[string][]fakeScenario{
		"explodes": {{name: "boom", steps: []fakeStep{{text: "ok"}, {text: "kaboom", panic: true}}}},
		"calm":     {passing("fine", "x")},
	}}

	var summary *RunSummary
	var err error
	require.NotPanics(t, func() {
		summary, err = h.dispatcher(t, engine, time.Minute).Run(context.Background(), partitions("explodes", "calm"), 2)
	})
	require.NoError(t, err)
	assert.True(t, summary.Drained)
	assert.Equal(t, 2, summary.Completed)

	outcomes := outcomesByID(h.collector.Outcomes())
	require.Len(t, outcomes, 2)
	assert.Equal(t, types.ScenarioFailed, outcomes["explodes:0"].Status)
	assert.Contains(t, outcomes["explodes:0"].FailureStackTrace, "step exploded")
	assert.Equal(t, types.ScenarioPassed, outcomes["calm:0"].Status)
	assert.Equal(t, 0, h.registry.Active())
	for _, s := range h.fakes.Sessions() {
		assert.True(t, s.Closed())
	}
}

func TestDispatcherDrainTimeoutDoesNotBlockFlush(t *testing.T) {
	h := newHarness(t, &browsertest.Factory{})
	stuck := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(stuck) }) }
	t.Cleanup(unblock)

	engine := &scriptedEngine{features: map[string][]fakeScenario{
		"hung":  {{name: "never ends", steps: []fakeStep{{text: "wait forever", block: stuck}}}},
		"quick": {passing("fast", "x")},
	}}

	start := time.Now()
	summary, err := h.dispatcher(t, engine, 200*time.Millisecond).Run(context.Background(), partitions("hung", "quick"), 2)
	require.NoError(t, err)
	assert.False(t, summary.Drained)
	assert.Less(t, time.Since(start), 5*time.Second)

	flushed := make(chan error, 1)
	go func() { flushed <- h.collector.Flush() }()
	select {
	case err := <-flushed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("flush blocked by a stalled worker")
	}

	outcomes := outcomesByID(h.collector.Outcomes())
	assert.Contains(t, outcomes, "quick:0")
	assert.NotContains(t, outcomes, "hung:0")

	// the abandoned worker finishing late must not reach the report
	unblock()
	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, outcomesByID(h.collector.Outcomes()), "hung:0")
}

// featureDone reports every completed feature on a channel.
type featureDone struct {
	noOpProgressIndicator
	done chan string
}

func (f featureDone) CompleteFeature(id string) { f.done <- id }

func TestAbandonedWorkerCannotTouchNextRun(t *testing.T) {
	fakes := &browsertest.Factory{}
	h := newHarness(t, fakes)
	logger := log.NewLogger(log.DiscardHandler())

	stuck := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(stuck) }) }
	t.Cleanup(unblock)

	firstDone := make(chan string, 1)
	first, err := NewDispatcher(Config{
		Engine: &scriptedEngine{features: map[string][]fakeScenario{
			"hung": {
				{name: "never ends", steps: []fakeStep{{text: "wait forever", block: stuck}}},
				passing("after the stall", "x"),
			},
		}},
		Registry:     h.registry,
		Collector:    h.collector,
		Log:          logger,
		DrainTimeout: 100 * time.Millisecond,
		Progress:     featureDone{done: firstDone},
	})
	require.NoError(t, err)
	summary, err := first.Run(context.Background(), partitions("hung"), 1)
	require.NoError(t, err)
	require.False(t, summary.Drained)
	require.Len(t, fakes.Sessions(), 1)
	assert.True(t, fakes.Sessions()[0].Closed())

	// second run, same registry and same worker id
	collector := reporting.NewCollector(reporting.NewTreeSink("second-run"), logger)
	hold := make(chan struct{})
	second, err := NewDispatcher(Config{
		Engine: &scriptedEngine{features: map[string][]fakeScenario{
			"next": {{name: "healthy", steps: []fakeStep{{text: "held", block: hold}, {text: "then done"}}}},
		}},
		Registry:     h.registry,
		Collector:    collector,
		Log:          logger,
		DrainTimeout: time.Minute,
	})
	require.NoError(t, err)

	type result struct {
		summary *RunSummary
		err     error
	}
	secondDone := make(chan result, 1)
	go func() {
		s, err := second.Run(context.Background(), partitions("next"), 1)
		secondDone <- result{s, err}
	}()
	require.Eventually(t, func() bool { return h.registry.Active() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.Len(t, fakes.Sessions(), 2)
	live := fakes.Sessions()[1]

	// the abandoned worker wakes up and runs the rest of its feature
	unblock()
	select {
	case id := <-firstDone:
		assert.Equal(t, "hung", id)
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned worker never finished its feature")
	}
	assert.False(t, live.Closed(), "abandoned worker closed the next run's session")
	assert.Equal(t, 1, h.registry.Active())
	assert.Len(t, fakes.Sessions(), 2, "abandoned worker started a new session")

	close(hold)
	var res result
	select {
	case res = <-secondDone:
	case <-time.After(5 * time.Second):
		t.Fatal("second run did not finish")
	}
	require.NoError(t, res.err)
	assert.True(t, res.summary.Drained)
	require.NoError(t, collector.Flush())

	outcomes := outcomesByID(collector.Outcomes())
	require.Contains(t, outcomes, "next:0")
	assert.Equal(t, types.ScenarioPassed, outcomes["next:0"].Status)
	assert.Empty(t, outcomes["next:0"].FailedStepText)
	assert.True(t, live.Closed())
	assert.Equal(t, 0, h.registry.Active())
}

func TestDispatcherEmptyRun(t *testing.T) {
	h := newHarness(t, &browsertest.Factory{})
	summary, err := h.dispatcher(t, &scriptedEngine{}, time.Minute).Run(context.Background(), nil, 3)
	require.NoError(t, err)
	assert.True(t, summary.Drained)
	assert.Equal(t, 0, summary.Completed)
}
