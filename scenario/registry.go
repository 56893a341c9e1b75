package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-uat/assertion"
	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/locator"
	"github.com/ethereum-optimism/infra/op-uat/metrics"
	"github.com/ethereum-optimism/infra/op-uat/page"
	"github.com/ethereum-optimism/infra/op-uat/types"
	"github.com/ethereum-optimism/infra/op-uat/wait"
)

// Config contains registry configuration
type Config struct {
	Factory  browser.Factory
	Locators *locator.Tables
	Policy   wait.Policy
	Log      log.Logger
}

// Registry binds at most one Context to each worker. The mutex guards only the
// binding map; a bound Context is used by its worker alone.
type Registry struct {
	factory  browser.Factory
	locators *locator.Tables
	policy   wait.Policy
	log      log.Logger

	mu    sync.Mutex
	bound map[types.WorkerID]*Context
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Factory == nil {
		return nil, errors.New("browser factory is required")
	}
	if cfg.Locators == nil {
		cfg.Locators = locator.DefaultTables()
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Registry{
		factory:  cfg.Factory,
		locators: cfg.Locators,
		policy:   cfg.Policy,
		log:      cfg.Log.New("component", "context-registry"),
		bound:    make(map[types.WorkerID]*Context),
	}, nil
}

// Acquire returns the context bound to worker, creating it on first use. Until
// Release is called, every Acquire for the same worker returns the same Context.
// When the browser session cannot be created nothing is bound and a
// *browser.SessionCreationError is returned.
//
// A worker whose ctx is already done never binds or receives a context, so a
// worker abandoned by an earlier run cannot pick up the binding of its successor.
func (r *Registry) Acquire(ctx context.Context, worker types.WorkerID) (*Context, error) {
	r.mu.Lock()
	if err := canceled(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if sc, ok := r.bound[worker]; ok {
		r.mu.Unlock()
		return sc, nil
	}
	r.mu.Unlock()

	session, err := r.factory.Create(ctx)
	metrics.RecordSessionCreated(err)
	if err != nil {
		if !browser.IsSessionCreationError(err) {
			err = &browser.SessionCreationError{Endpoint: "unknown", Err: err}
		}
		r.log.Error("Failed to create browser session", "worker", worker, "err", err)
		return nil, err
	}

	waits := wait.New(session, r.policy)
	sc := &Context{
		Worker:     worker,
		Session:    session,
		Waits:      waits,
		Assertions: assertion.NewLog(),
		Locators:   r.locators,
		Page:       page.New(session, waits, r.locators, r.log.New("worker", worker)),
		Created:    time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := canceled(ctx); err != nil {
		_ = session.Close()
		metrics.RecordSessionClosed()
		return nil, err
	}
	if existing, ok := r.bound[worker]; ok {
		// lost a race with ourselves; keep the first binding
		_ = session.Close()
		metrics.RecordSessionClosed()
		return existing, nil
	}
	r.bound[worker] = sc
	r.log.Debug("Scenario context acquired", "worker", worker, "session", session.ID())
	return sc, nil
}

func canceled(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return &browser.SessionCreationError{Endpoint: "unknown", Err: context.Cause(ctx)}
}

// Release tears down sc if it is still the context bound to worker: the binding
// is removed, the assertion log cleared and the session closed. Releasing a
// context that is no longer bound, or a nil one, is a no-op; a stale caller can
// therefore never close a context acquired after its own.
func (r *Registry) Release(worker types.WorkerID, sc *Context) error {
	if sc == nil {
		return nil
	}
	r.mu.Lock()
	bound, ok := r.bound[worker]
	if !ok || bound != sc {
		r.mu.Unlock()
		return nil
	}
	delete(r.bound, worker)
	r.mu.Unlock()

	sc.Assertions.Clear()
	err := sc.Session.Close()
	metrics.RecordSessionClosed()
	if err != nil {
		r.log.Warn("Failed to close browser session", "worker", worker, "session", sc.Session.ID(), "err", err)
		return fmt.Errorf("close session %s: %w", sc.Session.ID(), err)
	}
	r.log.Debug("Scenario context released", "worker", worker, "session", sc.Session.ID())
	return nil
}

// ReleaseAll releases every bound context. Used when abandoning stalled workers.
func (r *Registry) ReleaseAll() error {
	r.mu.Lock()
	bound := make(map[types.WorkerID]*Context, len(r.bound))
	for w, sc := range r.bound {
		bound[w] = sc
	}
	r.mu.Unlock()

	var errs []error
	for w, sc := range bound {
		errs = append(errs, r.Release(w, sc))
	}
	return errors.Join(errs...)
}

// Active returns the number of bound contexts.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bound)
}
