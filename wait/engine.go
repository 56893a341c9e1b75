// Package wait implements polling waits against a browser session.
//
// Every wait is a two-state machine: it keeps searching, polling the session at a
// fixed interval, until its condition holds (found) or the budget for its class of
// operation is spent (timed out). There is no retry beyond the poll loop.
package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/locator"
)

const (
	DefaultPollInterval    = 250 * time.Millisecond
	PageReadyTimeout       = 30 * time.Second
	URLChangeTimeout       = 60 * time.Second
	ElementPresenceTimeout = 45 * time.Second
	ElementStateTimeout    = 45 * time.Second
)

// Class groups operations that share a timeout budget.
type Class int

const (
	ClassPageReady Class = iota
	ClassURLChange
	ClassElementPresence
	ClassElementState
)

func (c Class) String() string {
	switch c {
	case ClassPageReady:
		return "page-ready"
	case ClassURLChange:
		return "url-change"
	case ClassElementPresence:
		return "element-presence"
	case ClassElementState:
		return "element-state"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Policy holds the poll interval and per-class budgets.
type Policy struct {
	PollInterval    time.Duration
	PageReady       time.Duration
	URLChange       time.Duration
	ElementPresence time.Duration
	ElementState    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		PollInterval:    DefaultPollInterval,
		PageReady:       PageReadyTimeout,
		URLChange:       URLChangeTimeout,
		ElementPresence: ElementPresenceTimeout,
		ElementState:    ElementStateTimeout,
	}
}

// Timeout returns the budget for c, falling back to the default for unset values.
func (p Policy) Timeout(c Class) time.Duration {
	d := DefaultPolicy()
	pick := func(v, def time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return def
	}
	switch c {
	case ClassPageReady:
		return pick(p.PageReady, d.PageReady)
	case ClassURLChange:
		return pick(p.URLChange, d.URLChange)
	case ClassElementPresence:
		return pick(p.ElementPresence, d.ElementPresence)
	default:
		return pick(p.ElementState, d.ElementState)
	}
}

func (p Policy) interval() time.Duration {
	if p.PollInterval > 0 {
		return p.PollInterval
	}
	return DefaultPollInterval
}

// ElementNotFoundError reports an element wait that timed out.
type ElementNotFoundError struct {
	Locator   string
	Condition string
	Elapsed   time.Duration
	LastErr   error
}

func (e *ElementNotFoundError) Error() string {
	msg := fmt.Sprintf("element %s not %s after %s", e.Locator, e.Condition, e.Elapsed.Truncate(time.Millisecond))
	if e.LastErr != nil {
		msg += fmt.Sprintf(": %v", e.LastErr)
	}
	return msg
}

func (e *ElementNotFoundError) Unwrap() error { return e.LastErr }

// TimeoutError reports a page or URL wait that timed out.
type TimeoutError struct {
	Condition string
	Class     Class
	Elapsed   time.Duration
	LastErr   error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s", e.Elapsed.Truncate(time.Millisecond), e.Condition)
	if e.LastErr != nil {
		msg += fmt.Sprintf(": %v", e.LastErr)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// IsElementNotFound checks if the error is or wraps an ElementNotFoundError
func IsElementNotFound(err error) bool {
	var notFound *ElementNotFoundError
	return err != nil && errors.As(err, &notFound)
}

// Engine runs waits against one session. It keeps no state of its own.
type Engine struct {
	session browser.Session
	policy  Policy
}

func New(session browser.Session, policy Policy) *Engine {
	return &Engine{session: session, policy: policy}
}

func (e *Engine) Policy() Policy { return e.policy }

type outcome struct {
	found   bool
	elapsed time.Duration
	lastErr error
}

// poll calls check until it reports true, the class budget runs out or ctx ends.
// A closed session ends the poll immediately.
func (e *Engine) poll(ctx context.Context, class Class, check func(context.Context) (bool, error)) (outcome, error) {
	start := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, e.policy.Timeout(class))
	defer cancel()
	ticker := time.NewTicker(e.policy.interval())
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := check(pollCtx)
		switch {
		case ok:
			return outcome{found: true, elapsed: time.Since(start)}, nil
		case errors.Is(err, browser.ErrSessionClosed):
			return outcome{}, errors.WithStack(err)
		case err != nil && !errors.Is(err, browser.ErrNotFound):
			lastErr = err
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return outcome{}, errors.Wrap(ctx.Err(), "wait canceled")
			}
			return outcome{elapsed: time.Since(start), lastErr: lastErr}, nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) waitElement(ctx context.Context, class Class, q locator.Query, condition string,
	accept func(context.Context, browser.Element) (bool, error)) (browser.Element, error) {
	var el browser.Element
	res, err := e.poll(ctx, class, func(ctx context.Context) (bool, error) {
		found, err := e.session.Find(ctx, q)
		if err != nil {
			return false, err
		}
		ok, err := accept(ctx, found)
		if ok {
			el = found
		}
		return ok, err
	})
	if err != nil {
		return nil, err
	}
	if !res.found {
		return nil, errors.WithStack(&ElementNotFoundError{
			Locator:   q.String(),
			Condition: condition,
			Elapsed:   res.elapsed,
			LastErr:   res.lastErr,
		})
	}
	return el, nil
}

func (e *Engine) waitPage(ctx context.Context, class Class, condition string, check func(context.Context) (bool, error)) error {
	res, err := e.poll(ctx, class, check)
	if err != nil {
		return err
	}
	if !res.found {
		return errors.WithStack(&TimeoutError{
			Condition: condition,
			Class:     class,
			Elapsed:   res.elapsed,
			LastErr:   res.lastErr,
		})
	}
	return nil
}
