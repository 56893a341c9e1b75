// Package browsertest provides in-memory browser sessions for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/locator"
)

var (
	_ browser.Session = (*Session)(nil)
	_ browser.Element = (*Element)(nil)
	_ browser.Factory = (*Factory)(nil)
)

// Session is a scriptable fake browser tab.
type Session struct {
	mu          sync.Mutex
	id          string
	url         string
	title       string
	readyState  string
	elements    map[locator.Query]*Element
	navigations []string
	closed      bool

	ScreenshotErr error
	// OnNavigate runs after the URL changes, without the session lock held.
	OnNavigate func(s *Session, url string)
}

func NewSession(id string) *Session {
	return &Session{
		id:         id,
		url:        "about:blank",
		readyState: "complete",
		elements:   make(map[locator.Query]*Element),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return browser.ErrSessionClosed
	}
	s.url = url
	s.navigations = append(s.navigations, url)
	hook := s.OnNavigate
	s.mu.Unlock()
	if hook != nil {
		hook(s, url)
	}
	return ctx.Err()
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", browser.ErrSessionClosed
	}
	return s.url, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", browser.ErrSessionClosed
	}
	return s.title, nil
}

func (s *Session) Find(ctx context.Context, q locator.Query) (browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	el, ok := s.elements[q]
	if !ok {
		return nil, browser.ErrNotFound
	}
	return el, nil
}

// Evaluate understands document.readyState; anything else is an error.
func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.ErrSessionClosed
	}
	if script != "document.readyState" {
		return fmt.Errorf("fake session cannot evaluate %q", script)
	}
	out, ok := res.(*string)
	if !ok {
		return errors.New("document.readyState needs a *string result")
	}
	*out = s.readyState
	return nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	if s.ScreenshotErr != nil {
		return nil, s.ScreenshotErr
	}
	return []byte("png:" + s.url), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

func (s *Session) SetReadyState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyState = state
}

func (s *Session) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

// AddElement places a visible, enabled element matching q on the page.
func (s *Session) AddElement(q locator.Query) *Element {
	el := &Element{query: q, visible: true, enabled: true, attrs: make(map[string]string)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[q] = el
	return el
}

func (s *Session) RemoveElement(q locator.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, q)
}

// Element is a fake DOM element.
type Element struct {
	mu      sync.Mutex
	query   locator.Query
	text    string
	value   string
	attrs   map[string]string
	visible bool
	enabled bool
	clicks  int

	OnClick func()
}

func (e *Element) Query() locator.Query { return e.query }

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	if !e.visible || !e.enabled {
		e.mu.Unlock()
		return fmt.Errorf("element %s is not interactable", e.query)
	}
	e.clicks++
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = ""
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return fmt.Errorf("element %s is disabled", e.query)
	}
	e.value += text
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

func (e *Element) Value(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrs[name], nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible, nil
}

func (e *Element) Enabled(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled, nil
}

func (e *Element) SetText(text string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
	return e
}

func (e *Element) SetValue(value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = value
	return e
}

func (e *Element) SetAttribute(name, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
	return e
}

func (e *Element) SetVisible(visible bool) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visible = visible
	return e
}

func (e *Element) SetEnabled(enabled bool) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
	return e
}

func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Factory hands out fake sessions and remembers every one it created.
type Factory struct {
	mu       sync.Mutex
	sessions []*Session
	err      error

	// Setup, when set, prepares each new session before it is returned.
	Setup func(s *Session)
}

// FailWith makes subsequent Create calls fail with a SessionCreationError wrapping err.
func (f *Factory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Factory) Create(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &browser.SessionCreationError{Endpoint: "fake", Err: err}
	}
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, &browser.SessionCreationError{Endpoint: "fake", Err: err}
	}
	s := NewSession(fmt.Sprintf("fake-%d", len(f.sessions)+1))
	f.sessions = append(f.sessions, s)
	setup := f.Setup
	f.mu.Unlock()
	if setup != nil {
		setup(s)
	}
	return s, nil
}

func (f *Factory) Sessions() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Session(nil), f.sessions...)
}
