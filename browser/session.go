// Package browser defines the browser session contract used by page objects and
// provides a chromedp implementation of it.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-uat/locator"
)

var (
	ErrNotFound      = errors.New("element not found")
	ErrSessionClosed = errors.New("browser session closed")
)

// Session is one browser tab owned by exactly one scenario at a time.
// Calls never wait for elements to appear; waiting is the wait engine's job.
type Session interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// Find returns ErrNotFound when nothing currently matches q.
	Find(ctx context.Context, q locator.Query) (Element, error)
	Evaluate(ctx context.Context, script string, res any) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Element is a handle on a located element. Methods return ErrNotFound once the
// element has left the document.
type Element interface {
	Query() locator.Query
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	Value(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
}

// Factory creates sessions.
type Factory interface {
	Create(ctx context.Context) (Session, error)
}

// SessionCreationError is returned when a browser session cannot be started.
type SessionCreationError struct {
	Endpoint string
	Err      error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("failed to create browser session on %s: %v", e.Endpoint, e.Err)
}

func (e *SessionCreationError) Unwrap() error {
	return e.Err
}

// IsSessionCreationError checks if the error is or wraps a SessionCreationError
func IsSessionCreationError(err error) bool {
	var sessionErr *SessionCreationError
	return err != nil && errors.As(err, &sessionErr)
}
