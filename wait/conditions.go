package wait

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/locator"
)

func present(context.Context, browser.Element) (bool, error) { return true, nil }

func visible(ctx context.Context, el browser.Element) (bool, error) {
	return el.Visible(ctx)
}

func clickable(ctx context.Context, el browser.Element) (bool, error) {
	ok, err := el.Visible(ctx)
	if err != nil || !ok {
		return false, err
	}
	return el.Enabled(ctx)
}

// UntilPresent waits for an element matching q to exist in the document.
func (e *Engine) UntilPresent(ctx context.Context, q locator.Query) (browser.Element, error) {
	return e.waitElement(ctx, ClassElementPresence, q, "present", present)
}

// UntilVisible waits for an element matching q to be displayed.
func (e *Engine) UntilVisible(ctx context.Context, q locator.Query) (browser.Element, error) {
	return e.waitElement(ctx, ClassElementState, q, "visible", visible)
}

// UntilClickable waits for an element matching q to be displayed and enabled.
func (e *Engine) UntilClickable(ctx context.Context, q locator.Query) (browser.Element, error) {
	return e.waitElement(ctx, ClassElementState, q, "clickable", clickable)
}

// UntilInvisible waits for every match of q to be hidden or gone.
func (e *Engine) UntilInvisible(ctx context.Context, q locator.Query) error {
	res, err := e.poll(ctx, ClassElementState, func(ctx context.Context) (bool, error) {
		el, err := e.session.Find(ctx, q)
		if errors.Is(err, browser.ErrNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		shown, err := el.Visible(ctx)
		if errors.Is(err, browser.ErrNotFound) {
			return true, nil
		}
		return err == nil && !shown, err
	})
	if err != nil {
		return err
	}
	if !res.found {
		return errors.WithStack(&ElementNotFoundError{
			Locator:   q.String(),
			Condition: "invisible",
			Elapsed:   res.elapsed,
			LastErr:   res.lastErr,
		})
	}
	return nil
}

// UntilValue waits for the element's value to equal value.
func (e *Engine) UntilValue(ctx context.Context, q locator.Query, value string) error {
	_, err := e.waitElement(ctx, ClassElementState, q, fmt.Sprintf("holding value %q", value),
		func(ctx context.Context, el browser.Element) (bool, error) {
			v, err := el.Value(ctx)
			return err == nil && v == value, err
		})
	return err
}

// UntilAttributeContains waits for attr on the element to contain text.
func (e *Engine) UntilAttributeContains(ctx context.Context, q locator.Query, attr, text string) error {
	_, err := e.waitElement(ctx, ClassElementState, q, fmt.Sprintf("with %s containing %q", attr, text),
		func(ctx context.Context, el browser.Element) (bool, error) {
			v, err := el.Attribute(ctx, attr)
			return err == nil && strings.Contains(v, text), err
		})
	return err
}

// UntilTextContains waits for the element's text to contain text.
func (e *Engine) UntilTextContains(ctx context.Context, q locator.Query, text string) error {
	_, err := e.waitElement(ctx, ClassElementState, q, fmt.Sprintf("with text containing %q", text),
		func(ctx context.Context, el browser.Element) (bool, error) {
			v, err := el.Text(ctx)
			return err == nil && strings.Contains(v, text), err
		})
	return err
}

// UntilPageReady waits for document.readyState to become "complete".
func (e *Engine) UntilPageReady(ctx context.Context) error {
	return e.waitPage(ctx, ClassPageReady, "page ready", func(ctx context.Context) (bool, error) {
		var state string
		if err := e.session.Evaluate(ctx, "document.readyState", &state); err != nil {
			return false, err
		}
		return state == "complete", nil
	})
}

// UntilURLContains waits for the current URL to contain fragment.
func (e *Engine) UntilURLContains(ctx context.Context, fragment string) error {
	return e.waitPage(ctx, ClassURLChange, fmt.Sprintf("url containing %q", fragment), func(ctx context.Context) (bool, error) {
		u, err := e.session.CurrentURL(ctx)
		return err == nil && strings.Contains(u, fragment), err
	})
}

// UntilURLEquals waits for the current URL to equal url.
func (e *Engine) UntilURLEquals(ctx context.Context, url string) error {
	return e.waitPage(ctx, ClassURLChange, fmt.Sprintf("url %q", url), func(ctx context.Context) (bool, error) {
		u, err := e.session.CurrentURL(ctx)
		return err == nil && u == url, err
	})
}

// UntilURLChanges waits for the current URL to differ from from and returns the new URL.
func (e *Engine) UntilURLChanges(ctx context.Context, from string) (string, error) {
	var current string
	err := e.waitPage(ctx, ClassURLChange, fmt.Sprintf("url to change from %q", from), func(ctx context.Context) (bool, error) {
		u, err := e.session.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		current = u
		return u != from, nil
	})
	return current, err
}
