// Package page is the page-object layer: element operations on top of one
// browser session, each preceded by the matching wait.
package page

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/locator"
	"github.com/ethereum-optimism/infra/op-uat/wait"
)

// Page wraps a single browser session. One Page exists per running scenario.
type Page struct {
	session browser.Session
	waits   *wait.Engine
	tables  *locator.Tables
	log     log.Logger
}

func New(session browser.Session, waits *wait.Engine, tables *locator.Tables, logger log.Logger) *Page {
	return &Page{
		session: session,
		waits:   waits,
		tables:  tables,
		log:     logger,
	}
}

// Open navigates to url and waits for the document to finish loading.
func (p *Page) Open(ctx context.Context, url string) error {
	p.log.Debug("Navigating", "url", url, "session", p.session.ID())
	if err := p.session.Navigate(ctx, url); err != nil {
		return errors.WithMessagef(err, "navigate to %s", url)
	}
	return errors.WithMessagef(p.waits.UntilPageReady(ctx), "load %s", url)
}

// OpenSite navigates to a site registered in the locator tables.
func (p *Page) OpenSite(ctx context.Context, name string) error {
	u, err := p.tables.Site(name)
	if err != nil {
		return errors.WithStack(err)
	}
	return p.Open(ctx, u)
}

func resolve(l locator.Locator) (locator.Query, error) {
	q, err := locator.Resolve(l)
	return q, errors.WithStack(err)
}

// Find waits for the element to be present and returns it.
func (p *Page) Find(ctx context.Context, l locator.Locator) (browser.Element, error) {
	q, err := resolve(l)
	if err != nil {
		return nil, err
	}
	return p.waits.UntilPresent(ctx, q)
}

// WaitVisible waits for the element to be displayed.
func (p *Page) WaitVisible(ctx context.Context, l locator.Locator) error {
	q, err := resolve(l)
	if err != nil {
		return err
	}
	_, err = p.waits.UntilVisible(ctx, q)
	return err
}

// Click waits for the element to be clickable, then clicks it.
func (p *Page) Click(ctx context.Context, l locator.Locator) error {
	q, err := resolve(l)
	if err != nil {
		return err
	}
	el, err := p.waits.UntilClickable(ctx, q)
	if err != nil {
		return err
	}
	p.log.Debug("Clicking", "locator", l, "session", p.session.ID())
	return errors.WithMessagef(el.Click(ctx), "click %s", l)
}

// ClickButton clicks the button registered under label.
func (p *Page) ClickButton(ctx context.Context, label string) error {
	l, err := p.tables.Button(label)
	if err != nil {
		return errors.WithStack(err)
	}
	return p.Click(ctx, l)
}

// Type replaces the element's value with text and waits for the value to settle.
func (p *Page) Type(ctx context.Context, l locator.Locator, text string) error {
	q, err := resolve(l)
	if err != nil {
		return err
	}
	el, err := p.waits.UntilClickable(ctx, q)
	if err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return errors.WithMessagef(err, "clear %s", l)
	}
	if err := el.SendKeys(ctx, text); err != nil {
		return errors.WithMessagef(err, "type into %s", l)
	}
	return p.waits.UntilValue(ctx, q, text)
}

// PopulateField types text into the input registered under label.
func (p *Page) PopulateField(ctx context.Context, label, text string) error {
	l, err := p.tables.Input(label)
	if err != nil {
		return errors.WithStack(err)
	}
	return p.Type(ctx, l, text)
}

// Text waits for the element to be displayed and returns its text.
func (p *Page) Text(ctx context.Context, l locator.Locator) (string, error) {
	q, err := resolve(l)
	if err != nil {
		return "", err
	}
	el, err := p.waits.UntilVisible(ctx, q)
	if err != nil {
		return "", err
	}
	return el.Text(ctx)
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	return p.session.CurrentURL(ctx)
}

func (p *Page) Title(ctx context.Context) (string, error) {
	return p.session.Title(ctx)
}

func (p *Page) Waits() *wait.Engine {
	return p.waits
}
