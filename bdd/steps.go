package bdd

import (
	"context"

	"github.com/cucumber/godog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-uat/locator"
	"github.com/ethereum-optimism/infra/op-uat/scenario"
)

// ErrNoScenarioContext is returned by a step that runs without a bound context.
var ErrNoScenarioContext = errors.New("no scenario context bound")

// steps is the standard step library. Every step reaches the browser only
// through the scenario context bound to its own worker.
type steps struct {
	log log.Logger
}

// RegisterSteps adds the standard step definitions to sc.
func RegisterSteps(sc *godog.ScenarioContext, logger log.Logger) {
	s := &steps{log: logger}

	sc.Step(`^I navigate to the (\S+) website$`, s.navigateToSite)
	sc.Step(`^I navigate to "([^"]*)"$`, s.navigateTo)
	sc.Step(`^I log a message "([^"]*)"$`, s.logMessage)
	sc.Step(`^I click the "([^"]*)" button$`, s.clickButton)
	sc.Step(`^I populate the "([^"]*)" field with "([^"]*)"$`, s.populateField)
	sc.Step(`^the url should contain "([^"]*)"$`, s.urlShouldContain)
	sc.Step(`^the "([^"]*)" button should be visible$`, s.buttonShouldBeVisible)
	sc.Step(`^the page title should be "([^"]*)"$`, s.titleShouldBe)
	sc.Step(`^the page should contain the text "([^"]*)"$`, s.pageShouldContainText)
}

func current(ctx context.Context) (*scenario.Context, error) {
	sc := FromContext(ctx)
	if sc == nil {
		return nil, errors.WithStack(ErrNoScenarioContext)
	}
	return sc, nil
}

func (s *steps) navigateToSite(ctx context.Context, site string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	return sc.Page.OpenSite(ctx, site)
}

func (s *steps) navigateTo(ctx context.Context, url string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	return sc.Page.Open(ctx, url)
}

func (s *steps) logMessage(ctx context.Context, msg string) error {
	worker := "unbound"
	if sc := FromContext(ctx); sc != nil {
		worker = sc.Worker.String()
	}
	s.log.Info(msg, "worker", worker)
	return nil
}

func (s *steps) clickButton(ctx context.Context, label string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	return sc.Page.ClickButton(ctx, label)
}

func (s *steps) populateField(ctx context.Context, label, text string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	return sc.Page.PopulateField(ctx, label, text)
}

func (s *steps) urlShouldContain(ctx context.Context, fragment string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	if err := sc.Waits.UntilURLContains(ctx, fragment); err != nil {
		return err
	}
	url, err := sc.Page.CurrentURL(ctx)
	if err != nil {
		return err
	}
	return sc.Assertions.Contains(url, fragment, "url contains fragment")
}

func (s *steps) buttonShouldBeVisible(ctx context.Context, label string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	loc, err := sc.Locators.Button(label)
	if err != nil {
		return err
	}
	return sc.Page.WaitVisible(ctx, loc)
}

func (s *steps) titleShouldBe(ctx context.Context, expected string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	title, err := sc.Page.Title(ctx)
	if err != nil {
		return err
	}
	return sc.Assertions.Equal(expected, title, "page title")
}

func (s *steps) pageShouldContainText(ctx context.Context, text string) error {
	sc, err := current(ctx)
	if err != nil {
		return err
	}
	body := locator.CSS("body")
	q, err := locator.Resolve(body)
	if err != nil {
		return err
	}
	if err := sc.Waits.UntilTextContains(ctx, q, text); err != nil {
		return err
	}
	got, err := sc.Page.Text(ctx, body)
	if err != nil {
		return err
	}
	return sc.Assertions.Contains(got, text, "page text")
}
