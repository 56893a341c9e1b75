package page

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-uat/browser/browsertest"
	"github.com/ethereum-optimism/infra/op-uat/locator"
	"github.com/ethereum-optimism/infra/op-uat/wait"
)

func newTestPage(t *testing.T) (*Page, *browsertest.Session) {
	t.Helper()
	s := browsertest.NewSession("s1")
	policy := wait.Policy{
		PollInterval:    2 * time.Millisecond,
		PageReady:       50 * time.Millisecond,
		URLChange:       50 * time.Millisecond,
		ElementPresence: 50 * time.Millisecond,
		ElementState:    50 * time.Millisecond,
	}
	tables := locator.NewTables(
		map[string]string{"bbc": "https://www.bbc.com"},
		map[string]locator.Locator{"example 1": locator.DataTestID("test-button-1")},
		map[string]locator.Locator{"search": locator.ID("searchInput")},
	)
	return New(s, wait.New(s, policy), tables, log.NewLogger(log.DiscardHandler())), s
}

func mustResolve(t *testing.T, l locator.Locator) locator.Query {
	t.Helper()
	q, err := locator.Resolve(l)
	require.NoError(t, err)
	return q
}

func TestOpenSite(t *testing.T) {
	p, s := newTestPage(t)
	ctx := context.Background()

	require.NoError(t, p.OpenSite(ctx, "BBC"))
	assert.Equal(t, []string{"https://www.bbc.com"}, s.Navigations())

	u, err := p.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://www.bbc.com", u)

	err = p.OpenSite(ctx, "cnn")
	assert.ErrorIs(t, err, locator.ErrUnknownLabel)
}

func TestOpenWaitsForPageReady(t *testing.T) {
	p, s := newTestPage(t)
	s.OnNavigate = func(s *browsertest.Session, url string) {
		s.SetReadyState("loading")
		go func() {
			time.Sleep(10 * time.Millisecond)
			s.SetReadyState("complete")
		}()
	}
	require.NoError(t, p.Open(context.Background(), "https://example.com"))
}

func TestClickButton(t *testing.T) {
	p, s := newTestPage(t)
	el := s.AddElement(mustResolve(t, locator.DataTestID("test-button-1")))

	require.NoError(t, p.ClickButton(context.Background(), "Example 1"))
	assert.Equal(t, 1, el.Clicks())

	err := p.ClickButton(context.Background(), "example 2")
	assert.ErrorIs(t, err, locator.ErrUnknownLabel)
}

func TestClickMissingElement(t *testing.T) {
	p, _ := newTestPage(t)
	err := p.Click(context.Background(), locator.ID("nope"))
	assert.True(t, wait.IsElementNotFound(err))
}

func TestPopulateField(t *testing.T) {
	p, s := newTestPage(t)
	el := s.AddElement(mustResolve(t, locator.ID("searchInput"))).SetValue("old")

	require.NoError(t, p.PopulateField(context.Background(), "search", "weather"))
	v, err := el.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "weather", v)
}

func TestTextAndVisibility(t *testing.T) {
	p, s := newTestPage(t)
	heading := locator.CSS("h1")
	s.AddElement(mustResolve(t, heading)).SetText("Home")

	require.NoError(t, p.WaitVisible(context.Background(), heading))
	text, err := p.Text(context.Background(), heading)
	require.NoError(t, err)
	assert.Equal(t, "Home", text)

	_, err = p.Find(context.Background(), locator.Locator{Strategy: locator.ByID})
	assert.ErrorIs(t, err, locator.ErrEmptyLocator)
}
