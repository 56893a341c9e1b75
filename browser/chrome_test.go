package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-uat/locator"
)

func TestConfigEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{"remote", Config{RemoteURL: "ws://grid:9222", ChromePath: "/usr/bin/chromium"}, "ws://grid:9222"},
		{"local binary", Config{ChromePath: "/usr/bin/chromium"}, "/usr/bin/chromium"},
		{"default", Config{}, "local chrome"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.Endpoint())
		})
	}
}

func TestConfigWindowSize(t *testing.T) {
	w, h := Config{}.windowSize()
	assert.Equal(t, DefaultWindowWidth, w)
	assert.Equal(t, DefaultWindowHeight, h)

	w, h = Config{WindowWidth: 800, WindowHeight: 600}.windowSize()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestNewChromeFactoryLaunchRate(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())

	f := NewChromeFactory(DefaultConfig(), logger)
	assert.Equal(t, rate.Inf, f.limiter.Limit())

	f = NewChromeFactory(Config{LaunchRate: 0.5}, logger)
	assert.Equal(t, rate.Limit(0.5), f.limiter.Limit())
}

func TestAllocatorOptionsExtendDefaults(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())
	base := len(NewChromeFactory(Config{}, logger).allocatorOptions())
	withPath := len(NewChromeFactory(Config{ChromePath: "/opt/chrome"}, logger).allocatorOptions())
	assert.Equal(t, base+1, withPath)
}

func TestCreateWithCanceledContext(t *testing.T) {
	f := NewChromeFactory(Config{RemoteURL: "ws://127.0.0.1:1"}, log.NewLogger(log.DiscardHandler()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := f.Create(ctx)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, IsSessionCreationError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionCreationError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("acquire: %w", &SessionCreationError{Endpoint: "ws://grid", Err: cause})

	assert.True(t, IsSessionCreationError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ws://grid")
	assert.False(t, IsSessionCreationError(cause))
	assert.False(t, IsSessionCreationError(nil))
}

func TestLookupScript(t *testing.T) {
	css := lookupScript(locator.Query{Kind: locator.KindCSS, Expr: `[data-testid="a"]`})
	assert.Equal(t, `document.querySelector("[data-testid=\"a\"]")`, css)

	xpath := lookupScript(locator.Query{Kind: locator.KindXPath, Expr: "//a"})
	assert.Contains(t, xpath, `document.evaluate("//a"`)
	assert.Contains(t, xpath, "singleNodeValue")
}
