package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginFeature = `@Test
Feature: Login

  Background:
    Given I navigate to the bbc website

  Scenario: Good password
    When I click the "example 1" button
    Then the url should contain "bbc"

  Scenario Outline: Search
    When I populate the "search" field with "<term>"
    Then the url should contain "<term>"

    Examples:
      | term  |
      | news  |
      | sport |
`

const ruleFeature = `Feature: Rules
  Rule: one rule
    Scenario: a
      Given I log a message "a"
    Scenario: b
      Given I log a message "b"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b_login.feature"), loginFeature)
	writeFile(t, filepath.Join(dir, "a", "rules.feature"), ruleFeature)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a feature")
	writeFile(t, filepath.Join(dir, ".hidden", "x.feature"), loginFeature)
	writeFile(t, filepath.Join(dir, "empty.feature"), "# just a comment\n")

	partitions, err := Discover(dir, log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)
	require.Len(t, partitions, 2)

	assert.Equal(t, "a/rules", partitions[0].ID)
	assert.Equal(t, "Rules", partitions[0].Name)
	assert.Equal(t, 2, partitions[0].ScenarioCount)

	assert.Equal(t, "b_login", partitions[1].ID)
	assert.Equal(t, "Login", partitions[1].Name)
	assert.Equal(t, filepath.Join(dir, "b_login.feature"), partitions[1].Path)
	assert.Equal(t, 3, partitions[1].ScenarioCount)
}

func TestDiscoverParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.feature"), "Scenario: before any feature\n  Given a step\n")

	_, err := Discover(dir, log.NewLogger(log.DiscardHandler()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.feature")
}

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(dir string) Config
		wantErr bool
	}{
		{
			name:    "valid directory",
			cfg:     func(dir string) Config { return Config{FeaturesDir: dir} },
			wantErr: false,
		},
		{
			name:    "missing directory setting",
			cfg:     func(string) Config { return Config{} },
			wantErr: true,
		},
		{
			name:    "nonexistent directory",
			cfg:     func(dir string) Config { return Config{FeaturesDir: filepath.Join(dir, "nope")} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "login.feature"), loginFeature)
			cfg := tt.cfg(dir)
			cfg.Log = log.NewLogger(log.DiscardHandler())

			reg, err := NewRegistry(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, reg.Partitions(), 1)
			assert.Equal(t, 3, reg.ScenarioCount())
		})
	}
}

func TestRegistryReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "login.feature"), loginFeature)
	reg, err := NewRegistry(Config{FeaturesDir: dir, Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, err)
	require.Len(t, reg.Partitions(), 1)

	writeFile(t, filepath.Join(dir, "rules.feature"), ruleFeature)
	require.NoError(t, reg.Reload())
	assert.Len(t, reg.Partitions(), 2)
}
