package locator

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrUnknownLabel = errors.New("unknown label")

// Entry is a locator as written in a table file.
type Entry struct {
	Strategy string `yaml:"strategy" toml:"strategy" validate:"required,oneof=id xpath class data-testid css"`
	Value    string `yaml:"value" toml:"value" validate:"required"`
}

// File is the on-disk layout of a locator table file.
type File struct {
	Sites   map[string]string `yaml:"sites" toml:"sites" validate:"dive,keys,required,endkeys,required,url"`
	Buttons map[string]Entry  `yaml:"buttons" toml:"buttons" validate:"dive,keys,required,endkeys"`
	Inputs  map[string]Entry  `yaml:"inputs" toml:"inputs" validate:"dive,keys,required,endkeys"`
}

// Tables maps labels used in feature files to locators and site URLs.
// A Tables value is never modified after construction and may be shared freely.
type Tables struct {
	sites   map[string]string
	buttons map[string]Locator
	inputs  map[string]Locator
}

// NewTables builds tables from already-resolved maps. Labels are matched case-insensitively.
func NewTables(sites map[string]string, buttons, inputs map[string]Locator) *Tables {
	t := &Tables{
		sites:   make(map[string]string, len(sites)),
		buttons: make(map[string]Locator, len(buttons)),
		inputs:  make(map[string]Locator, len(inputs)),
	}
	for k, v := range sites {
		t.sites[normalize(k)] = v
	}
	for k, v := range buttons {
		t.buttons[normalize(k)] = v
	}
	for k, v := range inputs {
		t.inputs[normalize(k)] = v
	}
	return t
}

// DefaultTables returns the built-in labels.
func DefaultTables() *Tables {
	return NewTables(
		map[string]string{"bbc": "https://www.bbc.com"},
		map[string]Locator{
			"example 1": DataTestID("test-button-1"),
			"example 2": DataTestID("test-button-2"),
		},
		nil,
	)
}

// LoadTables reads a YAML or TOML table file and layers it over the defaults.
func LoadTables(path string) (*Tables, error) {
	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read locator tables: %w", err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse locator tables %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("failed to parse locator tables %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported locator table format %q", ext)
	}

	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid locator tables %s: %w", path, err)
	}

	buttons, err := toLocators(f.Buttons)
	if err != nil {
		return nil, err
	}
	inputs, err := toLocators(f.Inputs)
	if err != nil {
		return nil, err
	}

	defaults := DefaultTables()
	sites := maps.Clone(defaults.sites)
	for name, u := range f.Sites {
		sites[normalize(name)] = u
	}
	allButtons := maps.Clone(defaults.buttons)
	for label, l := range buttons {
		allButtons[normalize(label)] = l
	}
	return NewTables(sites, allButtons, inputs), nil
}

func toLocators(entries map[string]Entry) (map[string]Locator, error) {
	out := make(map[string]Locator, len(entries))
	for label, e := range entries {
		s, err := ParseStrategy(e.Strategy)
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", label, err)
		}
		out[label] = Locator{Strategy: s, Value: e.Value}
	}
	return out, nil
}

// Button returns the locator registered for a button label.
func (t *Tables) Button(label string) (Locator, error) {
	if l, ok := t.buttons[normalize(label)]; ok {
		return l, nil
	}
	return Locator{}, fmt.Errorf("%w: button %q", ErrUnknownLabel, label)
}

// Input returns the locator registered for an input field label.
func (t *Tables) Input(label string) (Locator, error) {
	if l, ok := t.inputs[normalize(label)]; ok {
		return l, nil
	}
	return Locator{}, fmt.Errorf("%w: input %q", ErrUnknownLabel, label)
}

// Site returns the URL registered for a site name.
func (t *Tables) Site(name string) (string, error) {
	if u, ok := t.sites[normalize(name)]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: site %q", ErrUnknownLabel, name)
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
