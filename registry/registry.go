// Package registry discovers Gherkin feature files and turns each one into a
// partition for the dispatcher.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-uat/types"
)

// FeatureExt is the extension of discoverable feature files.
const FeatureExt = ".feature"

// Registry holds the partitions found under a features directory
type Registry struct {
	config     Config
	partitions []types.FeaturePartition
	mu         sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log         log.Logger
	FeaturesDir string
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.FeaturesDir == "" {
		return nil, fmt.Errorf("features directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{config: cfg}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	cfg.Log.Debug("Registry loaded", "features", len(r.partitions))
	return r, nil
}

// Reload rediscovers the feature files. Used between periodic runs.
func (r *Registry) Reload() error {
	partitions, err := Discover(r.config.FeaturesDir, r.config.Log)
	if err != nil {
		return fmt.Errorf("failed to discover features: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partitions = partitions
	return nil
}

// Partitions returns the discovered partitions in lexical path order.
func (r *Registry) Partitions() []types.FeaturePartition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.FeaturePartition(nil), r.partitions...)
}

// ScenarioCount sums declared scenarios across all partitions.
func (r *Registry) ScenarioCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, p := range r.partitions {
		total += p.ScenarioCount
	}
	return total
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// Discover walks dir for feature files and parses each one. Files without a
// Feature block are skipped; a file that fails to parse fails discovery.
func Discover(dir string, logger log.Logger) ([]types.FeaturePartition, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat features directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("features path %s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && filepath.Ext(path) == FeatureExt {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk features directory: %w", err)
	}
	sort.Strings(paths)

	partitions := make([]types.FeaturePartition, 0, len(paths))
	for _, path := range paths {
		p, err := ParseFeature(dir, path)
		if err != nil {
			return nil, err
		}
		if p == nil {
			logger.Warn("Skipping file without a Feature", "path", path)
			continue
		}
		partitions = append(partitions, *p)
	}
	return partitions, nil
}

// ParseFeature parses one feature file. It returns nil when the file holds no
// Feature block.
func ParseFeature(root, path string) (*types.FeaturePartition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature %s: %w", path, err)
	}
	defer f.Close()

	doc, err := gherkin.ParseGherkinDocument(f, (&messages.Incrementing{}).NewId)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature %s: %w", path, err)
	}
	if doc.Feature == nil {
		return nil, nil
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	name := strings.TrimSpace(doc.Feature.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), FeatureExt)
	}
	return &types.FeaturePartition{
		ID:            strings.TrimSuffix(rel, FeatureExt),
		Path:          path,
		Name:          name,
		ScenarioCount: countScenarios(doc.Feature),
	}, nil
}

func countScenarios(feature *messages.Feature) int {
	total := 0
	for _, child := range feature.Children {
		switch {
		case child.Scenario != nil:
			total += scenarioInstances(child.Scenario)
		case child.Rule != nil:
			for _, rc := range child.Rule.Children {
				if rc.Scenario != nil {
					total += scenarioInstances(rc.Scenario)
				}
			}
		}
	}
	return total
}

// scenarioInstances counts an outline once per example row.
func scenarioInstances(s *messages.Scenario) int {
	if len(s.Examples) == 0 {
		return 1
	}
	n := 0
	for _, ex := range s.Examples {
		n += len(ex.TableBody)
	}
	return n
}
