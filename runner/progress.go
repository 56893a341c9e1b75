package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-uat/types"
)

// ProgressIndicator receives run progress for display.
type ProgressIndicator interface {
	StartRun(features int)
	StartScenario(name string)
	UpdateScenario(name string, status types.ScenarioStatus)
	CompleteFeature(name string)
	CompleteRun()
}

type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return noOpProgressIndicator{}
}

func (noOpProgressIndicator) StartRun(int)                                {}
func (noOpProgressIndicator) StartScenario(string)                        {}
func (noOpProgressIndicator) UpdateScenario(string, types.ScenarioStatus) {}
func (noOpProgressIndicator) CompleteFeature(string)                      {}
func (noOpProgressIndicator) CompleteRun()                                {}

// consoleProgressIndicator periodically logs how far the run has got and which
// scenarios have been running longest.
type consoleProgressIndicator struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once

	mu                sync.RWMutex
	totalFeatures     int
	completedFeatures int
	passed            int
	failed            int
	skipped           int
	runStart          time.Time
	running           map[string]time.Time
}

// NewConsoleProgressIndicator creates a progress indicator that logs every updateInterval.
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval <= 0 {
		updateInterval = 30 * time.Second
	}
	c := &consoleProgressIndicator{
		logger:  logger,
		ticker:  time.NewTicker(updateInterval),
		stopCh:  make(chan struct{}),
		running: make(map[string]time.Time),
	}
	go c.progressReporter()
	return c
}

func (c *consoleProgressIndicator) StartRun(features int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalFeatures = features
	c.completedFeatures = 0
	c.passed, c.failed, c.skipped = 0, 0, 0
	c.runStart = time.Now()
	c.running = make(map[string]time.Time)
	c.logger.Info("Starting run", "features", features)
}

func (c *consoleProgressIndicator) StartScenario(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[name] = time.Now()
	c.logger.Debug("Scenario started", "scenario", name, "running", len(c.running))
}

func (c *consoleProgressIndicator) UpdateScenario(name string, status types.ScenarioStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, name)
	switch status {
	case types.ScenarioPassed:
		c.passed++
	case types.ScenarioFailed:
		c.failed++
	case types.ScenarioSkipped:
		c.skipped++
	}
	c.logger.Debug("Scenario completed", "scenario", name, "status", status, "running", len(c.running))
}

func (c *consoleProgressIndicator) CompleteFeature(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completedFeatures++
	c.logger.Info("Completed feature", "feature", name, "completed", c.completedFeatures, "total", c.totalFeatures)
}

func (c *consoleProgressIndicator) CompleteRun() {
	c.mu.RLock()
	c.logger.Info("Completed run",
		"features", c.completedFeatures,
		"passed", c.passed, "failed", c.failed, "skipped", c.skipped,
		"duration", time.Since(c.runStart).Truncate(time.Second))
	c.mu.RUnlock()
	c.Stop()
}

func (c *consoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var percent float64
	if c.totalFeatures > 0 {
		percent = float64(c.completedFeatures) * 100.0 / float64(c.totalFeatures)
	}
	c.logger.Info("Progress update",
		"completed", c.completedFeatures,
		"total", c.totalFeatures,
		"percent", fmt.Sprintf("%.1f%%", percent),
		"failed", c.failed,
		"numRunning", len(c.running),
		"longestRunning", formatRunning(c.running, 3))
}

// Stop ends the periodic reporting. Safe to call more than once.
func (c *consoleProgressIndicator) Stop() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}

func formatRunning(running map[string]time.Time, maxShow int) string {
	if len(running) == 0 {
		return ""
	}
	type entry struct {
		name     string
		duration time.Duration
	}
	now := time.Now()
	entries := make([]entry, 0, len(running))
	for name, start := range running {
		entries = append(entries, entry{name: name, duration: now.Sub(start)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].duration == entries[j].duration {
			return entries[i].name < entries[j].name
		}
		return entries[i].duration > entries[j].duration
	})

	var parts []string
	for i, e := range entries {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", e.name, e.duration.Truncate(time.Second)))
	}
	if len(entries) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(entries)-maxShow))
	}
	return strings.Join(parts, ", ")
}
