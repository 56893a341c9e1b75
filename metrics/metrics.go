package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-uat/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "uat"
)

var (
	Debug                bool = true
	validResults              = []types.ScenarioStatus{types.ScenarioPassed, types.ScenarioFailed, types.ScenarioSkipped}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scenarios_total",
		Help:      "Count of finished scenarios",
	}, []string{
		"feature",
		"result",
	})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "steps_total",
		Help:      "Count of reported steps",
	}, []string{
		"result",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "browser_sessions_total",
		Help:      "Count of browser session creations",
	}, []string{
		"result",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "browser_sessions_active",
		Help:      "Number of open browser sessions",
	})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "workers_active",
		Help:      "Number of workers currently executing a feature",
	})

	reportingErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "reporting_errors_total",
		Help:      "Count of swallowed reporting failures",
	}, []string{
		"operation",
	})

	featureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "feature_duration_seconds",
		Help:      "Wall time spent running one feature file",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{
		"feature",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of suite runs",
	}, []string{
		"run_id",
		"result",
	})

	runScenarios = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_scenarios",
		Help:      "Scenario counts of a suite run",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of suite runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordScenario(feature string, result types.ScenarioStatus) {
	if !isValidResult(result) {
		log.Error("RecordScenario - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "scenarios_total",
			"feature", feature,
			"result", result)
	}
	scenariosTotal.WithLabelValues(feature, string(result)).Inc()
}

func RecordStep(result types.ScenarioStatus) {
	if !isValidResult(result) {
		log.Error("RecordStep - invalid result", "result", result)
		return
	}
	stepsTotal.WithLabelValues(string(result)).Inc()
}

// RecordSessionCreated tracks a session start attempt and the open-session gauge.
func RecordSessionCreated(err error) {
	if err != nil {
		sessionsTotal.WithLabelValues("error").Inc()
		return
	}
	sessionsTotal.WithLabelValues("ok").Inc()
	activeSessions.Inc()
}

func RecordSessionClosed() {
	activeSessions.Dec()
}

func RecordWorkerBusy(busy bool) {
	if busy {
		activeWorkers.Inc()
	} else {
		activeWorkers.Dec()
	}
}

func RecordReportingError(operation string, err error) {
	if Debug {
		log.Debug("metric inc",
			"m", "reporting_errors_total",
			"operation", operation,
			"err", err)
	}
	reportingErrorsTotal.WithLabelValues(operation).Inc()
}

func RecordFeatureDuration(feature string, d time.Duration) {
	featureDuration.WithLabelValues(feature).Observe(d.Seconds())
}

func RecordRun(
	runID string,
	result string,
	passed int,
	failed int,
	skipped int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, result).Set(1)
	runScenarios.WithLabelValues(runID, string(types.ScenarioPassed)).Set(float64(passed))
	runScenarios.WithLabelValues(runID, string(types.ScenarioFailed)).Set(float64(failed))
	runScenarios.WithLabelValues(runID, string(types.ScenarioSkipped)).Set(float64(skipped))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.ScenarioStatus) bool {
	return slices.Contains(validResults, result)
}
