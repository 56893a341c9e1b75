package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-uat/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
	RecordErrorDetails("test_error", errors.New("boom"))
	RecordErrorDetails("test_error", nil)
}

func TestRecordScenario(t *testing.T) {
	before := testutil.ToFloat64(scenariosTotal.WithLabelValues("login", string(types.ScenarioFailed)))
	RecordScenario("login", types.ScenarioFailed)
	RecordScenario("login", types.ScenarioStatus("bogus"))
	after := testutil.ToFloat64(scenariosTotal.WithLabelValues("login", string(types.ScenarioFailed)))
	assert.Equal(t, before+1, after)
}

func TestSessionGauge(t *testing.T) {
	before := testutil.ToFloat64(activeSessions)
	RecordSessionCreated(nil)
	RecordSessionCreated(errors.New("refused"))
	assert.Equal(t, before+1, testutil.ToFloat64(activeSessions))
	RecordSessionClosed()
	assert.Equal(t, before, testutil.ToFloat64(activeSessions))
}

func TestRecordRun(t *testing.T) {
	RecordRun("run-1", "fail", 3, 1, 2, 5*time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(runScenarios.WithLabelValues("run-1", "failed")))
	assert.Equal(t, float64(5), testutil.ToFloat64(runDuration.WithLabelValues("run-1")))
}
