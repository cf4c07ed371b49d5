package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/provider"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/resilience"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/rollout"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestNewMetrics_Registers(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RolloutPercentage.Set(10)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["tradeflow_rollout_percentage"])
}

func TestMetrics_StageAttempts(t *testing.T) {
	m, _ := newTestMetrics(t)
	mon := resilience.NewMonitor(resilience.WithObserver(m))

	mon.Record(resilience.StageExecutionRecord{Stage: "analyst.news", Attempt: 1, DurationMs: 60000, Outcome: resilience.OutcomeTimeout})
	mon.Record(resilience.StageExecutionRecord{Stage: "analyst.news", Attempt: 2, DurationMs: 1200, Outcome: resilience.OutcomeSuccess})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageAttemptsTotal.WithLabelValues("analyst.news", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageAttemptsTotal.WithLabelValues("analyst.news", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageAttemptSeconds))
}

func TestMetrics_CircuitGauge(t *testing.T) {
	m, _ := newTestMetrics(t)
	r := provider.NewRouter(provider.RouterConfig{FailureThreshold: 2}, provider.WithObserver(m))

	r.RecordFailure(provider.CapabilityQuote, "yahoo", errors.New("503"), 20*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitOpen.WithLabelValues("stock_quote", "yahoo")))

	r.RecordFailure(provider.CapabilityQuote, "yahoo", errors.New("503"), 20*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitOpen.WithLabelValues("stock_quote", "yahoo")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderCallsTotal.WithLabelValues("stock_quote", "yahoo", "error")))

	require.NoError(t, r.Reset(provider.CapabilityQuote, "yahoo"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitOpen.WithLabelValues("stock_quote", "yahoo")))
}

func TestMetrics_Rollout(t *testing.T) {
	m, _ := newTestMetrics(t)
	g := rollout.NewGate(rollout.GateConfig{Percentage: 0, ForceAllow: []string{"vip"}}, rollout.WithGateObserver(m))

	g.Decide(rollout.Input{UserID: "vip"})
	g.Decide(rollout.Input{UserID: "someone"})
	g.SetPercentage(25)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RolloutDecisionsTotal.WithLabelValues("candidate", "forced_allowlist")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RolloutDecisionsTotal.WithLabelValues("baseline", "hash_bucket")))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.RolloutPercentage))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RolloutOverride))

	g.ClearOverride()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RolloutPercentage))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RolloutOverride))

	m.ObserveRecommendation(rollout.Recommendation{Action: rollout.ActionMonolithBetter})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PromotionRecommendationsTotal.WithLabelValues("monolith_better")))
}

func TestMetrics_PipelineRuns(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.ObserveRun(rollout.VariantCandidate, true, 42*time.Second)
	m.ObserveRun(rollout.VariantCandidate, false, 3*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues("candidate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues("candidate", "failure")))
}

func TestNewMetrics_DuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
