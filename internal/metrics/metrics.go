// Package metrics exports Prometheus collectors for stage executions,
// provider health, rollout decisions and pipeline runs.
//
// Metrics implements the observer hooks of the resilience, provider and
// rollout packages, so wiring is a matter of passing it as an option.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/provider"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/resilience"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/rollout"
)

// #region definitions
const namespace = "tradeflow"

// Metrics holds every collector. Create one per registry with NewMetrics.
type Metrics struct {
	// StageAttemptsTotal counts wrapped stage attempts.
	// Labels: stage, outcome (success, timeout, error)
	StageAttemptsTotal *prometheus.CounterVec

	// StageAttemptSeconds measures attempt duration.
	// Labels: stage
	StageAttemptSeconds *prometheus.HistogramVec

	// ProviderCallsTotal counts recorded provider calls.
	// Labels: capability, provider, status (success, error)
	ProviderCallsTotal *prometheus.CounterVec

	// ProviderLatencySeconds measures provider call latency.
	// Labels: capability, provider
	ProviderLatencySeconds *prometheus.HistogramVec

	// CircuitOpen is 1 while a provider's circuit is open.
	// Labels: capability, provider
	CircuitOpen *prometheus.GaugeVec

	// RolloutDecisionsTotal counts gate decisions.
	// Labels: variant, decided_by
	RolloutDecisionsTotal *prometheus.CounterVec

	// RolloutPercentage is the effective rollout percentage.
	RolloutPercentage prometheus.Gauge

	// RolloutOverride is 1 while an operator override is active.
	RolloutOverride prometheus.Gauge

	// PromotionRecommendationsTotal counts promotion evaluations.
	// Labels: action
	PromotionRecommendationsTotal *prometheus.CounterVec

	// PipelineRunsTotal counts completed analysis runs.
	// Labels: variant, status (success, failure)
	PipelineRunsTotal *prometheus.CounterVec

	// PipelineRunSeconds measures end-to-end analysis time.
	// Labels: variant
	PipelineRunSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on reg.
// Registering twice on the same registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StageAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "attempts_total",
			Help:      "Wrapped stage attempts by stage and outcome",
		}, []string{"stage", "outcome"}),
		StageAttemptSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "attempt_seconds",
			Help:      "Duration of wrapped stage attempts",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 90, 120},
		}, []string{"stage"}),
		ProviderCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls by capability, provider and status",
		}, []string{"capability", "provider", "status"}),
		ProviderLatencySeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Provider call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"capability", "provider"}),
		CircuitOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "circuit_open",
			Help:      "1 while the provider circuit is open",
		}, []string{"capability", "provider"}),
		RolloutDecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollout",
			Name:      "decisions_total",
			Help:      "Rollout gate decisions by variant and rule",
		}, []string{"variant", "decided_by"}),
		RolloutPercentage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rollout",
			Name:      "percentage",
			Help:      "Effective candidate rollout percentage",
		}),
		RolloutOverride: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rollout",
			Name:      "override_active",
			Help:      "1 while an operator percentage override is active",
		}),
		PromotionRecommendationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollout",
			Name:      "recommendations_total",
			Help:      "Promotion engine recommendations by action",
		}, []string{"action"}),
		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Completed analysis runs by variant and status",
		}, []string{"variant", "status"}),
		PipelineRunSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_seconds",
			Help:      "End-to-end analysis duration",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}, []string{"variant"}),
	}
}

// #endregion definitions

// #region stage
// ObserveStageAttempt implements resilience.Observer.
func (m *Metrics) ObserveStageAttempt(rec resilience.StageExecutionRecord) {
	m.StageAttemptsTotal.WithLabelValues(rec.Stage, string(rec.Outcome)).Inc()
	m.StageAttemptSeconds.WithLabelValues(rec.Stage).Observe(float64(rec.DurationMs) / 1000)
}

// #endregion stage

// #region provider
// ObserveProviderCall implements provider.Observer.
func (m *Metrics) ObserveProviderCall(h provider.Health, success bool, latency time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	m.ProviderCallsTotal.WithLabelValues(string(h.Capability), h.ProviderID, status).Inc()
	m.ProviderLatencySeconds.WithLabelValues(string(h.Capability), h.ProviderID).Observe(latency.Seconds())
	m.CircuitOpen.WithLabelValues(string(h.Capability), h.ProviderID).Set(boolGauge(!h.Available))
}

// ObserveCircuit implements provider.Observer.
func (m *Metrics) ObserveCircuit(h provider.Health) {
	m.CircuitOpen.WithLabelValues(string(h.Capability), h.ProviderID).Set(boolGauge(!h.Available))
}

// #endregion provider

// #region rollout
// ObserveDecision implements rollout.Observer.
func (m *Metrics) ObserveDecision(d rollout.Decision) {
	m.RolloutDecisionsTotal.WithLabelValues(string(d.Variant), string(d.DecidedBy)).Inc()
}

// ObservePercentage implements rollout.Observer.
func (m *Metrics) ObservePercentage(percentage int, overridden bool) {
	m.RolloutPercentage.Set(float64(percentage))
	m.RolloutOverride.Set(boolGauge(overridden))
}

// ObserveRecommendation implements rollout.Observer.
func (m *Metrics) ObserveRecommendation(r rollout.Recommendation) {
	m.PromotionRecommendationsTotal.WithLabelValues(string(r.Action)).Inc()
}

// #endregion rollout

// #region pipeline
// ObserveRun records one completed analysis run.
func (m *Metrics) ObserveRun(variant rollout.Variant, success bool, elapsed time.Duration) {
	status := "failure"
	if success {
		status = "success"
	}
	m.PipelineRunsTotal.WithLabelValues(string(variant), status).Inc()
	m.PipelineRunSeconds.WithLabelValues(string(variant)).Observe(elapsed.Seconds())
}

// #endregion pipeline

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
