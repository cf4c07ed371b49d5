package provider

import (
	"context"
	"errors"
	"time"
)

// #region errors
var (
	// ErrNoProviderAvailable means every provider for a capability is
	// circuit-open (or just failed). Callers must treat it as a hard failure.
	ErrNoProviderAvailable = errors.New("no provider available")
	// ErrUnknownProvider is returned when resetting a provider never seen.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrDuplicateProvider is returned when a capability lists an id twice.
	ErrDuplicateProvider = errors.New("duplicate provider")
)

// #endregion errors

// #region capability
// Capability is a logical function several providers can serve
// interchangeably, e.g. "stock_quote" or "llm_completion".
type Capability string

const (
	CapabilityQuote        Capability = "stock_quote"
	CapabilityNews         Capability = "news_search"
	CapabilityFundamentals Capability = "fundamentals"
	CapabilitySentiment    Capability = "social_sentiment"
	CapabilityCompletion   Capability = "llm_completion"
)

// #endregion capability

// #region provider
// Request is the capability-specific payload handed to a provider.
type Request struct {
	Capability Capability
	Params     map[string]any
}

// Response is what a provider returned. ProviderID is filled in by the router.
type Response struct {
	ProviderID string
	Data       map[string]any
}

// Provider is one interchangeable upstream for a capability.
type Provider interface {
	ID() string
	Call(ctx context.Context, req Request) (Response, error)
}

// Prober is implemented by providers that support an out-of-band health check.
type Prober interface {
	Probe(ctx context.Context) error
}

// #endregion provider

// #region health
// Health is the telemetry kept per (capability, provider) pair.
// Available is false exactly while ConsecutiveFailures >= the threshold,
// until a success, a reset or a successful probe closes the circuit.
type Health struct {
	Capability          Capability `json:"capability"`
	ProviderID          string     `json:"provider_id"`
	TotalRequests       int64      `json:"total_requests"`
	SuccessfulRequests  int64      `json:"successful_requests"`
	FailedRequests      int64      `json:"failed_requests"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastLatencyMs       float64    `json:"last_latency_ms"`
	AvgLatencyMs        float64    `json:"avg_latency_ms"`
	Available           bool       `json:"available"`
	OpenedAt            time.Time  `json:"opened_at,omitempty"`

	latencySumMs  float64
	probeInFlight bool
}

// #endregion health

// #region config
// RouterConfig controls breaker behaviour.
type RouterConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// ProbeCooldown, when > 0, lets one half-open trial call through after
	// the circuit has been open this long. 0 keeps the circuit open until Reset.
	ProbeCooldown time.Duration
}

// DefaultRouterConfig returns a hard breaker with manual reset.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		FailureThreshold: 5,
		ProbeCooldown:    0,
	}
}

// #endregion config

// #region observer
// Observer is notified after every recorded call and circuit transition.
type Observer interface {
	ObserveProviderCall(h Health, success bool, latency time.Duration)
	ObserveCircuit(h Health)
}

// #endregion observer
