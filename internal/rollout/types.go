package rollout

import "time"

// #region variant
// Variant names one of the two competing pipeline architectures.
type Variant string

const (
	VariantBaseline  Variant = "baseline"  // monolith
	VariantCandidate Variant = "candidate" // subgraph
)

// Architecture returns the pipeline shape the variant runs.
func (v Variant) Architecture() string {
	if v == VariantCandidate {
		return "subgraph"
	}
	return "monolith"
}

// #endregion variant

// #region decision
// DecidedBy records which rule of the decision order selected the variant.
type DecidedBy string

const (
	DecidedByParam     DecidedBy = "forced_param"
	DecidedByAllowlist DecidedBy = "forced_allowlist"
	DecidedByBucket    DecidedBy = "hash_bucket"
)

// DefaultKey is the bucketing key when a request carries no identity at all.
const DefaultKey = "anonymous"

// Input identifies one request to the gate. Override, when non-nil, is an
// explicit per-request choice: true selects the candidate.
type Input struct {
	UserID    string
	RequestID string
	Override  *bool
}

// Key returns the request-identifying key: user id, then request id,
// then DefaultKey.
func (in Input) Key() string {
	switch {
	case in.UserID != "":
		return in.UserID
	case in.RequestID != "":
		return in.RequestID
	default:
		return DefaultKey
	}
}

// Decision is derived per request and never stored.
type Decision struct {
	RequestKey string    `json:"request_key"`
	Variant    Variant   `json:"variant"`
	DecidedBy  DecidedBy `json:"decided_by"`
	Percentage int       `json:"percentage"`
	Bucket     int       `json:"bucket"` // -1 when no hash was computed
}

// #endregion decision

// #region gate-config
// GateConfig is the externally configured rollout policy.
type GateConfig struct {
	Percentage int
	ForceAllow []string
}

// #endregion gate-config

// #region samples
// Sample is one completed pipeline run as reported by the caller.
type Sample struct {
	Variant        Variant
	ElapsedSeconds float64
	Success        bool
	Confidence     *float64
	RecordedAt     time.Time
}

// VariantStats aggregates the samples of one variant.
type VariantStats struct {
	Variant           Variant `json:"variant"`
	Count             int     `json:"count"`
	Completed         int     `json:"completed"`
	SuccessRate       float64 `json:"success_rate"`        // percent, 0-100
	AvgElapsedSeconds float64 `json:"avg_elapsed_seconds"` // successful runs only
	AvgConfidence     float64 `json:"avg_confidence"`      // successful runs with a confidence only
}

// #endregion samples

// #region promotion-config
// PromotionConfig holds the promotion policy. All thresholds are tunable.
type PromotionConfig struct {
	MinSamples       int           // candidate samples required before comparing
	ElapsedTolerance float64       // candidate may be this factor slower than baseline
	NeedsDataStep    int           // increase while gathering data
	NeedsDataCap     int           // ceiling while gathering data
	PromoteStep      int           // increase when candidate wins
	DemoteStep       int           // decrease when baseline wins
	Window           time.Duration // trailing aggregation window
}

// DefaultPromotionConfig returns the standard promotion policy.
func DefaultPromotionConfig() PromotionConfig {
	return PromotionConfig{
		MinSamples:       30,
		ElapsedTolerance: 1.1,
		NeedsDataStep:    10,
		NeedsDataCap:     30,
		PromoteStep:      20,
		DemoteStep:       10,
		Window:           24 * time.Hour,
	}
}

// #endregion promotion-config

// #region recommendation
// Action is the promotion engine's verdict.
type Action string

const (
	ActionNeedsMoreData  Action = "needs_more_data"
	ActionSubgraphReady  Action = "subgraph_ready"
	ActionMonolithBetter Action = "monolith_better"
)

// Recommendation is advisory only. Applying SuggestedPercentage is a
// separate operator action.
type Recommendation struct {
	Action              Action       `json:"action"`
	CurrentPercentage   int          `json:"current_percentage"`
	SuggestedPercentage int          `json:"suggested_percentage"`
	Reasons             []string     `json:"reasons"`
	Baseline            VariantStats `json:"baseline"`
	Candidate           VariantStats `json:"candidate"`
	WindowStart         time.Time    `json:"window_start"`
	GeneratedAt         time.Time    `json:"generated_at"`
}

// #endregion recommendation

// #region observer
// Observer receives gate and promotion events. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveDecision(d Decision)
	ObservePercentage(percentage int, overridden bool)
	ObserveRecommendation(r Recommendation)
}

// #endregion observer
