package analysis

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/debate"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/resilience"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/rollout"
)

// #endregion

// #region request
// Request is one inbound analysis. ForceSubgraph, when set, bypasses
// bucketing: true runs the subgraph variant, false the monolith.
type Request struct {
	Ticker        string
	TradeDate     string
	UserID        string
	RequestID     string
	ForceSubgraph *bool
}

// #endregion request

// #region result
// Result is a completed analysis.
type Result struct {
	RunID      string            `json:"run_id"`
	Decision   rollout.Decision  `json:"rollout"`
	Snapshot   pipeline.Snapshot `json:"context"`
	Degraded   []pipeline.Field  `json:"degraded_fields,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
	Success    bool              `json:"success"`
	Confidence *float64          `json:"confidence,omitempty"`
}

// FinalDecision returns the risk judge's decision text.
func (r Result) FinalDecision() string {
	return r.Snapshot.Reports[pipeline.FieldFinalDecision]
}

// #endregion result

// #region agents
// Agents are the functions the pipeline delegates each role to. Every
// analyst listed in Config.Analysts must have an entry in Analysts.
type Agents struct {
	Analysts map[pipeline.Role]resilience.StageFunc

	Bull    debate.Speaker
	Bear    debate.Speaker
	Manager debate.JudgeFunc

	Trader resilience.StageFunc

	Risky   debate.Speaker
	Safe    debate.Speaker
	Neutral debate.Speaker
	Judge   debate.JudgeFunc
}

// #endregion agents

// #region config
// Config shapes both pipeline variants.
type Config struct {
	Analysts         []pipeline.Role
	InvestmentRounds int
	RiskRounds       int
	MaxRetries       int
	RetryDelay       time.Duration
	Timeouts         map[pipeline.Role]time.Duration // missing = role default
}

// #endregion config

// #region sinks
// OutcomeSink receives one sample per completed run.
type OutcomeSink interface {
	RecordOutcome(sample rollout.Sample) error
}

// RunObserver is notified after every completed run.
type RunObserver interface {
	ObserveRun(variant rollout.Variant, success bool, elapsed time.Duration)
}

// #endregion sinks
