package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
)

// #region errors
var (
	// ErrUnmappedRole is returned at construction when a role has no output field.
	ErrUnmappedRole = errors.New("role has no output field")
	// ErrStageTimeout marks an attempt that exceeded its allotted time.
	ErrStageTimeout = errors.New("stage timed out")
)

// #endregion errors

// #region stage-func
// StageFunc is one unit of pipeline work. It reads the shared context and
// returns only the fields it produced. It must honour ctx cancellation.
type StageFunc func(ctx context.Context, sc *pipeline.SharedContext) (pipeline.Update, error)

// #endregion stage-func

// #region state
// State is the lifecycle position of a wrapped stage execution.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateDegraded  State = "degraded"
)

// #endregion state

// #region outcome
// Outcome is the result of a single attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// #endregion outcome

// #region stage-config
// StageConfig controls how one stage is executed.
type StageConfig struct {
	Name       string
	Role       pipeline.Role
	Timeout    time.Duration   // 0 = pipeline.DefaultTimeout(Role)
	MaxRetries int             // retries after the first attempt
	RetryDelay time.Duration   // fixed wait between attempts
	Fallback   pipeline.Update // nil = synthesized degraded marker
}

// #endregion stage-config

// #region execution-record
// StageExecutionRecord describes one attempt. Kept in memory only.
type StageExecutionRecord struct {
	Stage        string    `json:"stage_name"`
	Attempt      int       `json:"attempt_number"`
	DurationMs   int64     `json:"duration_ms"`
	Outcome      Outcome   `json:"outcome"`
	ErrorMessage string    `json:"error_message,omitempty"`
	At           time.Time `json:"at"`
}

// #endregion execution-record

// #region result
// Result is what the wrapper always hands back. Update is never nil.
type Result struct {
	Update   pipeline.Update
	State    State // StateSucceeded or StateDegraded
	Attempts int
	Outcome  Outcome // outcome of the last attempt
	Err      error   // last attempt error, nil on success
}

// Degraded reports whether the result carries fallback content.
func (r Result) Degraded() bool {
	return r.State == StateDegraded
}

// #endregion result
