package debate

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
)

// #region errors
// ErrInvalidMachine is returned when a machine is built from a malformed
// protocol. It aborts pipeline construction; it never occurs during a run.
var ErrInvalidMachine = errors.New("invalid debate machine")

// #endregion errors

// #region speaker
// TurnInput is what a debater sees when it is its turn to speak.
type TurnInput struct {
	Role    pipeline.Role
	Round   int // 1-based round number
	Context *pipeline.SharedContext
	State   pipeline.DebateState
}

// Speaker produces one debater's argument for the current turn.
type Speaker func(ctx context.Context, in TurnInput) (string, error)

// JudgeInput is what the judge sees once every role-turn has run.
type JudgeInput struct {
	Context *pipeline.SharedContext
	State   pipeline.DebateState
}

// JudgeFunc synthesizes the debate into a decision. The returned update
// must include the judge role's output field.
type JudgeFunc func(ctx context.Context, in JudgeInput) (pipeline.Update, error)

// #endregion speaker

// #region policy
// Policy is the execution policy applied to every turn of a machine.
type Policy struct {
	Timeouts   map[pipeline.Role]time.Duration // per-role override; missing = role default
	MaxRetries int
	RetryDelay time.Duration
}

func (p Policy) timeout(role pipeline.Role) time.Duration {
	return p.Timeouts[role]
}

// #endregion policy

// #region protocol
// Protocol describes a fixed cyclic sequence of roles followed by a judge.
type Protocol struct {
	Kind      pipeline.DebateKind
	Roles     []pipeline.Role
	JudgeRole pipeline.Role
	MaxRounds int
	Speakers  map[pipeline.Role]Speaker
	Judge     JudgeFunc
	Policy    Policy
}

// #endregion protocol

// #region transition
// Transition is the next step a machine will take for a given count.
type Transition struct {
	Count int
	Role  pipeline.Role
	Judge bool // true once Count has reached len(roles) * maxRounds
}

// #endregion transition
