package debate

// #region imports
import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/resilience"
)

// #endregion

// #region next-role
// NextRole is the transition rule shared by every machine: while
// count < len(roles)*maxRounds the next speaker is roles[count mod len(roles)],
// afterwards it is the judge. It depends on nothing but its arguments.
func NextRole(roles []pipeline.Role, judge pipeline.Role, maxRounds, count int) Transition {
	k := len(roles)
	if k == 0 || count >= k*maxRounds {
		return Transition{Count: count, Role: judge, Judge: true}
	}
	if count < 0 {
		count = 0
	}
	return Transition{Count: count, Role: roles[count%k]}
}

// #endregion next-role

// #region machine
// Machine runs one deliberation protocol. It holds no per-request state:
// the DebateState lives in the SharedContext, so a Machine can serve
// concurrent requests and resume a partially-run debate.
type Machine struct {
	kind      pipeline.DebateKind
	roles     []pipeline.Role
	judgeRole pipeline.Role
	maxRounds int
	turns     map[pipeline.Role]*resilience.Stage
	judge     *resilience.Stage
}

// New validates the protocol and wraps every turn in a resilient stage.
func New(proto Protocol, monitor *resilience.Monitor) (*Machine, error) {
	if err := validate(proto); err != nil {
		return nil, err
	}

	m := &Machine{
		kind:      proto.Kind,
		roles:     append([]pipeline.Role(nil), proto.Roles...),
		judgeRole: proto.JudgeRole,
		maxRounds: proto.MaxRounds,
		turns:     make(map[pipeline.Role]*resilience.Stage, len(proto.Roles)),
	}

	for _, role := range proto.Roles {
		st, err := resilience.NewStage(resilience.StageConfig{
			Name:       fmt.Sprintf("%s_debate.%s", proto.Kind, role),
			Role:       role,
			Timeout:    proto.Policy.timeout(role),
			MaxRetries: proto.Policy.MaxRetries,
			RetryDelay: proto.Policy.RetryDelay,
		}, m.turnFunc(role, proto.Speakers[role]), monitor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMachine, err)
		}
		m.turns[role] = st
	}

	judge, err := resilience.NewStage(resilience.StageConfig{
		Name:       fmt.Sprintf("%s_debate.%s", proto.Kind, proto.JudgeRole),
		Role:       proto.JudgeRole,
		Timeout:    proto.Policy.timeout(proto.JudgeRole),
		MaxRetries: proto.Policy.MaxRetries,
		RetryDelay: proto.Policy.RetryDelay,
	}, m.judgeFunc(proto.Judge), monitor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMachine, err)
	}
	m.judge = judge

	return m, nil
}

func validate(proto Protocol) error {
	if proto.Kind != pipeline.DebateInvestment && proto.Kind != pipeline.DebateRisk {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMachine, proto.Kind)
	}
	if len(proto.Roles) == 0 {
		return fmt.Errorf("%w: empty role list", ErrInvalidMachine)
	}
	if proto.MaxRounds < 1 {
		return fmt.Errorf("%w: max rounds must be >= 1, got %d", ErrInvalidMachine, proto.MaxRounds)
	}
	seen := make(map[pipeline.Role]bool, len(proto.Roles))
	for _, r := range proto.Roles {
		if seen[r] {
			return fmt.Errorf("%w: duplicate role %q", ErrInvalidMachine, r)
		}
		seen[r] = true
		if proto.Speakers[r] == nil {
			return fmt.Errorf("%w: no speaker for role %q", ErrInvalidMachine, r)
		}
	}
	if proto.JudgeRole == "" || seen[proto.JudgeRole] {
		return fmt.Errorf("%w: judge role %q must be set and distinct from debaters", ErrInvalidMachine, proto.JudgeRole)
	}
	if proto.Judge == nil {
		return fmt.Errorf("%w: nil judge", ErrInvalidMachine)
	}
	return nil
}

// Kind returns which deliberation slot this machine drives.
func (m *Machine) Kind() pipeline.DebateKind { return m.kind }

// Bound returns the number of role-turns before the judge runs.
func (m *Machine) Bound() int { return len(m.roles) * m.maxRounds }

// Next returns the transition for a given count.
func (m *Machine) Next(count int) Transition {
	return NextRole(m.roles, m.judgeRole, m.maxRounds, count)
}

// #endregion machine

// #region stage-funcs
func (m *Machine) turnFunc(role pipeline.Role, speak Speaker) resilience.StageFunc {
	field, _ := pipeline.OutputField(role)
	return func(ctx context.Context, sc *pipeline.SharedContext) (pipeline.Update, error) {
		st := sc.Debate(m.kind)
		text, err := speak(ctx, TurnInput{
			Role:    role,
			Round:   st.Count/len(m.roles) + 1,
			Context: sc,
			State:   st,
		})
		if err != nil {
			return nil, err
		}
		return pipeline.Update{field: text}, nil
	}
}

func (m *Machine) judgeFunc(judge JudgeFunc) resilience.StageFunc {
	return func(ctx context.Context, sc *pipeline.SharedContext) (pipeline.Update, error) {
		return judge(ctx, JudgeInput{Context: sc, State: sc.Debate(m.kind)})
	}
}

// #endregion stage-funcs

// #region step
// Step executes exactly one transition against sc and returns it.
// A failed turn is absorbed by the stage wrapper: its degraded marker is
// appended to the history and the count still advances.
func (m *Machine) Step(ctx context.Context, sc *pipeline.SharedContext) (Transition, error) {
	if err := ctx.Err(); err != nil {
		return Transition{}, err
	}

	st := sc.Debate(m.kind)
	tr := m.Next(st.Count)

	if tr.Judge {
		res := m.judge.Run(ctx, sc)
		if err := ctx.Err(); err != nil {
			return tr, err
		}
		field := m.judge.Field()
		upd := pipeline.Update{}.Merge(res.Update)
		// Debater arguments live only in the debate history.
		for f := range upd {
			if pipeline.IsArgumentField(f) {
				delete(upd, f)
			}
		}
		decision, _ := upd[field].(string)
		if decision == "" {
			// A judge that forgot its own field is treated like a degraded one.
			decision = pipeline.DegradedMarker(m.judgeRole, "judge produced no decision")
			upd[field] = decision
			delete(upd, pipeline.FieldRiskAssessment)
		}
		st.JudgeDecision = decision
		upd[m.kind.Field()] = st
		if err := sc.Apply(upd); err != nil {
			return tr, fmt.Errorf("apply %s decision: %w", m.judgeRole, err)
		}
		log.Printf("[DEBATE] %s judge=%s state=%s count=%d", m.kind, m.judgeRole, res.State, st.Count)
		return tr, nil
	}

	stage := m.turns[tr.Role]
	res := stage.Run(ctx, sc)
	if err := ctx.Err(); err != nil {
		return tr, err
	}
	text, _ := res.Update[stage.Field()].(string)
	if text == "" {
		text = pipeline.DegradedMarker(tr.Role, "empty argument")
	}

	st = appendTurn(st, tr.Role, text)
	if err := sc.Apply(pipeline.Update{m.kind.Field(): st}); err != nil {
		return tr, fmt.Errorf("apply %s turn: %w", tr.Role, err)
	}
	log.Printf("[DEBATE] %s turn=%d role=%s state=%s", m.kind, st.Count, tr.Role, res.State)
	return tr, nil
}

// appendTurn records one argument in the per-role and combined histories
// and advances the counter by one.
func appendTurn(st pipeline.DebateState, role pipeline.Role, text string) pipeline.DebateState {
	argument := fmt.Sprintf("%s: %s", speakerLabel(role), text)
	if st.History == nil {
		st.History = make(map[pipeline.Role]string)
	}
	st.History[role] = joinHistory(st.History[role], argument)
	st.CombinedHistory = joinHistory(st.CombinedHistory, argument)
	st.LatestSpeaker = role
	st.LatestResponse = argument
	st.Count++
	return st
}

func joinHistory(history, argument string) string {
	if history == "" {
		return argument
	}
	return history + "\n" + argument
}

func speakerLabel(role pipeline.Role) string {
	s := string(role)
	if s == "" {
		return "Unknown Analyst"
	}
	return strings.ToUpper(s[:1]) + s[1:] + " Analyst"
}

// #endregion step

// #region run
// Run advances the debate from whatever count sc currently holds until the
// judge has ruled. It returns the terminal DebateState. Only request
// cancellation or an internal apply error stops it early.
func (m *Machine) Run(ctx context.Context, sc *pipeline.SharedContext) (pipeline.DebateState, error) {
	for {
		tr, err := m.Step(ctx, sc)
		if err != nil {
			return sc.Debate(m.kind), err
		}
		if tr.Judge {
			return sc.Debate(m.kind), nil
		}
	}
}

// #endregion run
