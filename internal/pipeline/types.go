package pipeline

// #region role
// Role names a participant in the pipeline: an analyst stage, a debater or a judge.
type Role string

const (
	RoleMarket       Role = "market"
	RoleNews         Role = "news"
	RoleFundamentals Role = "fundamentals"
	RoleSentiment    Role = "sentiment"
	RolePolicy       Role = "policy"
	RoleFundFlow     Role = "fund_flow"
	RoleScout        Role = "scout"

	RoleBull    Role = "bull"
	RoleBear    Role = "bear"
	RoleManager Role = "manager"

	RoleTrader Role = "trader"

	RoleRisky   Role = "risky"
	RoleSafe    Role = "safe"
	RoleNeutral Role = "neutral"
	RoleJudge   Role = "judge"
)

// #endregion role

// #region field
// Field is the canonical name of one output slot in SharedContext.
type Field string

const (
	FieldMarketReport       Field = "market_report"
	FieldNewsReport         Field = "news_report"
	FieldFundamentalsReport Field = "fundamentals_report"
	FieldSentimentReport    Field = "sentiment_report"
	FieldPolicyReport       Field = "policy_report"
	FieldFundFlowReport     Field = "fund_flow_report"
	FieldScoutReport        Field = "scout_report"

	// Debater turn outputs. These are folded into a DebateState by the
	// debate machine and never stored as standalone fields.
	FieldBullArgument    Field = "bull_argument"
	FieldBearArgument    Field = "bear_argument"
	FieldRiskyArgument   Field = "risky_argument"
	FieldSafeArgument    Field = "safe_argument"
	FieldNeutralArgument Field = "neutral_argument"

	FieldInvestmentPlan     Field = "investment_plan"
	FieldInvestmentDecision Field = "investment_decision"
	FieldTraderPlan         Field = "trader_investment_plan"
	FieldFinalDecision      Field = "final_trade_decision"
	FieldRiskAssessment     Field = "risk_assessment"

	FieldInvestmentDebate Field = "investment_debate_state"
	FieldRiskDebate       Field = "risk_debate_state"
)

// #endregion field

// #region update
// Update is a partial context update: a stage returns only the fields it touched.
type Update map[Field]any

// Merge copies every entry of other into u, replacing existing keys.
func (u Update) Merge(other Update) Update {
	if u == nil {
		u = make(Update, len(other))
	}
	for k, v := range other {
		u[k] = v
	}
	return u
}

// #endregion update

// #region debate-kind
// DebateKind selects one of the two deliberation slots in SharedContext.
type DebateKind string

const (
	DebateInvestment DebateKind = "investment"
	DebateRisk       DebateKind = "risk"
)

// Field returns the context field that stores this debate's state.
func (k DebateKind) Field() Field {
	if k == DebateRisk {
		return FieldRiskDebate
	}
	return FieldInvestmentDebate
}

// #endregion debate-kind

// #region debate-state
// DebateState tracks one deliberation. Count advances by exactly one per
// executed role-turn; the judge turn does not advance it.
type DebateState struct {
	Count           int             `json:"count"`
	LatestSpeaker   Role            `json:"latest_speaker,omitempty"`
	LatestResponse  string          `json:"latest_response,omitempty"`
	History         map[Role]string `json:"history,omitempty"`
	CombinedHistory string          `json:"combined_history"`
	JudgeDecision   string          `json:"judge_decision,omitempty"`
}

// Clone returns a deep copy so callers never share the history map.
func (s DebateState) Clone() DebateState {
	out := s
	if s.History != nil {
		out.History = make(map[Role]string, len(s.History))
		for k, v := range s.History {
			out.History[k] = v
		}
	}
	return out
}

// #endregion debate-state

// #region risk-assessment
// RiskAssessment is the explicit risk verdict attached to a final trade decision.
type RiskAssessment struct {
	Score      float64 `json:"score"`      // 0 (no risk) .. 1 (maximum risk)
	Verdict    string  `json:"verdict"`    // e.g. "acceptable" | "elevated" | "reject"
	Confidence float64 `json:"confidence"` // judge confidence in the decision, 0..1
}

// #endregion risk-assessment
