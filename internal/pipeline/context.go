package pipeline

import (
	"fmt"
	"sync"
)

// #region shared-context
// SharedContext is the per-request state handed to every stage and debate
// round. Stages never write it directly: they return an Update which the
// caller merges with Apply. Safe for concurrent use so analyst stages of the
// subgraph variant can merge in parallel.
type SharedContext struct {
	mu sync.RWMutex

	ticker    string
	tradeDate string

	reports map[Field]string

	investmentDebate DebateState
	riskDebate       DebateState
	riskAssessment   *RiskAssessment
}

// NewSharedContext creates an empty context for one analysis request.
func NewSharedContext(ticker, tradeDate string) *SharedContext {
	return &SharedContext{
		ticker:    ticker,
		tradeDate: tradeDate,
		reports:   make(map[Field]string),
	}
}

// Ticker returns the instrument under analysis.
func (c *SharedContext) Ticker() string { return c.ticker }

// TradeDate returns the analysis date.
func (c *SharedContext) TradeDate() string { return c.tradeDate }

// #endregion shared-context

// #region text-fields
// textFields are the fields stored as plain text.
var textFields = map[Field]bool{
	FieldMarketReport:       true,
	FieldNewsReport:         true,
	FieldFundamentalsReport: true,
	FieldSentimentReport:    true,
	FieldPolicyReport:       true,
	FieldFundFlowReport:     true,
	FieldScoutReport:        true,
	FieldInvestmentPlan:     true,
	FieldInvestmentDecision: true,
	FieldTraderPlan:         true,
	FieldFinalDecision:      true,
}

// argumentFields are debater outputs; they are only meaningful inside a
// debate machine and are rejected by Apply.
var argumentFields = map[Field]bool{
	FieldBullArgument:    true,
	FieldBearArgument:    true,
	FieldRiskyArgument:   true,
	FieldSafeArgument:    true,
	FieldNeutralArgument: true,
}

// IsArgumentField reports whether f is a debater output.
func IsArgumentField(f Field) bool { return argumentFields[f] }

// #endregion text-fields

// #region validate
// ValidateUpdate checks that every key is known and carries the right type.
// Argument fields are accepted here because debate turns produce them.
func ValidateUpdate(u Update) error {
	for k, v := range u {
		switch {
		case textFields[k], argumentFields[k]:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("field %s: want string, got %T", k, v)
			}
		case k == FieldInvestmentDebate || k == FieldRiskDebate:
			if _, ok := v.(DebateState); !ok {
				return fmt.Errorf("field %s: want DebateState, got %T", k, v)
			}
		case k == FieldRiskAssessment:
			if _, ok := v.(RiskAssessment); !ok {
				return fmt.Errorf("field %s: want RiskAssessment, got %T", k, v)
			}
		default:
			return fmt.Errorf("unknown field %s", k)
		}
	}
	return nil
}

// #endregion validate

// #region apply
// Apply merges a partial update. Only the keys present in u are replaced;
// nothing else is cleared. The update is validated before any key is written.
func (c *SharedContext) Apply(u Update) error {
	if err := ValidateUpdate(u); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	for k := range u {
		if argumentFields[k] {
			return fmt.Errorf("apply update: %s is a debate turn output", k)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range u {
		switch k {
		case FieldInvestmentDebate:
			c.investmentDebate = v.(DebateState).Clone()
		case FieldRiskDebate:
			c.riskDebate = v.(DebateState).Clone()
		case FieldRiskAssessment:
			ra := v.(RiskAssessment)
			c.riskAssessment = &ra
		default:
			c.reports[k] = v.(string)
		}
	}
	return nil
}

// #endregion apply

// #region accessors
// Report returns a text field and whether it has been written.
func (c *SharedContext) Report(f Field) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.reports[f]
	return v, ok
}

// Debate returns a copy of the state for one deliberation.
func (c *SharedContext) Debate(kind DebateKind) DebateState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if kind == DebateRisk {
		return c.riskDebate.Clone()
	}
	return c.investmentDebate.Clone()
}

// RiskAssessment returns the judge's risk verdict, if one was produced.
func (c *SharedContext) RiskAssessment() (RiskAssessment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.riskAssessment == nil {
		return RiskAssessment{}, false
	}
	return *c.riskAssessment, true
}

// ResetDebate clears one debate's counters and history. This is the only
// operation that removes content from the context.
func (c *SharedContext) ResetDebate(kind DebateKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == DebateRisk {
		c.riskDebate = DebateState{}
		return
	}
	c.investmentDebate = DebateState{}
}

// DegradedFields lists the text fields that currently hold fallback content.
func (c *SharedContext) DegradedFields() []Field {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Field
	for f, v := range c.reports {
		if IsDegraded(v) {
			out = append(out, f)
		}
	}
	return out
}

// #endregion accessors

// #region snapshot
// Snapshot is a point-in-time, JSON-friendly copy of a SharedContext.
type Snapshot struct {
	Ticker           string           `json:"ticker"`
	TradeDate        string           `json:"trade_date"`
	Reports          map[Field]string `json:"reports"`
	InvestmentDebate DebateState      `json:"investment_debate_state"`
	RiskDebate       DebateState      `json:"risk_debate_state"`
	RiskAssessment   *RiskAssessment  `json:"risk_assessment,omitempty"`
}

// Snapshot copies the context under a read lock.
func (c *SharedContext) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reports := make(map[Field]string, len(c.reports))
	for k, v := range c.reports {
		reports[k] = v
	}
	snap := Snapshot{
		Ticker:           c.ticker,
		TradeDate:        c.tradeDate,
		Reports:          reports,
		InvestmentDebate: c.investmentDebate.Clone(),
		RiskDebate:       c.riskDebate.Clone(),
	}
	if c.riskAssessment != nil {
		ra := *c.riskAssessment
		snap.RiskAssessment = &ra
	}
	return snap
}

// #endregion snapshot
