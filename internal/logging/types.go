package logging

import "time"

// #region decision-kind
// Kind classifies an audited decision.
type Kind string

const (
	KindRolloutPercentage Kind = "rollout_percentage"
	KindPromotion         Kind = "promotion"
	KindCircuit           Kind = "circuit"
)

// #endregion decision-kind

// #region decision-entry
// DecisionEntry is a single row in the decision_log table.
type DecisionEntry struct {
	EntryID    string
	Kind       Kind
	Subject    string // e.g. "stock_quote/yahoo" or "rollout"
	Action     string // e.g. "opened" | "closed" | "override_set" | "subgraph_ready"
	DetailJSON string
	Reason     string
	CreatedAt  time.Time
}

// #endregion decision-entry
