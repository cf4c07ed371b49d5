package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/provider"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/rollout"
)

// #region auditor
// Auditor persists operator-relevant transitions to decision_log. It
// implements rollout.Observer and provider.Observer; per-request events
// (gate decisions, individual provider calls) are not audited.
type Auditor struct {
	db *sql.DB
}

// NewAuditor returns an auditor writing to db.
func NewAuditor(db *sql.DB) *Auditor {
	return &Auditor{db: db}
}

func (a *Auditor) write(entry DecisionEntry) {
	if err := LogDecision(a.db, entry); err != nil {
		log.Printf("[AUDIT] %s %s %s: %v", entry.Kind, entry.Subject, entry.Action, err)
	}
}

// #endregion auditor

// #region rollout-observer
// ObserveDecision implements rollout.Observer.
func (a *Auditor) ObserveDecision(rollout.Decision) {}

// ObservePercentage implements rollout.Observer.
func (a *Auditor) ObservePercentage(percentage int, overridden bool) {
	action := "override_cleared"
	if overridden {
		action = "override_set"
	}
	a.write(DecisionEntry{
		Kind:       KindRolloutPercentage,
		Subject:    "rollout",
		Action:     action,
		DetailJSON: fmt.Sprintf(`{"percentage":%d}`, percentage),
	})
}

// ObserveRecommendation implements rollout.Observer.
func (a *Auditor) ObserveRecommendation(r rollout.Recommendation) {
	detail, err := json.Marshal(r)
	if err != nil {
		log.Printf("[AUDIT] marshal recommendation: %v", err)
	}
	a.write(DecisionEntry{
		Kind:       KindPromotion,
		Subject:    "rollout",
		Action:     string(r.Action),
		DetailJSON: string(detail),
		Reason:     strings.Join(r.Reasons, "; "),
		CreatedAt:  r.GeneratedAt,
	})
}

// #endregion rollout-observer

// #region provider-observer
// ObserveProviderCall implements provider.Observer.
func (a *Auditor) ObserveProviderCall(provider.Health, bool, time.Duration) {}

// ObserveCircuit implements provider.Observer.
func (a *Auditor) ObserveCircuit(h provider.Health) {
	action := "closed"
	if !h.Available {
		action = "opened"
	}
	a.write(DecisionEntry{
		Kind:       KindCircuit,
		Subject:    fmt.Sprintf("%s/%s", h.Capability, h.ProviderID),
		Action:     action,
		DetailJSON: fmt.Sprintf(`{"consecutive_failures":%d,"total_requests":%d}`, h.ConsecutiveFailures, h.TotalRequests),
		Reason:     h.LastError,
	})
}

// #endregion provider-observer
