package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// #region role-fields
// roleFields maps each role to the single context field it writes.
var roleFields = map[Role]Field{
	RoleMarket:       FieldMarketReport,
	RoleNews:         FieldNewsReport,
	RoleFundamentals: FieldFundamentalsReport,
	RoleSentiment:    FieldSentimentReport,
	RolePolicy:       FieldPolicyReport,
	RoleFundFlow:     FieldFundFlowReport,
	RoleScout:        FieldScoutReport,

	RoleBull:    FieldBullArgument,
	RoleBear:    FieldBearArgument,
	RoleManager: FieldInvestmentPlan,

	RoleTrader: FieldTraderPlan,

	RoleRisky:   FieldRiskyArgument,
	RoleSafe:    FieldSafeArgument,
	RoleNeutral: FieldNeutralArgument,
	RoleJudge:   FieldFinalDecision,
}

// OutputField returns the canonical output field for a role.
func OutputField(role Role) (Field, bool) {
	f, ok := roleFields[role]
	return f, ok
}

// AnalystRoles lists the report-producing roles in canonical run order.
var AnalystRoles = []Role{
	RoleMarket, RoleNews, RoleFundamentals, RoleSentiment,
	RolePolicy, RoleFundFlow, RoleScout,
}

// IsAnalyst reports whether role produces a report field.
func IsAnalyst(role Role) bool {
	for _, r := range AnalystRoles {
		if r == role {
			return true
		}
	}
	return false
}

// #endregion role-fields

// #region default-timeouts
const fallbackTimeout = 60 * time.Second

// defaultTimeouts is the per-role timeout used when a caller does not override it.
var defaultTimeouts = map[Role]time.Duration{
	RoleMarket:       45 * time.Second,
	RoleNews:         60 * time.Second,
	RoleFundamentals: 60 * time.Second,
	RoleSentiment:    45 * time.Second,
	RolePolicy:       45 * time.Second,
	RoleFundFlow:     45 * time.Second,
	RoleScout:        30 * time.Second,

	RoleBull:    60 * time.Second,
	RoleBear:    60 * time.Second,
	RoleManager: 90 * time.Second,

	RoleTrader: 60 * time.Second,

	RoleRisky:   60 * time.Second,
	RoleSafe:    60 * time.Second,
	RoleNeutral: 60 * time.Second,
	RoleJudge:   90 * time.Second,
}

// DefaultTimeout returns the timeout for a role, or 60s for unknown roles.
func DefaultTimeout(role Role) time.Duration {
	if d, ok := defaultTimeouts[role]; ok {
		return d
	}
	return fallbackTimeout
}

// #endregion default-timeouts

// #region degraded-marker
// DegradedToken is present in every synthesized fallback text.
const DegradedToken = "[DEGRADED]"

// DegradedMarker builds the human-readable fallback content for a role.
func DegradedMarker(role Role, cause string) string {
	if cause == "" {
		cause = "stage failed"
	}
	return fmt.Sprintf("%s %s output unavailable: %s", DegradedToken, role, cause)
}

// IsDegraded reports whether a text value is fallback content.
func IsDegraded(text string) bool {
	return strings.Contains(text, DegradedToken)
}

// #endregion degraded-marker
