package pipeline

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestApplyPartialUpdateKeepsOtherFields(t *testing.T) {
	sc := NewSharedContext("NVDA", "2026-01-02")
	if err := sc.Apply(Update{FieldMarketReport: "uptrend"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := sc.Apply(Update{FieldNewsReport: "earnings beat"}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if v, _ := sc.Report(FieldMarketReport); v != "uptrend" {
		t.Errorf("market report overwritten: %q", v)
	}
	if v, _ := sc.Report(FieldNewsReport); v != "earnings beat" {
		t.Errorf("news report = %q", v)
	}
}

func TestApplyRejectsWrongType(t *testing.T) {
	sc := NewSharedContext("NVDA", "2026-01-02")
	err := sc.Apply(Update{FieldMarketReport: 42})
	if err == nil {
		t.Fatal("expected type error")
	}
	if _, ok := sc.Report(FieldMarketReport); ok {
		t.Error("invalid update must not be written")
	}
}

func TestApplyRejectsUnknownAndArgumentFields(t *testing.T) {
	sc := NewSharedContext("NVDA", "2026-01-02")
	if err := sc.Apply(Update{"bogus": "x"}); err == nil {
		t.Error("expected unknown field error")
	}
	if err := sc.Apply(Update{FieldBullArgument: "x"}); err == nil {
		t.Error("expected argument field to be rejected")
	}
}

func TestDebateStateIsCopied(t *testing.T) {
	sc := NewSharedContext("NVDA", "2026-01-02")
	st := DebateState{Count: 1, History: map[Role]string{RoleBull: "buy"}}
	if err := sc.Apply(Update{FieldInvestmentDebate: st}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	st.History[RoleBull] = "mutated"

	got := sc.Debate(DebateInvestment)
	if got.History[RoleBull] != "buy" {
		t.Fatalf("context shares history map with caller: %q", got.History[RoleBull])
	}

	sc.ResetDebate(DebateInvestment)
	if sc.Debate(DebateInvestment).Count != 0 {
		t.Fatal("reset did not clear count")
	}
}

func TestDegradedFields(t *testing.T) {
	sc := NewSharedContext("NVDA", "2026-01-02")
	sc.Apply(Update{
		FieldMarketReport: DegradedMarker(RoleMarket, "timeout"),
		FieldNewsReport:   "fine",
	})
	got := sc.DegradedFields()
	if len(got) != 1 || got[0] != FieldMarketReport {
		t.Fatalf("expected [market_report], got %v", got)
	}
}

func TestConcurrentApply(t *testing.T) {
	sc := NewSharedContext("NVDA", "2026-01-02")
	fields := []Field{FieldMarketReport, FieldNewsReport, FieldFundamentalsReport, FieldSentimentReport}

	var wg sync.WaitGroup
	for _, f := range fields {
		wg.Add(1)
		go func(f Field) {
			defer wg.Done()
			sc.Apply(Update{f: string(f)})
		}(f)
	}
	wg.Wait()

	snap := sc.Snapshot()
	if len(snap.Reports) != len(fields) {
		t.Fatalf("expected %d reports, got %d", len(fields), len(snap.Reports))
	}
}

func TestOutputFieldRegistry(t *testing.T) {
	cases := map[Role]Field{
		RoleMarket: FieldMarketReport,
		RoleNews:   FieldNewsReport,
		RoleBear:   FieldBearArgument,
		RoleJudge:  FieldFinalDecision,
	}
	for role, want := range cases {
		got, ok := OutputField(role)
		if !ok || got != want {
			t.Errorf("OutputField(%s) = %s, %v; want %s", role, got, ok, want)
		}
	}
	if _, ok := OutputField("astrologer"); ok {
		t.Error("unknown role should not map")
	}
}

func TestAnalystRoles(t *testing.T) {
	for _, role := range AnalystRoles {
		if !IsAnalyst(role) {
			t.Errorf("%s should be an analyst", role)
		}
		f, ok := OutputField(role)
		if !ok || !strings.HasSuffix(string(f), "_report") {
			t.Errorf("analyst %s writes %q, want a report field", role, f)
		}
	}
	for _, role := range []Role{RoleBull, RoleManager, RoleTrader, RoleJudge, "astrologer"} {
		if IsAnalyst(role) {
			t.Errorf("%s should not be an analyst", role)
		}
	}
}

func TestIsArgumentField(t *testing.T) {
	if !IsArgumentField(FieldSafeArgument) {
		t.Error("safe argument should be an argument field")
	}
	if IsArgumentField(FieldFinalDecision) || IsArgumentField(FieldMarketReport) {
		t.Error("report and decision fields are not arguments")
	}
}

func TestDefaultTimeout(t *testing.T) {
	if DefaultTimeout(RoleMarket) != 45*time.Second {
		t.Errorf("market timeout = %v", DefaultTimeout(RoleMarket))
	}
	if DefaultTimeout(RoleScout) != 30*time.Second {
		t.Errorf("scout timeout = %v", DefaultTimeout(RoleScout))
	}
	if DefaultTimeout("unknown") != 60*time.Second {
		t.Errorf("fallback timeout = %v", DefaultTimeout("unknown"))
	}
}

func TestDegradedMarker(t *testing.T) {
	m := DegradedMarker(RoleNews, "")
	if !IsDegraded(m) {
		t.Fatal("marker not detected")
	}
	if !strings.Contains(m, "unavailable") {
		t.Errorf("marker missing human-readable status: %q", m)
	}
	if IsDegraded("plain report") {
		t.Error("plain text detected as degraded")
	}
}
