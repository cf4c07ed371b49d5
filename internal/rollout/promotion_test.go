package rollout

import (
	"strings"
	"testing"
)

func conf(c float64) *float64 { return &c }

// #region aggregate-tests
func TestAggregate(t *testing.T) {
	samples := []Sample{
		{Variant: VariantBaseline, ElapsedSeconds: 10, Success: true, Confidence: conf(0.8)},
		{Variant: VariantBaseline, ElapsedSeconds: 20, Success: true, Confidence: conf(0.6)},
		{Variant: VariantBaseline, ElapsedSeconds: 99, Success: false, Confidence: conf(0.1)},
		{Variant: VariantBaseline, ElapsedSeconds: 30, Success: true},
		{Variant: VariantCandidate, ElapsedSeconds: 5, Success: false},
		{Variant: "unknown", ElapsedSeconds: 1, Success: true},
	}
	stats := Aggregate(samples)

	b := stats[VariantBaseline]
	if b.Count != 4 || b.Completed != 3 {
		t.Fatalf("baseline counts = %+v", b)
	}
	if b.SuccessRate != 75 {
		t.Errorf("success rate = %v", b.SuccessRate)
	}
	if b.AvgElapsedSeconds != 20 {
		t.Errorf("avg elapsed should exclude failures: %v", b.AvgElapsedSeconds)
	}
	if b.AvgConfidence < 0.699 || b.AvgConfidence > 0.701 {
		t.Errorf("avg confidence = %v", b.AvgConfidence)
	}

	c := stats[VariantCandidate]
	if c.Count != 1 || c.SuccessRate != 0 || c.AvgElapsedSeconds != 0 {
		t.Errorf("candidate = %+v", c)
	}
}

func TestAggregate_Empty(t *testing.T) {
	stats := Aggregate(nil)
	if len(stats) != 2 {
		t.Fatalf("expected both variants, got %d", len(stats))
	}
	if stats[VariantCandidate].Count != 0 {
		t.Error("expected zero count")
	}
}

// #endregion aggregate-tests

// #region recommend-tests
func TestRecommend_NeedsMoreData(t *testing.T) {
	cfg := DefaultPromotionConfig()
	rec := Recommend(10, VariantStats{Count: 100, SuccessRate: 90}, VariantStats{Count: 29, SuccessRate: 100}, cfg)
	if rec.Action != ActionNeedsMoreData {
		t.Fatalf("action = %s", rec.Action)
	}
	if rec.SuggestedPercentage != 20 {
		t.Errorf("suggested = %d, want 20", rec.SuggestedPercentage)
	}

	rec = Recommend(25, VariantStats{}, VariantStats{Count: 0}, cfg)
	if rec.SuggestedPercentage != 30 {
		t.Errorf("suggested should cap at 30, got %d", rec.SuggestedPercentage)
	}
}

func TestRecommend_SubgraphReady(t *testing.T) {
	cfg := DefaultPromotionConfig()
	baseline := VariantStats{Count: 50, SuccessRate: 90, AvgElapsedSeconds: 12}
	candidate := VariantStats{Count: 30, SuccessRate: 95, AvgElapsedSeconds: 10}

	rec := Recommend(30, baseline, candidate, cfg)
	if rec.Action != ActionSubgraphReady {
		t.Fatalf("action = %s (%v)", rec.Action, rec.Reasons)
	}
	if rec.SuggestedPercentage != 50 {
		t.Errorf("suggested = %d, want 50", rec.SuggestedPercentage)
	}

	rec = Recommend(90, baseline, candidate, cfg)
	if rec.SuggestedPercentage != 100 {
		t.Errorf("suggested should cap at 100, got %d", rec.SuggestedPercentage)
	}
}

func TestRecommend_ElapsedToleranceBoundary(t *testing.T) {
	cfg := DefaultPromotionConfig()
	baseline := VariantStats{Count: 50, SuccessRate: 90, AvgElapsedSeconds: 10}
	candidate := VariantStats{Count: 30, SuccessRate: 90, AvgElapsedSeconds: 10.5}
	if rec := Recommend(30, baseline, candidate, cfg); rec.Action != ActionSubgraphReady {
		t.Fatalf("within tolerance should promote: %s %v", rec.Action, rec.Reasons)
	}
	candidate.AvgElapsedSeconds = 11.5
	if rec := Recommend(30, baseline, candidate, cfg); rec.Action != ActionMonolithBetter {
		t.Fatalf("beyond tolerance should hold: %s", rec.Action)
	}
}

func TestRecommend_MonolithBetter(t *testing.T) {
	cfg := DefaultPromotionConfig()
	baseline := VariantStats{Count: 50, SuccessRate: 90, AvgElapsedSeconds: 12}
	candidate := VariantStats{Count: 30, SuccessRate: 80, AvgElapsedSeconds: 10}

	rec := Recommend(30, baseline, candidate, cfg)
	if rec.Action != ActionMonolithBetter {
		t.Fatalf("action = %s", rec.Action)
	}
	if rec.SuggestedPercentage != 20 {
		t.Errorf("suggested = %d, want 20", rec.SuggestedPercentage)
	}
	if len(rec.Reasons) != 1 || !strings.Contains(rec.Reasons[0], "success rate") {
		t.Errorf("reasons = %v", rec.Reasons)
	}

	rec = Recommend(5, baseline, VariantStats{Count: 40, SuccessRate: 50, AvgElapsedSeconds: 40}, cfg)
	if len(rec.Reasons) != 2 {
		t.Errorf("expected both failing comparisons, got %v", rec.Reasons)
	}
	if rec.SuggestedPercentage != 0 {
		t.Errorf("suggested should floor at 0, got %d", rec.SuggestedPercentage)
	}
}

func TestRecommend_CustomThresholds(t *testing.T) {
	cfg := DefaultPromotionConfig()
	cfg.MinSamples = 5
	cfg.PromoteStep = 5
	rec := Recommend(10, VariantStats{Count: 5, SuccessRate: 80, AvgElapsedSeconds: 10},
		VariantStats{Count: 5, SuccessRate: 80, AvgElapsedSeconds: 10}, cfg)
	if rec.Action != ActionSubgraphReady || rec.SuggestedPercentage != 15 {
		t.Fatalf("rec = %s %d", rec.Action, rec.SuggestedPercentage)
	}
}

// #endregion recommend-tests
