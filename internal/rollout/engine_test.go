package rollout

import (
	"errors"
	"testing"
	"time"
)

type sliceSource struct {
	samples []Sample
	since   time.Time
	err     error
}

func (s *sliceSource) Since(since time.Time) ([]Sample, error) {
	s.since = since
	return s.samples, s.err
}

func samplesOf(v Variant, n int, success bool, elapsed float64) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{Variant: v, Success: success, ElapsedSeconds: elapsed}
	}
	return out
}

func TestPromotionEngine_Evaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &sliceSource{}
	src.samples = append(src.samples, samplesOf(VariantBaseline, 40, true, 12)...)
	src.samples = append(src.samples, samplesOf(VariantCandidate, 30, true, 10)...)

	obs := &recordingObserver{}
	gate := NewGate(GateConfig{Percentage: 30})
	engine := NewPromotionEngine(DefaultPromotionConfig(), src, gate,
		WithEngineObserver(obs), WithEngineClock(func() time.Time { return now }))

	rec, err := engine.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rec.Action != ActionSubgraphReady || rec.CurrentPercentage != 30 || rec.SuggestedPercentage != 50 {
		t.Fatalf("rec = %+v", rec)
	}
	if !src.since.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("window start = %v", src.since)
	}
	if !rec.GeneratedAt.Equal(now) || !rec.WindowStart.Equal(src.since) {
		t.Errorf("timestamps = %v / %v", rec.GeneratedAt, rec.WindowStart)
	}
	if len(obs.recs) != 1 {
		t.Errorf("observer saw %d recommendations", len(obs.recs))
	}

	// Recommendation is advisory: the gate is untouched.
	if p, over := gate.Percentage(); p != 30 || over {
		t.Errorf("gate changed to %d (override=%v)", p, over)
	}
}

func TestPromotionEngine_UsesOverride(t *testing.T) {
	gate := NewGate(GateConfig{Percentage: 10})
	gate.SetPercentage(60)
	engine := NewPromotionEngine(DefaultPromotionConfig(), &sliceSource{}, gate)

	rec, err := engine.Evaluate()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Action != ActionNeedsMoreData || rec.CurrentPercentage != 60 || rec.SuggestedPercentage != 30 {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestPromotionEngine_SourceError(t *testing.T) {
	engine := NewPromotionEngine(DefaultPromotionConfig(), &sliceSource{err: errors.New("disk gone")}, FixedPercentage(10))
	if _, err := engine.Evaluate(); err == nil {
		t.Fatal("expected error")
	}
}

func TestPromotionEngine_OverSQLite(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 30; i++ {
		store.RecordOutcome(Sample{Variant: VariantBaseline, ElapsedSeconds: 12, Success: i%10 != 0})
		store.RecordOutcome(Sample{Variant: VariantCandidate, ElapsedSeconds: 10, Success: i%5 != 0})
	}

	rec, err := NewPromotionEngine(DefaultPromotionConfig(), store, FixedPercentage(30)).Evaluate()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Action != ActionMonolithBetter || rec.SuggestedPercentage != 20 {
		t.Fatalf("rec = %s -> %d (%v)", rec.Action, rec.SuggestedPercentage, rec.Reasons)
	}
}
