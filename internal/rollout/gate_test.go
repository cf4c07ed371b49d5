package rollout

import (
	"fmt"
	"sync"
	"testing"
)

// #region helpers
func boolPtr(b bool) *bool { return &b }

type recordingObserver struct {
	mu          sync.Mutex
	decisions   []Decision
	percentages []int
	overridden  []bool
	recs        []Recommendation
}

func (o *recordingObserver) ObserveDecision(d Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d)
}

func (o *recordingObserver) ObservePercentage(p int, overridden bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.percentages = append(o.percentages, p)
	o.overridden = append(o.overridden, overridden)
}

func (o *recordingObserver) ObserveRecommendation(r Recommendation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recs = append(o.recs, r)
}

// #endregion helpers

// #region decide-tests
func TestDecide_ZeroNeverSelectsCandidate(t *testing.T) {
	for i := 0; i < 1000; i++ {
		d := Decide(Input{UserID: fmt.Sprintf("user-%d", i)}, 0, nil)
		if d.Variant != VariantBaseline {
			t.Fatalf("percentage 0 selected %s for user-%d", d.Variant, i)
		}
		if d.DecidedBy != DecidedByBucket {
			t.Fatalf("decided_by = %s", d.DecidedBy)
		}
	}
}

func TestDecide_HundredAlwaysSelectsCandidate(t *testing.T) {
	for i := 0; i < 1000; i++ {
		d := Decide(Input{RequestID: fmt.Sprintf("req-%d", i)}, 100, nil)
		if d.Variant != VariantCandidate {
			t.Fatalf("percentage 100 selected %s for req-%d", d.Variant, i)
		}
	}
}

func TestDecide_Deterministic(t *testing.T) {
	in := Input{UserID: "alice"}
	first := Decide(in, 50, nil)
	for i := 0; i < 100; i++ {
		if got := Decide(in, 50, nil); got != first {
			t.Fatalf("call %d: %+v != %+v", i, got, first)
		}
	}
	if first.Bucket != Bucket("alice") {
		t.Errorf("bucket = %d, want %d", first.Bucket, Bucket("alice"))
	}
	want := VariantBaseline
	if first.Bucket < 50 {
		want = VariantCandidate
	}
	if first.Variant != want {
		t.Errorf("variant = %s for bucket %d", first.Variant, first.Bucket)
	}
}

func TestDecide_BucketIsStrictlyLessThan(t *testing.T) {
	key := "bucket-edge"
	b := Bucket(key)
	if d := Decide(Input{UserID: key}, b, nil); b > 0 && d.Variant != VariantBaseline {
		t.Errorf("bucket %d at percentage %d should be baseline", b, b)
	}
	if b < 99 {
		if d := Decide(Input{UserID: key}, b+1, nil); d.Variant != VariantCandidate {
			t.Errorf("bucket %d at percentage %d should be candidate", b, b+1)
		}
	}
}

func TestDecide_ForceAllow(t *testing.T) {
	allow := map[string]struct{}{"beta-tester": {}}
	d := Decide(Input{UserID: "beta-tester"}, 0, allow)
	if d.Variant != VariantCandidate || d.DecidedBy != DecidedByAllowlist {
		t.Fatalf("allowlisted user: %+v", d)
	}
	// Request ids are not matched against the allowlist.
	d = Decide(Input{RequestID: "beta-tester"}, 0, allow)
	if d.Variant != VariantBaseline {
		t.Fatalf("request id matched allowlist: %+v", d)
	}
}

func TestDecide_OverrideWins(t *testing.T) {
	allow := map[string]struct{}{"beta-tester": {}}
	d := Decide(Input{UserID: "beta-tester", Override: boolPtr(false)}, 100, allow)
	if d.Variant != VariantBaseline || d.DecidedBy != DecidedByParam {
		t.Fatalf("override false: %+v", d)
	}
	d = Decide(Input{Override: boolPtr(true)}, 0, nil)
	if d.Variant != VariantCandidate || d.DecidedBy != DecidedByParam {
		t.Fatalf("override true: %+v", d)
	}
}

func TestInputKeyFallback(t *testing.T) {
	cases := []struct {
		in   Input
		want string
	}{
		{Input{UserID: "u", RequestID: "r"}, "u"},
		{Input{RequestID: "r"}, "r"},
		{Input{}, DefaultKey},
	}
	for _, c := range cases {
		if got := c.in.Key(); got != c.want {
			t.Errorf("Key(%+v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBucketDistribution(t *testing.T) {
	candidates := 0
	const n = 10000
	for i := 0; i < n; i++ {
		if Decide(Input{UserID: fmt.Sprintf("u%d", i)}, 30, nil).Variant == VariantCandidate {
			candidates++
		}
	}
	share := float64(candidates) / n
	if share < 0.27 || share > 0.33 {
		t.Errorf("candidate share at 30%% = %.3f", share)
	}
}

// #endregion decide-tests

// #region gate-tests
func TestGate_ClampsConfigured(t *testing.T) {
	if p, _ := NewGate(GateConfig{Percentage: 150}).Percentage(); p != 100 {
		t.Errorf("clamped high = %d", p)
	}
	if p, _ := NewGate(GateConfig{Percentage: -5}).Percentage(); p != 0 {
		t.Errorf("clamped low = %d", p)
	}
}

func TestGate_OverrideLifecycle(t *testing.T) {
	obs := &recordingObserver{}
	g := NewGate(GateConfig{Percentage: 10, ForceAllow: []string{"ops"}}, WithGateObserver(obs))

	if p, over := g.Percentage(); p != 10 || over {
		t.Fatalf("initial = %d, %v", p, over)
	}
	if got := g.SetPercentage(250); got != 100 {
		t.Fatalf("SetPercentage clamp = %d", got)
	}
	if p, over := g.Percentage(); p != 100 || !over {
		t.Fatalf("after override = %d, %v", p, over)
	}
	if d := g.Decide(Input{UserID: "anyone"}); d.Variant != VariantCandidate {
		t.Fatalf("override 100 should select candidate: %+v", d)
	}

	g.ClearOverride()
	if p, over := g.Percentage(); p != 10 || over {
		t.Fatalf("after clear = %d, %v", p, over)
	}
	g.ClearOverride() // no-op

	if len(obs.percentages) != 2 || obs.percentages[0] != 100 || obs.percentages[1] != 10 {
		t.Errorf("observed percentages = %v", obs.percentages)
	}
	if len(obs.decisions) != 1 {
		t.Errorf("observed %d decisions", len(obs.decisions))
	}
	if g.ForceAllow() != 1 || g.Configured() != 10 {
		t.Errorf("ForceAllow=%d Configured=%d", g.ForceAllow(), g.Configured())
	}
}

func TestGate_ConcurrentDecideAndOverride(t *testing.T) {
	g := NewGate(GateConfig{Percentage: 50})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			g.Decide(Input{UserID: fmt.Sprintf("u%d", i)})
		}(i)
		go func(i int) {
			defer wg.Done()
			g.SetPercentage(i)
		}(i)
	}
	wg.Wait()
	if p, over := g.Percentage(); !over || p < 0 || p > 100 {
		t.Fatalf("percentage = %d, %v", p, over)
	}
}

func TestVariantArchitecture(t *testing.T) {
	if VariantBaseline.Architecture() != "monolith" || VariantCandidate.Architecture() != "subgraph" {
		t.Fatal("architecture names wrong")
	}
}

// #endregion gate-tests
