package rollout

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// #region engine
// SampleSource yields the samples recorded since a point in time.
type SampleSource interface {
	Since(since time.Time) ([]Sample, error)
}

// PercentageSource reports the rollout percentage currently in effect.
type PercentageSource interface {
	Percentage() (int, bool)
}

// PromotionEngine aggregates a trailing window of outcomes and produces a
// recommendation. It only reads: applying the suggestion is up to an operator.
type PromotionEngine struct {
	cfg       PromotionConfig
	samples   SampleSource
	current   PercentageSource
	observers []Observer
	now       func() time.Time
}

// EngineOption configures a PromotionEngine.
type EngineOption func(*PromotionEngine)

// WithEngineObserver adds an observer for recommendations.
func WithEngineObserver(o Observer) EngineOption {
	return func(e *PromotionEngine) { e.observers = append(e.observers, o) }
}

// WithEngineClock overrides time.Now, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *PromotionEngine) { e.now = now }
}

// NewPromotionEngine wires an engine over a sample source and the gate
// whose percentage it advises on.
func NewPromotionEngine(cfg PromotionConfig, samples SampleSource, current PercentageSource, opts ...EngineOption) *PromotionEngine {
	if cfg.Window <= 0 {
		cfg.Window = DefaultPromotionConfig().Window
	}
	e := &PromotionEngine{
		cfg:     cfg,
		samples: samples,
		current: current,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine's policy.
func (e *PromotionEngine) Config() PromotionConfig { return e.cfg }

// Evaluate reads the trailing window and recommends a new percentage.
func (e *PromotionEngine) Evaluate() (Recommendation, error) {
	now := e.now()
	start := now.Add(-e.cfg.Window)

	samples, err := e.samples.Since(start)
	if err != nil {
		return Recommendation{}, fmt.Errorf("load window: %w", err)
	}
	stats := Aggregate(samples)
	current, _ := e.current.Percentage()

	rec := Recommend(current, stats[VariantBaseline], stats[VariantCandidate], e.cfg)
	rec.WindowStart = start
	rec.GeneratedAt = now

	log.Printf("[PROMOTE] %s: %d%% -> %d%% (baseline n=%d, candidate n=%d): %s",
		rec.Action, rec.CurrentPercentage, rec.SuggestedPercentage,
		rec.Baseline.Count, rec.Candidate.Count, strings.Join(rec.Reasons, "; "))
	for _, o := range e.observers {
		o.ObserveRecommendation(rec)
	}
	return rec, nil
}

// #endregion engine

// #region fixed-percentage
// FixedPercentage is a PercentageSource for offline evaluation.
type FixedPercentage int

// Percentage implements PercentageSource.
func (f FixedPercentage) Percentage() (int, bool) { return Clamp(int(f)), false }

// #endregion fixed-percentage
