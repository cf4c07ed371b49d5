package rollout

// #region imports
import (
	"log"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// #endregion

// #region pure-decision
// Bucket maps a key to [0,100). The mapping is stable across processes
// and releases.
func Bucket(key string) int {
	return int(xxhash.Sum64String(key) % 100)
}

// Clamp forces a percentage into [0,100].
func Clamp(percentage int) int {
	if percentage < 0 {
		return 0
	}
	if percentage > 100 {
		return 100
	}
	return percentage
}

// Decide applies the decision order: explicit override, force-allow set,
// percentage bounds, then hash bucket. It is a pure function of its inputs.
func Decide(in Input, percentage int, forceAllow map[string]struct{}) Decision {
	d := Decision{RequestKey: in.Key(), Percentage: percentage, Bucket: -1}

	if in.Override != nil {
		d.DecidedBy = DecidedByParam
		d.Variant = VariantBaseline
		if *in.Override {
			d.Variant = VariantCandidate
		}
		return d
	}

	if in.UserID != "" {
		if _, ok := forceAllow[in.UserID]; ok {
			d.DecidedBy = DecidedByAllowlist
			d.Variant = VariantCandidate
			return d
		}
	}

	d.DecidedBy = DecidedByBucket
	switch {
	case percentage <= 0:
		d.Variant = VariantBaseline
	case percentage >= 100:
		d.Variant = VariantCandidate
	default:
		d.Bucket = Bucket(d.RequestKey)
		d.Variant = VariantBaseline
		if d.Bucket < percentage {
			d.Variant = VariantCandidate
		}
	}
	return d
}

// #endregion pure-decision

// #region gate
const noOverride = -1

// Gate holds the configured rollout policy plus the operator's in-memory
// percentage override. Decide is lock-free.
type Gate struct {
	configured int
	allow      map[string]struct{}
	override   atomic.Int64
	observers  []Observer
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateObserver adds an observer for decisions and percentage changes.
func WithGateObserver(o Observer) GateOption {
	return func(g *Gate) { g.observers = append(g.observers, o) }
}

// NewGate creates a gate. Out-of-range percentages are clamped, not rejected.
func NewGate(cfg GateConfig, opts ...GateOption) *Gate {
	g := &Gate{
		configured: Clamp(cfg.Percentage),
		allow:      make(map[string]struct{}, len(cfg.ForceAllow)),
	}
	for _, id := range cfg.ForceAllow {
		if id != "" {
			g.allow[id] = struct{}{}
		}
	}
	g.override.Store(noOverride)
	for _, opt := range opts {
		opt(g)
	}
	if g.configured != cfg.Percentage {
		log.Printf("[ROLLOUT] configured percentage %d clamped to %d", cfg.Percentage, g.configured)
	}
	return g
}

// Percentage returns the effective percentage and whether an operator
// override is active.
func (g *Gate) Percentage() (int, bool) {
	if v := g.override.Load(); v != noOverride {
		return int(v), true
	}
	return g.configured, false
}

// Configured returns the percentage the process started with.
func (g *Gate) Configured() int { return g.configured }

// ForceAllow returns the number of force-allowlisted user ids.
func (g *Gate) ForceAllow() int { return len(g.allow) }

// SetPercentage installs an in-memory override and returns the clamped value.
// It is not persisted: a restart reverts to the configured percentage.
func (g *Gate) SetPercentage(percentage int) int {
	p := Clamp(percentage)
	prev, _ := g.Percentage()
	g.override.Store(int64(p))
	log.Printf("[ROLLOUT] override set: %d%% -> %d%% (requested %d)", prev, p, percentage)
	for _, o := range g.observers {
		o.ObservePercentage(p, true)
	}
	return p
}

// ClearOverride reverts to the configured percentage.
func (g *Gate) ClearOverride() {
	if g.override.Swap(noOverride) == noOverride {
		return
	}
	log.Printf("[ROLLOUT] override cleared: back to configured %d%%", g.configured)
	for _, o := range g.observers {
		o.ObservePercentage(g.configured, false)
	}
}

// Decide selects the variant for one request under the current percentage.
func (g *Gate) Decide(in Input) Decision {
	pct, _ := g.Percentage()
	d := Decide(in, pct, g.allow)
	for _, o := range g.observers {
		o.ObserveDecision(d)
	}
	return d
}

// #endregion gate
