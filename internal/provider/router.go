package provider

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// #endregion

// #region router
type healthKey struct {
	capability Capability
	provider   string
}

// Router chooses a live provider per capability in priority order and keeps
// per-provider health. All methods are safe for concurrent use.
type Router struct {
	cfg RouterConfig

	mu        sync.Mutex
	routes    map[Capability][]Provider
	health    map[healthKey]*Health
	observers []Observer
	now       func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observers = append(r.observers, o) }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// NewRouter creates a router with no registered providers.
func NewRouter(cfg RouterConfig, opts ...Option) *Router {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultRouterConfig().FailureThreshold
	}
	r := &Router{
		cfg:    cfg,
		routes: make(map[Capability][]Provider),
		health: make(map[healthKey]*Health),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register sets the priority-ordered provider list for a capability,
// replacing any previous list. Health already recorded is kept.
func (r *Router) Register(capability Capability, providers ...Provider) error {
	seen := make(map[string]bool, len(providers))
	for _, p := range providers {
		if seen[p.ID()] {
			return fmt.Errorf("register %s: %w: %s", capability, ErrDuplicateProvider, p.ID())
		}
		seen[p.ID()] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[capability] = append([]Provider(nil), providers...)
	for _, p := range providers {
		r.entry(capability, p.ID())
	}
	return nil
}

// entry returns the health record, creating it on first use. Caller holds mu.
func (r *Router) entry(capability Capability, id string) *Health {
	k := healthKey{capability, id}
	h, ok := r.health[k]
	if !ok {
		h = &Health{Capability: capability, ProviderID: id, Available: true}
		r.health[k] = h
	}
	return h
}

// #endregion router

// #region record
// RecordSuccess closes the circuit and folds latency into the running mean.
func (r *Router) RecordSuccess(capability Capability, id string, latency time.Duration) {
	r.mu.Lock()
	h := r.entry(capability, id)
	wasOpen := !h.Available

	ms := float64(latency) / float64(time.Millisecond)
	h.TotalRequests++
	h.SuccessfulRequests++
	h.ConsecutiveFailures = 0
	h.LastLatencyMs = ms
	h.latencySumMs += ms
	h.AvgLatencyMs = h.latencySumMs / float64(h.TotalRequests)
	h.Available = true
	h.OpenedAt = time.Time{}
	h.probeInFlight = false
	snap := *h
	r.mu.Unlock()

	if wasOpen {
		log.Printf("[ROUTER] circuit closed: %s/%s", capability, id)
	}
	r.notify(snap, true, latency, wasOpen)
}

// RecordFailure counts a failed call and opens the circuit once the
// consecutive failure count reaches the threshold.
func (r *Router) RecordFailure(capability Capability, id string, callErr error, latency time.Duration) {
	r.mu.Lock()
	h := r.entry(capability, id)
	wasAvailable := h.Available

	ms := float64(latency) / float64(time.Millisecond)
	h.TotalRequests++
	h.FailedRequests++
	h.ConsecutiveFailures++
	if callErr != nil {
		h.LastError = callErr.Error()
	}
	h.LastLatencyMs = ms
	h.latencySumMs += ms
	h.AvgLatencyMs = h.latencySumMs / float64(h.TotalRequests)
	if h.ConsecutiveFailures >= r.cfg.FailureThreshold {
		h.Available = false
		// A failed half-open trial restarts the cool-down.
		h.OpenedAt = r.now()
		h.probeInFlight = false
	}
	snap := *h
	r.mu.Unlock()

	opened := wasAvailable && !snap.Available
	if opened {
		log.Printf("[ROUTER] circuit opened: %s/%s after %d consecutive failures: %s",
			capability, id, snap.ConsecutiveFailures, snap.LastError)
	}
	r.notify(snap, false, latency, opened)
}

func (r *Router) notify(h Health, success bool, latency time.Duration, transitioned bool) {
	for _, o := range r.observers {
		o.ObserveProviderCall(h, success, latency)
		if transitioned {
			o.ObserveCircuit(h)
		}
	}
}

// #endregion record

// #region status
// Status returns a consistent snapshot of every known provider, ordered by
// capability and then provider id.
func (r *Router) Status() []Health {
	r.mu.Lock()
	out := make([]Health, 0, len(r.health))
	for _, h := range r.health {
		out = append(out, *h)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Capability != out[j].Capability {
			return out[i].Capability < out[j].Capability
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	return out
}

// Health returns the snapshot for one provider.
func (r *Router) Health(capability Capability, id string) (Health, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.health[healthKey{capability, id}]
	if !ok {
		return Health{}, false
	}
	return *h, true
}

// Reset manually closes a provider's circuit.
func (r *Router) Reset(capability Capability, id string) error {
	r.mu.Lock()
	h, ok := r.health[healthKey{capability, id}]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("reset %s/%s: %w", capability, id, ErrUnknownProvider)
	}
	wasOpen := !h.Available
	h.ConsecutiveFailures = 0
	h.Available = true
	h.OpenedAt = time.Time{}
	h.probeInFlight = false
	snap := *h
	r.mu.Unlock()

	log.Printf("[ROUTER] manual reset: %s/%s", capability, id)
	if wasOpen {
		for _, o := range r.observers {
			o.ObserveCircuit(snap)
		}
	}
	return nil
}

// #endregion status

// #region select
// Select returns the first available provider in priority order. With a
// probe cool-down configured, an open provider whose cool-down elapsed is
// handed out once as a half-open trial.
func (r *Router) Select(capability Capability) (Provider, error) {
	return r.selectExcluding(capability, nil)
}

func (r *Router) selectExcluding(capability Capability, skip map[string]bool) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	providers := r.routes[capability]
	if len(providers) == 0 {
		return nil, fmt.Errorf("%s: no providers registered: %w", capability, ErrNoProviderAvailable)
	}

	for _, p := range providers {
		if skip[p.ID()] {
			continue
		}
		if r.entry(capability, p.ID()).Available {
			return p, nil
		}
	}

	if r.cfg.ProbeCooldown > 0 {
		now := r.now()
		for _, p := range providers {
			if skip[p.ID()] {
				continue
			}
			h := r.entry(capability, p.ID())
			if !h.probeInFlight && now.Sub(h.OpenedAt) >= r.cfg.ProbeCooldown {
				h.probeInFlight = true
				log.Printf("[ROUTER] half-open trial: %s/%s", capability, p.ID())
				return p, nil
			}
		}
	}

	return nil, fmt.Errorf("%s: %w", capability, ErrNoProviderAvailable)
}

// #endregion select

// #region call
// Call routes req to the first available provider, recording the outcome of
// every attempt and failing over down the priority list. When every
// provider is open or has just failed it returns ErrNoProviderAvailable.
// A call that outlives ctx's deadline counts against its provider; a
// cancelled ctx returns ctx.Err() without recording anything.
func (r *Router) Call(ctx context.Context, capability Capability, req Request) (Response, error) {
	req.Capability = capability
	tried := make(map[string]bool)
	var lastErr error

	for {
		p, err := r.selectExcluding(capability, tried)
		if err != nil {
			if lastErr != nil {
				return Response{}, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return Response{}, err
		}
		tried[p.ID()] = true

		start := time.Now()
		resp, callErr := p.Call(ctx, req)
		latency := time.Since(start)

		if callErr == nil {
			r.RecordSuccess(capability, p.ID(), latency)
			resp.ProviderID = p.ID()
			return resp, nil
		}

		// A cancelled request says nothing about the provider, whatever
		// error the transport wrapped it in.
		ctxErr := ctx.Err()
		if errors.Is(ctxErr, context.Canceled) {
			r.releaseProbe(capability, p.ID())
			return Response{}, ctxErr
		}

		r.RecordFailure(capability, p.ID(), callErr, latency)
		log.Printf("[ROUTER] %s/%s failed in %s: %v", capability, p.ID(), latency, callErr)

		// Deadline spent on a stalled provider: no time left to fail over.
		if ctxErr != nil {
			return Response{}, fmt.Errorf("%s/%s: %w (%v)", capability, p.ID(), ctxErr, callErr)
		}
		lastErr = callErr
	}
}

func (r *Router) releaseProbe(capability Capability, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(capability, id).probeInFlight = false
}

// #endregion call

// #region probe
// ProbeOpen runs an out-of-band health check against every open provider
// that implements Prober and whose cool-down elapsed. A passing probe
// closes the circuit. Returns the number of circuits closed. With no
// cool-down configured circuits close only through Reset, so it is a no-op.
func (r *Router) ProbeOpen(ctx context.Context) int {
	if r.cfg.ProbeCooldown <= 0 {
		return 0
	}
	type candidate struct {
		capability Capability
		prober     Prober
		id         string
	}

	r.mu.Lock()
	now := r.now()
	var candidates []candidate
	for capability, providers := range r.routes {
		for _, p := range providers {
			h := r.entry(capability, p.ID())
			if h.Available || now.Sub(h.OpenedAt) < r.cfg.ProbeCooldown {
				continue
			}
			if pr, ok := p.(Prober); ok {
				candidates = append(candidates, candidate{capability, pr, p.ID()})
			}
		}
	}
	r.mu.Unlock()

	closed := 0
	for _, c := range candidates {
		start := time.Now()
		if err := c.prober.Probe(ctx); err != nil {
			log.Printf("[ROUTER] probe failed: %s/%s: %v", c.capability, c.id, err)
			continue
		}
		r.RecordSuccess(c.capability, c.id, time.Since(start))
		closed++
	}
	return closed
}

// #endregion probe
