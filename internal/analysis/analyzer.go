package analysis

// #region imports
import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/debate"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/resilience"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/rollout"
)

// #endregion

// #region analyzer-struct
// Analyzer routes each request through the rollout gate and runs the
// selected pipeline variant: analysts, investment debate, trader, risk
// debate. It holds no per-request state.
type Analyzer struct {
	gate       *rollout.Gate
	analysts   []*resilience.Stage
	trader     *resilience.Stage
	investment *debate.Machine
	risk       *debate.Machine

	sink      OutcomeSink
	observers []RunObserver
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithOutcomeSink records one sample per completed run.
func WithOutcomeSink(s OutcomeSink) Option {
	return func(a *Analyzer) { a.sink = s }
}

// WithRunObserver adds a run observer.
func WithRunObserver(o RunObserver) Option {
	return func(a *Analyzer) { a.observers = append(a.observers, o) }
}

// #endregion analyzer-struct

// #region constructor
// New builds every stage and machine up front.
func New(cfg Config, agents Agents, gate *rollout.Gate, monitor *resilience.Monitor, opts ...Option) (*Analyzer, error) {
	if gate == nil {
		return nil, fmt.Errorf("analysis: nil rollout gate")
	}
	if len(cfg.Analysts) == 0 {
		return nil, fmt.Errorf("analysis: no analysts configured")
	}

	stageCfg := func(name string, role pipeline.Role) resilience.StageConfig {
		return resilience.StageConfig{
			Name:       name,
			Role:       role,
			Timeout:    cfg.Timeouts[role],
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}
	}

	a := &Analyzer{gate: gate}
	seen := make(map[pipeline.Role]bool)
	for _, role := range cfg.Analysts {
		if !pipeline.IsAnalyst(role) {
			return nil, fmt.Errorf("analysis: %q is not an analyst role", role)
		}
		if seen[role] {
			return nil, fmt.Errorf("analysis: analyst %q listed twice", role)
		}
		seen[role] = true
		fn := agents.Analysts[role]
		if fn == nil {
			return nil, fmt.Errorf("analysis: no agent for analyst %q", role)
		}
		st, err := resilience.NewStage(stageCfg("analyst."+string(role), role), fn, monitor)
		if err != nil {
			return nil, fmt.Errorf("analysis: %w", err)
		}
		a.analysts = append(a.analysts, st)
	}

	trader, err := resilience.NewStage(stageCfg("trader", pipeline.RoleTrader), agents.Trader, monitor)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	a.trader = trader

	policy := debate.Policy{Timeouts: cfg.Timeouts, MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay}
	a.investment, err = debate.NewInvestmentDebate(debate.InvestmentConfig{
		MaxRounds: cfg.InvestmentRounds,
		Bull:      agents.Bull,
		Bear:      agents.Bear,
		Manager:   agents.Manager,
		Policy:    policy,
	}, monitor)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	a.risk, err = debate.NewRiskDebate(debate.RiskConfig{
		MaxRounds: cfg.RiskRounds,
		Risky:     agents.Risky,
		Safe:      agents.Safe,
		Neutral:   agents.Neutral,
		Judge:     agents.Judge,
		Policy:    policy,
	}, monitor)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// #endregion constructor

// #region analyze
// Analyze runs one request end to end. Stage failures degrade the result
// but never abort it. A cancelled ctx discards the partial context and
// records no outcome.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	if req.Ticker == "" {
		return Result{}, fmt.Errorf("analysis: ticker is required")
	}
	runID := req.RequestID
	if runID == "" {
		runID = uuid.New().String()
	}

	decision := a.gate.Decide(rollout.Input{
		UserID:    req.UserID,
		RequestID: req.RequestID,
		Override:  req.ForceSubgraph,
	})
	log.Printf("[PIPELINE] run=%s ticker=%s variant=%s (%s) by=%s",
		runID, req.Ticker, decision.Variant, decision.Variant.Architecture(), decision.DecidedBy)

	start := time.Now()
	sc := pipeline.NewSharedContext(req.Ticker, req.TradeDate)
	err := a.run(ctx, decision.Variant, sc)
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Printf("[PIPELINE] run=%s cancelled after %s", runID, elapsed.Round(time.Millisecond))
		return Result{}, ctxErr
	}

	res := Result{
		RunID:    runID,
		Decision: decision,
		Snapshot: sc.Snapshot(),
		Degraded: sc.DegradedFields(),
		Elapsed:  elapsed,
	}
	if err == nil {
		final := res.FinalDecision()
		res.Success = final != "" && !pipeline.IsDegraded(final)
	}
	if ra, ok := sc.RiskAssessment(); ok {
		c := ra.Confidence
		res.Confidence = &c
	}

	a.emit(decision.Variant, res)
	if err != nil {
		return res, fmt.Errorf("run %s: %w", runID, err)
	}
	log.Printf("[PIPELINE] run=%s done in %s success=%v degraded=%d",
		runID, elapsed.Round(time.Millisecond), res.Success, len(res.Degraded))
	return res, nil
}

func (a *Analyzer) run(ctx context.Context, variant rollout.Variant, sc *pipeline.SharedContext) error {
	var err error
	if variant == rollout.VariantCandidate {
		err = a.runAnalystsConcurrent(ctx, sc)
	} else {
		err = a.runAnalystsSequential(ctx, sc)
	}
	if err != nil {
		return err
	}

	if _, err := a.investment.Run(ctx, sc); err != nil {
		return fmt.Errorf("investment debate: %w", err)
	}
	if err := a.runStage(ctx, a.trader, sc); err != nil {
		return err
	}
	if _, err := a.risk.Run(ctx, sc); err != nil {
		return fmt.Errorf("risk debate: %w", err)
	}
	return nil
}

// #endregion analyze

// #region variants
// runAnalystsSequential is the monolith variant.
func (a *Analyzer) runAnalystsSequential(ctx context.Context, sc *pipeline.SharedContext) error {
	for _, st := range a.analysts {
		if err := a.runStage(ctx, st, sc); err != nil {
			return err
		}
	}
	return nil
}

// runAnalystsConcurrent is the subgraph variant: analysts are independent
// and merge their reports into the context as they finish.
func (a *Analyzer) runAnalystsConcurrent(ctx context.Context, sc *pipeline.SharedContext) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range a.analysts {
		g.Go(func() error {
			return a.runStage(gctx, st, sc)
		})
	}
	return g.Wait()
}

func (a *Analyzer) runStage(ctx context.Context, st *resilience.Stage, sc *pipeline.SharedContext) error {
	res := st.Run(ctx, sc)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sc.Apply(res.Update); err != nil {
		return fmt.Errorf("stage %s: %w", st.Name(), err)
	}
	return nil
}

// #endregion variants

// #region emit
func (a *Analyzer) emit(variant rollout.Variant, res Result) {
	for _, o := range a.observers {
		o.ObserveRun(variant, res.Success, res.Elapsed)
	}
	if a.sink == nil {
		return
	}
	sample := rollout.Sample{
		Variant:        variant,
		ElapsedSeconds: res.Elapsed.Seconds(),
		Success:        res.Success,
		Confidence:     res.Confidence,
	}
	if err := a.sink.RecordOutcome(sample); err != nil {
		log.Printf("[PIPELINE] run=%s outcome not recorded: %v", res.RunID, err)
	}
}

// #endregion emit
