package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/analysis"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/config"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/logging"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/metrics"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/provider"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/resilience"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/rollout"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/statusapi"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/store"
)

const analysisTimeout = 15 * time.Minute

// #region main
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize store
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	outcomes, err := rollout.NewOutcomeStore(st.DB())
	if err != nil {
		log.Fatalf("failed to init outcome store: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	audit := logging.NewAuditor(st.DB())

	monitor := resilience.NewMonitor(resilience.WithObserver(m))
	router := provider.NewRouter(cfg.RouterPolicy(), provider.WithObserver(m), provider.WithObserver(audit))
	closeProviders := registerProviders(router, cfg)
	defer closeProviders()

	gate := rollout.NewGate(cfg.GateConfig(), rollout.WithGateObserver(m), rollout.WithGateObserver(audit))
	pct, _ := gate.Percentage()
	m.ObservePercentage(pct, false)
	engine := rollout.NewPromotionEngine(cfg.PromotionPolicy(), outcomes, gate,
		rollout.WithEngineObserver(m), rollout.WithEngineObserver(audit))

	analyzer, err := analysis.New(analysis.Config{
		Analysts:         cfg.AnalystRoles(),
		InvestmentRounds: cfg.Debate.InvestmentRounds,
		RiskRounds:       cfg.Debate.RiskRounds,
		MaxRetries:       cfg.Stages.MaxRetries,
		RetryDelay:       cfg.Stages.RetryDelay,
		Timeouts:         cfg.StageTimeouts(),
	}, analysis.ProviderAgents(router), gate, monitor,
		analysis.WithOutcomeSink(outcomes), analysis.WithRunObserver(m))
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	if cfg.Router.ProbeCooldown > 0 {
		go probeLoop(ctx, router, cfg.Router.ProbeCooldown)
	}
	if cfg.StatusAddr != "" {
		api := statusapi.New(statusapi.Deps{
			Monitor: monitor, Router: router, Gate: gate, Engine: engine, DB: st.DB(), Gatherer: reg,
		})
		go func() {
			if err := api.ListenAndServe(ctx, cfg.StatusAddr); err != nil {
				log.Printf("[API] server stopped: %v", err)
			}
		}()
	}

	fmt.Println("Tradeflow Controller ready.")
	fmt.Printf("  DB: %s | Status: %s | Rollout: %d%%\n", cfg.DBPath, cfg.StatusAddr, pct)
	fmt.Println("Commands: analyze <TICKER> [DATE] [user=ID] [variant=monolith|subgraph], status, rollout [set N|clear], recommend, reset <capability> <id>, quit")

	repl(ctx, &session{analyzer: analyzer, router: router, gate: gate, engine: engine, monitor: monitor})
}

// #endregion main

// #region wiring
func registerProviders(router *provider.Router, cfg config.Config) func() {
	var opened []*provider.GRPCProvider
	byCapability := cfg.ProvidersByCapability()
	for capability, list := range byCapability {
		var ps []provider.Provider
		for _, pc := range list {
			p, err := provider.NewGRPCProvider(provider.GRPCConfig{
				ID:            pc.ID,
				Addr:          pc.Addr,
				Method:        pc.Method,
				Timeout:       pc.Timeout,
				HealthService: pc.HealthService,
			})
			if err != nil {
				log.Fatalf("provider %s/%s: %v", capability, pc.ID, err)
			}
			opened = append(opened, p)
			ps = append(ps, p)
		}
		if err := router.Register(capability, ps...); err != nil {
			log.Fatalf("register %s: %v", capability, err)
		}
		log.Printf("[ROUTER] %s: %d provider(s)", capability, len(ps))
	}
	for _, capability := range []provider.Capability{
		provider.CapabilityQuote, provider.CapabilityNews, provider.CapabilityFundamentals,
		provider.CapabilitySentiment, provider.CapabilityCompletion,
	} {
		if len(byCapability[capability]) == 0 {
			log.Printf("[ROUTER] warning: no providers for %s; dependent stages will degrade", capability)
		}
	}
	return func() {
		for _, p := range opened {
			p.Close()
		}
	}
}

func probeLoop(ctx context.Context, router *provider.Router, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			probeCtx, cancel := context.WithTimeout(ctx, every)
			if n := router.ProbeOpen(probeCtx); n > 0 {
				log.Printf("[ROUTER] probe closed %d circuit(s)", n)
			}
			cancel()
		}
	}
}

// #endregion wiring

// #region repl
type session struct {
	analyzer *analysis.Analyzer
	router   *provider.Router
	gate     *rollout.Gate
	engine   *rollout.PromotionEngine
	monitor  *resilience.Monitor
}

func repl(ctx context.Context, s *session) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return
		case "analyze":
			s.analyze(ctx, fields[1:])
		case "status":
			printJSON(map[string]any{"providers": s.router.Status(), "stages": s.monitor.Snapshot()})
		case "rollout":
			s.rollout(fields[1:])
		case "recommend":
			rec, err := s.engine.Evaluate()
			if err != nil {
				log.Printf("recommend error: %v", err)
				continue
			}
			printJSON(rec)
		case "reset":
			if len(fields) != 3 {
				fmt.Println("usage: reset <capability> <id>")
				continue
			}
			if err := s.router.Reset(provider.Capability(fields[1]), fields[2]); err != nil {
				log.Printf("reset error: %v", err)
			}
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

func (s *session) analyze(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: analyze <TICKER> [DATE] [user=ID] [variant=monolith|subgraph]")
		return
	}
	req := analysis.Request{Ticker: strings.ToUpper(args[0]), TradeDate: time.Now().Format("2006-01-02")}
	for _, a := range args[1:] {
		switch {
		case strings.HasPrefix(a, "user="):
			req.UserID = strings.TrimPrefix(a, "user=")
		case a == "variant=subgraph":
			v := true
			req.ForceSubgraph = &v
		case a == "variant=monolith":
			v := false
			req.ForceSubgraph = &v
		default:
			req.TradeDate = a
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()
	res, err := s.analyzer.Analyze(runCtx, req)
	if err != nil {
		log.Printf("analysis error: %v", err)
		return
	}

	fmt.Printf("\n%s\n\n", res.FinalDecision())
	conf := "n/a"
	if res.Confidence != nil {
		conf = fmt.Sprintf("%.2f", *res.Confidence)
	}
	fmt.Printf("[%s] variant=%s success=%v confidence=%s degraded=%v elapsed=%s\n",
		res.RunID, res.Decision.Variant.Architecture(), res.Success, conf, res.Degraded, res.Elapsed.Round(time.Millisecond))
}

func (s *session) rollout(args []string) {
	switch {
	case len(args) == 0:
	case args[0] == "set" && len(args) == 2:
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Println("usage: rollout set <0-100>")
			return
		}
		s.gate.SetPercentage(n)
	case args[0] == "clear":
		s.gate.ClearOverride()
	default:
		fmt.Println("usage: rollout [set N|clear]")
		return
	}
	pct, over := s.gate.Percentage()
	fmt.Printf("rollout=%d%% configured=%d%% override=%v\n", pct, s.gate.Configured(), over)
}

// #endregion repl

// #region helpers
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encode: %v", err)
	}
}

// #endregion helpers
