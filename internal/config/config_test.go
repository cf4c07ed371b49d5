package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/provider"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradeflow.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Promotion.MinSamples != 30 || cfg.Router.FailureThreshold != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.AnalystRoles()) != len(pipeline.AnalystRoles) {
		t.Fatalf("default analysts = %v", cfg.Analysts)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
db_path: /var/lib/tradeflow/state.db
analysts: [market, news]
rollout:
  percentage: 25
  force_allow: [alice, bob]
promotion:
  min_samples: 50
  window: 12h
router:
  failure_threshold: 3
  probe_cooldown: 30s
debate:
  investment_rounds: 2
  risk_rounds: 1
stages:
  max_retries: 2
  retry_delay: 500ms
  timeouts:
    news: 90s
    judge: 2m
providers:
  - id: backup
    capability: stock_quote
    addr: quotes-b:50051
    method: /marketdata.v1.Quotes/GetQuote
    priority: 2
  - id: primary
    capability: stock_quote
    addr: quotes-a:50051
    method: /marketdata.v1.Quotes/GetQuote
    priority: 1
    timeout: 5s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/var/lib/tradeflow/state.db" {
		t.Errorf("db_path = %q", cfg.DBPath)
	}
	if len(cfg.Analysts) != 2 {
		t.Errorf("analysts = %v", cfg.Analysts)
	}
	if g := cfg.GateConfig(); g.Percentage != 25 || len(g.ForceAllow) != 2 {
		t.Errorf("gate = %+v", g)
	}
	p := cfg.PromotionPolicy()
	if p.MinSamples != 50 || p.Window != 12*time.Hour || p.ElapsedTolerance != 1.1 {
		t.Errorf("promotion = %+v", p)
	}
	if r := cfg.RouterPolicy(); r.FailureThreshold != 3 || r.ProbeCooldown != 30*time.Second {
		t.Errorf("router = %+v", r)
	}
	if cfg.Stages.RetryDelay != 500*time.Millisecond {
		t.Errorf("retry_delay = %v", cfg.Stages.RetryDelay)
	}
	if to := cfg.StageTimeouts(); to[pipeline.RoleNews] != 90*time.Second || to[pipeline.RoleJudge] != 2*time.Minute {
		t.Errorf("timeouts = %v", to)
	}

	quotes := cfg.ProvidersByCapability()[provider.CapabilityQuote]
	if len(quotes) != 2 || quotes[0].ID != "primary" || quotes[1].ID != "backup" {
		t.Fatalf("priority order wrong: %+v", quotes)
	}
	if quotes[0].Timeout != 5*time.Second {
		t.Errorf("provider timeout = %v", quotes[0].Timeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "rollout:\n  percentage: 10\n")
	t.Setenv("TRADEFLOW_DB", "/tmp/override.db")
	t.Setenv("TRADEFLOW_ROLLOUT_PERCENT", "40")
	t.Setenv("TRADEFLOW_FORCE_ALLOW", " alice, ,bob ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Errorf("db = %q", cfg.DBPath)
	}
	if cfg.Rollout.Percentage != 40 {
		t.Errorf("percentage = %d", cfg.Rollout.Percentage)
	}
	if len(cfg.Rollout.ForceAllow) != 2 || cfg.Rollout.ForceAllow[1] != "bob" {
		t.Errorf("force allow = %v", cfg.Rollout.ForceAllow)
	}
}

func TestMalformedPercentageIsIgnored(t *testing.T) {
	t.Setenv("TRADEFLOW_ROLLOUT_PERCENT", "lots")
	cfg, err := Load(writeConfig(t, "rollout:\n  percentage: 15\n"))
	if err != nil {
		t.Fatalf("malformed percentage should not fail: %v", err)
	}
	if cfg.Rollout.Percentage != 15 {
		t.Errorf("percentage = %d, want file value 15", cfg.Rollout.Percentage)
	}
}

func TestPercentageClamped(t *testing.T) {
	t.Setenv("TRADEFLOW_ROLLOUT_PERCENT", "250")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rollout.Percentage != 100 {
		t.Errorf("percentage = %d, want 100", cfg.Rollout.Percentage)
	}

	cfg = Default()
	cfg.Rollout.Percentage = -3
	if err := cfg.Validate(); err != nil || cfg.Rollout.Percentage != 0 {
		t.Errorf("negative percentage: %d, %v", cfg.Rollout.Percentage, err)
	}
}

func TestValidateRejects(t *testing.T) {
	dup := ProviderConfig{ID: "x", Capability: "stock_quote", Addr: "a:1", Method: "/m/M"}
	cases := map[string]func(*Config){
		"zero rounds":         func(c *Config) { c.Debate.RiskRounds = 0 },
		"zero threshold":      func(c *Config) { c.Router.FailureThreshold = 0 },
		"unknown analyst":     func(c *Config) { c.Analysts = []string{"astrology"} },
		"unknown role":        func(c *Config) { c.Stages.Timeouts = map[string]time.Duration{"intern": time.Second} },
		"negative retries":    func(c *Config) { c.Stages.MaxRetries = -1 },
		"bad tolerance":       func(c *Config) { c.Promotion.ElapsedTolerance = 0 },
		"incomplete upstream": func(c *Config) { c.Providers = []ProviderConfig{{ID: "x", Capability: "stock_quote"}} },
		"duplicate upstream":  func(c *Config) { c.Providers = []ProviderConfig{dup, dup} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TRADEFLOW_CONFIG", writeConfig(t, "status_addr: 0.0.0.0:9000\n"))
	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StatusAddr != "0.0.0.0:9000" {
		t.Errorf("status_addr = %q", cfg.StatusAddr)
	}
}
