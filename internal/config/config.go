package config

// #region imports
import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/provider"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/rollout"
)

// #endregion

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// #region defaults
// Default returns the configuration used when no file or env is given.
func Default() Config {
	analysts := make([]string, len(pipeline.AnalystRoles))
	for i, r := range pipeline.AnalystRoles {
		analysts[i] = string(r)
	}
	p := rollout.DefaultPromotionConfig()
	rc := provider.DefaultRouterConfig()
	return Config{
		DBPath:     "tradeflow.db",
		StatusAddr: "127.0.0.1:8089",
		Analysts:   analysts,
		Promotion: PromotionConfig{
			MinSamples:       p.MinSamples,
			ElapsedTolerance: p.ElapsedTolerance,
			NeedsDataStep:    p.NeedsDataStep,
			NeedsDataCap:     p.NeedsDataCap,
			PromoteStep:      p.PromoteStep,
			DemoteStep:       p.DemoteStep,
			Window:           p.Window,
		},
		Router: RouterConfig{
			FailureThreshold: rc.FailureThreshold,
			ProbeCooldown:    rc.ProbeCooldown,
		},
		Debate: DebateConfig{
			InvestmentRounds: 1,
			RiskRounds:       1,
		},
		Stages: StagesConfig{
			MaxRetries: 1,
			RetryDelay: 2 * time.Second,
		},
	}
}

// #endregion defaults

// #region load
// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then TRADEFLOW_* environment overrides,
// then validation.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file named by TRADEFLOW_CONFIG, if any.
func FromEnv() (Config, error) {
	return Load(envOr("TRADEFLOW_CONFIG", ""))
}

func (c *Config) applyEnv() {
	c.DBPath = envOr("TRADEFLOW_DB", c.DBPath)
	c.StatusAddr = envOr("TRADEFLOW_STATUS_ADDR", c.StatusAddr)

	if v := envOr("TRADEFLOW_ROLLOUT_PERCENT", ""); v != "" {
		pct, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(v, "%")))
		if err != nil {
			log.Printf("[CONFIG] ignoring malformed TRADEFLOW_ROLLOUT_PERCENT=%q, keeping %d", v, c.Rollout.Percentage)
		} else {
			c.Rollout.Percentage = pct
		}
	}
	if v := envOr("TRADEFLOW_FORCE_ALLOW", ""); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		c.Rollout.ForceAllow = ids
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion load

// #region validate
// Validate clamps the rollout percentage into [0,100] and rejects
// structurally invalid values.
func (c *Config) Validate() error {
	if clamped := rollout.Clamp(c.Rollout.Percentage); clamped != c.Rollout.Percentage {
		log.Printf("[CONFIG] rollout percentage %d clamped to %d", c.Rollout.Percentage, clamped)
		c.Rollout.Percentage = clamped
	}

	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.DBPath != "", "db_path is required")
	check(len(c.Analysts) > 0, "at least one analyst is required")
	for _, a := range c.Analysts {
		check(pipeline.IsAnalyst(pipeline.Role(a)), "unknown analyst %q", a)
	}

	check(c.Promotion.MinSamples >= 1, "promotion.min_samples must be >= 1")
	check(c.Promotion.ElapsedTolerance > 0, "promotion.elapsed_tolerance must be > 0")
	check(c.Promotion.NeedsDataStep >= 0 && c.Promotion.PromoteStep >= 0 && c.Promotion.DemoteStep >= 0,
		"promotion steps must be >= 0")
	check(c.Promotion.NeedsDataCap >= 0 && c.Promotion.NeedsDataCap <= 100, "promotion.needs_data_cap must be in [0,100]")
	check(c.Promotion.Window > 0, "promotion.window must be > 0")

	check(c.Router.FailureThreshold >= 1, "router.failure_threshold must be >= 1")
	check(c.Router.ProbeCooldown >= 0, "router.probe_cooldown must be >= 0")

	check(c.Debate.InvestmentRounds >= 1, "debate.investment_rounds must be >= 1")
	check(c.Debate.RiskRounds >= 1, "debate.risk_rounds must be >= 1")

	check(c.Stages.MaxRetries >= 0, "stages.max_retries must be >= 0")
	check(c.Stages.RetryDelay >= 0, "stages.retry_delay must be >= 0")
	for role, d := range c.Stages.Timeouts {
		_, mapped := pipeline.OutputField(pipeline.Role(role))
		check(mapped, "stages.timeouts: unknown role %q", role)
		check(d > 0, "stages.timeouts.%s must be > 0", role)
	}

	seen := make(map[string]bool)
	for i, p := range c.Providers {
		check(p.ID != "" && p.Capability != "" && p.Addr != "" && p.Method != "",
			"providers[%d]: id, capability, addr and method are required", i)
		key := p.Capability + "/" + p.ID
		check(!seen[key], "providers[%d]: duplicate %s", i, key)
		seen[key] = true
		check(p.Timeout >= 0, "providers[%d]: timeout must be >= 0", i)
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// #endregion validate

// #region conversions
// GateConfig returns the rollout gate policy.
func (c Config) GateConfig() rollout.GateConfig {
	return rollout.GateConfig{
		Percentage: c.Rollout.Percentage,
		ForceAllow: append([]string(nil), c.Rollout.ForceAllow...),
	}
}

// PromotionPolicy returns the promotion engine policy.
func (c Config) PromotionPolicy() rollout.PromotionConfig {
	return rollout.PromotionConfig{
		MinSamples:       c.Promotion.MinSamples,
		ElapsedTolerance: c.Promotion.ElapsedTolerance,
		NeedsDataStep:    c.Promotion.NeedsDataStep,
		NeedsDataCap:     c.Promotion.NeedsDataCap,
		PromoteStep:      c.Promotion.PromoteStep,
		DemoteStep:       c.Promotion.DemoteStep,
		Window:           c.Promotion.Window,
	}
}

// RouterPolicy returns the breaker policy.
func (c Config) RouterPolicy() provider.RouterConfig {
	return provider.RouterConfig{
		FailureThreshold: c.Router.FailureThreshold,
		ProbeCooldown:    c.Router.ProbeCooldown,
	}
}

// AnalystRoles returns the configured analysts as roles.
func (c Config) AnalystRoles() []pipeline.Role {
	out := make([]pipeline.Role, len(c.Analysts))
	for i, a := range c.Analysts {
		out[i] = pipeline.Role(a)
	}
	return out
}

// StageTimeouts returns the per-role timeout overrides.
func (c Config) StageTimeouts() map[pipeline.Role]time.Duration {
	out := make(map[pipeline.Role]time.Duration, len(c.Stages.Timeouts))
	for role, d := range c.Stages.Timeouts {
		out[pipeline.Role(role)] = d
	}
	return out
}

// ProvidersByCapability groups providers per capability in priority order.
// Ties keep file order.
func (c Config) ProvidersByCapability() map[provider.Capability][]ProviderConfig {
	out := make(map[provider.Capability][]ProviderConfig)
	for _, p := range c.Providers {
		capability := provider.Capability(p.Capability)
		out[capability] = append(out[capability], p)
	}
	for _, list := range out {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	}
	return out
}

// #endregion conversions
