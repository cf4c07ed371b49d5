package config

import "time"

// #region config
// Config is the controller's complete configuration. Zero values are
// replaced by Default before a file is decoded over it.
type Config struct {
	DBPath     string           `yaml:"db_path"`
	StatusAddr string           `yaml:"status_addr"`
	Analysts   []string         `yaml:"analysts"`
	Rollout    RolloutConfig    `yaml:"rollout"`
	Promotion  PromotionConfig  `yaml:"promotion"`
	Router     RouterConfig     `yaml:"router"`
	Debate     DebateConfig     `yaml:"debate"`
	Stages     StagesConfig     `yaml:"stages"`
	Providers  []ProviderConfig `yaml:"providers"`
}

// RolloutConfig is the configured traffic split.
type RolloutConfig struct {
	Percentage int      `yaml:"percentage"`
	ForceAllow []string `yaml:"force_allow"`
}

// PromotionConfig mirrors rollout.PromotionConfig.
type PromotionConfig struct {
	MinSamples       int           `yaml:"min_samples"`
	ElapsedTolerance float64       `yaml:"elapsed_tolerance"`
	NeedsDataStep    int           `yaml:"needs_data_step"`
	NeedsDataCap     int           `yaml:"needs_data_cap"`
	PromoteStep      int           `yaml:"promote_step"`
	DemoteStep       int           `yaml:"demote_step"`
	Window           time.Duration `yaml:"window"`
}

// RouterConfig mirrors provider.RouterConfig.
type RouterConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ProbeCooldown    time.Duration `yaml:"probe_cooldown"`
}

// DebateConfig sets the rounds of each deliberation.
type DebateConfig struct {
	InvestmentRounds int `yaml:"investment_rounds"`
	RiskRounds       int `yaml:"risk_rounds"`
}

// StagesConfig is the shared stage wrapper policy. Timeouts override
// the per-role defaults.
type StagesConfig struct {
	MaxRetries int                      `yaml:"max_retries"`
	RetryDelay time.Duration            `yaml:"retry_delay"`
	Timeouts   map[string]time.Duration `yaml:"timeouts"`
}

// ProviderConfig declares one gRPC upstream for a capability. Lower
// Priority is tried first.
type ProviderConfig struct {
	ID            string        `yaml:"id"`
	Capability    string        `yaml:"capability"`
	Addr          string        `yaml:"addr"`
	Method        string        `yaml:"method"`
	Priority      int           `yaml:"priority"`
	Timeout       time.Duration `yaml:"timeout"`
	HealthService string        `yaml:"health_service"`
}

// #endregion config
