package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full configuration surface, matching the key set exactly.
type Config struct {
	Pairs       []PairConfig              `mapstructure:"pairs"`
	Providers   []ProviderConfig          `mapstructure:"providers"`
	Analysts    []AnalystConfig           `mapstructure:"analysts"`
	Combiner    CombinerConfig            `mapstructure:"combiner"`
	Guards      GuardsConfig              `mapstructure:"guards"`
	Sizing      SizingConfig              `mapstructure:"sizing"`
	Journal     JournalConfig             `mapstructure:"journal"`
	Environment EnvironmentConfig         `mapstructure:"environment"`
	Monitoring  MonitoringConfig          `mapstructure:"monitoring"`
}

// PairConfig is one traded pair and the interval its cycle runs on.
type PairConfig struct {
	Base     string `mapstructure:"base"`
	Quote    string `mapstructure:"quote"`
	Interval string `mapstructure:"interval"` // 1m|5m|15m|1h|4h|1d
}

// ProviderConfig is one configured market-data provider entry.
type ProviderConfig struct {
	ID           string   `mapstructure:"id"`
	Role         string   `mapstructure:"role"` // primary|fallback
	Capabilities []string `mapstructure:"capabilities"`
	AuthEnvKey   string   `mapstructure:"auth_env_key"`
	BaseURL      string   `mapstructure:"base_url"`
}

// AnalystConfig is one configured analyst role in the pool.
type AnalystConfig struct {
	ID           string                 `mapstructure:"id"`
	Weight       float64                `mapstructure:"weight"`
	TimeoutMS    int                    `mapstructure:"timeout_ms"`
	SourceConfig map[string]interface{} `mapstructure:"source_config"`
}

// CombinerConfig matches spec.md §6's `combiner` block.
type CombinerConfig struct {
	ThetaBuy        float64 `mapstructure:"theta_buy"`
	ThetaSell       float64 `mapstructure:"theta_sell"`
	FallbackPenalty float64 `mapstructure:"fallback_penalty"`
}

// GuardsConfig matches spec.md §6's `guards` block.
type GuardsConfig struct {
	ExposureCapQuote float64 `mapstructure:"exposure_cap_quote"`
	PerAssetCapPct   float64 `mapstructure:"per_asset_cap_pct"`
	DrawdownPausePct float64 `mapstructure:"drawdown_pause_pct"`
	CooldownSec      int     `mapstructure:"cooldown_sec"`
	VolUpperPct      float64 `mapstructure:"vol_upper_pct"`
}

// SizingConfig matches spec.md §6's `sizing` block.
type SizingConfig struct {
	BaseNotionalQuote    float64 `mapstructure:"base_notional_quote"`
	MinQuote             float64 `mapstructure:"min_quote"`
	MaxQuote             float64 `mapstructure:"max_quote"`
	ConfidenceMultiplier float64 `mapstructure:"confidence_multiplier"`
	VolFloor             float64 `mapstructure:"vol_floor"`
	VolCap               float64 `mapstructure:"vol_cap"`
	VolSensitivity       float64 `mapstructure:"vol_sensitivity"`
}

// JournalConfig matches spec.md §6's `journal` block.
type JournalConfig struct {
	Path            string `mapstructure:"path"`
	FsyncEachRecord bool   `mapstructure:"fsync_each_record"`
}

// EnvironmentConfig matches spec.md §6's `environment` block.
type EnvironmentConfig struct {
	DeployEnv string `mapstructure:"deploy_env"` // dev|prod
}

// MonitoringConfig is ambient (not named in spec.md §6's key set, but the
// metrics server still needs a port to bind — carried per SPEC_FULL.md's
// ambient-stack rule).
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load reads configuration from a YAML file (if present) and environment
// variable overrides, applies defaults, and validates the result. Grounded
// on internal/config/config.go's viper.New/SetEnvPrefix/SetDefault pattern.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("ORCHESTRATOR")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("combiner.theta_buy", 0.15)
	v.SetDefault("combiner.theta_sell", 0.15)
	v.SetDefault("combiner.fallback_penalty", 0.5)

	v.SetDefault("guards.cooldown_sec", 300)
	v.SetDefault("guards.vol_upper_pct", 5.0)
	v.SetDefault("guards.drawdown_pause_pct", 0.10)
	v.SetDefault("guards.per_asset_cap_pct", 0.25)

	v.SetDefault("sizing.confidence_multiplier", 1.0)
	v.SetDefault("sizing.vol_floor", 0.1)
	v.SetDefault("sizing.vol_cap", 10.0)
	v.SetDefault("sizing.vol_sensitivity", 1.0)

	v.SetDefault("journal.path", "./data/journal.jsonl")
	v.SetDefault("journal.fsync_each_record", true)

	v.SetDefault("environment.deploy_env", "dev")

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// CooldownInterval converts the configured cooldown_sec into a Duration.
func (g GuardsConfig) CooldownInterval() time.Duration {
	return time.Duration(g.CooldownSec) * time.Second
}

// AnalystTimeout converts one analyst's configured timeout_ms into a
// Duration; zero means "use the pool's default".
func (a AnalystConfig) AnalystTimeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}
