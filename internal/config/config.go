// Package config loads and validates the pipeline's single configuration
// structure (spec §6). Grounded on the teacher pack's yaml.v3 loaders
// (FOTONPHOTOS-PULSEINTEL's internal/config/loader.go) combined with the
// teacher's own mustEnv/getEnv convention (config/config.go) for
// environment-variable overrides of secrets and addresses.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"signalcore/internal/model"
	"signalcore/internal/wsfeed"
)

// TimeframeEntry is one configured timeframe.
type TimeframeEntry struct {
	Label      string `yaml:"label"`
	DurationMs int64  `yaml:"duration_ms"`
}

// RegimeThresholds are the fixed thresholds used to classify a filter's
// regime from recent volatility and velocity (spec §4.4 step 6).
type RegimeThresholds struct {
	TrendingVelocity float64 `yaml:"trending_velocity"`
	VolatileSigma    float64 `yaml:"volatile_sigma"`
	StableSigma      float64 `yaml:"stable_sigma"`
}

// KalmanConfig parameterises every filter in the Kalman Bank.
type KalmanConfig struct {
	Q0                  float64          `yaml:"q0"`
	R                   float64          `yaml:"r"`
	PInit               float64          `yaml:"p_init"`
	WarmupMin           int              `yaml:"warmup_min"`
	VolatilityWindowLen int              `yaml:"volatility_window_len"`
	InnovationWindowLen int              `yaml:"innovation_window_len"`
	ScaleMin            float64          `yaml:"scale_min"`
	ScaleMax            float64          `yaml:"scale_max"`
	RegimeThresholds    RegimeThresholds `yaml:"regime_thresholds"`
}

// FusionConfig parameterises the Fusion Engine (spec §4.6).
type FusionConfig struct {
	TFRanks          map[string]int     `yaml:"tf_ranks"`
	AlphaRegime      map[string]float64 `yaml:"alpha_regime"`
	Beta             float64            `yaml:"beta"`
	Gamma            float64            `yaml:"gamma"`
	NRef             int                `yaml:"n_ref"`
	TauEnter         float64            `yaml:"tau_enter"`
	MuEnter          float64            `yaml:"mu_enter"`
	GlobalRiskScalar float64            `yaml:"global_risk_scalar"`
}

// RiskParams is one regime's stop/target sizing (spec §4.7).
type RiskParams struct {
	RPct     float64 `yaml:"r_pct"`
	Multiple float64 `yaml:"multiple"`
}

// RedisConfig addresses the publisher's Redis Streams backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

// Config is the full pipeline configuration, loaded from YAML with
// environment overrides applied on top.
type Config struct {
	Instrument    string                `yaml:"instrument"`
	Timeframes    []TimeframeEntry      `yaml:"timeframes"`
	RingCapacity  int                   `yaml:"ring_capacity"`
	Kalman        KalmanConfig          `yaml:"kalman"`
	Fusion        FusionConfig          `yaml:"fusion"`
	RiskByRegime  map[string]RiskParams `yaml:"risk_by_regime"`
	Redis         RedisConfig           `yaml:"redis"`
	MetricsAddr   string                `yaml:"metrics_addr"`
	WebhookURL    string                `yaml:"webhook_url"`
	SQLitePath    string                `yaml:"sqlite_path"`
	BroadcastAddr string                `yaml:"broadcast_addr"`
	WSFeedURL     string                `yaml:"ws_feed_url"`
	WSFeedSession *wsfeed.SessionConfig `yaml:"ws_feed_session"`
}

var allRegimes = []model.Regime{
	model.RegimeTrending,
	model.RegimeVolatile,
	model.RegimeStable,
	model.RegimeMeanReverting,
}

// Load reads path, applies REDIS_ADDR/REDIS_PASSWORD/WEBHOOK_URL
// environment overrides (the teacher's getEnv convention, restricted here
// to secrets and addresses per spec §6.1), and validates the result.
// Invalid configuration is fatal at construction time (spec §7): the only
// error Load ever returns is a *model.ConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigError{Field: "path", Reason: err.Error()}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &model.ConfigError{Field: "yaml", Reason: err.Error()}
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every invariant spec §6/§7 require of a configuration,
// returning the first violation found as a *model.ConfigError.
func (c *Config) Validate() error {
	if c.Instrument == "" {
		return &model.ConfigError{Field: "instrument", Reason: "must not be empty"}
	}
	if len(c.Timeframes) == 0 {
		return &model.ConfigError{Field: "timeframes", Reason: "must contain at least one entry"}
	}

	base := c.Timeframes[0].DurationMs
	if base <= 0 {
		return &model.ConfigError{Field: "timeframes[0].duration_ms", Reason: "must be positive"}
	}
	seen := make(map[string]bool, len(c.Timeframes))
	for i, tf := range c.Timeframes {
		if tf.Label == "" {
			return &model.ConfigError{Field: fmt.Sprintf("timeframes[%d].label", i), Reason: "must not be empty"}
		}
		if seen[tf.Label] {
			return &model.ConfigError{Field: "timeframes", Reason: "duplicate label " + tf.Label}
		}
		seen[tf.Label] = true
		if tf.DurationMs <= 0 {
			return &model.ConfigError{Field: fmt.Sprintf("timeframes[%d].duration_ms", i), Reason: "must be positive"}
		}
		if tf.DurationMs%base != 0 {
			return &model.ConfigError{
				Field:  fmt.Sprintf("timeframes[%d].duration_ms", i),
				Reason: fmt.Sprintf("%d is not an integer multiple of base duration %d", tf.DurationMs, base),
			}
		}
		if i > 0 && tf.DurationMs <= c.Timeframes[i-1].DurationMs {
			return &model.ConfigError{Field: "timeframes", Reason: "must be strictly ascending by duration_ms"}
		}
	}

	if c.RingCapacity <= 0 {
		return &model.ConfigError{Field: "ring_capacity", Reason: "must be positive"}
	}

	if err := c.Kalman.validate(); err != nil {
		return err
	}
	if err := c.Fusion.validate(c.Timeframes); err != nil {
		return err
	}

	for _, r := range allRegimes {
		rp, ok := c.RiskByRegime[string(r)]
		if !ok {
			return &model.ConfigError{Field: "risk_by_regime", Reason: "missing entry for regime " + string(r)}
		}
		if rp.RPct <= 0 || rp.Multiple <= 0 {
			return &model.ConfigError{Field: "risk_by_regime." + string(r), Reason: "r_pct and multiple must be positive"}
		}
	}

	return nil
}

func (k *KalmanConfig) validate() error {
	switch {
	case k.Q0 <= 0:
		return &model.ConfigError{Field: "kalman.q0", Reason: "must be positive"}
	case k.R <= 0:
		return &model.ConfigError{Field: "kalman.r", Reason: "must be positive"}
	case k.PInit <= 0:
		return &model.ConfigError{Field: "kalman.p_init", Reason: "must be positive"}
	case k.WarmupMin < 1:
		return &model.ConfigError{Field: "kalman.warmup_min", Reason: "must be at least 1"}
	case k.VolatilityWindowLen < 2:
		return &model.ConfigError{Field: "kalman.volatility_window_len", Reason: "must be at least 2"}
	case k.InnovationWindowLen < 1:
		return &model.ConfigError{Field: "kalman.innovation_window_len", Reason: "must be at least 1"}
	case k.ScaleMin <= 0:
		return &model.ConfigError{Field: "kalman.scale_min", Reason: "must be positive"}
	case k.ScaleMax < k.ScaleMin:
		return &model.ConfigError{Field: "kalman.scale_max", Reason: "must be >= scale_min"}
	}
	return nil
}

func (f *FusionConfig) validate(tfs []TimeframeEntry) error {
	if f.NRef < 1 {
		return &model.ConfigError{Field: "fusion.n_ref", Reason: "must be at least 1"}
	}
	if f.TauEnter < 0 || f.TauEnter > 1 {
		return &model.ConfigError{Field: "fusion.tau_enter", Reason: "must be within [0,1]"}
	}
	if f.MuEnter < 0 || f.MuEnter > 1 {
		return &model.ConfigError{Field: "fusion.mu_enter", Reason: "must be within [0,1]"}
	}
	for _, tf := range tfs {
		if _, ok := f.TFRanks[tf.Label]; !ok {
			return &model.ConfigError{Field: "fusion.tf_ranks", Reason: "missing rank for timeframe " + tf.Label}
		}
	}
	for _, r := range allRegimes {
		if _, ok := f.AlphaRegime[string(r)]; !ok {
			return &model.ConfigError{Field: "fusion.alpha_regime", Reason: "missing entry for regime " + string(r)}
		}
	}
	return nil
}
