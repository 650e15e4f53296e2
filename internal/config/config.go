// Package config loads environment-driven configuration via viper into
// a typed struct populated by mapstructure tags, with a Load/Validate
// split and a handful of sensitive fields re-applied from the
// environment directly after Unmarshal.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// KalshiConfig holds the regulated venue's connection settings.
type KalshiConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Demo      bool   `mapstructure:"demo"`
	AccessKey string `mapstructure:"access_key"`
	Secret    string `mapstructure:"secret"`
}

// PolymarketConfig holds the CLOB venue's connection settings.
type PolymarketConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RiskConfig mirrors internal/risk.Config's fields for env/file loading.
type RiskConfig struct {
	BankrollUsd         float64 `mapstructure:"bankroll_usd"`
	KellyFraction       float64 `mapstructure:"kelly_fraction"`
	MaxPositionFraction float64 `mapstructure:"max_position_fraction"`
	MaxTotalExposure    float64 `mapstructure:"max_total_exposure"`
	MinEdgeThreshold    float64 `mapstructure:"min_edge_threshold"`
	MaxDailyLossUsd     float64 `mapstructure:"max_daily_loss_usd"`
}

// StoreConfig controls the event store and recorder locations.
type StoreConfig struct {
	EventDbPath   string `mapstructure:"event_db_path"`
	RecordingDir  string `mapstructure:"recording_dir"`
	Compress      bool   `mapstructure:"compress"`
	RiskStatePath string `mapstructure:"risk_state_path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Config is the top-level configuration object.
type Config struct {
	DryRun             bool             `mapstructure:"dry_run"`
	Kalshi             KalshiConfig     `mapstructure:"kalshi"`
	Polymarket         PolymarketConfig `mapstructure:"polymarket"`
	Risk               RiskConfig       `mapstructure:"risk"`
	Store              StoreConfig      `mapstructure:"store"`
	Logging            LoggingConfig    `mapstructure:"logging"`
	PollIntervalSec    int              `mapstructure:"poll_interval_seconds"`
	SnapshotIntervalSec int             `mapstructure:"snapshot_interval_seconds"`
}

// Default returns the built-in defaults before any file/env overlay.
func Default() Config {
	return Config{
		DryRun: true,
		Kalshi: KalshiConfig{Enabled: true, Demo: true},
		Polymarket: PolymarketConfig{Enabled: true},
		Risk: RiskConfig{
			BankrollUsd:         1000,
			KellyFraction:       0.25,
			MaxPositionFraction: 0.08,
			MaxTotalExposure:    0.25,
			MinEdgeThreshold:    0.015,
			MaxDailyLossUsd:     50,
		},
		Store: StoreConfig{
			EventDbPath:   "data/events.db",
			RecordingDir:  "data/recordings",
			Compress:      true,
			RiskStatePath: "data/risk_state.json",
		},
		Logging:             LoggingConfig{Level: "info", Format: "json"},
		PollIntervalSec:     30,
		SnapshotIntervalSec: 60,
	}
}

// Load reads configuration from an optional file at path, overlaid with
// environment variables under the PMARB_ prefix (e.g. PMARB_RISK_BANKROLL_USD).
// The prefixed overlay only reaches keys that the file sets: viper's
// Unmarshal does not see env-only keys, so without a file every field keeps
// its Default() value at this stage. Load then re-applies a short list of sensitive fields directly from raw,
// un-prefixed env var names (KALSHI_ENABLED, BANKROLL_USD, and so on).
func Load(path string) (Config, error) {
	v := viper.New()
	cfg := Default()

	v.SetEnvPrefix("PMARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideBool("KALSHI_ENABLED", &cfg.Kalshi.Enabled)
	overrideBool("POLYMARKET_ENABLED", &cfg.Polymarket.Enabled)
	overrideString("KALSHI_ACCESS_KEY", &cfg.Kalshi.AccessKey)
	overrideString("KALSHI_API_SECRET", &cfg.Kalshi.Secret)
	overrideBool("DRY_RUN", &cfg.DryRun)
	overrideFloat("BANKROLL_USD", &cfg.Risk.BankrollUsd)
	overrideFloat("KELLY_FRACTION", &cfg.Risk.KellyFraction)
	overrideFloat("MAX_POSITION_FRACTION", &cfg.Risk.MaxPositionFraction)
	overrideFloat("MAX_TOTAL_EXPOSURE", &cfg.Risk.MaxTotalExposure)
	overrideFloat("MIN_EDGE_THRESHOLD", &cfg.Risk.MinEdgeThreshold)
	overrideFloat("MAX_DAILY_LOSS_USD", &cfg.Risk.MaxDailyLossUsd)
	overrideInt("POLL_INTERVAL_SECONDS", &cfg.PollIntervalSec)
	overrideInt("SNAPSHOT_INTERVAL_SECONDS", &cfg.SnapshotIntervalSec)
}

// Validate returns a descriptive error for any missing or out-of-range
// required field.
func (c Config) Validate() error {
	if !c.Kalshi.Enabled && !c.Polymarket.Enabled {
		return fmt.Errorf("at least one of kalshi.enabled or polymarket.enabled must be true")
	}
	if c.Kalshi.Enabled && !c.Kalshi.Demo && (c.Kalshi.AccessKey == "" || c.Kalshi.Secret == "") {
		return fmt.Errorf("kalshi.access_key and kalshi.secret are required when kalshi is enabled against prod")
	}
	if c.Risk.BankrollUsd <= 0 {
		return fmt.Errorf("risk.bankroll_usd must be positive, got %v", c.Risk.BankrollUsd)
	}
	if c.Risk.KellyFraction <= 0 || c.Risk.KellyFraction > 1 {
		return fmt.Errorf("risk.kelly_fraction must be in (0,1], got %v", c.Risk.KellyFraction)
	}
	if c.Risk.MaxPositionFraction <= 0 || c.Risk.MaxPositionFraction > 1 {
		return fmt.Errorf("risk.max_position_fraction must be in (0,1], got %v", c.Risk.MaxPositionFraction)
	}
	if c.Risk.MaxTotalExposure <= 0 || c.Risk.MaxTotalExposure > 1 {
		return fmt.Errorf("risk.max_total_exposure must be in (0,1], got %v", c.Risk.MaxTotalExposure)
	}
	if c.Store.EventDbPath == "" {
		return fmt.Errorf("store.event_db_path must be set")
	}
	if c.Store.RecordingDir == "" {
		return fmt.Errorf("store.recording_dir must be set")
	}
	return nil
}
