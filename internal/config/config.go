package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Venue struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type Detection struct {
	NoiseThreshold       float64 `yaml:"noise_threshold"`
	ConfluenceThreshold  int     `yaml:"confluence_threshold"`
	ConfluenceWindowMins int     `yaml:"confluence_window_minutes"`
	ThemeThreshold       int     `yaml:"theme_threshold"`
	ThemeWindowMins      int     `yaml:"theme_window_minutes"`
	ThemeAlertsEnabled   bool    `yaml:"theme_alerts_enabled"`
	CooldownMins         int     `yaml:"cooldown_minutes"`
	MinTradeValueUSD     float64 `yaml:"min_trade_value_usd"` // 0 disables the value filter
}

type Polling struct {
	IntervalSeconds      int `yaml:"interval_seconds"`
	BatchSize            int `yaml:"batch_size"`
	BatchDelayMs         int `yaml:"batch_delay_ms"`
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches"`
	MaxRetries           int `yaml:"max_retries"`
	BackoffBaseMs        int `yaml:"backoff_base_ms"`
	BackoffMaxMs         int `yaml:"backoff_max_ms"`
}

type Health struct {
	DeactivateAfterFailures int `yaml:"deactivate_after_failures"`
	ReactivateAfterMins     int `yaml:"reactivate_after_minutes"`
}

type State struct {
	Path                string `yaml:"path"`
	MinSaveIntervalSecs int    `yaml:"min_save_interval_seconds"`
}

type Telegram struct {
	Enabled        bool `yaml:"enabled"`
	QueueSize      int  `yaml:"queue_size"`
	MaxRetries     int  `yaml:"max_retries"`
	RetryBackoffMs int  `yaml:"retry_backoff_ms"`
}

type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty = console only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// SeedEntity is an entity pre-configured for first boot; entities added
// at runtime live in the persisted state, not here.
type SeedEntity struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

type Root struct {
	Venue     Venue        `yaml:"venue"`
	Detection Detection    `yaml:"detection"`
	Polling   Polling      `yaml:"polling"`
	Health    Health       `yaml:"health"`
	State     State        `yaml:"state"`
	Telegram  Telegram     `yaml:"telegram"`
	Logging   Logging      `yaml:"logging"`
	Entities  []SeedEntity `yaml:"entities"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Default returns a config with every tunable at its default value,
// used when no config file is given.
func Default() Root {
	var c Root
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Root) {
	if c.Venue.BaseURL == "" {
		c.Venue.BaseURL = "https://api.hyperliquid.xyz"
	}
	if c.Venue.TimeoutMs == 0 {
		c.Venue.TimeoutMs = 10000
	}

	if c.Detection.NoiseThreshold == 0 {
		c.Detection.NoiseThreshold = 0.1
	}
	if c.Detection.ConfluenceThreshold == 0 {
		c.Detection.ConfluenceThreshold = 2
	}
	if c.Detection.ConfluenceWindowMins == 0 {
		c.Detection.ConfluenceWindowMins = 10
	}
	if c.Detection.ThemeThreshold == 0 {
		c.Detection.ThemeThreshold = 2
	}
	if c.Detection.ThemeWindowMins == 0 {
		c.Detection.ThemeWindowMins = 15
	}
	if c.Detection.CooldownMins == 0 {
		c.Detection.CooldownMins = 5
	}

	if c.Polling.IntervalSeconds == 0 {
		c.Polling.IntervalSeconds = 60
	}
	if c.Polling.BatchSize == 0 {
		c.Polling.BatchSize = 5
	}
	if c.Polling.BatchDelayMs == 0 {
		c.Polling.BatchDelayMs = 2000
	}
	if c.Polling.MaxConcurrentFetches == 0 {
		c.Polling.MaxConcurrentFetches = 5
	}
	if c.Polling.MaxRetries == 0 {
		c.Polling.MaxRetries = 3
	}
	if c.Polling.BackoffBaseMs == 0 {
		c.Polling.BackoffBaseMs = 2000
	}
	if c.Polling.BackoffMaxMs == 0 {
		c.Polling.BackoffMaxMs = 30000
	}

	if c.Health.DeactivateAfterFailures == 0 {
		c.Health.DeactivateAfterFailures = 3
	}
	if c.Health.ReactivateAfterMins == 0 {
		c.Health.ReactivateAfterMins = 30
	}

	if c.State.Path == "" {
		c.State.Path = "data/vaultwatch_state.json"
	}
	if c.State.MinSaveIntervalSecs == 0 {
		c.State.MinSaveIntervalSecs = 5
	}

	if c.Telegram.QueueSize == 0 {
		c.Telegram.QueueSize = 256
	}
	if c.Telegram.MaxRetries == 0 {
		c.Telegram.MaxRetries = 3
	}
	if c.Telegram.RetryBackoffMs == 0 {
		c.Telegram.RetryBackoffMs = 1000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 7
	}
}

func (c Root) Validate() error {
	if c.Detection.NoiseThreshold < 0 {
		return fmt.Errorf("detection.noise_threshold must be >= 0, got %v", c.Detection.NoiseThreshold)
	}
	if c.Detection.ConfluenceThreshold < 1 {
		return fmt.Errorf("detection.confluence_threshold must be >= 1, got %d", c.Detection.ConfluenceThreshold)
	}
	if c.Detection.ThemeThreshold < 1 {
		return fmt.Errorf("detection.theme_threshold must be >= 1, got %d", c.Detection.ThemeThreshold)
	}
	if c.Detection.MinTradeValueUSD < 0 {
		return fmt.Errorf("detection.min_trade_value_usd must be >= 0, got %v", c.Detection.MinTradeValueUSD)
	}
	if c.Polling.BatchSize < 1 {
		return fmt.Errorf("polling.batch_size must be >= 1, got %d", c.Polling.BatchSize)
	}
	if c.Polling.MaxConcurrentFetches < 1 {
		return fmt.Errorf("polling.max_concurrent_fetches must be >= 1, got %d", c.Polling.MaxConcurrentFetches)
	}
	if c.Health.DeactivateAfterFailures < 1 {
		return fmt.Errorf("health.deactivate_after_failures must be >= 1, got %d", c.Health.DeactivateAfterFailures)
	}
	return nil
}

func (d Detection) ConfluenceWindow() time.Duration {
	return time.Duration(d.ConfluenceWindowMins) * time.Minute
}

func (d Detection) ThemeWindow() time.Duration {
	return time.Duration(d.ThemeWindowMins) * time.Minute
}

func (d Detection) Cooldown() time.Duration {
	return time.Duration(d.CooldownMins) * time.Minute
}

func (p Polling) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

func (p Polling) BatchDelay() time.Duration {
	return time.Duration(p.BatchDelayMs) * time.Millisecond
}

func (h Health) ReactivateAfter() time.Duration {
	return time.Duration(h.ReactivateAfterMins) * time.Minute
}
