// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR"`
	StorePath   string `env:"STORE_PATH" envDefault:"trailsync.db"`

	Probe ProbeConfig
	Fetch FetchConfig
}

// ProbeConfig controls the connectivity watcher.
type ProbeConfig struct {
	URL      string        `env:"PROBE_URL" envDefault:"https://api.accesstrails.example/healthz"`
	Interval time.Duration `env:"PROBE_INTERVAL" envDefault:"15s"`
}

// FetchConfig tunes the resilient read path. One policy applies to every
// call site; per-site variation is a configuration knob, not a hardcoded
// constant.
type FetchConfig struct {
	Timeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"8s"`
	MaxAttempts int           `env:"FETCH_MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay   time.Duration `env:"FETCH_BASE_DELAY" envDefault:"750ms"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HasDeferredSync returns true if a broker is configured for deferred
// drain registrations.
func (c Config) HasDeferredSync() bool {
	return c.RedisAddr != ""
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", c.Fetch.Timeout)
	}
	if c.Fetch.BaseDelay < 0 {
		return fmt.Errorf("FETCH_BASE_DELAY must not be negative, got %v", c.Fetch.BaseDelay)
	}
	return nil
}
