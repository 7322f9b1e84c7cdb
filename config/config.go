// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/warp/policy-history/history"
)

// Config controls the policy history server.
//
// Every field can be set from the environment; cmd/server lets flags
// override the port, database path and feed URL.
type Config struct {
	Port        int           `env:"POLICY_HISTORY_PORT"         envDefault:"8080"`
	DBPath      string        `env:"POLICY_HISTORY_DB"           envDefault:"policy-history.db"`
	FeedURL     string        `env:"POLICY_HISTORY_FEED_URL"`
	FeedTimeout time.Duration `env:"POLICY_HISTORY_FEED_TIMEOUT" envDefault:"15s"`

	// How often to refetch the feed. 0 disables periodic refresh.
	RefreshInterval time.Duration `env:"POLICY_HISTORY_REFRESH_INTERVAL" envDefault:"0s"`

	LogLevel  string `env:"POLICY_HISTORY_LOG_LEVEL"  envDefault:"info"`
	LogPretty bool   `env:"POLICY_HISTORY_LOG_PRETTY" envDefault:"false"`

	// ongoing or literal, see history.ActivityRule.
	ActivityRule string `env:"POLICY_HISTORY_ACTIVITY_RULE" envDefault:"ongoing"`

	CORSOrigins []string `env:"POLICY_HISTORY_CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables only.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.FeedTimeout <= 0 {
		return fmt.Errorf("invalid feed timeout %s", c.FeedTimeout)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("invalid refresh interval %s", c.RefreshInterval)
	}
	if _, err := c.Rule(); err != nil {
		return err
	}
	return nil
}

// Rule parses ActivityRule.
func (c Config) Rule() (history.ActivityRule, error) {
	return history.ParseActivityRule(c.ActivityRule)
}

// MockEnvironment reports whether no remote feed is configured. The server
// then only serves batches posted to it or loaded from scenarios.
func (c Config) MockEnvironment() bool { return c.FeedURL == "" }
