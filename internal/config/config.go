// Package config loads and validates the routing subsystem configuration
// from YAML, with environment variable expansion and live reload.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentmux/agentmux/internal/registry"
)

// Config is the root configuration.
type Config struct {
	Cache   CacheConfig      `yaml:"cache"`
	Routing RoutingConfig    `yaml:"routing"`
	Models  []registry.Model `yaml:"models"`
	Logging LoggingConfig    `yaml:"logging"`
	Metrics MetricsConfig    `yaml:"metrics"`
	Tracing TracingConfig    `yaml:"tracing"`
}

// CacheConfig configures both response cache tiers.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	KeyPrefix string        `yaml:"key_prefix"`
	LocalTTL  time.Duration `yaml:"local_ttl"`
	SharedTTL time.Duration `yaml:"shared_ttl"`

	Local  LocalCacheConfig  `yaml:"local"`
	Shared SharedCacheConfig `yaml:"shared"`
}

// LocalCacheConfig configures the in-memory tier.
type LocalCacheConfig struct {
	MaxEntries    int           `yaml:"max_entries"`
	MaxItemSize   int           `yaml:"max_item_size"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SharedCacheConfig configures the optional Redis tier.
type SharedCacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	ClusterAddrs []string      `yaml:"cluster_addrs"`
	Namespace    string        `yaml:"namespace"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries"`
}

// RoutingConfig configures selection and failover.
type RoutingConfig struct {
	Strategy string `yaml:"strategy"`

	// RetryEnabled turns on failover to remaining candidates after a
	// backend failure.
	RetryEnabled bool `yaml:"retry_enabled"`

	// MaxRetries bounds additional attempts after the first. Total
	// attempts are 1+MaxRetries, capped by the candidate count.
	MaxRetries int `yaml:"max_retries"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // "json" or "text"
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// DefaultConfig returns a configuration with sensible defaults and no
// models.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:   true,
			LocalTTL:  5 * time.Minute,
			SharedTTL: time.Hour,
			Local: LocalCacheConfig{
				MaxEntries:    1000,
				MaxItemSize:   1024 * 1024,
				SweepInterval: time.Minute,
			},
			Shared: SharedCacheConfig{
				Addr:         "localhost:6379",
				Namespace:    "agentmux",
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
				PoolSize:     10,
				MinIdleConns: 2,
				MaxRetries:   3,
			},
		},
		Routing: RoutingConfig{
			Strategy:     "round-robin",
			RetryEnabled: true,
			MaxRetries:   2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "agentmux",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// Load reads, expands, parses, and validates a YAML config file.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Routing.Strategy == "" {
		return fmt.Errorf("config: routing.strategy must not be empty")
	}
	if c.Routing.MaxRetries < 0 {
		return fmt.Errorf("config: routing.max_retries must not be negative")
	}
	if c.Cache.LocalTTL < 0 || c.Cache.SharedTTL < 0 {
		return fmt.Errorf("config: cache TTLs must not be negative")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("config: tracing.sample_rate must be between 0 and 1")
	}

	seen := make(map[string]struct{}, len(c.Models))
	for i, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("config: models[%d] has empty id", i)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("config: duplicate model id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.Weight < 0 {
			return fmt.Errorf("config: model %q has negative weight", m.ID)
		}
	}
	return nil
}
