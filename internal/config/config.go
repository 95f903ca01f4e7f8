// Package config provides configuration management for logwarden.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"logwarden/internal/correlate"
	"logwarden/internal/intel"
	"logwarden/internal/observability"
	"logwarden/internal/respond"
	"logwarden/internal/tail"
)

// Config holds all logwarden configuration.
type Config struct {
	Server      ServerConfig                `yaml:"server"`
	Redis       RedisConfig                 `yaml:"redis"`
	Logging     observability.LoggingConfig `yaml:"logging"`
	Intel       intel.Config                `yaml:"intel"`
	Enrichment  intel.EnricherConfig        `yaml:"enrichment"`
	Correlation CorrelationConfig           `yaml:"correlation"`
	Response    respond.Config              `yaml:"response"`
	Email       respond.EmailConfig         `yaml:"email"`
	Firewall    respond.FirewallConfig      `yaml:"firewall"`
	Tail        TailConfig                  `yaml:"tail"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	RateLimitEnabled bool `yaml:"rate_limit_enabled"`
	RateLimitPerMin  int  `yaml:"rate_limit_per_min"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	Password    string `yaml:"-"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
}

// CorrelationConfig holds correlation engine settings.
type CorrelationConfig struct {
	Window time.Duration `yaml:"window"`
}

// TailConfig holds live tailer settings.
type TailConfig struct {
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

// Load reads configuration from a YAML file over the defaults and resolves
// secrets from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.resolveSecrets()

	return cfg, nil
}

// resolveSecrets fills secret fields from the environment variables the
// config names. Secrets never live in the YAML file itself.
func (c *Config) resolveSecrets() {
	if c.Redis.PasswordEnv != "" {
		c.Redis.Password = os.Getenv(c.Redis.PasswordEnv)
	}
	if c.Email.PasswordEnv != "" {
		c.Email.Password = os.Getenv(c.Email.PasswordEnv)
	}
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			RateLimitEnabled: false,
			RateLimitPerMin:  120,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PasswordEnv: "LOGWARDEN_REDIS_PASSWORD",
			DB:          0,
			PoolSize:    10,
		},
		Logging: observability.LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Intel: intel.Config{
			CachePath: "data/reputation_cache.json",
			Feeds:     intel.DefaultFeeds(),
			Throttle:  intel.DefaultThrottle,
			Timeout:   6 * time.Second,
		},
		Enrichment: intel.EnricherConfig{
			Enabled:   false,
			CachePath: "data/enrichment_cache.json",
			Timeout:   3 * time.Second,
		},
		Correlation: CorrelationConfig{
			Window: correlate.DefaultWindow,
		},
		Response: respond.DefaultConfig(),
		Email: respond.EmailConfig{
			Enabled:     false,
			Port:        587,
			PasswordEnv: "LOGWARDEN_SMTP_PASSWORD",
			Cooldown:    respond.DefaultAlertCooldown,
		},
		Firewall: respond.FirewallConfig{
			LedgerPath: "data/blocked_ips.json",
		},
		Tail: TailConfig{
			Interval: tail.DefaultPollInterval,
		},
	}
}
