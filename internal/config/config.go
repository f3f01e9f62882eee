package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Routines  RoutinesConfig  `yaml:"routines"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// RateLimitConfig limits write endpoints per client IP.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// RoutinesConfig controls what the server loads into the catalog at startup.
type RoutinesConfig struct {
	SeedDefault *bool  `yaml:"seed_default"`
	Dir         string `yaml:"dir"`
}

// ShouldSeedDefault reports whether the built-in 4x4 routine is seeded.
// Defaults to true when unset.
func (r RoutinesConfig) ShouldSeedDefault() bool {
	return r.SeedDefault == nil || *r.SeedDefault
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel parses Level, defaulting to info.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix INTERVALS_ and underscore-separated paths:
//
//	INTERVALS_SERVER_HOST, INTERVALS_SERVER_PORT,
//	INTERVALS_DB_HOST, INTERVALS_DB_PORT, INTERVALS_DB_NAME,
//	INTERVALS_DB_USER, INTERVALS_DB_PASSWORD, INTERVALS_DB_SSLMODE,
//	INTERVALS_AUTH_API_KEY,
//	INTERVALS_TAILSCALE_ENABLED, INTERVALS_TAILSCALE_HOSTNAME,
//	INTERVALS_RATE_LIMIT_RPM, INTERVALS_ROUTINES_DIR, INTERVALS_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INTERVALS_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("INTERVALS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("INTERVALS_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("INTERVALS_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("INTERVALS_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("INTERVALS_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("INTERVALS_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("INTERVALS_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("INTERVALS_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("INTERVALS_TAILSCALE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("INTERVALS_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("INTERVALS_RATE_LIMIT_RPM"); v != "" {
		if rpm, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.RequestsPerMinute = rpm
		}
	}
	if v := os.Getenv("INTERVALS_ROUTINES_DIR"); v != "" {
		cfg.Routines.Dir = v
	}
	if v := os.Getenv("INTERVALS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 60
	}
	if cfg.Tailscale.Enabled && cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "intervals"
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}
