package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "SAVINGSD_"

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for savingsd.
type Config struct {
	Env             string               `yaml:"env"`
	ListenAddress   string               `yaml:"listen"`
	ReadTimeout     Duration             `yaml:"read_timeout"`
	WriteTimeout    Duration             `yaml:"write_timeout"`
	ShutdownTimeout Duration             `yaml:"shutdown_timeout"`
	DataDir         string               `yaml:"data_dir"`
	Genesis         string               `yaml:"genesis"`
	Audit           AuditConfig          `yaml:"audit"`
	Auth            AuthConfig           `yaml:"auth"`
	RateLimits      map[string]RateLimit `yaml:"rate_limits"`
	CORS            CORSConfig           `yaml:"cors"`
	Observability   ObservabilityConfig  `yaml:"observability"`
	Logging         LoggingConfig        `yaml:"logging"`
}

// AuditConfig selects the audit log backend.
type AuditConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	Enabled        bool     `yaml:"enabled"`
	HMACSecret     string   `yaml:"hmac_secret"`
	Issuer         string   `yaml:"issuer"`
	Audience       string   `yaml:"audience"`
	ClockSkew      Duration `yaml:"clock_skew"`
	AllowAnonymous bool     `yaml:"allow_anonymous_reads"`
}

// RateLimit is the per-client budget of one route group.
type RateLimit struct {
	RatePerSecond float64        `yaml:"rate_per_second"`
	Burst         int            `yaml:"burst"`
	DefaultTokens int            `yaml:"default_tokens"`
	Tokens        map[string]int `yaml:"tokens"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ObservabilityConfig struct {
	Metrics        bool     `yaml:"metrics"`
	Traces         bool     `yaml:"traces"`
	LogRequests    bool     `yaml:"log_requests"`
	OTLPEndpoint   string   `yaml:"otlp_endpoint"`
	OTLPInsecure   bool     `yaml:"otlp_insecure"`
	OTLPHeaders    string   `yaml:"otlp_headers"`
	MetricInterval Duration `yaml:"metric_interval"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads configuration from the supplied path, applies SAVINGSD_*
// environment overrides and validates the result. An empty path yields the
// defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8088"
	}
	if cfg.ReadTimeout.Duration == 0 {
		cfg.ReadTimeout.Duration = 10 * time.Second
	}
	if cfg.WriteTimeout.Duration == 0 {
		cfg.WriteTimeout.Duration = 15 * time.Second
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 5 * time.Second
	}
	if cfg.Audit.Driver == "" {
		cfg.Audit.Driver = "sqlite"
	}
	if cfg.Audit.DSN == "" && cfg.Audit.Driver == "sqlite" {
		cfg.Audit.DSN = "file:savingsd-audit?mode=memory&cache=shared"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimit{
			"mutations": {RatePerSecond: 5, Burst: 10},
			"reads":     {RatePerSecond: 20, Burst: 40},
		}
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4318"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if value, ok := lookup(envPrefix + name); ok {
			*dst = strings.TrimSpace(value)
		}
	}
	boolean := func(name string, dst *bool) error {
		value, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = parsed
		return nil
	}
	str("ENV", &cfg.Env)
	str("LISTEN", &cfg.ListenAddress)
	str("DATA_DIR", &cfg.DataDir)
	str("GENESIS", &cfg.Genesis)
	str("AUDIT_DRIVER", &cfg.Audit.Driver)
	str("AUDIT_DSN", &cfg.Audit.DSN)
	str("JWT_SECRET", &cfg.Auth.HMACSecret)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	str("JWT_AUDIENCE", &cfg.Auth.Audience)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FILE", &cfg.Logging.File)
	str("OTLP_ENDPOINT", &cfg.Observability.OTLPEndpoint)
	if err := boolean("AUTH_ENABLED", &cfg.Auth.Enabled); err != nil {
		return err
	}
	if err := boolean("TRACES", &cfg.Observability.Traces); err != nil {
		return err
	}
	return boolean("METRICS", &cfg.Observability.Metrics)
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	switch c.Audit.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("audit.driver must be sqlite or postgres, got %q", c.Audit.Driver)
	}
	if c.Audit.Driver == "postgres" && strings.TrimSpace(c.Audit.DSN) == "" {
		return fmt.Errorf("audit.dsn is required for postgres")
	}
	if c.Auth.Enabled && len(strings.TrimSpace(c.Auth.HMACSecret)) < 16 {
		return fmt.Errorf("auth.hmac_secret must be at least 16 characters when auth is enabled")
	}
	if !c.Auth.Enabled && c.Env == "prod" {
		return fmt.Errorf("auth must be enabled in prod")
	}
	for name, limit := range c.RateLimits {
		if limit.RatePerSecond < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s must not be negative", name)
		}
	}
	if c.ReadTimeout.Duration < 0 || c.WriteTimeout.Duration < 0 || c.ShutdownTimeout.Duration < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
