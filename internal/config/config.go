// Package config handles application configuration from environment variables,
// an optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/randytsao24/velib/internal/velib"
)

// Config holds all application configuration.
type Config struct {
	Port     string `yaml:"port" validate:"required,numeric"`
	IP       string `yaml:"ip" validate:"required,ip"`
	Env      string `yaml:"env" validate:"oneof=development production test"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	HTTPTimeout     time.Duration `yaml:"http_timeout" validate:"gt=0"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	ReferenceTTL    time.Duration `yaml:"reference_ttl" validate:"gt=0"`
	RealtimeTTL     time.Duration `yaml:"realtime_ttl" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gt=0"`

	Retry    RetryConfig    `yaml:"retry"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Upstream UpstreamConfig `yaml:"upstream"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" validate:"min=1"`
}

// RetryConfig controls upstream retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=0,lte=10"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"gt=0"`
	MaxDelay    time.Duration `yaml:"max_delay" validate:"gtefield=BaseDelay"`
	Jitter      bool          `yaml:"jitter"`
}

// BreakerConfig controls the upstream circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" validate:"gte=1"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" validate:"gt=0"`
}

// UpstreamConfig locates the Opendatasoft feeds.
type UpstreamConfig struct {
	ReferenceURL  string  `yaml:"reference_url" validate:"required,url"`
	RealtimeURL   string  `yaml:"realtime_url" validate:"required,url"`
	PageSize      int     `yaml:"page_size" validate:"gte=1,lte=100"`
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gte=0"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:            "8080",
		IP:              "0.0.0.0",
		Env:             "development",
		LogLevel:        "info",
		HTTPTimeout:     10 * time.Second,
		FetchTimeout:    30 * time.Second,
		ReferenceTTL:    time.Hour,
		RealtimeTTL:     2 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    60 * time.Second,
			Jitter:      true,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
		Upstream: UpstreamConfig{
			ReferenceURL:  velib.DefaultReferenceURL,
			RealtimeURL:   velib.DefaultRealtimeURL,
			PageSize:      100,
			RatePerSecond: 5,
		},
		CORSAllowedOrigins: []string{"*"},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE, then environment variables. A .env file in the working
// directory is loaded into the environment first without overriding it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.IP = getEnv("IP", c.IP)
	c.Env = getEnv("ENV", c.Env)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))

	c.HTTPTimeout = getDurationEnv("HTTP_TIMEOUT_SECONDS", c.HTTPTimeout, time.Second)
	c.FetchTimeout = getDurationEnv("FETCH_TIMEOUT_SECONDS", c.FetchTimeout, time.Second)
	c.ReferenceTTL = getDurationEnv("REFERENCE_TTL_SECONDS", c.ReferenceTTL, time.Second)
	c.RealtimeTTL = getDurationEnv("REALTIME_TTL_SECONDS", c.RealtimeTTL, time.Second)
	c.CleanupInterval = getDurationEnv("CLEANUP_INTERVAL_SECONDS", c.CleanupInterval, time.Second)

	c.Retry.MaxAttempts = getIntEnv("RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)
	c.Retry.BaseDelay = getDurationEnv("RETRY_BASE_DELAY_MS", c.Retry.BaseDelay, time.Millisecond)
	c.Retry.MaxDelay = getDurationEnv("RETRY_MAX_DELAY_MS", c.Retry.MaxDelay, time.Millisecond)
	c.Retry.Jitter = getBoolEnv("RETRY_JITTER", c.Retry.Jitter)

	c.Breaker.Enabled = getBoolEnv("BREAKER_ENABLED", c.Breaker.Enabled)
	c.Breaker.FailureThreshold = getIntEnv("BREAKER_FAILURE_THRESHOLD", c.Breaker.FailureThreshold)
	c.Breaker.RecoveryTimeout = getDurationEnv("BREAKER_RECOVERY_SECONDS", c.Breaker.RecoveryTimeout, time.Second)

	c.Upstream.ReferenceURL = getEnv("REFERENCE_URL", c.Upstream.ReferenceURL)
	c.Upstream.RealtimeURL = getEnv("REALTIME_URL", c.Upstream.RealtimeURL)
	c.Upstream.PageSize = getIntEnv("PAGE_SIZE", c.Upstream.PageSize)
	c.Upstream.RatePerSecond = getFloatEnv("UPSTREAM_RATE_PER_SECOND", c.Upstream.RatePerSecond)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORSAllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSAllowedOrigins = append(c.CORSAllowedOrigins, o)
			}
		}
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.IP + ":" + c.Port
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnv reads an integer count of unit
func getDurationEnv(key string, defaultValue, unit time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * unit
		}
	}
	return defaultValue
}
