// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrEvolinkAPIKeyRequired is returned when EVOLINK_API_KEY is not set.
	ErrEvolinkAPIKeyRequired = errors.New("config: EVOLINK_API_KEY is required")
	// ErrAuthSecretRequired is returned when AUTH_JWT_SECRET is not set.
	ErrAuthSecretRequired = errors.New("config: AUTH_JWT_SECRET is required")
	// ErrInvalidPolling is returned when the poll budget is not positive.
	ErrInvalidPolling = errors.New("config: POLL_MAX_ATTEMPTS and POLL_INTERVAL_MS must be positive")
	// ErrInvalidProxy is returned when OUTBOUND_PROXY is not an absolute URL.
	ErrInvalidProxy = errors.New("config: OUTBOUND_PROXY must be an absolute URL")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AppEnv         string   `env:"APP_ENV, default=development" json:"app_env"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES, default=20971520" json:"max_upload_bytes"`

	// Evolink settings
	EvolinkAPIKey     string `env:"EVOLINK_API_KEY, required" json:"-"` // Masked in JSON
	EvolinkBaseURL    string `env:"EVOLINK_BASE_URL, default=https://api.evolink.ai" json:"evolink_base_url"`
	EvolinkTimeoutSec int    `env:"EVOLINK_TIMEOUT_SEC, default=60" json:"evolink_timeout_sec"`
	OutboundProxy     string `env:"OUTBOUND_PROXY" json:"-"`

	// Polling settings
	PollMaxAttempts int `env:"POLL_MAX_ATTEMPTS, default=120" json:"poll_max_attempts"`
	PollIntervalMs  int `env:"POLL_INTERVAL_MS, default=2000" json:"poll_interval_ms"`

	// Auth settings
	AuthJWTSecret  string `env:"AUTH_JWT_SECRET, required" json:"-"` // Masked in JSON
	AuthCookieName string `env:"AUTH_COOKIE_NAME, default=session_token" json:"auth_cookie_name"`

	// Credit ledger settings
	DatabaseURL    string `env:"DATABASE_URL" json:"-"`
	DefaultCredits int    `env:"DEFAULT_CREDITS, default=0" json:"default_credits"`

	// Job tracking settings
	RedisAddr     string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"`
	RedisDB       int    `env:"REDIS_DB, default=0" json:"redis_db"`
	JobTTLHours   int    `env:"JOB_TTL_HOURS, default=24" json:"job_ttl_hours"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION, default=auto" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3PublicURL        string `env:"S3_PUBLIC_URL" json:"s3_public_url,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Local storage settings, used when S3 is not configured
	StorageDir    string `env:"STORAGE_DIR, default=/tmp/genbridge" json:"storage_dir"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL, default=http://localhost:8080" json:"public_base_url"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// PostgresEnabled returns true if a database URL is configured for the credit ledger.
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != ""
}

// RedisEnabled returns true if tracked jobs should be stored in Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// PollInterval returns the fixed delay between vendor status checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// PollBudget returns the worst-case time a synchronous request waits on the vendor.
func (c *Config) PollBudget() time.Duration {
	return time.Duration(c.PollMaxAttempts) * c.PollInterval()
}

// JobTTL returns how long tracked jobs are retained.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobTTLHours) * time.Hour
}

// EvolinkTimeout returns the per-request timeout for vendor calls.
func (c *Config) EvolinkTimeout() time.Duration {
	return time.Duration(c.EvolinkTimeoutSec) * time.Second
}

// ProxyURL returns the outbound proxy for vendor calls.
// The proxy is ignored in production.
func (c *Config) ProxyURL() (*url.URL, error) {
	if c.OutboundProxy == "" || c.IsProduction() {
		return nil, nil
	}
	u, err := url.Parse(c.OutboundProxy)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrInvalidProxy
	}
	return u, nil
}

// Load reads configuration from environment variables using go-envconfig.
// Variables from an optional .env file (ENV_FILE, default ".env") are loaded
// first without overriding the process environment.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "EVOLINK_API_KEY") {
			return nil, ErrEvolinkAPIKeyRequired
		}
		if strings.Contains(err.Error(), "AUTH_JWT_SECRET") {
			return nil, ErrAuthSecretRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.EvolinkAPIKey == "" {
		return ErrEvolinkAPIKeyRequired
	}
	if c.AuthJWTSecret == "" {
		return ErrAuthSecretRequired
	}
	if c.PollMaxAttempts <= 0 || c.PollIntervalMs <= 0 {
		return ErrInvalidPolling
	}
	if _, err := c.ProxyURL(); err != nil {
		return err
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(slog.String("env", c.AppEnv))
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, AppEnv: %s, EvolinkBaseURL: %s, PollMaxAttempts: %d, PollIntervalMs: %d, Postgres: %t, RedisAddr: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, StorageDir: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.AppEnv,
		c.EvolinkBaseURL,
		c.PollMaxAttempts,
		c.PollIntervalMs,
		c.PostgresEnabled(),
		c.RedisAddr,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.StorageDir,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
