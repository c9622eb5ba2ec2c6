// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
)

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
	"django-insecure-change-me-please-now",
}

// Cleanup modes for expired accounts.
const (
	CleanupDeactivate = "deactivate"
	CleanupDelete     = "delete"
)

// Config holds the application configuration loaded from environment variables.
// It is built once by Load and not modified afterwards.
type Config struct {
	SecretKey          string   `env:"CRIM_SECRET_KEY,required"`
	AllowedHosts       []string `env:"CRIM_ALLOWED_HOSTS" envSeparator:","`
	CSRFTrustedOrigins []string `env:"CRIM_CSRF_TRUSTED_ORIGINS" envSeparator:","`
	ServerHost         string   `env:"CRIM_SERVER_HOST" envDefault:"localhost"`
	ServerPort         int      `env:"CRIM_SERVER_PORT" envDefault:"8080"`
	Env                string   `env:"CRIM_ENV" envDefault:"development"`
	LogLevel           string   `env:"CRIM_LOG_LEVEL" envDefault:"info"`

	// Database
	DBDriver    string `env:"CRIM_DB_DRIVER" envDefault:"sqlite"`             // sqlite or postgres
	DBPath      string `env:"CRIM_DB_PATH" envDefault:"./data/criminology.db"` // used by sqlite
	DatabaseURL string `env:"CRIM_DATABASE_URL"`                               // used by postgres

	// Cache
	RedisURL    string `env:"CRIM_REDIS_URL"`
	CachePrefix string `env:"CRIM_CACHE_PREFIX" envDefault:"crim:"`
	CacheTTL    int    `env:"CRIM_CACHE_TTL" envDefault:"300"` // seconds

	// Records
	PageSize       int   `env:"CRIM_PAGE_SIZE" envDefault:"10"`
	MaxUploadBytes int64 `env:"CRIM_MAX_UPLOAD_BYTES" envDefault:"2097152"`

	// Scheduled jobs
	CleanupSchedule    string `env:"CRIM_CLEANUP_SCHEDULE" envDefault:"0 0 1 * *"`
	CleanupMode        string `env:"CRIM_CLEANUP_MODE" envDefault:"deactivate"`
	EventRetentionDays int    `env:"CRIM_EVENT_RETENTION_DAYS" envDefault:"90"`

	// Initial superuser, created on start when the password is set.
	SuperuserUsername string `env:"CRIM_SUPERUSER_USERNAME" envDefault:"admin"`
	SuperuserEmail    string `env:"CRIM_SUPERUSER_EMAIL"`
	SuperuserPassword string `env:"CRIM_SUPERUSER_PASSWORD"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// DSN returns the connection string for the configured driver.
func (c Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

// CacheTTLDuration returns CacheTTL as a duration.
func (c Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// MinSecretKeyLength is the minimum required length for the secret key.
// AES-256 requires 32 bytes minimum for secure encryption.
const MinSecretKeyLength = 32

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Warn about low-entropy secrets
	if !hasMinimumEntropy(cfg.SecretKey) {
		slog.Warn("CRIM_SECRET_KEY has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.SecretKey) < MinSecretKeyLength {
		return fmt.Errorf("CRIM_SECRET_KEY must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSecretKeyLength, len(c.SecretKey))
	}
	if slices.Contains(knownWeakSecrets, c.SecretKey) {
		return fmt.Errorf("CRIM_SECRET_KEY is a known default value and must not be used; " +
			"generate a secure secret with: openssl rand -base64 32")
	}

	c.DBDriver = strings.ToLower(c.DBDriver)
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("CRIM_DATABASE_URL is required when CRIM_DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("CRIM_DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}

	if c.PageSize < 1 {
		return fmt.Errorf("CRIM_PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("CRIM_MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}

	if c.CleanupMode != CleanupDeactivate && c.CleanupMode != CleanupDelete {
		return fmt.Errorf("CRIM_CLEANUP_MODE must be %q or %q, got %q", CleanupDeactivate, CleanupDelete, c.CleanupMode)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.CleanupSchedule); err != nil {
		return fmt.Errorf("CRIM_CLEANUP_SCHEDULE is not a valid cron expression: %w", err)
	}

	c.AllowedHosts = trimAll(c.AllowedHosts)
	c.CSRFTrustedOrigins = trimAll(c.CSRFTrustedOrigins)
	return nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
