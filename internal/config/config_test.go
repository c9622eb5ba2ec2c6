// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-Secret-key-32-bytes-long!!!"

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set %s: %v", key, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	setEnv(t, "CRIM_SECRET_KEY", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DBDriver != "sqlite" {
		t.Errorf("DBDriver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.DSN() != "./data/criminology.db" {
		t.Errorf("DSN() = %q, want %q", cfg.DSN(), "./data/criminology.db")
	}
	if cfg.ServerAddr() != "localhost:8080" {
		t.Errorf("ServerAddr() = %q", cfg.ServerAddr())
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
	if cfg.PageSize != 10 {
		t.Errorf("PageSize = %d, want 10", cfg.PageSize)
	}
	if cfg.MaxUploadBytes != 2<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 2<<20)
	}
	if cfg.CleanupSchedule != "0 0 1 * *" {
		t.Errorf("CleanupSchedule = %q", cfg.CleanupSchedule)
	}
	if cfg.CleanupMode != CleanupDeactivate {
		t.Errorf("CleanupMode = %q, want %q", cfg.CleanupMode, CleanupDeactivate)
	}
	if cfg.UseRedisCache() {
		t.Error("UseRedisCache() = true without CRIM_REDIS_URL")
	}
	if cfg.CacheTTLDuration() != 5*time.Minute {
		t.Errorf("CacheTTLDuration() = %v", cfg.CacheTTLDuration())
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Clearenv()
	setEnv(t, "CRIM_SECRET_KEY", testSecret)
	setEnv(t, "CRIM_ALLOWED_HOSTS", "records.example.org, localhost ,")
	setEnv(t, "CRIM_CSRF_TRUSTED_ORIGINS", "https://records.example.org")
	setEnv(t, "CRIM_DB_DRIVER", "Postgres")
	setEnv(t, "CRIM_DATABASE_URL", "postgres://crim:crim@db:5432/crim")
	setEnv(t, "CRIM_ENV", "production")
	setEnv(t, "CRIM_PAGE_SIZE", "25")
	setEnv(t, "CRIM_CLEANUP_MODE", "delete")
	setEnv(t, "CRIM_CLEANUP_SCHEDULE", "@daily")
	setEnv(t, "CRIM_REDIS_URL", "redis://cache:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := strings.Join(cfg.AllowedHosts, "|"); got != "records.example.org|localhost" {
		t.Errorf("AllowedHosts = %q", got)
	}
	if len(cfg.CSRFTrustedOrigins) != 1 {
		t.Errorf("CSRFTrustedOrigins = %v", cfg.CSRFTrustedOrigins)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("DBDriver = %q, want postgres", cfg.DBDriver)
	}
	if cfg.DSN() != "postgres://crim:crim@db:5432/crim" {
		t.Errorf("DSN() = %q", cfg.DSN())
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true in production")
	}
	if cfg.PageSize != 25 {
		t.Errorf("PageSize = %d", cfg.PageSize)
	}
	if cfg.CleanupMode != CleanupDelete {
		t.Errorf("CleanupMode = %q", cfg.CleanupMode)
	}
	if !cfg.UseRedisCache() {
		t.Error("UseRedisCache() = false")
	}
}

func TestLoad_RequiredSecretKey(t *testing.T) {
	os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without CRIM_SECRET_KEY")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"short secret", map[string]string{"CRIM_SECRET_KEY": "too-short"}, "at least 32 bytes"},
		{"weak secret", map[string]string{"CRIM_SECRET_KEY": "change-me-to-32-byte-secret-key!"}, "known default"},
		{"bad driver", map[string]string{"CRIM_DB_DRIVER": "mysql"}, "sqlite or postgres"},
		{"postgres without url", map[string]string{"CRIM_DB_DRIVER": "postgres"}, "CRIM_DATABASE_URL"},
		{"bad page size", map[string]string{"CRIM_PAGE_SIZE": "0"}, "CRIM_PAGE_SIZE"},
		{"bad cleanup mode", map[string]string{"CRIM_CLEANUP_MODE": "archive"}, "CRIM_CLEANUP_MODE"},
		{"bad schedule", map[string]string{"CRIM_CLEANUP_SCHEDULE": "every month"}, "cron"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			setEnv(t, "CRIM_SECRET_KEY", testSecret)
			for k, v := range tt.env {
				setEnv(t, k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestHasMinimumEntropy(t *testing.T) {
	if hasMinimumEntropy("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa") {
		t.Error("single character class should be low entropy")
	}
	if !hasMinimumEntropy(testSecret) {
		t.Error("mixed secret should pass")
	}
}
