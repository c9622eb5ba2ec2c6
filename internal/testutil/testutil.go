// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/olegiv/criminology-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

// TestLogger creates a test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestLoggerSilent creates a test logger that only outputs errors.
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// TestDB creates a temporary SQLite database with all migrations applied.
// Returns the database and a cleanup function that should be deferred.
func TestDB(t *testing.T) (*store.DB, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "criminology-test.db")
	sqlDB, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	db := store.Wrap(sqlDB, store.DialectSQLite)
	if err := store.Migrate(db); err != nil {
		_ = sqlDB.Close()
		t.Fatalf("Migrate: %v", err)
	}

	return db, func() {
		_ = sqlDB.Close()
	}
}

// UserOptions customizes CreateUser.
type UserOptions struct {
	PasswordHash   string
	Staff          bool
	Superuser      bool
	FirstLogin     bool
	ExpirationDate time.Time
}

// CreateUser inserts a user with the given username and fails the test on error.
func CreateUser(t *testing.T, db *store.DB, username string, opts UserOptions) store.User {
	t.Helper()

	hash := opts.PasswordHash
	if hash == "" {
		hash = "unused-hash"
	}
	var exp sql.NullTime
	if !opts.ExpirationDate.IsZero() {
		exp = sql.NullTime{Time: opts.ExpirationDate, Valid: true}
	}

	u, err := store.New(db).CreateUser(context.Background(), store.CreateUserParams{
		Username:       username,
		Email:          username + "@example.org",
		PasswordHash:   hash,
		FirstName:      "Test",
		LastName:       "User",
		IsStaff:        opts.Staff || opts.Superuser,
		IsSuperuser:    opts.Superuser,
		FirstLogin:     opts.FirstLogin,
		ExpirationDate: exp,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("creating user %q: %v", username, err)
	}
	return u
}
