// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/criminology-go/internal/auth"
)

// SeedUser describes the initial superuser.
type SeedUser struct {
	Username string
	Email    string
	Password string
}

// Seed creates the initial superuser unless an account with that username
// already exists. It does nothing when no password is configured.
func Seed(ctx context.Context, db *DB, su SeedUser) error {
	if su.Username == "" || su.Password == "" {
		slog.Info("no seed superuser configured, skipping seed")
		return nil
	}

	queries := New(db)

	_, err := queries.GetUserByUsername(ctx, su.Username)
	if err == nil {
		slog.Info("superuser already exists, skipping seed", "username", su.Username)
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking for superuser: %w", err)
	}

	passwordHash, err := auth.HashPassword(su.Password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user, err := queries.CreateUser(ctx, CreateUserParams{
		Username:     su.Username,
		Email:        su.Email,
		PasswordHash: passwordHash,
		IsStaff:      true,
		IsSuperuser:  true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("creating superuser: %w", err)
	}

	slog.Info("created superuser", "id", user.ID, "username", user.Username)
	return nil
}
