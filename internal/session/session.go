// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session configures the scs session manager on the application
// database.
package session

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/postgresstore"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/criminology-go/internal/store"
)

// Lifetime and idle timeout of a login session.
const (
	Lifetime    = 12 * time.Hour
	IdleTimeout = 2 * time.Hour
)

// New creates a session manager storing sessions in the sessions table of db.
func New(db *store.DB, isDev bool) *scs.SessionManager {
	sm := scs.New()

	switch db.Dialect {
	case store.DialectPostgres:
		sm.Store = postgresstore.New(db.DB)
	default:
		sm.Store = sqlite3store.New(db.DB)
	}

	sm.Lifetime = Lifetime
	sm.IdleTimeout = IdleTimeout
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"
	sm.Cookie.Secure = !isDev

	// __Host- requires Secure and Path=/ and no Domain.
	if !isDev {
		sm.Cookie.Name = "__Host-session"
	}

	return sm
}
