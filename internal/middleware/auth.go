// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for authentication,
// authorization, and request context handling.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/criminology-go/internal/logging"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/store"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// ContextKeyUser holds the logged-in store.User.
const ContextKeyUser ContextKey = "user"

// SessionKeyUserID is the session key of the logged-in account.
const SessionKeyUserID = "user_id"

// Paths the first-login flow sends users to.
const (
	PasswordSetupPath = "/account/password"
	QuestionSetupPath = "/account/security-question"
)

// Auth creates middleware that requires authentication.
// It checks for a valid user session and redirects to login if not authenticated.
func Auth(sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sm.GetInt64(r.Context(), SessionKeyUserID) == 0 {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoadUser loads the session's account into the request context. Accounts
// that were deleted, deactivated or have expired since login lose their
// session.
func LoadUser(sm *scs.SessionManager, db *store.DB) func(http.Handler) http.Handler {
	queries := store.New(db)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sm.GetInt64(r.Context(), SessionKeyUserID)
			if userID == 0 {
				next.ServeHTTP(w, r)
				return
			}

			user, err := queries.GetUserByID(r.Context(), userID)
			if err != nil || !user.IsActive || service.IsExpired(user, time.Now()) {
				if err != nil {
					slog.Debug("session user not loaded", "user_id", userID, "error", err)
				}
				_ = sm.Destroy(r.Context())
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			info, _ := logging.RequestInfoFrom(ctx)
			info.UserID = user.ID
			ctx = logging.WithRequestInfo(ctx, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser retrieves the current user from the request context.
// Returns nil if no user is in context.
func GetUser(r *http.Request) *store.User {
	user, ok := r.Context().Value(ContextKeyUser).(store.User)
	if !ok {
		return nil
	}
	return &user
}

// GetUserID returns the current user's ID from context, or 0 if not found.
func GetUserID(r *http.Request) int64 {
	if user := GetUser(r); user != nil {
		return user.ID
	}
	return 0
}

// GetUserIDPtr returns a pointer to the current user's ID, or nil.
// Useful for optional user ID parameters in event logging.
func GetUserIDPtr(r *http.Request) *int64 {
	if user := GetUser(r); user != nil {
		id := user.ID
		return &id
	}
	return nil
}

// GetRole returns the current user's role. Anonymous requests get RoleUser;
// routes that need more sit behind Auth anyway.
func GetRole(r *http.Request) model.Role {
	if user := GetUser(r); user != nil {
		return model.RoleFor(user.IsStaff, user.IsSuperuser)
	}
	return model.RoleUser
}

// RequireRole creates middleware that requires a minimum role.
// If events is set, denials are written to the event log.
func RequireRole(min model.Role, events *service.EventService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			role := model.RoleFor(user.IsStaff, user.IsSuperuser)
			if !role.AtLeast(min) {
				slog.Info("access denied",
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", user.ID,
					"user_role", role.String(),
					"required_role", min.String(),
				)
				if events != nil {
					_ = events.LogAuthEvent(r.Context(), model.EventLevelWarning,
						"Access denied: insufficient permissions", &user.ID, ClientIP(r),
						map[string]any{
							"method":        r.Method,
							"path":          r.URL.Path,
							"user_role":     role.String(),
							"required_role": min.String(),
						})
				}
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff is RequireRole(model.RoleStaff, events).
func RequireStaff(events *service.EventService) func(http.Handler) http.Handler {
	return RequireRole(model.RoleStaff, events)
}

// RequireSuperuser is RequireRole(model.RoleSuperuser, events).
func RequireSuperuser(events *service.EventService) func(http.Handler) http.Handler {
	return RequireRole(model.RoleSuperuser, events)
}

// RequireSetupComplete keeps accounts in the first-login flow until they have
// replaced their temporary password and chosen a security question.
// Superusers skip the flow.
func RequireSetupComplete(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r)
		if user == nil || user.IsSuperuser {
			next.ServeHTTP(w, r)
			return
		}

		target := SetupStep(*user)
		if target != "" && r.URL.Path != target && r.URL.Path != "/logout" {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetupStep returns the first-login page u still has to complete, or "".
func SetupStep(u store.User) string {
	switch {
	case u.IsSuperuser:
		return ""
	case u.FirstLogin:
		return PasswordSetupPath
	case u.SecurityQuestion == "":
		return QuestionSetupPath
	}
	return ""
}
