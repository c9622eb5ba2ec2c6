// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/mileusna/useragent"

	"github.com/olegiv/criminology-go/internal/metrics"
	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/service"
)

const msgInvalidCredentials = "Invalid username or password."

// AuthHandler handles login and logout.
type AuthHandler struct {
	users           *service.UserService
	renderer        *render.Renderer
	sessionManager  *scs.SessionManager
	eventService    *service.EventService
	loginProtection *middleware.LoginProtection
	metrics         *metrics.Metrics
}

// NewAuthHandler creates a new AuthHandler. lp and m may be nil.
func NewAuthHandler(users *service.UserService, renderer *render.Renderer, sm *scs.SessionManager, events *service.EventService, lp *middleware.LoginProtection, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		users:           users,
		renderer:        renderer,
		sessionManager:  sm,
		eventService:    events,
		loginProtection: lp,
		metrics:         m,
	}
}

// LoginForm renders the login page. Logged-in users go to their dashboard.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.sessionManager.GetInt64(r.Context(), middleware.SessionKeyUserID) > 0 {
		http.Redirect(w, r, redirectHome, http.StatusSeeOther)
		return
	}
	renderPage(w, r, h.renderer, "auth/login", render.TemplateData{Title: "Log in"})
}

// Login handles the login form submission.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, redirectLogin) {
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		flashError(w, r, h.renderer, redirectLogin, "Username and password are required.")
		return
	}

	clientIP := middleware.ClientIP(r)
	meta := clientMetadata(r, username)

	if h.loginProtection != nil {
		if locked, remaining := h.loginProtection.IsAccountLocked(username); locked {
			h.logAuth(r, model.EventLevelWarning, "Login attempt on locked account", nil, meta)
			h.countLogin("locked")
			flashError(w, r, h.renderer, redirectLogin,
				fmt.Sprintf("Too many failed attempts. Try again in %s.", formatDuration(remaining)))
			return
		}
	}

	user, err := h.users.Authenticate(r.Context(), username, password)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrAccountInactive):
		slog.Debug("login failed", "username", username, "reason", err)
		h.logAuth(r, model.EventLevelWarning, "Login failed", nil, meta)
		h.countLogin("failure")
		h.failedAttempt(w, r, username, meta)
		return
	case errors.Is(err, service.ErrAccountExpired):
		h.logAuth(r, model.EventLevelWarning, "Login refused: account expired", nil, meta)
		h.countLogin("expired")
		flashError(w, r, h.renderer, redirectLogin, "Your account has expired. Contact an administrator.")
		return
	default:
		logAndInternalError(w, "login failed", "error", err, "username", username)
		return
	}

	if h.loginProtection != nil {
		h.loginProtection.RecordSuccessfulLogin(username)
	}

	// New token on privilege change prevents session fixation.
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), middleware.SessionKeyUserID, user.ID)

	slog.Info("user logged in", "user_id", user.ID, "ip", clientIP)
	h.logAuth(r, model.EventLevelInfo, "User logged in", &user.ID, meta)
	h.countLogin("success")

	if step := middleware.SetupStep(user); step != "" {
		http.Redirect(w, r, step, http.StatusSeeOther)
		return
	}
	flashAndRedirect(w, r, h.renderer, redirectHome, "Welcome back, "+user.FullName()+".", render.FlashSuccess)
}

func (h *AuthHandler) failedAttempt(w http.ResponseWriter, r *http.Request, username string, meta map[string]any) {
	if h.loginProtection != nil {
		if locked, lockDuration := h.loginProtection.RecordFailedAttempt(username); locked {
			meta["duration"] = lockDuration.String()
			h.logAuth(r, model.EventLevelWarning, "Account locked after failed attempts", nil, meta)
			flashError(w, r, h.renderer, redirectLogin,
				fmt.Sprintf("Too many failed attempts. Try again in %s.", formatDuration(lockDuration)))
			return
		}
		if remaining := h.loginProtection.RemainingAttempts(username); remaining > 0 && remaining <= 3 {
			flashError(w, r, h.renderer, redirectLogin,
				fmt.Sprintf("%s %d attempts remaining.", msgInvalidCredentials, remaining))
			return
		}
	}
	flashError(w, r, h.renderer, redirectLogin, msgInvalidCredentials)
}

// Logout ends the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := h.sessionManager.GetInt64(r.Context(), middleware.SessionKeyUserID)
	if userID > 0 {
		h.logAuth(r, model.EventLevelInfo, "User logged out", &userID, nil)
	}

	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		slog.Error("session destroy error", "error", err)
	}

	slog.Info("user logged out", "user_id", userID)
	flashAndRedirect(w, r, h.renderer, redirectLogin, "You have been logged out.", render.FlashInfo)
}

func (h *AuthHandler) logAuth(r *http.Request, level, msg string, userID *int64, meta map[string]any) {
	if h.eventService != nil {
		_ = h.eventService.LogAuthEvent(r.Context(), level, msg, userID, middleware.ClientIP(r), meta)
	}
}

func (h *AuthHandler) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.Login(outcome)
	}
}

// clientMetadata describes the login client for the event log.
func clientMetadata(r *http.Request, username string) map[string]any {
	meta := map[string]any{"username": username}
	ua := useragent.Parse(r.UserAgent())
	if ua.Name != "" {
		meta["browser"] = strings.TrimSpace(ua.Name + " " + ua.Version)
	}
	if ua.OS != "" {
		meta["os"] = ua.OS
	}
	switch {
	case ua.Bot:
		meta["device"] = "bot"
	case ua.Mobile:
		meta["device"] = "mobile"
	case ua.Tablet:
		meta["device"] = "tablet"
	default:
		meta["device"] = "desktop"
	}
	return meta
}

// formatDuration formats a lockout duration for users.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
