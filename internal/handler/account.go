// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/store"
)

// RecoveryTimeout limits how long an account recovery may take.
const RecoveryTimeout = 10 * time.Minute

const (
	recoverStageAnswer = "answer"
	recoverStageReset  = "reset"
)

const msgRecoveryMismatch = "No active account matches that username and email address."

// AccountHandler handles the first-login setup, password changes and
// account recovery.
type AccountHandler struct {
	users           *service.UserService
	renderer        *render.Renderer
	sessionManager  *scs.SessionManager
	eventService    *service.EventService
	loginProtection *middleware.LoginProtection
	now             func() time.Time
}

// NewAccountHandler creates a new AccountHandler. lp may be nil.
func NewAccountHandler(users *service.UserService, renderer *render.Renderer, sm *scs.SessionManager, events *service.EventService, lp *middleware.LoginProtection) *AccountHandler {
	return &AccountHandler{
		users:           users,
		renderer:        renderer,
		sessionManager:  sm,
		eventService:    events,
		loginProtection: lp,
		now:             time.Now,
	}
}

// PasswordForm handles GET /account/password.
func (h *AccountHandler) PasswordForm(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, "account/password", render.TemplateData{Title: "Password"})
}

// SetPassword handles POST /account/password. A first-login user continues
// with the security question.
func (h *AccountHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteAccountPassword) {
		return
	}
	user := middleware.GetUser(r)

	err := h.users.SetPassword(r.Context(), *user, r.PostFormValue("password"), r.PostFormValue("password_confirm"))
	var fe service.FieldErrors
	if errors.As(err, &fe) {
		renderFormErrors(w, r, h.renderer, "account/password", render.TemplateData{Title: "Password", Form: url.Values{}}, fe)
		return
	}
	if err != nil {
		logAndInternalError(w, "failed to set password", "error", err, "user_id", user.ID)
		return
	}

	// The session keeps working with the new password; renew it anyway.
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		slog.Error("session renewal error", "error", err)
	}

	updated := *user
	updated.FirstLogin = false
	if step := middleware.SetupStep(updated); step != "" {
		flashAndRedirect(w, r, h.renderer, step, "Password saved. Now choose a security question.", render.FlashSuccess)
		return
	}
	flashSuccess(w, r, h.renderer, redirectHome, "Password saved.")
}

// QuestionForm handles GET /account/security-question.
func (h *AccountHandler) QuestionForm(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	renderPage(w, r, h.renderer, "account/security_question", render.TemplateData{
		Title: "Security question",
		Form:  formValues("security_question", user.SecurityQuestion),
	})
}

// SetQuestion handles POST /account/security-question.
func (h *AccountHandler) SetQuestion(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, redirectAccountQuestion) {
		return
	}
	user := middleware.GetUser(r)

	err := h.users.SetSecurityQuestion(r.Context(), *user, r.PostFormValue("security_question"), r.PostFormValue("security_answer"))
	var fe service.FieldErrors
	if errors.As(err, &fe) {
		renderFormErrors(w, r, h.renderer, "account/security_question", render.TemplateData{
			Title: "Security question",
			Form:  formValues("security_question", r.PostFormValue("security_question")),
		}, fe)
		return
	}
	if err != nil {
		logAndInternalError(w, "failed to set security question", "error", err, "user_id", user.ID)
		return
	}
	flashSuccess(w, r, h.renderer, redirectHome, "Security question saved.")
}

// RecoverForm handles GET /recover.
func (h *AccountHandler) RecoverForm(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, "auth/recover", render.TemplateData{Title: "Recover account"})
}

// Recover handles POST /recover, the username and email step.
func (h *AccountHandler) Recover(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, redirectRecover) {
		return
	}
	username := r.PostFormValue("username")
	data := render.TemplateData{
		Title: "Recover account",
		Form:  formValues("username", username, "email", r.PostFormValue("email")),
	}

	user, err := h.users.StartRecovery(r.Context(), username, r.PostFormValue("email"))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrRecoveryMismatch):
		h.logAuth(r, model.EventLevelWarning, "Account recovery failed: no matching account", nil, map[string]any{"username": username})
		renderFormErrors(w, r, h.renderer, "auth/recover", data, service.FieldErrors{"form": msgRecoveryMismatch})
		return
	case errors.Is(err, service.ErrNoSecurityQuestion):
		renderFormErrors(w, r, h.renderer, "auth/recover", data, service.FieldErrors{
			"form": "This account has no security question. Contact an administrator.",
		})
		return
	default:
		logAndInternalError(w, "account recovery failed", "error", err)
		return
	}

	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}
	h.sessionManager.Put(r.Context(), sessionKeyRecoverUserID, user.ID)
	h.sessionManager.Put(r.Context(), sessionKeyRecoverStage, recoverStageAnswer)
	h.sessionManager.Put(r.Context(), sessionKeyRecoverUntil, h.now().Add(RecoveryTimeout).Unix())
	http.Redirect(w, r, redirectRecoverAnswer, http.StatusSeeOther)
}

// AnswerForm handles GET /recover/answer.
func (h *AccountHandler) AnswerForm(w http.ResponseWriter, r *http.Request) {
	user, ok := h.recoveryUser(w, r, recoverStageAnswer)
	if !ok {
		return
	}
	renderPage(w, r, h.renderer, "auth/recover_answer", render.TemplateData{
		Title: "Security question",
		Data:  user.SecurityQuestion,
	})
}

// Answer handles POST /recover/answer. Wrong answers count as failed logins
// of the account.
func (h *AccountHandler) Answer(w http.ResponseWriter, r *http.Request) {
	user, ok := h.recoveryUser(w, r, recoverStageAnswer)
	if !ok {
		return
	}
	if !parseFormOrRedirect(w, r, h.renderer, redirectRecoverAnswer) {
		return
	}

	if h.loginProtection != nil {
		if locked, remaining := h.loginProtection.IsAccountLocked(user.Username); locked {
			h.clearRecovery(r)
			flashError(w, r, h.renderer, redirectLogin, "Too many failed attempts. Try again in "+formatDuration(remaining)+".")
			return
		}
	}

	if !h.users.CheckRecoveryAnswer(user, r.PostFormValue("security_answer")) {
		h.logAuth(r, model.EventLevelWarning, "Account recovery failed: wrong answer", &user.ID, nil)
		if h.loginProtection != nil {
			h.loginProtection.RecordFailedAttempt(user.Username)
		}
		renderFormErrors(w, r, h.renderer, "auth/recover_answer", render.TemplateData{
			Title: "Security question",
			Data:  user.SecurityQuestion,
		}, service.FieldErrors{"security_answer": "That answer is not correct."})
		return
	}

	h.sessionManager.Put(r.Context(), sessionKeyRecoverStage, recoverStageReset)
	http.Redirect(w, r, RouteRecoverReset, http.StatusSeeOther)
}

// ResetForm handles GET /recover/reset.
func (h *AccountHandler) ResetForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.recoveryUser(w, r, recoverStageReset); !ok {
		return
	}
	renderPage(w, r, h.renderer, "auth/recover_reset", render.TemplateData{Title: "New password"})
}

// Reset handles POST /recover/reset.
func (h *AccountHandler) Reset(w http.ResponseWriter, r *http.Request) {
	user, ok := h.recoveryUser(w, r, recoverStageReset)
	if !ok {
		return
	}
	if !parseFormOrRedirect(w, r, h.renderer, RouteRecoverReset) {
		return
	}

	err := h.users.SetPassword(r.Context(), user, r.PostFormValue("password"), r.PostFormValue("password_confirm"))
	var fe service.FieldErrors
	if errors.As(err, &fe) {
		renderFormErrors(w, r, h.renderer, "auth/recover_reset", render.TemplateData{Title: "New password", Form: url.Values{}}, fe)
		return
	}
	if err != nil {
		logAndInternalError(w, "failed to reset password", "error", err, "user_id", user.ID)
		return
	}

	h.clearRecovery(r)
	if h.loginProtection != nil {
		h.loginProtection.RecordSuccessfulLogin(user.Username)
	}
	h.logAuth(r, model.EventLevelInfo, "Password reset through account recovery", &user.ID, nil)
	flashSuccess(w, r, h.renderer, redirectLogin, "Your password has been reset. Log in with the new password.")
}

// recoveryUser loads the account of a recovery in progress at stage.
// Expired or missing recoveries redirect to the first step.
func (h *AccountHandler) recoveryUser(w http.ResponseWriter, r *http.Request, stage string) (store.User, bool) {
	ctx := r.Context()
	id := h.sessionManager.GetInt64(ctx, sessionKeyRecoverUserID)
	until := h.sessionManager.GetInt64(ctx, sessionKeyRecoverUntil)

	if id == 0 || h.sessionManager.GetString(ctx, sessionKeyRecoverStage) != stage {
		http.Redirect(w, r, redirectRecover, http.StatusSeeOther)
		return store.User{}, false
	}
	if h.now().Unix() > until {
		h.clearRecovery(r)
		flashError(w, r, h.renderer, redirectRecover, "Your recovery session has expired. Start again.")
		return store.User{}, false
	}

	user, err := h.users.Get(ctx, id)
	if err != nil || !user.IsActive {
		if err != nil && !errors.Is(err, service.ErrNotFound) {
			slog.Error("failed to load recovering user", "error", err, "user_id", id)
		}
		h.clearRecovery(r)
		flashError(w, r, h.renderer, redirectRecover, msgRecoveryMismatch)
		return store.User{}, false
	}
	return user, true
}

func (h *AccountHandler) clearRecovery(r *http.Request) {
	for _, key := range []string{sessionKeyRecoverUserID, sessionKeyRecoverStage, sessionKeyRecoverUntil} {
		h.sessionManager.Remove(r.Context(), key)
	}
}

func (h *AccountHandler) logAuth(r *http.Request, level, msg string, userID *int64, meta map[string]any) {
	if h.eventService != nil {
		_ = h.eventService.LogAuthEvent(r.Context(), level, msg, userID, middleware.ClientIP(r), meta)
	}
}
