// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/util"
)

// UsersHandler handles user management routes.
type UsersHandler struct {
	users    *service.UserService
	renderer *render.Renderer
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(users *service.UserService, renderer *render.Renderer) *UsersHandler {
	return &UsersHandler{
		users:    users,
		renderer: renderer,
	}
}

// List handles GET /admin/users - displays a paginated list of users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	page := ParsePageParam(r)
	users, total, err := h.users.List(r.Context(), UsersPerPage, int64((page-1)*UsersPerPage))
	if err != nil {
		logAndInternalError(w, "failed to list users", "error", err)
		return
	}
	renderPage(w, r, h.renderer, "admin/users", render.TemplateData{
		Title: "Users",
		Data: map[string]any{
			"Users":      users,
			"Pagination": BuildPagination(page, int(total), UsersPerPage, redirectAdminUsers, nil),
		},
	})
}

// NewForm handles GET /admin/users/new.
func (h *UsersHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, "admin/user_new", render.TemplateData{Title: "New user"})
}

// Create handles POST /admin/users/new. Only superusers may create staff
// accounts. The generated password is shown once.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, redirectAdminUsersNew) {
		return
	}
	current := middleware.GetUser(r)
	data := render.TemplateData{Title: "New user"}

	expires, err := util.ParseNullDate(r.PostFormValue("expiration_date"))
	if err != nil {
		renderFormErrors(w, r, h.renderer, "admin/user_new", data, service.FieldErrors{"expiration_date": "Enter a date as YYYY-MM-DD."})
		return
	}

	user, password, err := h.users.Create(r.Context(), service.NewUser{
		FirstName:      r.PostFormValue("first_name"),
		LastName:       r.PostFormValue("last_name"),
		Email:          r.PostFormValue("email"),
		Username:       r.PostFormValue("username"),
		Staff:          current.IsSuperuser && r.PostFormValue("is_staff") != "",
		ExpirationDate: expires,
	}, actor(r))
	var fe service.FieldErrors
	if errors.As(err, &fe) {
		renderFormErrors(w, r, h.renderer, "admin/user_new", data, fe)
		return
	}
	if err != nil {
		logAndInternalError(w, "failed to create user", "error", err)
		return
	}

	slog.Info("user created", "user_id", user.ID, "username", user.Username, "created_by", current.ID)
	w.Header().Set("Cache-Control", "no-store")
	renderPage(w, r, h.renderer, "admin/user_created", render.TemplateData{
		Title: "User created",
		Data: map[string]any{
			"FullName": user.FullName(),
			"Username": user.Username,
			"Password": password,
		},
	})
}

// EditForm handles GET /admin/users/{id}.
func (h *UsersHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIDWithRedirect(w, r, h.renderer, redirectAdminUsers)
	if !ok {
		return
	}
	user, ok := requireEntityWithRedirect(w, r, h.renderer, redirectAdminUsers, "User", id, func(id int64) (store.User, error) {
		return h.users.Get(r.Context(), id)
	})
	if !ok {
		return
	}
	renderPage(w, r, h.renderer, "admin/user_edit", render.TemplateData{
		Title: "Edit " + user.Username,
		Data:  user,
		Form:  userForm(user),
	})
}

func userForm(u store.User) url.Values {
	form := formValues(
		"first_name", u.FirstName,
		"last_name", u.LastName,
		"email", u.Email,
		"expiration_date", util.FormatNullDate(u.ExpirationDate),
	)
	if u.IsActive {
		form.Set("is_active", "1")
	}
	if u.IsStaff {
		form.Set("is_staff", "1")
	}
	return form
}

// Update handles POST /admin/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIDWithRedirect(w, r, h.renderer, redirectAdminUsers)
	if !ok {
		return
	}
	redirect := fmt.Sprintf(redirectAdminUsersID, id)
	if !parseFormOrRedirect(w, r, h.renderer, redirect) {
		return
	}
	user, ok := requireEntityWithRedirect(w, r, h.renderer, redirectAdminUsers, "User", id, func(id int64) (store.User, error) {
		return h.users.Get(r.Context(), id)
	})
	if !ok {
		return
	}
	data := render.TemplateData{Title: "Edit " + user.Username, Data: user}

	expires, err := util.ParseNullDate(r.PostFormValue("expiration_date"))
	if err != nil {
		renderFormErrors(w, r, h.renderer, "admin/user_edit", data, service.FieldErrors{"expiration_date": "Enter a date as YYYY-MM-DD."})
		return
	}

	active := r.PostFormValue("is_active") != ""
	if id == middleware.GetUserID(r) && !active {
		renderFormErrors(w, r, h.renderer, "admin/user_edit", data, service.FieldErrors{"is_active": "You cannot deactivate your own account."})
		return
	}

	err = h.users.Update(r.Context(), id, service.UserUpdate{
		FirstName:      r.PostFormValue("first_name"),
		LastName:       r.PostFormValue("last_name"),
		Email:          r.PostFormValue("email"),
		Active:         active,
		Staff:          r.PostFormValue("is_staff") != "",
		ExpirationDate: expires,
	}, actor(r))
	var fe service.FieldErrors
	switch {
	case err == nil:
		flashSuccess(w, r, h.renderer, redirectAdminUsers, "User "+user.Username+" updated.")
	case errors.As(err, &fe):
		renderFormErrors(w, r, h.renderer, "admin/user_edit", data, fe)
	case errors.Is(err, service.ErrNotFound):
		flashError(w, r, h.renderer, redirectAdminUsers, "User not found")
	default:
		logAndInternalError(w, "failed to update user", "error", err, "id", id)
	}
}

// Delete handles POST /admin/users/{id}/delete. Users cannot delete
// themselves.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIDWithRedirect(w, r, h.renderer, redirectAdminUsers)
	if !ok {
		return
	}
	if id == middleware.GetUserID(r) {
		flashError(w, r, h.renderer, redirectAdminUsers, "You cannot delete your own account.")
		return
	}

	err := h.users.Delete(r.Context(), id, actor(r))
	switch {
	case err == nil:
		flashSuccess(w, r, h.renderer, redirectAdminUsers, "User deleted.")
	case errors.Is(err, service.ErrNotFound):
		flashError(w, r, h.renderer, redirectAdminUsers, "User not found")
	default:
		slog.Error("failed to delete user", "error", err, "id", id)
		flashError(w, r, h.renderer, redirectAdminUsers, "Error deleting user")
	}
}
