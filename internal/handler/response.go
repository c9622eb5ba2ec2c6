// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/service"
)

// flashAndRedirect sets a flash message and redirects with 303 See Other.
func flashAndRedirect(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, url, message, messageType string) {
	renderer.SetFlash(r, message, messageType)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// flashError sets an error flash message and redirects to the given URL.
func flashError(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, url, message string) {
	flashAndRedirect(w, r, renderer, url, message, render.FlashError)
}

// flashSuccess sets a success flash message and redirects to the given URL.
func flashSuccess(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, url, message string) {
	flashAndRedirect(w, r, renderer, url, message, render.FlashSuccess)
}

// parseFormOrRedirect parses the request form and redirects with an error
// message on failure. Returns false if a redirect was performed.
func parseFormOrRedirect(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, redirectURL string) bool {
	if err := r.ParseForm(); err != nil {
		flashError(w, r, renderer, redirectURL, "Invalid form data")
		return false
	}
	return true
}

// logAndHTTPError logs an error and writes an HTTP error response.
func logAndHTTPError(w http.ResponseWriter, message string, statusCode int, logMsg string, args ...any) {
	slog.Error(logMsg, args...)
	http.Error(w, message, statusCode)
}

// logAndInternalError logs an error and writes a 500 Internal Server Error response.
func logAndInternalError(w http.ResponseWriter, logMsg string, args ...any) {
	logAndHTTPError(w, "Internal Server Error", http.StatusInternalServerError, logMsg, args...)
}

// renderPage renders a page, answering 500 if the template fails.
func renderPage(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, name string, data render.TemplateData) {
	renderStatus(w, r, renderer, http.StatusOK, name, data)
}

// renderStatus is renderPage with an explicit status, used to redisplay
// forms with validation errors.
func renderStatus(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, status int, name string, data render.TemplateData) {
	if err := renderer.RenderStatus(w, r, status, name, data); err != nil {
		logAndInternalError(w, "failed to render template", "template", name, "error", err)
	}
}

// renderFormErrors redisplays a form with 422 and the submitted values.
func renderFormErrors(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, name string, data render.TemplateData, errs service.FieldErrors) {
	data.Errors = errs
	if data.Form == nil {
		data.Form = r.PostForm
	}
	renderStatus(w, r, renderer, http.StatusUnprocessableEntity, name, data)
}

// actor identifies the current user and client for the event log.
func actor(r *http.Request) service.Actor {
	return service.Actor{UserID: middleware.GetUserID(r), IP: middleware.ClientIP(r)}
}

// requireEntityWithRedirect fetches an entity by ID using the provided query
// function. On error it sets a flash message and redirects; the returned
// bool is false when a redirect was performed.
//
//	detail, ok := requireEntityWithRedirect(w, r, h.renderer, redirectCriminals, "Record", id, func(id int64) (service.RecordDetail, error) {
//		return h.records.Get(r.Context(), id)
//	})
func requireEntityWithRedirect[T any](
	w http.ResponseWriter,
	r *http.Request,
	renderer *render.Renderer,
	redirectURL string,
	entityName string,
	id int64,
	queryFn func(id int64) (T, error),
) (T, bool) {
	var zero T
	entity, err := queryFn(id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			flashError(w, r, renderer, redirectURL, entityName+" not found")
		} else {
			slog.Error("failed to load "+entityName, "error", err, "id", id)
			flashError(w, r, renderer, redirectURL, "Error loading "+entityName)
		}
		return zero, false
	}
	return entity, true
}

// requireIDWithRedirect parses the "id" URL parameter.
func requireIDWithRedirect(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, redirectURL string) (int64, bool) {
	id, err := ParseIDParam(r)
	if err != nil || id <= 0 {
		flashError(w, r, renderer, redirectURL, "Invalid ID")
		return 0, false
	}
	return id, true
}

// formValues builds prefilled form values from key/value pairs, skipping
// empty values.
func formValues(pairs ...string) url.Values {
	v := make(url.Values, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			v.Set(pairs[i], pairs[i+1])
		}
	}
	return v
}
