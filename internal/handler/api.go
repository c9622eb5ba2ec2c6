// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/olegiv/criminology-go/internal/offense"
	"github.com/olegiv/criminology-go/internal/service"
)

// APIHandler serves the JSON endpoints used by the record pages.
type APIHandler struct {
	finder   service.SearchService
	resolver offense.ClassResolver
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(finder service.SearchService, resolver offense.ClassResolver) *APIHandler {
	return &APIHandler{finder: finder, resolver: resolver}
}

// Criminals handles GET /api/criminals?label=&offset=[&class=], the
// "load more" of a listing section.
func (h *APIHandler) Criminals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset := 0
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "offset must be a number")
			return
		}
		offset = n
	}

	page, err := h.finder.ClassPage(r.Context(), q.Get("label"), q.Get("class"), offset)
	switch {
	case err == nil:
		writeJSONSuccess(w, map[string]any{"page": page})
	case errors.Is(err, offense.ErrUnknownLabel),
		errors.Is(err, offense.ErrInvalidClass),
		errors.Is(err, service.ErrInvalidOffset):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("failed to load records page", "error", err, "label", q.Get("label"))
		writeJSONError(w, http.StatusInternalServerError, "failed to load records")
	}
}

// OffenseClasses handles GET /api/offense-classes?source=&type=, the class
// select of the offense form.
func (h *APIHandler) OffenseClasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, err := offense.ParseSource(q.Get("source"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	typ, err := offense.ParseType(q.Get("type"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	classes, err := h.resolver.Options(source, typ)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSONSuccess(w, map[string]any{"classes": classes})
}
