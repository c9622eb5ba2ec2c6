// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"encoding/json"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/store"
)

// EventsHandler handles event log viewing routes.
type EventsHandler struct {
	events   *service.EventService
	renderer *render.Renderer
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(events *service.EventService, renderer *render.Renderer) *EventsHandler {
	return &EventsHandler{
		events:   events,
		renderer: renderer,
	}
}

// EventView is an event with its metadata formatted for display.
type EventView struct {
	store.Event
	Details     string
	DetailsLong bool
}

// detailsLengthThreshold is the max chars before details are collapsible
const detailsLengthThreshold = 80

// formatMetadata converts JSON metadata to readable text format.
// Example: {"criminal_id":7,"username":"jdoe"} -> "criminal_id: 7, username: jdoe"
func formatMetadata(metadata string) string {
	if metadata == "" || metadata == "{}" {
		return ""
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(metadata), &data); err != nil {
		return metadata
	}
	if len(data) == 0 {
		return ""
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		var strValue string
		switch v := data[key].(type) {
		case string:
			strValue = v
		case float64:
			strValue = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			strValue = strconv.FormatBool(v)
		default:
			if b, err := json.Marshal(v); err == nil {
				strValue = string(b)
			}
		}
		parts = append(parts, key+": "+strValue)
	}

	return strings.Join(parts, ", ")
}

// List handles GET /admin/events - displays a paginated, filtered list of
// events. Unknown filter values are ignored.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EventFilter{Level: q.Get("level"), Category: q.Get("category")}
	if !slices.Contains(model.EventLevels, filter.Level) {
		filter.Level = ""
	}
	if !slices.Contains(model.EventCategories, filter.Category) {
		filter.Category = ""
	}

	page := ParsePageParam(r)
	events, total, err := h.events.ListEvents(r.Context(), filter, EventsPerPage, int64((page-1)*EventsPerPage))
	if err != nil {
		logAndInternalError(w, "failed to list events", "error", err)
		return
	}

	// Past the last page: show the last page instead.
	if normalized, _ := NormalizePagination(page, int(total), EventsPerPage); normalized != page {
		page = normalized
		events, total, err = h.events.ListEvents(r.Context(), filter, EventsPerPage, int64((page-1)*EventsPerPage))
		if err != nil {
			logAndInternalError(w, "failed to list events", "error", err)
			return
		}
	}

	views := make([]EventView, 0, len(events))
	for _, e := range events {
		details := formatMetadata(e.Metadata)
		views = append(views, EventView{
			Event:       e,
			Details:     details,
			DetailsLong: len(details) > detailsLengthThreshold,
		})
	}

	query := formValues("level", filter.Level, "category", filter.Category)
	renderPage(w, r, h.renderer, "admin/events", render.TemplateData{
		Title: "Events",
		Data: map[string]any{
			"Events":     views,
			"Filter":     filter,
			"Levels":     model.EventLevels,
			"Categories": model.EventCategories,
			"Pagination": BuildPagination(page, int(total), EventsPerPage, redirectAdminEvents, query),
		},
	})
}
