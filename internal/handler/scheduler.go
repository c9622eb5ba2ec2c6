// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/scheduler"
	"github.com/olegiv/criminology-go/internal/service"
)

// JobRegistry is the part of the scheduler registry the admin pages use.
type JobRegistry interface {
	List() []scheduler.JobInfo
	TriggerNow(ctx context.Context, source, name string) error
	UpdateSchedule(ctx context.Context, source, name, schedule string) error
	ResetSchedule(ctx context.Context, source, name string) error
}

// SchedulerHandler handles scheduler admin routes.
type SchedulerHandler struct {
	renderer     *render.Renderer
	registry     JobRegistry
	eventService *service.EventService
}

// NewSchedulerHandler creates a new SchedulerHandler.
func NewSchedulerHandler(renderer *render.Renderer, registry JobRegistry, es *service.EventService) *SchedulerHandler {
	return &SchedulerHandler{
		renderer:     renderer,
		registry:     registry,
		eventService: es,
	}
}

// List handles GET /admin/scheduler - displays all scheduled jobs.
func (h *SchedulerHandler) List(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, "admin/scheduler", render.TemplateData{
		Title: "Scheduler",
		Data:  h.registry.List(),
	})
}

// UpdateSchedule handles POST /admin/scheduler/{source}/{name} - overrides
// the job's cron expression.
func (h *SchedulerHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, redirectAdminScheduler) {
		return
	}

	source, name := chi.URLParam(r, "source"), chi.URLParam(r, "name")
	newSchedule := strings.TrimSpace(r.FormValue("schedule"))
	if newSchedule == "" {
		flashError(w, r, h.renderer, redirectAdminScheduler, "Schedule is required")
		return
	}

	if err := h.registry.UpdateSchedule(r.Context(), source, name, newSchedule); err != nil {
		h.fail(w, r, "failed to update schedule", "Error updating schedule", source, name, err)
		return
	}

	h.logEvent(r, "Schedule updated: "+source+":"+name+" -> "+newSchedule, map[string]any{
		"source": source, "name": name, "schedule": newSchedule,
	})
	slog.Info("scheduler job updated", "source", source, "name", name, "schedule", newSchedule, "updated_by", middleware.GetUserID(r))
	flashSuccess(w, r, h.renderer, redirectAdminScheduler, "Schedule updated")
}

// ResetSchedule handles POST /admin/scheduler/{source}/{name}/reset.
func (h *SchedulerHandler) ResetSchedule(w http.ResponseWriter, r *http.Request) {
	source, name := chi.URLParam(r, "source"), chi.URLParam(r, "name")

	if err := h.registry.ResetSchedule(r.Context(), source, name); err != nil {
		h.fail(w, r, "failed to reset schedule", "Error resetting schedule", source, name, err)
		return
	}

	h.logEvent(r, "Schedule reset to default: "+source+":"+name, map[string]any{
		"source": source, "name": name,
	})
	slog.Info("scheduler job reset", "source", source, "name", name, "reset_by", middleware.GetUserID(r))
	flashSuccess(w, r, h.renderer, redirectAdminScheduler, "Schedule reset to default")
}

// TriggerNow handles POST /admin/scheduler/{source}/{name}/run.
func (h *SchedulerHandler) TriggerNow(w http.ResponseWriter, r *http.Request) {
	source, name := chi.URLParam(r, "source"), chi.URLParam(r, "name")

	if err := h.registry.TriggerNow(r.Context(), source, name); err != nil {
		h.fail(w, r, "failed to trigger job", "Error running job", source, name, err)
		return
	}

	h.logEvent(r, "Job manually triggered: "+source+":"+name, map[string]any{
		"source": source, "name": name,
	})
	slog.Info("scheduler job triggered", "source", source, "name", name, "triggered_by", middleware.GetUserID(r))
	flashSuccess(w, r, h.renderer, redirectAdminScheduler, "Job "+source+":"+name+" started")
}

func (h *SchedulerHandler) fail(w http.ResponseWriter, r *http.Request, logMsg, userMsg, source, name string, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		flashError(w, r, h.renderer, redirectAdminScheduler, "Job not found")
	case errors.Is(err, scheduler.ErrInvalidSchedule), errors.Is(err, scheduler.ErrNoManualTrigger):
		flashError(w, r, h.renderer, redirectAdminScheduler, userMsg+": "+err.Error())
	default:
		slog.Error(logMsg, "error", err, "source", source, "name", name)
		flashError(w, r, h.renderer, redirectAdminScheduler, userMsg)
	}
}

func (h *SchedulerHandler) logEvent(r *http.Request, msg string, meta map[string]any) {
	if h.eventService != nil {
		_ = h.eventService.LogSchedulerEvent(r.Context(), model.EventLevelInfo, msg,
			middleware.GetUserIDPtr(r), middleware.ClientIP(r), meta)
	}
}
