// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service provides the business logic between HTTP handlers and
// the store: record search and CRUD, accounts, and the audit event log.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/store"
)

// EventService writes and reads the audit event log.
type EventService struct {
	queries *store.Queries
	now     func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(db *store.DB) *EventService {
	return &EventService{
		queries: store.New(db),
		now:     time.Now,
	}
}

// LogEvent creates a new event log entry.
func (s *EventService) LogEvent(ctx context.Context, level, category, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	var nullUserID sql.NullInt64
	if userID != nil {
		nullUserID = sql.NullInt64{Int64: *userID, Valid: true}
	}

	metadataJSON := "{}"
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			metadataJSON = string(b)
		}
	}

	err := s.queries.CreateEvent(ctx, store.CreateEventParams{
		Level:     level,
		Category:  category,
		Message:   message,
		UserID:    nullUserID,
		IPAddress: ipAddress,
		Metadata:  metadataJSON,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		// Not slog.Error: the event log handler would try to store this too.
		slog.Debug("failed to log event", "error", err, "category", category)
		return fmt.Errorf("logging event: %w", err)
	}
	return nil
}

// LogAuthEvent logs an authentication-related event.
func (s *EventService) LogAuthEvent(ctx context.Context, level, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryAuth, message, userID, ipAddress, metadata)
}

// LogUserEvent logs an account management event.
func (s *EventService) LogUserEvent(ctx context.Context, level, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryUser, message, userID, ipAddress, metadata)
}

// LogRecordEvent logs a change to criminal records.
func (s *EventService) LogRecordEvent(ctx context.Context, level, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryRecord, message, userID, ipAddress, metadata)
}

// LogImportEvent logs the outcome of a CSV upload.
func (s *EventService) LogImportEvent(ctx context.Context, level, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryImport, message, userID, ipAddress, metadata)
}

// LogSchedulerEvent logs a scheduled job run or schedule change.
func (s *EventService) LogSchedulerEvent(ctx context.Context, level, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryScheduler, message, userID, ipAddress, metadata)
}

// LogSystemEvent logs a system-related event.
func (s *EventService) LogSystemEvent(ctx context.Context, level, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategorySystem, message, userID, ipAddress, metadata)
}

// ListEvents returns one page of events, newest first, and the filtered total.
func (s *EventService) ListEvents(ctx context.Context, f store.EventFilter, limit, offset int64) ([]store.Event, int64, error) {
	events, err := s.queries.ListEvents(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing events: %w", err)
	}
	total, err := s.queries.CountEvents(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("counting events: %w", err)
	}
	return events, total, nil
}

// DeleteOldEvents removes events older than the specified duration.
func (s *EventService) DeleteOldEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	n, err := s.queries.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old events: %w", err)
	}
	return n, nil
}
