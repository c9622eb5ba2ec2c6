// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/testutil"
)

// discardHandler is a slog.Handler that discards all logs.
type discardHandler struct{}

func (h discardHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h discardHandler) WithGroup(string) slog.Handler             { return h }

func listEvents(t *testing.T, db *store.DB) []store.Event {
	t.Helper()
	events, err := store.New(db).ListEvents(context.Background(), store.EventFilter{}, 50, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	return events
}

func TestEventLogHandler_Levels(t *testing.T) {
	tests := []struct {
		name      string
		log       func(l *slog.Logger)
		wantLevel string
	}{
		{"error", func(l *slog.Logger) { l.Error("database connection failed", "host", "localhost") }, model.EventLevelError},
		{"warn", func(l *slog.Logger) { l.Warn("slow query detected", "duration_ms", 5000) }, model.EventLevelWarning},
		{"info", func(l *slog.Logger) { l.Info("server started") }, ""},
		{"debug", func(l *slog.Logger) { l.Debug("details") }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, cleanup := testutil.TestDB(t)
			defer cleanup()

			tt.log(slog.New(NewEventLogHandler(discardHandler{}, db)))

			events := listEvents(t, db)
			if tt.wantLevel == "" {
				if len(events) != 0 {
					t.Fatalf("expected no events, got %d", len(events))
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if events[0].Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", events[0].Level, tt.wantLevel)
			}
		})
	}
}

func TestEventLogHandler_CustomLevel(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	logger := slog.New(NewEventLogHandlerWithLevel(discardHandler{}, db, slog.LevelError))
	logger.Warn("not stored")
	logger.Error("stored")

	events := listEvents(t, db)
	if len(events) != 1 || events[0].Message != "stored" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		msg   string
		attrs []slog.Attr
		want  string
	}{
		{"login failed", nil, model.EventCategoryAuth},
		{"CSRF validation failed", nil, model.EventCategoryAuth},
		{"import row failed", nil, model.EventCategoryImport},
		{"failed to load criminal", nil, model.EventCategoryRecord},
		{"user not found", nil, model.EventCategoryUser},
		{"cleanup job failed", nil, model.EventCategoryScheduler},
		{"disk full", nil, model.EventCategorySystem},
		{"anything", []slog.Attr{slog.String("category", "custom")}, "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := extractCategory(tt.msg, tt.attrs); got != tt.want {
				t.Errorf("extractCategory(%q) = %q, want %q", tt.msg, got, tt.want)
			}
		})
	}
}

func TestEventLogHandler_MetadataAndAttrs(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	logger := slog.New(NewEventLogHandler(discardHandler{}, db)).
		With("service", "api").
		WithGroup("req")
	logger.Error("request failed", "status_code", 500, "path", `/a"b`, "category", "custom")

	events := listEvents(t, db)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Category != model.EventCategorySystem {
		t.Errorf("grouped category attr should not be used, got %q", events[0].Category)
	}

	var meta map[string]string
	if err := json.Unmarshal([]byte(events[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v (%s)", err, events[0].Metadata)
	}
	want := map[string]string{
		"service":         "api",
		"req.status_code": "500",
		"req.path":        `/a"b`,
		"req.category":    "custom",
	}
	for k, v := range want {
		if meta[k] != v {
			t.Errorf("metadata[%q] = %q, want %q", k, meta[k], v)
		}
	}
}

func TestEventLogHandler_RequestInfo(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	user := testutil.CreateUser(t, db, "clerk", testutil.UserOptions{})
	ctx := WithRequestInfo(context.Background(), RequestInfo{Path: "/criminals", IP: "10.0.0.9", UserID: user.ID})

	slog.New(NewEventLogHandler(discardHandler{}, db)).ErrorContext(ctx, "render failed")

	events := listEvents(t, db)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].IPAddress != "10.0.0.9" {
		t.Errorf("IPAddress = %q", events[0].IPAddress)
	}
	if events[0].Username.String != "clerk" {
		t.Errorf("Username = %q", events[0].Username.String)
	}
}

func TestExtractMetadata_Empty(t *testing.T) {
	if got := extractMetadata(nil); got != "{}" {
		t.Errorf("extractMetadata(nil) = %q", got)
	}
}
