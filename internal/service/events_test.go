// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"testing"
	"time"

	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/testutil"
)

func listEvents(t *testing.T, svc *EventService, f store.EventFilter) ([]store.Event, int64) {
	t.Helper()
	events, total, err := svc.ListEvents(context.Background(), f, 50, 0)
	if err != nil {
		t.Fatalf("ListEvents(%+v): %v", f, err)
	}
	return events, total
}

func TestLogEvent(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	user := testutil.CreateUser(t, db, "clerk", testutil.UserOptions{})
	svc := NewEventService(db)

	err := svc.LogEvent(context.Background(), model.EventLevelInfo, model.EventCategoryRecord, "Record created", &user.ID, "192.168.1.100", map[string]any{
		"criminal_id": 7,
	})
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	events, total := listEvents(t, svc, store.EventFilter{})
	if len(events) != 1 || total != 1 {
		t.Fatalf("got %d events (total %d), want 1", len(events), total)
	}

	e := events[0]
	if e.Level != model.EventLevelInfo || e.Category != model.EventCategoryRecord || e.Message != "Record created" {
		t.Errorf("event = %s/%s %q", e.Level, e.Category, e.Message)
	}
	if e.IPAddress != "192.168.1.100" {
		t.Errorf("IPAddress = %q", e.IPAddress)
	}
	if e.Metadata != `{"criminal_id":7}` {
		t.Errorf("Metadata = %s", e.Metadata)
	}
	if !e.UserID.Valid || e.Username.String != "clerk" {
		t.Errorf("user = %+v / %+v, want clerk", e.UserID, e.Username)
	}
}

func TestLogEvent_NilUserAndMetadata(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	svc := NewEventService(db)
	if err := svc.LogSystemEvent(context.Background(), model.EventLevelWarning, "Started", nil, "", nil); err != nil {
		t.Fatalf("LogSystemEvent: %v", err)
	}

	events, _ := listEvents(t, svc, store.EventFilter{})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.UserID.Valid || e.Username.Valid {
		t.Errorf("event has a user: %+v", e)
	}
	if e.Metadata != "{}" {
		t.Errorf("Metadata = %q, want {}", e.Metadata)
	}
	if e.Category != model.EventCategorySystem {
		t.Errorf("Category = %q, want %q", e.Category, model.EventCategorySystem)
	}
}

func TestLogCategoryEvents(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	svc := NewEventService(db)
	ctx := context.Background()

	logs := []func() error{
		func() error { return svc.LogAuthEvent(ctx, model.EventLevelInfo, "a", nil, "", nil) },
		func() error { return svc.LogUserEvent(ctx, model.EventLevelInfo, "b", nil, "", nil) },
		func() error { return svc.LogRecordEvent(ctx, model.EventLevelInfo, "c", nil, "", nil) },
		func() error { return svc.LogImportEvent(ctx, model.EventLevelWarning, "d", nil, "", nil) },
		func() error { return svc.LogSchedulerEvent(ctx, model.EventLevelError, "e", nil, "", nil) },
		func() error {
			return svc.LogEvent(ctx, model.EventLevelError, model.EventCategoryImport, "f", nil, "", nil)
		},
	}
	for i, log := range logs {
		if err := log(); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}

	tests := []struct {
		filter store.EventFilter
		want   int
	}{
		{store.EventFilter{}, 6},
		{store.EventFilter{Category: model.EventCategoryImport}, 2},
		{store.EventFilter{Level: model.EventLevelError}, 2},
		{store.EventFilter{Level: model.EventLevelError, Category: model.EventCategoryImport}, 1},
		{store.EventFilter{Category: model.EventCategorySystem}, 0},
	}

	for _, tt := range tests {
		events, total := listEvents(t, svc, tt.filter)
		if len(events) != tt.want || total != int64(tt.want) {
			t.Errorf("filter %+v: got %d events (total %d), want %d", tt.filter, len(events), total, tt.want)
		}
	}
}

func TestDeleteOldEvents(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	svc := NewEventService(db)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, e := range []struct {
		msg string
		age int
	}{{"old", 100}, {"recent", 1}} {
		svc.now = func() time.Time { return now.AddDate(0, 0, -e.age) }
		if err := svc.LogSystemEvent(ctx, model.EventLevelInfo, e.msg, nil, "", nil); err != nil {
			t.Fatalf("LogSystemEvent(%s): %v", e.msg, err)
		}
	}

	svc.now = func() time.Time { return now }
	n, err := svc.DeleteOldEvents(ctx, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteOldEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d events, want 1", n)
	}

	events, _ := listEvents(t, svc, store.EventFilter{})
	if len(events) != 1 || events[0].Message != "recent" {
		t.Errorf("remaining events = %+v, want only recent", events)
	}
}
