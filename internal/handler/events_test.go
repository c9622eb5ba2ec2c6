// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/testutil"
)

func TestFormatMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		want     string
	}{
		{"empty", "", ""},
		{"empty object", "{}", ""},
		{"sorted keys", `{"username":"jdoe","criminal_id":7}`, "criminal_id: 7, username: jdoe"},
		{"bool and float", `{"staff":true,"ratio":0.5}`, "ratio: 0.5, staff: true"},
		{"nested", `{"rows":[2,3]}`, "rows: [2,3]"},
		{"null", `{"ip":null}`, "ip: null"},
		{"not json", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatMetadata(tt.metadata); got != tt.want {
				t.Errorf("formatMetadata(%q) = %q, want %q", tt.metadata, got, tt.want)
			}
		})
	}
}

func newEventsClient(t *testing.T, env *testEnv) *testClient {
	t.Helper()
	h := NewEventsHandler(env.events, env.renderer)
	return env.server(t, func(r chi.Router) {
		r.Get(RouteAdmin+RouteEvents, h.List)
	})
}

func TestEventsList_Filters(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin", testutil.UserOptions{Superuser: true})
	ctx := context.Background()
	for _, err := range []error{
		env.events.LogAuthEvent(ctx, model.EventLevelWarning, "Login failed", nil, "10.0.0.1", map[string]any{"username": "mallory"}),
		env.events.LogRecordEvent(ctx, model.EventLevelInfo, "Criminal record created", &admin.ID, "10.0.0.2", map[string]any{"criminal_id": 7}),
		env.events.LogSchedulerEvent(ctx, model.EventLevelError, "Job failed", nil, "", nil),
	} {
		if err != nil {
			t.Fatalf("logging event: %v", err)
		}
	}

	c := newEventsClient(t, env)
	c.login(admin)

	resp := c.get(RouteAdmin + RouteEvents)
	assertStatus(t, resp, http.StatusOK)
	assertBodyContains(t, resp.Body, "Login failed", "Criminal record created", "Job failed", "criminal_id: 7")

	tests := []struct {
		name  string
		query string
		want  []string
		omit  []string
	}{
		{"category", "?category=auth", []string{"Login failed", `value="auth" selected`}, []string{"Criminal record created"}},
		{"level", "?level=error", []string{"Job failed"}, []string{"Login failed"}},
		{"no match", "?level=info&category=auth", []string{"No events."}, nil},
		// Unknown filter values are ignored.
		{"unknown values", "?level=panic&category=nope", []string{"Login failed", "Job failed"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := c.get(RouteAdmin + RouteEvents + tt.query).Body
			assertBodyContains(t, body, tt.want...)
			assertBodyOmits(t, body, tt.omit...)
		})
	}
}

func TestEventsList_LongDetailsCollapse(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin", testutil.UserOptions{Superuser: true})
	long := strings.Repeat("x", detailsLengthThreshold+10)
	if err := env.events.LogSystemEvent(context.Background(), model.EventLevelInfo, "Long", nil, "", map[string]any{"note": long}); err != nil {
		t.Fatalf("LogSystemEvent: %v", err)
	}

	c := newEventsClient(t, env)
	c.login(admin)

	resp := c.get(RouteAdmin + RouteEvents)
	assertStatus(t, resp, http.StatusOK)
	assertBodyContains(t, resp.Body, "<details>", "note: "+long)
}

func TestEventsList_PastLastPage(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin", testutil.UserOptions{Superuser: true})
	for i := 0; i < EventsPerPage+1; i++ {
		if err := env.events.LogSystemEvent(context.Background(), model.EventLevelInfo, fmt.Sprintf("Event %02d", i), nil, "", nil); err != nil {
			t.Fatalf("LogSystemEvent: %v", err)
		}
	}

	c := newEventsClient(t, env)
	c.login(admin)

	resp := c.get(RouteAdmin + RouteEvents + "?page=99")
	assertStatus(t, resp, http.StatusOK)
	// Page 2 holds exactly one event.
	if n := strings.Count(resp.Body, "<td>system</td>"); n != 1 {
		t.Errorf("rendered %d events, want 1", n)
	}
}
