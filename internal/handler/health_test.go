// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/criminology-go/internal/cache"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/testutil"
	"github.com/olegiv/criminology-go/internal/version"
)

// downCache is a remote cache whose server does not answer.
type downCache struct {
	cache.Cache
}

func (downCache) Ping(context.Context) error {
	return errors.New("dial tcp 127.0.0.1:6379: connection refused")
}

func newHealthClient(t *testing.T, env *testEnv, h *HealthHandler) *testClient {
	t.Helper()
	return env.server(t, func(r chi.Router) {
		r.Get(RouteHealth, h.Health)
		r.Get(RouteHealth+"/live", h.Liveness)
		r.Get(RouteHealth+"/ready", h.Readiness)
	})
}

func decodeHealth(t *testing.T, body string) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("decoding health response %q: %v", body, err)
	}
	return v
}

func assertHealthBody(t *testing.T, body string, want map[string]any) {
	t.Helper()
	if got := decodeHealth(t, body); !reflect.DeepEqual(got, want) {
		t.Errorf("health = %v, want %v", got, want)
	}
}

func TestHealth_ByRole(t *testing.T) {
	env := newTestEnv(t)
	staff := env.createUser(t, "staff", testutil.UserOptions{Staff: true})
	plain := env.createUser(t, "plain", testutil.UserOptions{})
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	t.Cleanup(func() { _ = mem.Close() })
	h := NewHealthHandler(env.db, mem, version.Info{Version: "1.2.3"})

	anon := newHealthClient(t, env, h)
	resp := anon.get(RouteHealth)
	assertStatus(t, resp, http.StatusOK)
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	assertHealthBody(t, resp.Body, map[string]any{"status": "healthy"})

	user := newHealthClient(t, env, h)
	user.login(plain)
	got := decodeHealth(t, user.get(RouteHealth).Body)
	if got["status"] != "healthy" || got["version"] != "1.2.3" {
		t.Errorf("user health = %v", got)
	}
	if uptime, _ := got["uptime"].(string); uptime == "" {
		t.Error("uptime missing for signed-in user")
	}
	if _, ok := got["checks"]; ok {
		t.Error("checks exposed to a non-staff user")
	}

	admin := newHealthClient(t, env, h)
	admin.login(staff)
	got = decodeHealth(t, admin.get(RouteHealth).Body)
	checks, ok := got["checks"].(map[string]any)
	if !ok {
		t.Fatalf("staff health has no checks: %v", got)
	}
	if s := checks["database"].(map[string]any)["status"]; s != "healthy" {
		t.Errorf("database status = %v", s)
	}
	if m := checks["cache"].(map[string]any)["message"]; m != "In-memory" {
		t.Errorf("cache message = %v", m)
	}
	if _, ok := got["cache"]; !ok {
		t.Error("cache stats missing for staff")
	}
	if _, ok := got["system"]; ok {
		t.Error("system stats shown without verbose")
	}

	got = decodeHealth(t, admin.get(RouteHealth+"?verbose=true").Body)
	system, ok := got["system"].(map[string]any)
	if !ok {
		t.Fatalf("verbose health has no system stats: %v", got)
	}
	if system["mem_alloc"] == nil {
		t.Error("mem_alloc missing")
	}
}

func TestHealth_CacheDownIsDegraded(t *testing.T) {
	env := newTestEnv(t)
	staff := env.createUser(t, "staff", testutil.UserOptions{Staff: true})
	h := NewHealthHandler(env.db, downCache{}, version.Info{})
	c := newHealthClient(t, env, h)
	c.login(staff)

	resp := c.get(RouteHealth)
	assertStatus(t, resp, http.StatusOK)
	got := decodeHealth(t, resp.Body)
	if got["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", got["status"])
	}
	cacheCheck := got["checks"].(map[string]any)["cache"].(map[string]any)
	if cacheCheck["status"] != "degraded" {
		t.Errorf("cache status = %v, want degraded", cacheCheck["status"])
	}
	if msg, _ := cacheCheck["message"].(string); !strings.Contains(msg, "connection refused") {
		t.Errorf("cache message = %q", msg)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	_ = sqlDB.Close()
	h := NewHealthHandler(store.Wrap(sqlDB, store.DialectSQLite), nil, version.Info{})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, RouteHealth, nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", w.Code)
	}
	assertHealthBody(t, w.Body.String(), map[string]any{"status": "unhealthy"})

	w = httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, RouteHealth+"/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want 503", w.Code)
	}
	assertHealthBody(t, w.Body.String(), map[string]any{"status": "not_ready"})

	w = httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, RouteHealth+"/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want 200", w.Code)
	}
}

func TestReadiness(t *testing.T) {
	env := newTestEnv(t)
	h := NewHealthHandler(env.db, nil, version.Info{})
	c := newHealthClient(t, env, h)

	resp := c.get(RouteHealth + "/ready")
	assertStatus(t, resp, http.StatusOK)
	assertHealthBody(t, resp.Body, map[string]any{"status": "ready"})

	assertHealthBody(t, c.get(RouteHealth+"/live").Body, map[string]any{"status": "alive"})
}
