// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/olegiv/criminology-go/internal/auth"
	"github.com/olegiv/criminology-go/internal/cache"
	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/offense"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/testutil"
	"github.com/olegiv/criminology-go/web"
)

// testPassword satisfies the password rules.
const testPassword = "Marigold-Tundra-42"

const testPageSize = 3

// testEnv wires the services the handlers need over a migrated SQLite file.
type testEnv struct {
	db       *store.DB
	sm       *scs.SessionManager
	renderer *render.Renderer
	resolver *offense.Table
	events   *service.EventService
	users    *service.UserService
	finder   *service.Finder
	records  *service.RecordService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)

	sm := scs.New()
	sm.Lifetime = 24 * time.Hour

	templates, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		t.Fatalf("templates fs: %v", err)
	}
	renderer, err := render.New(render.Config{TemplatesFS: templates, SessionManager: sm})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}

	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	t.Cleanup(func() { _ = mem.Close() })

	resolver := offense.NewTable()
	events := service.NewEventService(db)
	finder := service.NewFinder(db, resolver, mem, time.Minute, testPageSize)

	return &testEnv{
		db:       db,
		sm:       sm,
		renderer: renderer,
		resolver: resolver,
		events:   events,
		users:    service.NewUserService(db, events),
		finder:   finder,
		records:  service.NewRecordService(db, resolver, events, finder),
	}
}

// createUser inserts an account whose password is testPassword.
func (e *testEnv) createUser(t *testing.T, username string, opts testutil.UserOptions) store.User {
	t.Helper()
	if opts.PasswordHash == "" {
		hash, err := auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		opts.PasswordHash = hash
	}
	return testutil.CreateUser(t, e.db, username, opts)
}

// createRecord stores a criminal with one offense.
func (e *testEnv) createRecord(t *testing.T, first, last, source, typ, class string) int64 {
	t.Helper()
	id, err := e.records.Create(context.Background(),
		service.CriminalInput{FirstName: first, LastName: last},
		service.OffenseInput{Source: source, Type: typ, Class: class, Description: "Test offense"},
		service.Actor{})
	if err != nil {
		t.Fatalf("creating record %s %s: %v", first, last, err)
	}
	return id
}

// server mounts routes behind the session and user middleware, plus a
// /test/login/{id} route that signs a user in.
func (e *testEnv) server(t *testing.T, routes func(r chi.Router)) *testClient {
	t.Helper()

	r := chi.NewRouter()
	r.Use(e.sm.LoadAndSave)
	r.Use(middleware.LoadUser(e.sm, e.db))
	r.Post("/test/login/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		e.sm.Put(r.Context(), middleware.SessionKeyUserID, id)
		w.WriteHeader(http.StatusNoContent)
	})
	routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testClient{
		t:   t,
		url: srv.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// testClient keeps cookies between requests and never follows redirects.
type testClient struct {
	t      *testing.T
	url    string
	client *http.Client
}

type testResponse struct {
	Status   int
	Location string
	Header   http.Header
	Body     string
}

func (c *testClient) do(req *http.Request) testResponse {
	c.t.Helper()
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("reading body: %v", err)
	}
	return testResponse{
		Status:   resp.StatusCode,
		Location: resp.Header.Get("Location"),
		Header:   resp.Header,
		Body:     string(body),
	}
}

func (c *testClient) get(path string) testResponse {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.url+path, nil)
	if err != nil {
		c.t.Fatalf("NewRequest: %v", err)
	}
	return c.do(req)
}

func (c *testClient) postForm(path string, form url.Values) testResponse {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.url+path, strings.NewReader(form.Encode()))
	if err != nil {
		c.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *testClient) post(path, contentType string, body io.Reader) testResponse {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.url+path, body)
	if err != nil {
		c.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

// login signs u in through the test route.
func (c *testClient) login(u store.User) {
	c.t.Helper()
	resp := c.postForm(fmt.Sprintf("/test/login/%d", u.ID), nil)
	if resp.Status != http.StatusNoContent {
		c.t.Fatalf("test login for %s: status %d", u.Username, resp.Status)
	}
}

func assertStatus(t *testing.T, resp testResponse, want int) {
	t.Helper()
	if resp.Status != want {
		t.Errorf("status = %d, want %d", resp.Status, want)
	}
}

func assertRedirect(t *testing.T, resp testResponse, location string) {
	t.Helper()
	if resp.Status != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.Status, http.StatusSeeOther)
	}
	if resp.Location != location {
		t.Errorf("Location = %q, want %q", resp.Location, location)
	}
}

// assertBodyContains reports every substring missing from body.
func assertBodyContains(t *testing.T, body string, subs ...string) {
	t.Helper()
	for _, s := range subs {
		if !strings.Contains(body, s) {
			t.Errorf("body missing %q", s)
		}
	}
}

func assertBodyOmits(t *testing.T, body string, subs ...string) {
	t.Helper()
	for _, s := range subs {
		if strings.Contains(body, s) {
			t.Errorf("body unexpectedly contains %q", s)
		}
	}
}

// requestWithURLParams adds chi URL parameters to a request.
func requestWithURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// requestWithSession wraps a request with session context.
func requestWithSession(sm *scs.SessionManager, r *http.Request) *http.Request {
	ctx, err := sm.Load(r.Context(), "")
	if err != nil {
		return r
	}
	return r.WithContext(ctx)
}
