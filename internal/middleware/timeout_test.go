// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// slowHandler waits for the request context, or 5s.
func slowHandler(w http.ResponseWriter, r *http.Request) {
	select {
	case <-time.After(5 * time.Second):
		w.WriteHeader(http.StatusOK)
	case <-r.Context().Done():
	}
}

func TestTimeoutNormalRequest(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom-Header", "test-value")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	})

	rr := httptest.NewRecorder()
	Timeout(5*time.Second)(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))

	if rr.Code != http.StatusCreated {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusCreated)
	}
	if body := rr.Body.String(); body != "created" {
		t.Errorf("Body = %q, want %q", body, "created")
	}
	if h := rr.Header().Get("X-Custom-Header"); h != "test-value" {
		t.Errorf("X-Custom-Header = %q, want %q", h, "test-value")
	}
}

func TestTimeoutSlowRequest(t *testing.T) {
	rr := httptest.NewRecorder()
	Timeout(50*time.Millisecond)(http.HandlerFunc(slowHandler)).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/criminals", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	if body := rr.Body.String(); body != "Request timeout" {
		t.Errorf("Body = %q, want %q", body, "Request timeout")
	}
}

func TestTimeoutSkipPrefix(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("skipped path should have no deadline")
		}
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	Timeout(time.Second, "/criminals/import")(handler).
		ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/criminals/import", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestTimeoutWriter(t *testing.T) {
	t.Run("second WriteHeader ignored", func(t *testing.T) {
		rr := httptest.NewRecorder()
		tw := &timeoutWriter{ResponseWriter: rr}
		tw.WriteHeader(http.StatusOK)
		tw.WriteHeader(http.StatusNotFound)
		if rr.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", rr.Code, http.StatusOK)
		}
	})

	t.Run("Write implies 200", func(t *testing.T) {
		rr := httptest.NewRecorder()
		tw := &timeoutWriter{ResponseWriter: rr}
		n, err := tw.Write([]byte("hello"))
		if err != nil || n != 5 {
			t.Fatalf("Write() = %d, %v", n, err)
		}
		if !tw.wroteHeader || rr.Code != http.StatusOK {
			t.Errorf("wroteHeader = %v, Status = %d", tw.wroteHeader, rr.Code)
		}
	})

	t.Run("writes after timeout fail", func(t *testing.T) {
		rr := httptest.NewRecorder()
		tw := &timeoutWriter{ResponseWriter: rr, timedOut: true}
		if _, err := tw.Write([]byte("late")); !errors.Is(err, http.ErrHandlerTimeout) {
			t.Errorf("Write() error = %v, want ErrHandlerTimeout", err)
		}
		if rr.Body.Len() != 0 {
			t.Errorf("Body = %q, want empty", rr.Body.String())
		}
	})
}
