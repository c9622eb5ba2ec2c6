// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeClock is advanced by hand.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLoginProtection(t *testing.T, maxAttempts int, lockout, window time.Duration) (*LoginProtection, *fakeClock) {
	t.Helper()
	lp := NewLoginProtection(LoginProtectionConfig{
		IPRateLimit:       10,
		IPBurst:           100,
		MaxFailedAttempts: maxAttempts,
		LockoutDuration:   lockout,
		AttemptWindow:     window,
	})
	t.Cleanup(lp.Close)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	lp.now = clock.now
	return lp, clock
}

func TestNewLoginProtectionDefaultValues(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{})
	defer lp.Close()

	def := DefaultLoginProtectionConfig()
	if lp.maxFailedAttempts != def.MaxFailedAttempts {
		t.Errorf("maxFailedAttempts = %d, want %d", lp.maxFailedAttempts, def.MaxFailedAttempts)
	}
	if lp.lockoutDuration != def.LockoutDuration {
		t.Errorf("lockoutDuration = %v, want %v", lp.lockoutDuration, def.LockoutDuration)
	}
	if lp.attemptWindow != def.AttemptWindow {
		t.Errorf("attemptWindow = %v, want %v", lp.attemptWindow, def.AttemptWindow)
	}
}

func TestLoginProtectionLockout(t *testing.T) {
	lp, clock := newTestLoginProtection(t, 3, 15*time.Minute, time.Hour)

	for i := 1; i <= 2; i++ {
		if locked, _ := lp.RecordFailedAttempt("jdoe"); locked {
			t.Fatalf("attempt %d should not lock", i)
		}
	}
	if got := lp.RemainingAttempts("jdoe"); got != 1 {
		t.Errorf("RemainingAttempts() = %d, want 1", got)
	}

	locked, d := lp.RecordFailedAttempt("JDoe ")
	if !locked || d != 15*time.Minute {
		t.Fatalf("third attempt: locked = %v, duration = %v", locked, d)
	}

	locked, remaining := lp.IsAccountLocked("jdoe")
	if !locked || remaining != 15*time.Minute {
		t.Errorf("IsAccountLocked() = %v, %v", locked, remaining)
	}

	clock.advance(15*time.Minute + time.Second)
	if locked, _ := lp.IsAccountLocked("jdoe"); locked {
		t.Error("account should be unlocked after the lockout")
	}
}

func TestLoginProtectionExponentialBackoff(t *testing.T) {
	lp, clock := newTestLoginProtection(t, 2, time.Minute, time.Hour)

	var durations []time.Duration
	for range 3 {
		lp.RecordFailedAttempt("jdoe")
		_, d := lp.RecordFailedAttempt("jdoe")
		durations = append(durations, d)
		clock.advance(d + time.Second)
	}

	want := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute}
	for i := range want {
		if durations[i] != want[i] {
			t.Errorf("lockout %d = %v, want %v", i+1, durations[i], want[i])
		}
	}
}

func TestLoginProtectionBackoffCap(t *testing.T) {
	lp, clock := newTestLoginProtection(t, 1, 10*time.Hour, 100*time.Hour)

	var last time.Duration
	for range 4 {
		_, last = lp.RecordFailedAttempt("jdoe")
		clock.advance(last + time.Second)
	}
	if last != maxLockout {
		t.Errorf("lockout = %v, want cap %v", last, maxLockout)
	}
}

func TestLoginProtectionAttemptWindowReset(t *testing.T) {
	lp, clock := newTestLoginProtection(t, 5, time.Minute, 10*time.Minute)

	lp.RecordFailedAttempt("jdoe")
	lp.RecordFailedAttempt("jdoe")
	if got := lp.RemainingAttempts("jdoe"); got != 3 {
		t.Errorf("RemainingAttempts() = %d, want 3", got)
	}

	clock.advance(11 * time.Minute)
	if got := lp.RemainingAttempts("jdoe"); got != 5 {
		t.Errorf("RemainingAttempts() after window = %d, want 5", got)
	}

	lp.RecordFailedAttempt("jdoe")
	if got := lp.RemainingAttempts("jdoe"); got != 4 {
		t.Errorf("RemainingAttempts() after reset = %d, want 4", got)
	}
}

func TestLoginProtectionRecordSuccessfulLogin(t *testing.T) {
	lp, _ := newTestLoginProtection(t, 3, time.Minute, time.Minute)

	lp.RecordFailedAttempt("jdoe")
	lp.RecordFailedAttempt("jdoe")
	lp.RecordSuccessfulLogin("jdoe")

	if got := lp.RemainingAttempts("jdoe"); got != 3 {
		t.Errorf("RemainingAttempts() = %d, want 3", got)
	}
}

func TestLoginProtectionCleanupStaleEntries(t *testing.T) {
	lp, clock := newTestLoginProtection(t, 5, time.Minute, 10*time.Minute)

	lp.RecordFailedAttempt("old")
	clock.advance(20 * time.Minute)
	lp.RecordFailedAttempt("recent")
	lp.cleanupStaleEntries()

	lp.attemptsMu.RLock()
	defer lp.attemptsMu.RUnlock()
	if _, ok := lp.failedAttempts["old"]; ok {
		t.Error("stale entry should be removed")
	}
	if _, ok := lp.failedAttempts["recent"]; !ok {
		t.Error("recent entry should be kept")
	}
}

func TestLoginProtectionMiddleware(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{
		IPRateLimit: 0.001,
		IPBurst:     2,
	})
	defer lp.Close()
	handler := lp.Middleware()(http.HandlerFunc(okHandler))

	post := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := post("10.0.0.1"); code != http.StatusOK {
		t.Errorf("first post = %d", code)
	}
	if code := post("10.0.0.1"); code != http.StatusOK {
		t.Errorf("second post = %d", code)
	}
	if code := post("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("third post = %d, want 429", code)
	}
	if code := post("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other IP = %d, want 200", code)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("GET should not be limited, got %d", rr.Code)
	}
}
