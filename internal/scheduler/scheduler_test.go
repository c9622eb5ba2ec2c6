// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/olegiv/criminology-go/internal/metrics"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/testutil"
)

func TestScheduler_StartStop(t *testing.T) {
	s, _ := newTestScheduler(t)
	if err := s.Add(noopJob("job", "@every 1h", false)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	if s.Registry().List()[0].NextRun.IsZero() {
		t.Error("NextRun not set after Start")
	}
}

func TestScheduler_WrapRunsJob(t *testing.T) {
	s, _ := newTestScheduler(t)

	var gotDeadline bool
	job := noopJob("job", "@daily", false)
	job.Run = func(ctx context.Context) error {
		_, gotDeadline = ctx.Deadline()
		return errors.New("boom")
	}

	// Errors are logged, not propagated.
	s.wrap(job)()
	if !gotDeadline {
		t.Error("job context has no deadline")
	}
}

func TestExpiredUsersJob(t *testing.T) {
	for _, mode := range []string{service.CleanupDeactivate, service.CleanupDelete} {
		t.Run(mode, func(t *testing.T) {
			s, db := newTestScheduler(t)
			ctx := context.Background()
			events := service.NewEventService(db)
			users := service.NewUserService(db, events)
			m := metrics.New(prometheus.NewRegistry())

			past := time.Now().UTC().AddDate(0, 0, -2)
			expired := testutil.CreateUser(t, db, "expired", testutil.UserOptions{ExpirationDate: past})
			admin := testutil.CreateUser(t, db, "root", testutil.UserOptions{Superuser: true, ExpirationDate: past})
			current := testutil.CreateUser(t, db, "current", testutil.UserOptions{ExpirationDate: time.Now().UTC()})

			job := ExpiredUsersJob(users, events, m, mode, "0 0 1 * *", testutil.TestLoggerSilent())
			if err := s.Add(job); err != nil {
				t.Fatalf("Add: %v", err)
			}
			reg := s.Registry()

			cleaned := func() float64 {
				return promtest.ToFloat64(m.UsersCleaned.WithLabelValues(mode))
			}

			if err := reg.TriggerNow(ctx, "users", "cleanup_expired"); err != nil {
				t.Fatalf("TriggerNow: %v", err)
			}
			if got := cleaned(); got != 1 {
				t.Errorf("users cleaned = %v, want 1", got)
			}

			q := store.New(db)
			got, err := q.GetUserByID(ctx, expired.ID)
			if mode == service.CleanupDelete {
				if err == nil {
					t.Error("expired user still present after delete cleanup")
				}
			} else {
				if err != nil {
					t.Fatalf("GetUserByID: %v", err)
				}
				if got.IsActive {
					t.Error("expired user still active")
				}
			}
			for _, id := range []int64{admin.ID, current.ID} {
				u, err := q.GetUserByID(ctx, id)
				if err != nil {
					t.Fatalf("GetUserByID(%d): %v", id, err)
				}
				if !u.IsActive {
					t.Errorf("user %d should stay active", id)
				}
			}

			// Idempotent: the second run handles nothing.
			if err := reg.TriggerNow(ctx, "users", "cleanup_expired"); err != nil {
				t.Fatalf("second TriggerNow: %v", err)
			}
			if got := cleaned(); got != 1 {
				t.Errorf("users cleaned after second run = %v, want 1", got)
			}

			_, total, err := events.ListEvents(ctx, store.EventFilter{Category: model.EventCategoryScheduler}, 10, 0)
			if err != nil {
				t.Fatalf("ListEvents: %v", err)
			}
			if total != 1 {
				t.Errorf("scheduler events = %d, want 1", total)
			}
		})
	}
}

func TestPruneEventsJob(t *testing.T) {
	s, db := newTestScheduler(t)
	ctx := context.Background()
	q := store.New(db)
	events := service.NewEventService(db)

	now := time.Now().UTC()
	for _, e := range []struct {
		msg string
		at  time.Time
	}{
		{"ancient", now.AddDate(0, 0, -120)},
		{"recent", now.AddDate(0, 0, -1)},
	} {
		err := q.CreateEvent(ctx, store.CreateEventParams{
			Level:     model.EventLevelInfo,
			Category:  model.EventCategorySystem,
			Message:   e.msg,
			Metadata:  "{}",
			CreatedAt: e.at,
		})
		if err != nil {
			t.Fatalf("CreateEvent(%s): %v", e.msg, err)
		}
	}

	if err := s.Add(PruneEventsJob(events, 90*24*time.Hour, testutil.TestLoggerSilent())); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Registry().TriggerNow(ctx, "events", "prune"); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	list, total, err := events.ListEvents(ctx, store.EventFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != 1 {
		t.Fatalf("events = %d, want 1", total)
	}
	if list[0].Message != "recent" {
		t.Errorf("kept event = %q, want recent", list[0].Message)
	}
}
