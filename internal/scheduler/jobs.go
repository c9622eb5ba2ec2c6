// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/criminology-go/internal/metrics"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/service"
)

// ExpiredUsersJob deactivates or deletes accounts past their expiration
// date. mode is service.CleanupDeactivate or service.CleanupDelete.
func ExpiredUsersJob(users *service.UserService, events *service.EventService, m *metrics.Metrics, mode, schedule string, logger *slog.Logger) Job {
	return Job{
		Source:      "users",
		Name:        "cleanup_expired",
		Description: fmt.Sprintf("Handle accounts past their expiration date (%s)", mode),
		Schedule:    schedule,
		Manual:      true,
		Run: func(ctx context.Context) error {
			n, err := users.CleanupExpired(ctx, mode)
			if err != nil {
				return err
			}
			if m != nil {
				m.AddCleanedUsers(mode, n)
			}
			if n > 0 && events != nil {
				_ = events.LogSchedulerEvent(ctx, model.EventLevelInfo,
					fmt.Sprintf("Expired accounts cleaned up: %d", n), nil, "",
					map[string]any{"mode": mode, "count": n})
			}
			logger.Info("expired accounts cleaned up", "mode", mode, "count", n)
			return nil
		},
	}
}

// PruneEventsJob deletes event log entries older than retention.
func PruneEventsJob(events *service.EventService, retention time.Duration, logger *slog.Logger) Job {
	return Job{
		Source:      "events",
		Name:        "prune",
		Description: fmt.Sprintf("Delete event log entries older than %d days", int(retention.Hours()/24)),
		Schedule:    "@daily",
		Manual:      true,
		Run: func(ctx context.Context) error {
			n, err := events.DeleteOldEvents(ctx, retention)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("old events pruned", "count", n)
			}
			return nil
		},
	}
}
