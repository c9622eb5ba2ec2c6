// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// GetSchedulerOverride returns the stored schedule for a job, or
// sql.ErrNoRows when none is set.
func (q *Queries) GetSchedulerOverride(ctx context.Context, source, name string) (string, error) {
	var schedule string
	err := q.queryRow(ctx, q.sb.Select("override_schedule").
		From("scheduler_overrides").
		Where(sq.Eq{"source": source, "name": name}), &schedule)
	return schedule, err
}

// UpsertSchedulerOverride stores or replaces a job's schedule.
func (q *Queries) UpsertSchedulerOverride(ctx context.Context, source, name, schedule string, now time.Time) error {
	_, err := q.exec(ctx, q.sb.Insert("scheduler_overrides").
		Columns("source", "name", "override_schedule", "updated_at").
		Values(source, name, schedule, now).
		Suffix("ON CONFLICT (source, name) DO UPDATE SET override_schedule = excluded.override_schedule, updated_at = excluded.updated_at"))
	return err
}

// DeleteSchedulerOverride removes a job's stored schedule.
func (q *Queries) DeleteSchedulerOverride(ctx context.Context, source, name string) error {
	_, err := q.exec(ctx, q.sb.Delete("scheduler_overrides").
		Where(sq.Eq{"source": source, "name": name}))
	return err
}
