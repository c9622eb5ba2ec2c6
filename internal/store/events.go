// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CreateEventParams holds the fields for CreateEvent.
type CreateEventParams struct {
	Level     string
	Category  string
	Message   string
	UserID    sql.NullInt64
	IPAddress string
	Metadata  string
	CreatedAt time.Time
}

// CreateEvent appends an entry to the event log.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) error {
	_, err := q.exec(ctx, q.sb.Insert("events").
		Columns("level", "category", "message", "user_id", "ip_address", "metadata", "created_at").
		Values(arg.Level, arg.Category, arg.Message, arg.UserID, arg.IPAddress, arg.Metadata, arg.CreatedAt))
	return err
}

// EventFilter narrows ListEvents and CountEvents; empty fields match all.
type EventFilter struct {
	Level    string
	Category string
}

func (f EventFilter) apply(b sq.SelectBuilder) sq.SelectBuilder {
	if f.Level != "" {
		b = b.Where(sq.Eq{"e.level": f.Level})
	}
	if f.Category != "" {
		b = b.Where(sq.Eq{"e.category": f.Category})
	}
	return b
}

// ListEvents returns events newest first, with the acting username.
func (q *Queries) ListEvents(ctx context.Context, f EventFilter, limit, offset int64) ([]Event, error) {
	b := q.sb.Select("e.id", "e.level", "e.category", "e.message", "e.user_id",
		"e.ip_address", "e.metadata", "e.created_at", "u.username").
		From("events e").
		LeftJoin("users u ON u.id = e.user_id").
		OrderBy("e.created_at DESC", "e.id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	rows, err := q.query(ctx, f.apply(b))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.UserID,
			&e.IPAddress, &e.Metadata, &e.CreatedAt, &e.Username); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events matching f.
func (q *Queries) CountEvents(ctx context.Context, f EventFilter) (int64, error) {
	return q.count(ctx, f.apply(q.sb.Select("COUNT(*)").From("events e")))
}

// DeleteEventsBefore removes events older than cutoff.
func (q *Queries) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(q.exec(ctx, q.sb.Delete("events").Where(sq.Lt{"created_at": cutoff})))
}
