// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs the application's statements against a pool or a transaction.
type Queries struct {
	db      DBTX
	dialect Dialect
	sb      sq.StatementBuilderType
}

// New returns Queries bound to db.
func New(db *DB) *Queries {
	return newQueries(db.DB, db.Dialect)
}

func newQueries(db DBTX, dialect Dialect) *Queries {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		format = sq.Dollar
	}
	return &Queries{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// WithTx returns a copy of q that runs inside tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return newQueries(tx, q.dialect)
}

// Dialect reports the SQL dialect of the underlying database.
func (q *Queries) Dialect() Dialect {
	return q.dialect
}

func (q *Queries) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return q.db.ExecContext(ctx, query, args...)
}

func (q *Queries) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return q.db.QueryContext(ctx, query, args...)
}

// queryRow scans a single row into dest.
func (q *Queries) queryRow(ctx context.Context, b sq.Sqlizer, dest ...any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	return q.db.QueryRowContext(ctx, query, args...).Scan(dest...)
}

func (q *Queries) count(ctx context.Context, b sq.SelectBuilder) (int64, error) {
	var n int64
	if err := q.queryRow(ctx, b, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
