// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
)

// CreateImportBatch records a finished CSV upload.
func (q *Queries) CreateImportBatch(ctx context.Context, b ImportBatch) error {
	_, err := q.exec(ctx, q.sb.Insert("import_batches").
		Columns("id", "kind", "filename", "inserted", "failed", "created_by", "created_at").
		Values(b.ID, b.Kind, b.Filename, b.Inserted, b.Failed, b.CreatedBy, b.CreatedAt))
	return err
}

// ListImportBatches returns uploads newest first.
func (q *Queries) ListImportBatches(ctx context.Context, limit, offset int64) ([]ImportBatch, error) {
	rows, err := q.query(ctx, q.sb.Select("b.id", "b.kind", "b.filename", "b.inserted",
		"b.failed", "b.created_by", "b.created_at", "u.username").
		From("import_batches b").
		LeftJoin("users u ON u.id = b.created_by").
		OrderBy("b.created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var batches []ImportBatch
	for rows.Next() {
		var b ImportBatch
		if err := rows.Scan(&b.ID, &b.Kind, &b.Filename, &b.Inserted, &b.Failed,
			&b.CreatedBy, &b.CreatedAt, &b.Username); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// CountImportBatches returns the number of recorded uploads.
func (q *Queries) CountImportBatches(ctx context.Context) (int64, error) {
	return q.count(ctx, q.sb.Select("COUNT(*)").From("import_batches"))
}
