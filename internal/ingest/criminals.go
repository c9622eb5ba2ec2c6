// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/criminology-go/internal/metrics"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/util"
)

// Options configures a pipeline. Zero values disable the optional parts.
type Options struct {
	MaxBytes int64
	Events   EventLogger
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// CriminalPipeline imports criminal records. Each accepted row is written
// in its own transaction, so a failing row never undoes earlier rows.
type CriminalPipeline struct {
	queries *store.Queries
	records *service.RecordService
	opts    Options
	now     func() time.Time
}

var _ IngestionPipeline = (*CriminalPipeline)(nil)

// NewCriminalPipeline creates a CriminalPipeline writing through records.
func NewCriminalPipeline(db *store.DB, records *service.RecordService, opts Options) *CriminalPipeline {
	return &CriminalPipeline{
		queries: store.New(db),
		records: records,
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// Ingest validates the upload and stores every valid row. Consecutive rows
// naming the same person attach their offense to one criminal.
func (p *CriminalPipeline) Ingest(ctx context.Context, up Upload) (Result, error) {
	start := p.now()

	f, err := openCSV(up, p.opts.MaxBytes, CriminalHeader)
	if err != nil {
		reject(ctx, p.opts, up, KindCriminals, err)
		return Result{}, err
	}

	res := Result{BatchID: uuid.NewString()}
	var (
		prev   personKey
		prevID int64
	)

	err = f.each(ctx, &res, func(row int, fields []string) {
		first, last := fields[0], fields[1]
		key := newPersonKey(first, last)

		var criminalID int64
		if !key.empty() && key == prev {
			criminalID = prevID
		}

		id, err := p.records.Insert(ctx, criminalID,
			service.CriminalInput{FirstName: first, LastName: last},
			service.OffenseInput{
				Type:        fields[2],
				Class:       fields[3],
				Description: fields[4],
				Source:      fields[5],
			})
		if err != nil {
			res.fail(row, p.rowReason(row, err))
			return
		}

		prev, prevID = key, id
		res.Inserted++
	})

	if res.Inserted > 0 {
		p.records.InvalidateCounts(ctx)
	}
	finish(ctx, p.queries, p.opts, up, KindCriminals, f.filename, &res, start, p.now().UTC())
	return res, err
}

// personKey identifies the person a row names. Names compare without case
// but otherwise exactly: no accent folding and no joining of the two parts.
type personKey struct {
	first, last string
}

func newPersonKey(first, last string) personKey {
	return personKey{first: strings.ToLower(first), last: strings.ToLower(last)}
}

func (k personKey) empty() bool {
	return k.first == "" && k.last == ""
}

// rowReason turns a row error into the message shown to the user.
// Storage errors are logged and reported generically.
func (p *CriminalPipeline) rowReason(row int, err error) string {
	var fe service.FieldErrors
	if errors.As(err, &fe) {
		return fe.Error()
	}
	p.opts.Logger.Error("import row failed", "row", row, "error", err)
	return "could not be saved"
}

func reject(ctx context.Context, opts Options, up Upload, kind string, err error) {
	if opts.Metrics != nil {
		opts.Metrics.RejectImport(kind, rejectReason(err))
	}
	if opts.Events != nil {
		_ = opts.Events.LogImportEvent(ctx, model.EventLevelWarning,
			fmt.Sprintf("Rejected %s upload", kind), userIDPtr(up.UploadedBy), up.IP,
			map[string]any{"filename": up.Filename, "error": err.Error()})
	}
}

// finish records the batch, the audit event and the metrics of an upload
// whose header was accepted.
func finish(ctx context.Context, q *store.Queries, opts Options, up Upload, kind, filename string, res *Result, start, now time.Time) {
	failed := len(res.Failures)

	var createdBy sql.NullInt64
	if up.UploadedBy > 0 {
		createdBy = util.NullInt64FromValue(up.UploadedBy)
	}
	if err := q.CreateImportBatch(ctx, store.ImportBatch{
		ID:        res.BatchID,
		Kind:      kind,
		Filename:  filename,
		Inserted:  int64(res.Inserted),
		Failed:    int64(failed),
		CreatedBy: createdBy,
		CreatedAt: now,
	}); err != nil {
		opts.Logger.Error("failed to record import batch", "batch_id", res.BatchID, "error", err)
	}

	if opts.Metrics != nil {
		opts.Metrics.ObserveImport(kind, res.Inserted, failed, start)
	}

	level := model.EventLevelInfo
	if failed > 0 {
		level = model.EventLevelWarning
	}
	if opts.Events != nil {
		_ = opts.Events.LogImportEvent(ctx, level,
			fmt.Sprintf("Imported %d %s, %d rows failed", res.Inserted, kind, failed),
			userIDPtr(up.UploadedBy), up.IP,
			map[string]any{"batch_id": res.BatchID, "filename": filename, "inserted": res.Inserted, "failed": failed})
	}

	opts.Logger.Info("csv import finished",
		"kind", kind, "batch_id", res.BatchID, "inserted", res.Inserted, "failed", failed,
		"duration", time.Since(start))
}

func userIDPtr(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
