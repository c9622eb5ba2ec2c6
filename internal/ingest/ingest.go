// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ingest imports criminal records and user accounts from CSV
// uploads. Files are checked as a whole first (size, extension, encoding,
// header); after that every data row is committed or reported on its own.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/olegiv/criminology-go/internal/util"
)

// DefaultMaxBytes is the upload size ceiling.
const DefaultMaxBytes int64 = 2 << 20

// Import kinds, as stored in import_batches and used as metric labels.
const (
	KindCriminals = "criminals"
	KindUsers     = "users"
)

// Header rows accepted by the pipelines, compared case-insensitively.
var (
	CriminalHeader = []string{"first_name", "last_name", "offense_type", "offense_class", "description", "offense_source"}
	UserHeader     = []string{"first_name", "last_name", "email", "expiration_date"}
)

// Errors that reject an upload before any row is processed.
var (
	ErrFileTooLarge    = errors.New("file is too large")
	ErrNotCSV          = errors.New("file must have a .csv extension")
	ErrInvalidHeader   = errors.New("invalid CSV header")
	ErrInvalidEncoding = errors.New("file must be UTF-8 encoded")
	ErrEmptyFile       = errors.New("file is empty")
)

// Upload is a file received from a form.
type Upload struct {
	Filename   string
	Size       int64
	Body       io.Reader
	UploadedBy int64
	IP         string
}

// RowFailure is a rejected data row. Row counts the header as row 1.
type RowFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Result summarizes an accepted upload.
type Result struct {
	BatchID  string       `json:"batch_id"`
	Inserted int          `json:"inserted"`
	Failures []RowFailure `json:"failures"`
}

func (r *Result) fail(row int, reason string) {
	r.Failures = append(r.Failures, RowFailure{Row: row, Reason: reason})
}

// IngestionPipeline turns an upload into stored records.
type IngestionPipeline interface {
	Ingest(ctx context.Context, up Upload) (Result, error)
}

// EventLogger records the outcome of an import in the audit log.
type EventLogger interface {
	LogImportEvent(ctx context.Context, level, message string, userID *int64, ipAddress string, metadata map[string]any) error
}

// rejectReason maps a top-level error to a metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, ErrNotCSV):
		return "not_csv"
	case errors.Is(err, ErrInvalidHeader):
		return "invalid_header"
	case errors.Is(err, ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, ErrEmptyFile):
		return "empty"
	}
	return "read_error"
}

// csvFile is an upload whose header has been verified.
type csvFile struct {
	filename string
	reader   *csv.Reader
	width    int
}

// openCSV performs all whole-file checks and consumes the header row.
func openCSV(up Upload, maxBytes int64, header []string) (*csvFile, error) {
	name, err := util.SanitizeFilename(up.Filename)
	if err != nil || !util.HasExtension(name, ".csv") {
		return nil, ErrNotCSV
	}
	if up.Size > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, up.Size, maxBytes)
	}

	raw, err := io.ReadAll(io.LimitReader(up.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxBytes)
	}

	// A BOM selects UTF-8 or UTF-16; without one the bytes must already be UTF-8.
	data, _, err := transform.Bytes(unicode.BOMOverride(encoding.Nop.NewDecoder()), raw)
	if err != nil || !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	got, err := r.Read()
	if err != nil || !headerMatches(got, header) {
		return nil, fmt.Errorf("%w. Expected: %s", ErrInvalidHeader, strings.Join(header, ","))
	}

	return &csvFile{filename: name, reader: r, width: len(header)}, nil
}

func headerMatches(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if !strings.EqualFold(strings.TrimSpace(got[i]), want[i]) {
			return false
		}
	}
	return true
}

// each calls fn for every data row with its trimmed fields and the line
// number it starts on. Malformed rows are reported through res and skipped.
// It stops early when ctx is done.
func (f *csvFile) each(ctx context.Context, res *Result, fn func(row int, fields []string)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fields, err := f.reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			res.fail(perr.StartLine, "malformed CSV: "+perr.Err.Error())
			continue
		}
		if err != nil {
			return fmt.Errorf("reading csv: %w", err)
		}

		// encoding/csv skips blank lines, so count physical lines.
		row, _ := f.reader.FieldPos(0)

		if len(fields) != f.width {
			res.fail(row, fmt.Sprintf("wrong number of fields: expected %d, got %d", f.width, len(fields)))
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		fn(row, fields)
	}
}
