// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/olegiv/criminology-go/internal/ingest"
	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/util"
)

// multipartOverhead is allowed on top of the file size for the form
// boundaries and the CSRF field.
const multipartOverhead int64 = 64 << 10

var errNoFile = errors.New("no file uploaded")

// ImportHandler handles the CSV uploads and the import history.
type ImportHandler struct {
	criminals ingest.IngestionPipeline
	users     *ingest.UserPipeline
	queries   *store.Queries
	renderer  *render.Renderer
	maxBytes  int64
}

// NewImportHandler creates a new ImportHandler. maxBytes must match the
// pipelines' limit.
func NewImportHandler(db *store.DB, criminals ingest.IngestionPipeline, users *ingest.UserPipeline, renderer *render.Renderer, maxBytes int64) *ImportHandler {
	if maxBytes <= 0 {
		maxBytes = ingest.DefaultMaxBytes
	}
	return &ImportHandler{
		criminals: criminals,
		users:     users,
		queries:   store.New(db),
		renderer:  renderer,
		maxBytes:  maxBytes,
	}
}

func (h *ImportHandler) formData(header []string, result *ingest.Result) map[string]any {
	return map[string]any{
		"MaxSize":  humanize.IBytes(uint64(h.maxBytes)),
		"MaxBytes": h.maxBytes,
		"Header":   strings.Join(header, ","),
		"Result":   result,
	}
}

// CriminalsForm handles GET /criminals/import.
func (h *ImportHandler) CriminalsForm(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, "records/import", render.TemplateData{
		Title: "Import records",
		Data:  h.formData(ingest.CriminalHeader, nil),
	})
}

// ImportCriminals handles POST /criminals/import and shows the per-row
// result on the same page.
func (h *ImportHandler) ImportCriminals(w http.ResponseWriter, r *http.Request) {
	up, file, err := h.readUpload(w, r)
	if err != nil {
		flashError(w, r, h.renderer, redirectCriminalsImport, uploadErrorMessage(err, h.maxBytes, ingest.CriminalHeader))
		return
	}
	defer func() { _ = file.Close() }()

	res, err := h.criminals.Ingest(r.Context(), up)
	if err != nil && res.BatchID == "" {
		if !isRejection(err) {
			slog.Error("criminal import failed", "error", err, "filename", up.Filename)
		}
		flashError(w, r, h.renderer, redirectCriminalsImport, uploadErrorMessage(err, h.maxBytes, ingest.CriminalHeader))
		return
	}

	data := render.TemplateData{
		Title:     "Import records",
		Data:      h.formData(ingest.CriminalHeader, &res),
		Flash:     importSummary(res),
		FlashType: render.FlashSuccess,
	}
	if err != nil || len(res.Failures) > 0 {
		data.FlashType = render.FlashError
	}
	renderPage(w, r, h.renderer, "records/import", data)
}

// UsersForm handles GET /admin/users/import.
func (h *ImportHandler) UsersForm(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, "admin/users_import", render.TemplateData{
		Title: "Import users",
		Data:  h.formData(ingest.UserHeader, nil),
	})
}

// ImportUsers handles POST /admin/users/import. The response is a CSV of
// the created accounts and their temporary passwords.
func (h *ImportHandler) ImportUsers(w http.ResponseWriter, r *http.Request) {
	up, file, err := h.readUpload(w, r)
	if err != nil {
		flashError(w, r, h.renderer, redirectAdminUsersImport, uploadErrorMessage(err, h.maxBytes, ingest.UserHeader))
		return
	}
	defer func() { _ = file.Close() }()

	res, err := h.users.Ingest(r.Context(), up)
	if err != nil && res.BatchID == "" {
		if !isRejection(err) {
			slog.Error("user import failed", "error", err, "filename", up.Filename)
		}
		flashError(w, r, h.renderer, redirectAdminUsersImport, uploadErrorMessage(err, h.maxBytes, ingest.UserHeader))
		return
	}
	if len(res.Credentials) == 0 {
		flashError(w, r, h.renderer, redirectAdminUsersImport, importSummary(res.Result)+failureList(res.Failures))
		return
	}

	var buf bytes.Buffer
	if err := ingest.WriteCredentials(&buf, res.Credentials); err != nil {
		logAndInternalError(w, "failed to write credentials", "error", err)
		return
	}

	// The download replaces the page, so failures are left for the next one.
	if len(res.Failures) > 0 {
		h.renderer.SetFlash(r, importSummary(res.Result)+failureList(res.Failures), render.FlashError)
	}

	name := util.Slugify(strings.TrimSuffix(up.Filename, ".csv"))
	if name == "" {
		name = "users"
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"-credentials.csv"))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to send credentials", "error", err)
	}
}

// Batches handles GET /admin/imports.
func (h *ImportHandler) Batches(w http.ResponseWriter, r *http.Request) {
	total, err := h.queries.CountImportBatches(r.Context())
	if err != nil {
		logAndInternalError(w, "failed to count imports", "error", err)
		return
	}
	page, _ := NormalizePagination(ParsePageParam(r), int(total), ImportsPerPage)

	batches, err := h.queries.ListImportBatches(r.Context(), ImportsPerPage, int64((page-1)*ImportsPerPage))
	if err != nil {
		logAndInternalError(w, "failed to list imports", "error", err)
		return
	}
	renderPage(w, r, h.renderer, "admin/imports", render.TemplateData{
		Title: "Imports",
		Data: map[string]any{
			"Batches":    batches,
			"Pagination": BuildPagination(page, int(total), ImportsPerPage, redirectAdminImports, nil),
		},
	})
}

// readUpload reads the "file" field of a multipart form. The caller closes
// the returned file.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (ingest.Upload, multipart.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return ingest.Upload{}, nil, ingest.ErrFileTooLarge
		}
		return ingest.Upload{}, nil, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return ingest.Upload{}, nil, errNoFile
	}
	return ingest.Upload{
		Filename:   header.Filename,
		Size:       header.Size,
		Body:       file,
		UploadedBy: middleware.GetUserID(r),
		IP:         middleware.ClientIP(r),
	}, file, nil
}

func isRejection(err error) bool {
	for _, target := range []error{
		ingest.ErrFileTooLarge, ingest.ErrNotCSV, ingest.ErrInvalidHeader,
		ingest.ErrInvalidEncoding, ingest.ErrEmptyFile,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// uploadErrorMessage turns a rejected upload into a message for the user.
func uploadErrorMessage(err error, maxBytes int64, header []string) string {
	switch {
	case errors.Is(err, errNoFile):
		return "Choose a CSV file to upload."
	case errors.Is(err, ingest.ErrFileTooLarge):
		return "The file is larger than " + humanize.IBytes(uint64(maxBytes)) + "."
	case errors.Is(err, ingest.ErrNotCSV):
		return "Only .csv files are accepted."
	case errors.Is(err, ingest.ErrInvalidHeader):
		return "The first line must be: " + strings.Join(header, ",")
	case errors.Is(err, ingest.ErrInvalidEncoding):
		return "The file must be UTF-8 encoded."
	case errors.Is(err, ingest.ErrEmptyFile):
		return "The file is empty."
	}
	return "The upload could not be read."
}

func importSummary(res ingest.Result) string {
	return fmt.Sprintf("%d inserted, %d failed.", res.Inserted, len(res.Failures))
}

// failureList lists the first failed rows for a flash message.
func failureList(failures []ingest.RowFailure) string {
	const shown = 5
	if len(failures) == 0 {
		return ""
	}
	parts := make([]string, 0, shown)
	for i, f := range failures {
		if i == shown {
			parts = append(parts, fmt.Sprintf("and %d more", len(failures)-shown))
			break
		}
		parts = append(parts, fmt.Sprintf("row %d: %s", f.Row, f.Reason))
	}
	return " " + strings.Join(parts, "; ")
}
