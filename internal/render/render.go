// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package render executes the html/template pages of the web UI.
package render

import (
	"bytes"
	"database/sql"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/offense"
	"github.com/olegiv/criminology-go/internal/store"
)

const (
	layoutFile  = "layouts/base.html"
	partialsDir = "partials"
)

// Flash message types.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Renderer handles template rendering with caching.
type Renderer struct {
	templates      map[string]*template.Template
	sessionManager *scs.SessionManager
	now            func() time.Time
}

// Config holds renderer configuration.
type Config struct {
	TemplatesFS    fs.FS
	SessionManager *scs.SessionManager
}

// New parses every page under TemplatesFS together with the base layout and
// the partials.
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{
		templates:      make(map[string]*template.Template),
		sessionManager: cfg.SessionManager,
		now:            time.Now,
	}
	if err := r.parseTemplates(cfg.TemplatesFS); err != nil {
		return nil, err
	}
	return r, nil
}

// parseTemplates names each page "dir/file" without the extension, e.g.
// "records/detail".
func (r *Renderer) parseTemplates(fsys fs.FS) error {
	partials, err := fs.Glob(fsys, partialsDir+"/*.html")
	if err != nil {
		return fmt.Errorf("listing partials: %w", err)
	}

	pages, err := fs.Glob(fsys, "*/*.html")
	if err != nil {
		return fmt.Errorf("listing pages: %w", err)
	}

	for _, page := range pages {
		dir := path.Dir(page)
		if dir == "layouts" || dir == partialsDir {
			continue
		}
		name := strings.TrimSuffix(page, ".html")

		files := append([]string{layoutFile}, partials...)
		files = append(files, page)
		tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(fsys, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	if len(r.templates) == 0 {
		return fmt.Errorf("no page templates found")
	}
	return nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
		"formatNullDate": func(t sql.NullTime) string {
			if !t.Valid {
				return ""
			}
			return t.Time.Format("Jan 2, 2006")
		},
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return t.Format("Jan 2, 2006 3:04 PM")
		},
		"inputDate": func(t sql.NullTime) string {
			if !t.Valid {
				return ""
			}
			return t.Time.Format("2006-01-02")
		},
		"nullString": func(s sql.NullString) string {
			return s.String
		},
		"truncate": func(s string, length int) string {
			if utf8.RuneCountInString(s) <= length {
				return s
			}
			return string([]rune(s)[:length]) + "..."
		},
		"classLabel": offense.ClassLabel,
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"queryWith": func(q url.Values, key, value string) string {
			v := url.Values{}
			for k, vals := range q {
				v[k] = append([]string(nil), vals...)
			}
			v.Set(key, value)
			return v.Encode()
		},
	}
}

// TemplateData holds data passed to templates.
type TemplateData struct {
	Title       string
	Data        any
	User        *store.User
	Form        url.Values
	Errors      map[string]string
	Flash       string
	FlashType   string
	Path        string
	CurrentYear int
}

// Render writes page name with status 200.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, name string, data TemplateData) error {
	return r.RenderStatus(w, req, http.StatusOK, name, data)
}

// RenderStatus writes page name with the given status. The page is rendered
// to a buffer first so template errors never produce half a page.
func (r *Renderer) RenderStatus(w http.ResponseWriter, req *http.Request, status int, name string, data TemplateData) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}

	data.CurrentYear = r.now().Year()
	data.Path = req.URL.Path
	if data.User == nil {
		data.User = middleware.GetUser(req)
	}

	if r.sessionManager != nil {
		if flash := r.sessionManager.PopString(req.Context(), "flash"); flash != "" {
			data.Flash = flash
			data.FlashType = r.sessionManager.PopString(req.Context(), "flash_type")
			if data.FlashType == "" {
				data.FlashType = FlashInfo
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, "base", data); err != nil {
		return fmt.Errorf("executing template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// SetFlash stores a message for the next rendered page.
func (r *Renderer) SetFlash(req *http.Request, message, flashType string) {
	if r.sessionManager != nil {
		r.sessionManager.Put(req.Context(), "flash", message)
		r.sessionManager.Put(req.Context(), "flash_type", flashType)
	}
}
