// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/offense"
	"github.com/olegiv/criminology-go/internal/render"
	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/util"
)

// RecordsHandler serves the dashboard, the label listings, search and the
// record forms.
type RecordsHandler struct {
	records  *service.RecordService
	finder   service.SearchService
	resolver offense.ClassResolver
	renderer *render.Renderer
	pageSize int
}

// NewRecordsHandler creates a new RecordsHandler. pageSize must match the
// finder's page size.
func NewRecordsHandler(records *service.RecordService, finder service.SearchService, resolver offense.ClassResolver, renderer *render.Renderer, pageSize int) *RecordsHandler {
	return &RecordsHandler{
		records:  records,
		finder:   finder,
		resolver: resolver,
		renderer: renderer,
		pageSize: pageSize,
	}
}

// offenseOptions feeds the select boxes of the offense form.
type offenseOptions struct {
	Sources []offense.Source
	Types   []offense.Type
	Classes []offense.ClassOption
}

// labelSection is one paged list of records on a listing page.
type labelSection struct {
	Title   string
	Page    service.Page
	PageNum int
	PrevURL string
	NextURL string
}

// Landing handles GET /. Logged-in users go to their dashboard.
func (h *RecordsHandler) Landing(w http.ResponseWriter, r *http.Request) {
	if middleware.GetUser(r) != nil {
		http.Redirect(w, r, redirectHome, http.StatusSeeOther)
		return
	}
	renderPage(w, r, h.renderer, "public/landing", render.TemplateData{Title: "Criminology"})
}

// Home handles GET /home with the per-label totals.
func (h *RecordsHandler) Home(w http.ResponseWriter, r *http.Request) {
	counts, err := h.finder.Counts(r.Context())
	if err != nil {
		logAndInternalError(w, "failed to count records", "error", err)
		return
	}
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	renderPage(w, r, h.renderer, "records/home", render.TemplateData{
		Title: "Dashboard",
		Data: map[string]any{
			"Counts": counts,
			"Total":  total,
		},
	})
}

// List handles GET /criminals with one section per label.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	labels := offense.Labels()
	sections := make([]labelSection, 0, len(labels))
	for _, l := range labels {
		sec, err := h.section(r, l, "", l.Name())
		if err != nil {
			logAndInternalError(w, "failed to list records", "label", l.Key(), "error", err)
			return
		}
		sections = append(sections, sec)
	}
	renderPage(w, r, h.renderer, "records/list", render.TemplateData{
		Title: "Criminals",
		Data:  map[string]any{"Sections": sections},
	})
}

// Classes handles GET /criminals/{source}/{type} with one section per
// offense class of the label.
func (h *RecordsHandler) Classes(w http.ResponseWriter, r *http.Request) {
	source, err := offense.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	typ, err := parseTypeSlug(chi.URLParam(r, "type"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	label := offense.Label{Source: source, Type: typ}

	opts, err := h.resolver.Options(source, typ)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	sections := make([]labelSection, 0, len(opts))
	for _, o := range opts {
		sec, err := h.section(r, label, o.Code, o.Label)
		if err != nil {
			logAndInternalError(w, "failed to list records", "label", label.Key(), "class", o.Code, "error", err)
			return
		}
		sections = append(sections, sec)
	}
	renderPage(w, r, h.renderer, "records/classes", render.TemplateData{
		Title: label.Name(),
		Data: map[string]any{
			"Label":    label,
			"Sections": sections,
		},
	})
}

// parseTypeSlug accepts the URL form of a type ("felony") or its plural
// ("felons") as well as the type itself.
func parseTypeSlug(s string) (offense.Type, error) {
	for _, t := range offense.Types {
		if strings.EqualFold(s, t.Slug()) || strings.EqualFold(s, t.Plural()) {
			return t, nil
		}
	}
	return offense.ParseType(s)
}

// section loads one page of a label, or of one class when class is set.
// Each section pages independently through its own query parameter.
func (h *RecordsHandler) section(r *http.Request, l offense.Label, class, title string) (labelSection, error) {
	param := "page_" + l.Key()
	if class != "" {
		param = "page_" + strings.ToLower(class)
	}
	pageNum := ParseIntParam(r, param, 1, 1, 0)

	page, err := h.finder.ClassPage(r.Context(), l.Key(), class, (pageNum-1)*h.pageSize)
	if err != nil {
		return labelSection{}, err
	}

	sec := labelSection{Title: title, Page: page, PageNum: pageNum}
	query := r.URL.Query()
	if pageNum > 1 {
		sec.PrevURL = r.URL.Path + "?" + withParam(query, param, pageNum-1)
	}
	if page.HasMore {
		sec.NextURL = r.URL.Path + "?" + withParam(query, param, pageNum+1)
	}
	return sec, nil
}

func withParam(q url.Values, key string, n int) string {
	c := make(url.Values, len(q)+1)
	for k, v := range q {
		c[k] = v
	}
	c.Set(key, strconv.Itoa(n))
	return c.Encode()
}

// Search handles GET /criminals/search?q=.
func (h *RecordsHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	results, err := h.finder.Search(r.Context(), query)
	if err != nil {
		logAndInternalError(w, "search failed", "error", err)
		return
	}
	renderPage(w, r, h.renderer, "records/search", render.TemplateData{
		Title: "Search",
		Data: map[string]any{
			"Query":   query,
			"Results": results,
		},
	})
}

// New handles GET /criminals/new.
func (h *RecordsHandler) New(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, "records/new", render.TemplateData{
		Title: "New record",
		Data:  map[string]any{"Options": h.options(nil)},
		Form:  url.Values{},
	})
}

// Create handles POST /criminals/new.
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, redirectCriminalsNew) {
		return
	}

	c, errs := criminalFromForm(r.PostForm)
	o, oerrs := offenseFromForm(r.PostForm)
	for k, v := range oerrs {
		errs[k] = v
	}
	data := render.TemplateData{
		Title: "New record",
		Data:  map[string]any{"Options": h.options(r.PostForm)},
	}
	if len(errs) > 0 {
		renderFormErrors(w, r, h.renderer, "records/new", data, errs)
		return
	}

	id, err := h.records.Create(r.Context(), c, o, actor(r))
	var fe service.FieldErrors
	if errors.As(err, &fe) {
		renderFormErrors(w, r, h.renderer, "records/new", data, fe)
		return
	}
	if err != nil {
		logAndInternalError(w, "failed to create record", "error", err)
		return
	}
	flashSuccess(w, r, h.renderer, fmt.Sprintf(redirectCriminalsID, id), "Record created.")
}

// Detail handles GET /criminals/{id}. Staff see the edit forms.
func (h *RecordsHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIDWithRedirect(w, r, h.renderer, redirectCriminals)
	if !ok {
		return
	}
	detail, ok := requireEntityWithRedirect(w, r, h.renderer, redirectCriminals, "Record", id, func(id int64) (service.RecordDetail, error) {
		return h.records.Get(r.Context(), id)
	})
	if !ok {
		return
	}
	h.renderDetail(w, r, http.StatusOK, detail, detailForm(detail), nil)
}

func detailForm(d service.RecordDetail) url.Values {
	return formValues(
		"first_name", d.Criminal.FirstName,
		"last_name", d.Criminal.LastName,
		"date_of_birth", util.FormatNullDate(d.Criminal.DateOfBirth),
	)
}

func (h *RecordsHandler) renderDetail(w http.ResponseWriter, r *http.Request, status int, d service.RecordDetail, form url.Values, errs service.FieldErrors) {
	renderStatus(w, r, h.renderer, status, "records/detail", render.TemplateData{
		Title: d.Criminal.FirstName + " " + d.Criminal.LastName,
		Data: map[string]any{
			"Detail":  d,
			"CanEdit": middleware.GetRole(r).AtLeast(model.RoleStaff),
			"Options": h.options(form),
		},
		Form:   form,
		Errors: errs,
	})
}

// Update handles POST /criminals/{id}.
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIDWithRedirect(w, r, h.renderer, redirectCriminals)
	if !ok {
		return
	}
	redirect := fmt.Sprintf(redirectCriminalsID, id)
	if !parseFormOrRedirect(w, r, h.renderer, redirect) {
		return
	}

	c, errs := criminalFromForm(r.PostForm)
	if len(errs) == 0 {
		err := h.records.Update(r.Context(), id, c, actor(r))
		switch {
		case err == nil:
			flashSuccess(w, r, h.renderer, redirect, "Record updated.")
			return
		case errors.Is(err, service.ErrNotFound):
			flashError(w, r, h.renderer, redirectCriminals, "Record not found")
			return
		case !errors.As(err, &errs):
			logAndInternalError(w, "failed to update record", "error", err, "id", id)
			return
		}
	}
	h.redisplay(w, r, id, errs)
}

// AddOffense handles POST /criminals/{id}/offenses.
func (h *RecordsHandler) AddOffense(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIDWithRedirect(w, r, h.renderer, redirectCriminals)
	if !ok {
		return
	}
	redirect := fmt.Sprintf(redirectCriminalsID, id)
	if !parseFormOrRedirect(w, r, h.renderer, redirect) {
		return
	}

	o, errs := offenseFromForm(r.PostForm)
	if len(errs) == 0 {
		err := h.records.AddOffense(r.Context(), id, o, actor(r))
		switch {
		case err == nil:
			flashSuccess(w, r, h.renderer, redirect, "Offense added.")
			return
		case errors.Is(err, service.ErrNotFound):
			flashError(w, r, h.renderer, redirectCriminals, "Record not found")
			return
		case !errors.As(err, &errs):
			logAndInternalError(w, "failed to add offense", "error", err, "id", id)
			return
		}
	}
	h.redisplay(w, r, id, errs)
}

// redisplay shows the detail page again with the submitted values.
func (h *RecordsHandler) redisplay(w http.ResponseWriter, r *http.Request, id int64, errs service.FieldErrors) {
	detail, ok := requireEntityWithRedirect(w, r, h.renderer, redirectCriminals, "Record", id, func(id int64) (service.RecordDetail, error) {
		return h.records.Get(r.Context(), id)
	})
	if !ok {
		return
	}
	form := detailForm(detail)
	for k, v := range r.PostForm {
		form[k] = v
	}
	h.renderDetail(w, r, http.StatusUnprocessableEntity, detail, form, errs)
}

// RemoveOffense handles POST /criminals/{id}/offenses/{linkID}/delete.
func (h *RecordsHandler) RemoveOffense(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIDWithRedirect(w, r, h.renderer, redirectCriminals)
	if !ok {
		return
	}
	redirect := fmt.Sprintf(redirectCriminalsID, id)
	linkID, err := ParseURLParamInt64(r, "linkID")
	if err != nil || linkID <= 0 {
		flashError(w, r, h.renderer, redirect, "Invalid ID")
		return
	}

	err = h.records.RemoveOffense(r.Context(), id, linkID, actor(r))
	switch {
	case err == nil:
		flashSuccess(w, r, h.renderer, redirect, "Offense removed.")
	case errors.Is(err, service.ErrNotFound):
		flashError(w, r, h.renderer, redirect, "Offense not found")
	default:
		slog.Error("failed to remove offense", "error", err, "id", id, "link_id", linkID)
		flashError(w, r, h.renderer, redirect, "Error removing offense")
	}
}

// Delete handles POST /criminals/{id}/delete.
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIDWithRedirect(w, r, h.renderer, redirectCriminals)
	if !ok {
		return
	}

	err := h.records.Delete(r.Context(), id, actor(r))
	switch {
	case err == nil:
		flashSuccess(w, r, h.renderer, redirectCriminals, "Record deleted.")
	case errors.Is(err, service.ErrNotFound):
		flashError(w, r, h.renderer, redirectCriminals, "Record not found")
	default:
		slog.Error("failed to delete record", "error", err, "id", id)
		flashError(w, r, h.renderer, fmt.Sprintf(redirectCriminalsID, id), "Error deleting record")
	}
}

// options builds the select options for the offense form. The class list
// follows the submitted source and type, or the first of each.
func (h *RecordsHandler) options(form url.Values) offenseOptions {
	opts := offenseOptions{Sources: offense.Sources, Types: offense.Types}
	source, typ := offense.Sources[0], offense.Types[0]
	if s, err := offense.ParseSource(form.Get("offense_source")); err == nil {
		source = s
	}
	if t, err := offense.ParseType(form.Get("offense_type")); err == nil {
		typ = t
	}
	opts.Classes, _ = h.resolver.Options(source, typ)
	return opts
}

// criminalFromForm reads the person fields. Only the date can fail here;
// names are validated by the service.
func criminalFromForm(form url.Values) (service.CriminalInput, service.FieldErrors) {
	errs := service.FieldErrors{}
	dob, err := util.ParseNullDate(form.Get("date_of_birth"))
	if err != nil {
		errs["date_of_birth"] = "Enter a date as YYYY-MM-DD."
	}
	return service.CriminalInput{
		FirstName:   form.Get("first_name"),
		LastName:    form.Get("last_name"),
		DateOfBirth: dob,
	}, errs
}

func offenseFromForm(form url.Values) (service.OffenseInput, service.FieldErrors) {
	errs := service.FieldErrors{}
	charged, err := util.ParseNullDate(form.Get("date_charged"))
	if err != nil {
		errs["date_charged"] = "Enter a date as YYYY-MM-DD."
	}
	return service.OffenseInput{
		Source:      form.Get("offense_source"),
		Type:        form.Get("offense_type"),
		Class:       form.Get("offense_class"),
		Description: form.Get("description"),
		DateCharged: charged,
		Convicted:   form.Get("convicted") != "",
	}, errs
}
