// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/offense"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/util"
)

// Field limits for criminal records.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 1000
)

// ErrNotFound is returned when a criminal, offense link or user does not exist.
var ErrNotFound = errors.New("not found")

// fieldOrder fixes the order in which FieldErrors are reported.
var fieldOrder = []string{
	"first_name", "last_name", "date_of_birth", "email", "username", "password",
	"expiration_date", "security_question", "security_answer",
	"offense_source", "offense_type", "offense_class", "description",
}

// FieldErrors maps form field names to a validation message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, f := range fieldOrder {
		if msg, ok := e[f]; ok {
			msgs = append(msgs, msg)
		}
	}
	return strings.Join(msgs, "; ")
}

// Actor identifies who performed a change, for the event log.
type Actor struct {
	UserID int64
	IP     string
}

func (a Actor) userID() *int64 {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

// CriminalInput holds a criminal's personal details as entered.
type CriminalInput struct {
	FirstName   string
	LastName    string
	DateOfBirth sql.NullTime
}

// OffenseInput holds an offense as entered in a form or CSV row.
type OffenseInput struct {
	Source      string
	Type        string
	Class       string
	Description string
	DateCharged sql.NullTime
	Convicted   bool
}

// RecordDetail is a criminal with all linked offenses, most severe first.
type RecordDetail struct {
	Criminal store.Criminal
	Offenses []store.CriminalOffense
}

// Highest returns the criminal's highest offense, or nil when none is linked.
func (d RecordDetail) Highest() *store.CriminalOffense {
	if len(d.Offenses) == 0 {
		return nil
	}
	return &d.Offenses[0]
}

// RecordService creates, edits and deletes criminal records.
type RecordService struct {
	db       *store.DB
	queries  *store.Queries
	resolver offense.ClassResolver
	events   *EventService
	counts   CountsInvalidator
	now      func() time.Time
}

// NewRecordService creates a RecordService. events and counts may be nil.
func NewRecordService(db *store.DB, resolver offense.ClassResolver, events *EventService, counts CountsInvalidator) *RecordService {
	return &RecordService{
		db:       db,
		queries:  store.New(db),
		resolver: resolver,
		events:   events,
		counts:   counts,
		now:      time.Now,
	}
}

// ValidateCriminal trims the names and checks they are present.
func ValidateCriminal(in CriminalInput) (CriminalInput, FieldErrors) {
	errs := FieldErrors{}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	checkName := func(field, label, v string) {
		switch {
		case v == "":
			errs[field] = label + " is required."
		case utf8.RuneCountInString(v) > MaxNameLength:
			errs[field] = fmt.Sprintf("%s must be at most %d characters.", label, MaxNameLength)
		}
	}
	checkName("first_name", "First name", in.FirstName)
	checkName("last_name", "Last name", in.LastName)

	if len(errs) > 0 {
		return in, errs
	}
	return in, nil
}

// ValidateOffense resolves source, type and class and cleans the description.
func ValidateOffense(resolver offense.ClassResolver, in OffenseInput) (store.OffenseParams, FieldErrors) {
	errs := FieldErrors{}

	c, err := offense.Classify(resolver, in.Source, in.Type, in.Class)
	switch {
	case errors.Is(err, offense.ErrUnknownSource):
		errs["offense_source"] = fmt.Sprintf("Unknown offense source %q.", strings.TrimSpace(in.Source))
	case errors.Is(err, offense.ErrUnknownType):
		errs["offense_type"] = fmt.Sprintf("Unknown offense type %q.", strings.TrimSpace(in.Type))
	case err != nil:
		errs["offense_class"] = capitalize(err.Error()) + "."
	}

	desc := util.StripHTML(in.Description)
	switch {
	case desc == "":
		errs["description"] = "Description is required."
	case utf8.RuneCountInString(desc) > MaxDescriptionLength:
		errs["description"] = fmt.Sprintf("Description must be at most %d characters.", MaxDescriptionLength)
	}

	if len(errs) > 0 {
		return store.OffenseParams{}, errs
	}
	return store.OffenseParams{
		Source:       string(c.Source),
		OffenseType:  string(c.Type),
		OffenseClass: c.Class,
		Description:  desc,
	}, nil
}

// Insert validates and writes one record in its own transaction. When
// criminalID is zero a new criminal is created from c, otherwise the offense
// is attached to that criminal and c is ignored. It returns the criminal id
// and does not log or invalidate caches; bulk import calls it per row.
func (s *RecordService) Insert(ctx context.Context, criminalID int64, c CriminalInput, o OffenseInput) (int64, error) {
	var errs FieldErrors
	if criminalID == 0 {
		c, errs = ValidateCriminal(c)
	}
	params, offErrs := ValidateOffense(s.resolver, o)
	if errs != nil || offErrs != nil {
		merged := FieldErrors{}
		for k, v := range errs {
			merged[k] = v
		}
		for k, v := range offErrs {
			merged[k] = v
		}
		return 0, merged
	}

	now := s.now().UTC()
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		if criminalID == 0 {
			crim, err := q.CreateCriminal(ctx, store.CreateCriminalParams{
				FirstName:   c.FirstName,
				LastName:    c.LastName,
				SearchFirst: util.SearchKey(c.FirstName),
				SearchLast:  util.SearchKey(c.LastName),
				DateOfBirth: c.DateOfBirth,
				CreatedAt:   now,
			})
			if err != nil {
				return fmt.Errorf("creating criminal: %w", err)
			}
			criminalID = crim.ID
		} else if _, err := q.GetCriminal(ctx, criminalID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("loading criminal: %w", err)
		}

		off, err := q.GetOrCreateOffense(ctx, params, now)
		if err != nil {
			return fmt.Errorf("saving offense: %w", err)
		}
		if _, err := q.LinkOffense(ctx, store.LinkOffenseParams{
			CriminalID:  criminalID,
			OffenseID:   off.ID,
			DateCharged: o.DateCharged,
			Convicted:   o.Convicted,
			CreatedAt:   now,
		}); err != nil {
			return fmt.Errorf("linking offense: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return criminalID, nil
}

// Create adds a criminal with a first offense.
func (s *RecordService) Create(ctx context.Context, c CriminalInput, o OffenseInput, actor Actor) (int64, error) {
	id, err := s.Insert(ctx, 0, c, o)
	if err != nil {
		return 0, err
	}
	s.changed(ctx, actor, "Criminal record created", map[string]any{"criminal_id": id})
	return id, nil
}

// Get returns a criminal with all offenses.
func (s *RecordService) Get(ctx context.Context, id int64) (RecordDetail, error) {
	crim, err := s.queries.GetCriminal(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RecordDetail{}, ErrNotFound
		}
		return RecordDetail{}, fmt.Errorf("loading criminal: %w", err)
	}
	offenses, err := s.queries.ListCriminalOffenses(ctx, id)
	if err != nil {
		return RecordDetail{}, fmt.Errorf("loading offenses: %w", err)
	}
	return RecordDetail{Criminal: crim, Offenses: offenses}, nil
}

// Update changes a criminal's personal details.
func (s *RecordService) Update(ctx context.Context, id int64, c CriminalInput, actor Actor) error {
	c, errs := ValidateCriminal(c)
	if errs != nil {
		return errs
	}

	n, err := s.queries.UpdateCriminal(ctx, store.UpdateCriminalParams{
		ID:          id,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		SearchFirst: util.SearchKey(c.FirstName),
		SearchLast:  util.SearchKey(c.LastName),
		DateOfBirth: c.DateOfBirth,
		UpdatedAt:   s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("updating criminal: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.changed(ctx, actor, "Criminal record updated", map[string]any{"criminal_id": id})
	return nil
}

// AddOffense attaches another offense to an existing criminal.
func (s *RecordService) AddOffense(ctx context.Context, id int64, o OffenseInput, actor Actor) error {
	if _, err := s.Insert(ctx, id, CriminalInput{}, o); err != nil {
		return err
	}
	s.changed(ctx, actor, "Offense added", map[string]any{"criminal_id": id})
	return nil
}

// RemoveOffense detaches one offense link from a criminal.
func (s *RecordService) RemoveOffense(ctx context.Context, id, linkID int64, actor Actor) error {
	n, err := s.queries.UnlinkOffense(ctx, id, linkID)
	if err != nil {
		return fmt.Errorf("removing offense: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.changed(ctx, actor, "Offense removed", map[string]any{"criminal_id": id, "link_id": linkID})
	return nil
}

// Delete removes a criminal and all offense links.
func (s *RecordService) Delete(ctx context.Context, id int64, actor Actor) error {
	var n int64
	err := s.db.InTx(ctx, func(q *store.Queries) error {
		var err error
		n, err = q.DeleteCriminal(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting criminal: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.changed(ctx, actor, "Criminal record deleted", map[string]any{"criminal_id": id})
	return nil
}

// InvalidateCounts forwards to the configured counts cache.
func (s *RecordService) InvalidateCounts(ctx context.Context) {
	if s.counts != nil {
		s.counts.InvalidateCounts(ctx)
	}
}

func (s *RecordService) changed(ctx context.Context, actor Actor, msg string, meta map[string]any) {
	s.InvalidateCounts(ctx)
	if s.events != nil {
		_ = s.events.LogRecordEvent(ctx, model.EventLevelInfo, msg, actor.userID(), actor.IP, meta)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
