// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/testutil"
)

func TestValidateOffense(t *testing.T) {
	s := newTestServices(t, 10)

	tests := []struct {
		name      string
		in        OffenseInput
		wantField string
		want      store.OffenseParams
	}{
		{
			name: "valid federal felony",
			in:   OffenseInput{Source: "Federal", Type: "felony", Class: "d", Description: "Arson"},
			want: store.OffenseParams{Source: "federal", OffenseType: "Felony", OffenseClass: "D", Description: "Arson"},
		},
		{
			name: "infraction without class",
			in:   OffenseInput{Source: "virginia", Type: "Infraction", Description: "Speeding"},
			want: store.OffenseParams{Source: "virginia", OffenseType: "Infraction", OffenseClass: "NA", Description: "Speeding"},
		},
		{
			name: "html stripped",
			in:   OffenseInput{Source: "virginia", Type: "Misdemeanor", Class: "1", Description: "<b>Trespass</b>"},
			want: store.OffenseParams{Source: "virginia", OffenseType: "Misdemeanor", OffenseClass: "1", Description: "Trespass"},
		},
		{
			name:      "class from other source",
			in:        OffenseInput{Source: "virginia", Type: "Felony", Class: "A", Description: "x"},
			wantField: "offense_class",
		},
		{
			name:      "unknown source",
			in:        OffenseInput{Source: "texas", Type: "Felony", Class: "A", Description: "x"},
			wantField: "offense_source",
		},
		{
			name:      "unknown type",
			in:        OffenseInput{Source: "federal", Type: "Crime", Class: "A", Description: "x"},
			wantField: "offense_type",
		},
		{
			name:      "empty description",
			in:        OffenseInput{Source: "federal", Type: "Felony", Class: "A", Description: "<p></p>"},
			wantField: "description",
		},
		{
			name:      "description too long",
			in:        OffenseInput{Source: "federal", Type: "Felony", Class: "A", Description: strings.Repeat("x", MaxDescriptionLength+1)},
			wantField: "description",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := ValidateOffense(s.records.resolver, tt.in)
			if tt.wantField != "" {
				if _, ok := errs[tt.wantField]; !ok {
					t.Errorf("errors = %v, want one for %s", errs, tt.wantField)
				}
				return
			}
			if errs != nil {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if got != tt.want {
				t.Errorf("ValidateOffense = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFieldErrorsOrder(t *testing.T) {
	errs := FieldErrors{
		"offense_class": "Bad class.",
		"first_name":    "First name is required.",
	}
	if got, want := errs.Error(), "First name is required.; Bad class."; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCreateAndGet(t *testing.T) {
	s := newTestServices(t, 10)
	ctx := context.Background()
	clerk := testutil.CreateUser(t, s.db, "clerk", testutil.UserOptions{Staff: true})

	dob := sql.NullTime{Time: time.Date(1980, 5, 17, 0, 0, 0, 0, time.UTC), Valid: true}
	charged := sql.NullTime{Time: time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), Valid: true}
	id, err := s.records.Create(ctx,
		CriminalInput{FirstName: " Jane ", LastName: "Doe", DateOfBirth: dob},
		OffenseInput{Source: "virginia", Type: "Misdemeanor", Class: "2", Description: "Petty theft", DateCharged: charged, Convicted: true},
		Actor{UserID: clerk.ID, IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.records.AddOffense(ctx, id,
		OffenseInput{Source: "virginia", Type: "Felony", Class: "5", Description: "Burglary"},
		Actor{UserID: clerk.ID}); err != nil {
		t.Fatalf("AddOffense: %v", err)
	}

	d, err := s.records.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c := d.Criminal
	if c.FirstName != "Jane" || c.SearchFirst != "jane" || c.SearchLast != "doe" {
		t.Errorf("criminal = %q (search %q %q)", c.FirstName, c.SearchFirst, c.SearchLast)
	}
	if !c.DateOfBirth.Time.Equal(dob.Time) {
		t.Errorf("DateOfBirth = %v, want %v", c.DateOfBirth.Time, dob.Time)
	}
	if len(d.Offenses) != 2 {
		t.Fatalf("got %d offenses, want 2", len(d.Offenses))
	}

	h := d.Highest()
	if h == nil {
		t.Fatal("Highest() = nil")
	}
	if h.Offense.OffenseType != "Felony" || h.Offense.Description != "Burglary" {
		t.Errorf("highest = %s %q", h.Offense.OffenseType, h.Offense.Description)
	}
	if first := d.Offenses[1]; !first.Convicted || !first.DateCharged.Time.Equal(charged.Time) {
		t.Errorf("misdemeanor link = %+v", first)
	}

	events, _, err := s.events.ListEvents(ctx, store.EventFilter{Category: model.EventCategoryRecord}, 10, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 || events[0].Username.String != "clerk" {
		t.Errorf("record events = %+v, want two by clerk", events)
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestServices(t, 10)
	ctx := context.Background()

	_, err := s.records.Create(ctx,
		CriminalInput{FirstName: "", LastName: strings.Repeat("x", MaxNameLength+1)},
		OffenseInput{Source: "federal", Type: "Felony", Class: "F", Description: "x"},
		Actor{})
	var errs FieldErrors
	if !errors.As(err, &errs) {
		t.Fatalf("Create error = %v, want FieldErrors", err)
	}
	for _, field := range []string{"first_name", "last_name", "offense_class"} {
		if _, ok := errs[field]; !ok {
			t.Errorf("no error for %s in %v", field, errs)
		}
	}

	counts, err := s.finder.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	for _, c := range counts {
		if c.Count != 0 {
			t.Errorf("%s = %d after a rejected create", c.Label.Key(), c.Count)
		}
	}
}

func TestOffensesAreShared(t *testing.T) {
	s := newTestServices(t, 10)
	ctx := context.Background()

	a := s.addRecord(t, "Ann", "Alpha", "federal", "Felony", "A")
	b := s.addRecord(t, "Bob", "Beta", "federal", "Felony", "A")

	da, err := s.records.Get(ctx, a)
	if err != nil {
		t.Fatalf("Get(a): %v", err)
	}
	db, err := s.records.Get(ctx, b)
	if err != nil {
		t.Fatalf("Get(b): %v", err)
	}
	if da.Offenses[0].Offense.ID != db.Offenses[0].Offense.ID {
		t.Error("identical offenses were stored twice")
	}
	if da.Offenses[0].ID == db.Offenses[0].ID {
		t.Error("two criminals share one link")
	}
}

func TestUpdateRemoveDelete(t *testing.T) {
	s := newTestServices(t, 10)
	ctx := context.Background()

	id := s.addRecord(t, "Ann", "Alpha", "federal", "Felony", "A")

	if err := s.records.Update(ctx, id, CriminalInput{FirstName: "Anne", LastName: "Álvarez"}, Actor{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	d, err := s.records.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Criminal.SearchFirst != "anne" || d.Criminal.SearchLast != "alvarez" {
		t.Errorf("search names = %q %q, want anne alvarez", d.Criminal.SearchFirst, d.Criminal.SearchLast)
	}

	var errs FieldErrors
	if err := s.records.Update(ctx, id, CriminalInput{FirstName: "Anne"}, Actor{}); !errors.As(err, &errs) {
		t.Errorf("Update without last name error = %v, want FieldErrors", err)
	}

	notFound := []struct {
		name string
		err  error
	}{
		{"update", s.records.Update(ctx, 9999, CriminalInput{FirstName: "A", LastName: "B"}, Actor{})},
		{"add offense", s.records.AddOffense(ctx, 9999, OffenseInput{Source: "federal", Type: "Felony", Class: "A", Description: "x"}, Actor{})},
		{"remove offense", s.records.RemoveOffense(ctx, id, 9999, Actor{})},
	}
	for _, tt := range notFound {
		if !errors.Is(tt.err, ErrNotFound) {
			t.Errorf("%s error = %v, want ErrNotFound", tt.name, tt.err)
		}
	}

	if err := s.records.RemoveOffense(ctx, id, d.Offenses[0].ID, Actor{}); err != nil {
		t.Fatalf("RemoveOffense: %v", err)
	}
	d, err = s.records.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(d.Offenses) != 0 || d.Highest() != nil {
		t.Errorf("offenses after removal = %+v", d.Offenses)
	}

	if err := s.records.Delete(ctx, id, Actor{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.records.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := s.records.Delete(ctx, id, Actor{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}
