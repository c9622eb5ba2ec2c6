// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/olegiv/criminology-go/internal/offense"
)

// offensePriority ranks offense types by offense.Type.Priority, higher is
// more severe.
var offensePriority = priorityCase("o.offense_type")

// rankedOffensesCTE numbers each criminal's offenses by severity so that
// rn = 1 is the highest offense; ties go to the earliest link.
var rankedOffensesCTE = `WITH ranked AS (
	SELECT l.criminal_id, o.id AS offense_id, o.source, o.offense_type,
		o.offense_class, o.description,
		ROW_NUMBER() OVER (
			PARTITION BY l.criminal_id
			ORDER BY ` + offensePriority + ` DESC, l.id ASC
		) AS rn
	FROM criminal_offenses l
	JOIN offenses o ON o.id = l.offense_id
)`

func priorityCase(column string) string {
	var b strings.Builder
	b.WriteString("CASE " + column)
	for _, t := range offense.Types {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", t, t.Priority())
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

var summaryColumns = []string{
	"c.id", "c.first_name", "c.last_name",
	"r.offense_id", "r.source", "r.offense_type", "r.offense_class", "r.description",
}

// CreateCriminalParams holds the fields for CreateCriminal.
type CreateCriminalParams struct {
	FirstName   string
	LastName    string
	SearchFirst string
	SearchLast  string
	DateOfBirth sql.NullTime
	CreatedAt   time.Time
}

// CreateCriminal inserts a criminal.
func (q *Queries) CreateCriminal(ctx context.Context, arg CreateCriminalParams) (Criminal, error) {
	b := q.sb.Insert("criminals").
		Columns("first_name", "last_name", "search_first", "search_last", "date_of_birth", "created_at", "updated_at").
		Values(arg.FirstName, arg.LastName, arg.SearchFirst, arg.SearchLast, arg.DateOfBirth, arg.CreatedAt, arg.CreatedAt).
		Suffix("RETURNING id")

	var id int64
	if err := q.queryRow(ctx, b, &id); err != nil {
		return Criminal{}, err
	}
	return Criminal{
		ID:          id,
		FirstName:   arg.FirstName,
		LastName:    arg.LastName,
		SearchFirst: arg.SearchFirst,
		SearchLast:  arg.SearchLast,
		DateOfBirth: arg.DateOfBirth,
		CreatedAt:   arg.CreatedAt,
		UpdatedAt:   arg.CreatedAt,
	}, nil
}

// GetCriminal returns sql.ErrNoRows when the criminal does not exist.
func (q *Queries) GetCriminal(ctx context.Context, id int64) (Criminal, error) {
	var c Criminal
	err := q.queryRow(ctx, q.sb.
		Select("id", "first_name", "last_name", "search_first", "search_last", "date_of_birth", "created_at", "updated_at").
		From("criminals").Where(sq.Eq{"id": id}),
		&c.ID, &c.FirstName, &c.LastName, &c.SearchFirst, &c.SearchLast, &c.DateOfBirth, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// UpdateCriminalParams holds the editable criminal fields.
type UpdateCriminalParams struct {
	ID          int64
	FirstName   string
	LastName    string
	SearchFirst string
	SearchLast  string
	DateOfBirth sql.NullTime
	UpdatedAt   time.Time
}

// UpdateCriminal changes a criminal's personal details.
func (q *Queries) UpdateCriminal(ctx context.Context, arg UpdateCriminalParams) (int64, error) {
	return rowsAffected(q.exec(ctx, q.sb.Update("criminals").
		Set("first_name", arg.FirstName).
		Set("last_name", arg.LastName).
		Set("search_first", arg.SearchFirst).
		Set("search_last", arg.SearchLast).
		Set("date_of_birth", arg.DateOfBirth).
		Set("updated_at", arg.UpdatedAt).
		Where(sq.Eq{"id": arg.ID})))
}

// DeleteCriminal removes a criminal together with its offense links.
func (q *Queries) DeleteCriminal(ctx context.Context, id int64) (int64, error) {
	if _, err := q.exec(ctx, q.sb.Delete("criminal_offenses").Where(sq.Eq{"criminal_id": id})); err != nil {
		return 0, err
	}
	return rowsAffected(q.exec(ctx, q.sb.Delete("criminals").Where(sq.Eq{"id": id})))
}

// OffenseParams identifies an offense definition.
type OffenseParams struct {
	Source       string
	OffenseType  string
	OffenseClass string
	Description  string
}

// GetOrCreateOffense returns the offense with exactly these fields, inserting
// it first when it does not exist yet.
func (q *Queries) GetOrCreateOffense(ctx context.Context, arg OffenseParams, now time.Time) (Offense, error) {
	_, err := q.exec(ctx, q.sb.Insert("offenses").
		Columns("source", "offense_type", "offense_class", "description", "created_at").
		Values(arg.Source, arg.OffenseType, arg.OffenseClass, arg.Description, now).
		Suffix("ON CONFLICT (source, offense_type, offense_class, description) DO NOTHING"))
	if err != nil {
		return Offense{}, err
	}

	var o Offense
	err = q.queryRow(ctx, q.sb.
		Select("id", "source", "offense_type", "offense_class", "description", "created_at").
		From("offenses").
		Where(sq.Eq{
			"source":        arg.Source,
			"offense_type":  arg.OffenseType,
			"offense_class": arg.OffenseClass,
			"description":   arg.Description,
		}),
		&o.ID, &o.Source, &o.OffenseType, &o.OffenseClass, &o.Description, &o.CreatedAt)
	return o, err
}

// LinkOffenseParams holds the fields for LinkOffense.
type LinkOffenseParams struct {
	CriminalID  int64
	OffenseID   int64
	DateCharged sql.NullTime
	Convicted   bool
	CreatedAt   time.Time
}

// LinkOffense attaches an offense to a criminal and returns the link id.
func (q *Queries) LinkOffense(ctx context.Context, arg LinkOffenseParams) (int64, error) {
	var id int64
	err := q.queryRow(ctx, q.sb.Insert("criminal_offenses").
		Columns("criminal_id", "offense_id", "date_charged", "convicted", "created_at").
		Values(arg.CriminalID, arg.OffenseID, arg.DateCharged, arg.Convicted, arg.CreatedAt).
		Suffix("RETURNING id"), &id)
	return id, err
}

// UnlinkOffense removes one offense link from a criminal.
func (q *Queries) UnlinkOffense(ctx context.Context, criminalID, linkID int64) (int64, error) {
	return rowsAffected(q.exec(ctx, q.sb.Delete("criminal_offenses").
		Where(sq.Eq{"id": linkID, "criminal_id": criminalID})))
}

// ListCriminalOffenses returns a criminal's offenses, most severe first.
func (q *Queries) ListCriminalOffenses(ctx context.Context, criminalID int64) ([]CriminalOffense, error) {
	rows, err := q.query(ctx, q.sb.
		Select("l.id", "l.criminal_id", "l.date_charged", "l.convicted", "l.created_at",
			"o.id", "o.source", "o.offense_type", "o.offense_class", "o.description", "o.created_at").
		From("criminal_offenses l").
		Join("offenses o ON o.id = l.offense_id").
		Where(sq.Eq{"l.criminal_id": criminalID}).
		OrderBy(offensePriority+" DESC", "l.id"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var links []CriminalOffense
	for rows.Next() {
		var l CriminalOffense
		if err := rows.Scan(&l.ID, &l.CriminalID, &l.DateCharged, &l.Convicted, &l.CreatedAt,
			&l.Offense.ID, &l.Offense.Source, &l.Offense.OffenseType, &l.Offense.OffenseClass,
			&l.Offense.Description, &l.Offense.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// HighestOffenseFilter selects criminals by their highest offense. Class is
// optional.
type HighestOffenseFilter struct {
	Source      string
	OffenseType string
	Class       string
}

func (f HighestOffenseFilter) where() sq.Eq {
	eq := sq.Eq{"r.source": f.Source, "r.offense_type": f.OffenseType}
	if f.Class != "" {
		eq["r.offense_class"] = f.Class
	}
	return eq
}

// ListByHighestOffense returns one page of criminals whose highest offense
// matches f, ordered by last name, first name and id.
func (q *Queries) ListByHighestOffense(ctx context.Context, f HighestOffenseFilter, limit, offset int64) ([]CriminalSummary, error) {
	rows, err := q.query(ctx, q.sb.Select(summaryColumns...).
		Prefix(rankedOffensesCTE).
		From("criminals c").
		Join("ranked r ON r.criminal_id = c.id AND r.rn = 1").
		Where(f.where()).
		OrderBy("c.last_name", "c.first_name", "c.id").
		Limit(uint64(limit)).
		Offset(uint64(offset)))
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

// CountByHighestOffense returns how many criminals match f.
func (q *Queries) CountByHighestOffense(ctx context.Context, f HighestOffenseFilter) (int64, error) {
	return q.count(ctx, q.sb.Select("COUNT(*)").
		Prefix(rankedOffensesCTE).
		From("ranked r").
		Where(sq.Eq{"r.rn": 1}).
		Where(f.where()))
}

// CountHighestOffenseGroups returns the number of criminals per highest
// offense source and type.
func (q *Queries) CountHighestOffenseGroups(ctx context.Context) ([]LabelCount, error) {
	rows, err := q.query(ctx, q.sb.Select("r.source", "r.offense_type", "COUNT(*)").
		Prefix(rankedOffensesCTE).
		From("ranked r").
		Where(sq.Eq{"r.rn": 1}).
		GroupBy("r.source", "r.offense_type"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var counts []LabelCount
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Source, &c.OffenseType, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// SearchCriminals returns criminals whose first or last search name contains
// pattern, which must already be normalized. Criminals without offenses are
// included.
func (q *Queries) SearchCriminals(ctx context.Context, pattern string, limit int64) ([]CriminalSummary, error) {
	like := "%" + escapeLike(pattern) + "%"
	rows, err := q.query(ctx, q.sb.Select(summaryColumns...).
		Prefix(rankedOffensesCTE).
		From("criminals c").
		LeftJoin("ranked r ON r.criminal_id = c.id AND r.rn = 1").
		Where(sq.Or{
			sq.Expr(`c.search_first LIKE ? ESCAPE '\'`, like),
			sq.Expr(`c.search_last LIKE ? ESCAPE '\'`, like),
		}).
		OrderBy("c.last_name", "c.first_name", "c.id").
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]CriminalSummary, error) {
	defer func() { _ = rows.Close() }()

	var items []CriminalSummary
	for rows.Next() {
		var (
			s                               CriminalSummary
			offenseID                       sql.NullInt64
			source, typ, class, description sql.NullString
		)
		if err := rows.Scan(&s.CriminalID, &s.FirstName, &s.LastName,
			&offenseID, &source, &typ, &class, &description); err != nil {
			return nil, err
		}
		if offenseID.Valid {
			s.HasOffense = true
			s.Offense = Offense{
				ID:           offenseID.Int64,
				Source:       source.String,
				OffenseType:  typ.String,
				OffenseClass: class.String,
				Description:  description.String,
			}
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	r := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return string(r)
}
