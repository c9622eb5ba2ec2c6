// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olegiv/criminology-go/internal/cache"
	"github.com/olegiv/criminology-go/internal/offense"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/util"
)

// SearchLimit caps the number of name search results.
const SearchLimit = 200

const countsCacheKey = "label_counts"

// ErrInvalidOffset is returned for a negative page offset.
var ErrInvalidOffset = errors.New("offset must not be negative")

// Record is a criminal with their highest offense, as shown in lists and
// returned by the JSON API.
type Record struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	OffenseType  string `json:"offense_type,omitempty"`
	OffenseClass string `json:"offense_class,omitempty"`
	ClassLabel   string `json:"class_label,omitempty"`
	Description  string `json:"description,omitempty"`
	Source       string `json:"offense_source,omitempty"`
}

// Page is one slice of a label listing.
type Page struct {
	Label      string   `json:"label"`
	Name       string   `json:"name"`
	Class      string   `json:"class,omitempty"`
	Items      []Record `json:"items"`
	Offset     int      `json:"offset"`
	Total      int      `json:"total"`
	HasMore    bool     `json:"has_more"`
	NextOffset int      `json:"next_offset"`
}

// LabelCount is the dashboard total of one label.
type LabelCount struct {
	Label offense.Label
	Count int64
}

// SearchService lists and searches criminal records.
type SearchService interface {
	Search(ctx context.Context, query string) ([]Record, error)
	Page(ctx context.Context, label string, offset int) (Page, error)
	ClassPage(ctx context.Context, label, class string, offset int) (Page, error)
	Counts(ctx context.Context) ([]LabelCount, error)
}

// CountsInvalidator drops cached label counts after a write.
type CountsInvalidator interface {
	InvalidateCounts(ctx context.Context)
}

// Finder is the store-backed SearchService.
type Finder struct {
	queries  *store.Queries
	resolver offense.ClassResolver
	counts   *cache.TypedCache[map[string]int64]
	pageSize int
}

// NewFinder creates a Finder returning pageSize records per page and
// caching label counts in c for ttl.
func NewFinder(db *store.DB, resolver offense.ClassResolver, c cache.Cache, ttl time.Duration, pageSize int) *Finder {
	return &Finder{
		queries:  store.New(db),
		resolver: resolver,
		counts:   cache.NewTypedCache[map[string]int64](c, ttl),
		pageSize: pageSize,
	}
}

// PageSize returns the number of records per page.
func (f *Finder) PageSize() int {
	return f.pageSize
}

// Search returns records whose first name or last name contains query,
// ignoring case and accents. An empty query returns no records.
func (f *Finder) Search(ctx context.Context, query string) ([]Record, error) {
	key := util.SearchKey(query)
	if key == "" {
		return nil, nil
	}

	summaries, err := f.queries.SearchCriminals(ctx, key, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching criminals: %w", err)
	}
	return toRecords(summaries), nil
}

// Page returns the records whose highest offense falls into label.
func (f *Finder) Page(ctx context.Context, label string, offset int) (Page, error) {
	return f.ClassPage(ctx, label, "", offset)
}

// ClassPage is Page narrowed to one offense class. An empty class matches
// every class of the label.
func (f *Finder) ClassPage(ctx context.Context, label, class string, offset int) (Page, error) {
	l, err := offense.ParseLabel(label)
	if err != nil {
		return Page{}, err
	}
	if offset < 0 {
		return Page{}, ErrInvalidOffset
	}

	class = offense.NormalizeClass(class)
	if class != "" && !f.resolver.Allowed(l.Source, l.Type, class) {
		return Page{}, fmt.Errorf("%w %q for %s", offense.ErrInvalidClass, class, l.Name())
	}

	filter := store.HighestOffenseFilter{
		Source:      string(l.Source),
		OffenseType: string(l.Type),
		Class:       class,
	}
	total, err := f.queries.CountByHighestOffense(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("counting %s: %w", l.Key(), err)
	}
	summaries, err := f.queries.ListByHighestOffense(ctx, filter, int64(f.pageSize), int64(offset))
	if err != nil {
		return Page{}, fmt.Errorf("listing %s: %w", l.Key(), err)
	}

	items := toRecords(summaries)
	next := offset + len(items)
	return Page{
		Label:      l.Key(),
		Name:       l.Name(),
		Class:      class,
		Items:      items,
		Offset:     offset,
		Total:      int(total),
		HasMore:    next < int(total),
		NextOffset: next,
	}, nil
}

// Counts returns the number of criminals per label, in label order.
func (f *Finder) Counts(ctx context.Context) ([]LabelCount, error) {
	byKey, err := f.counts.GetOrSet(ctx, countsCacheKey, func() (map[string]int64, error) {
		groups, err := f.queries.CountHighestOffenseGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("counting labels: %w", err)
		}
		m := make(map[string]int64, len(groups))
		for _, g := range groups {
			l := offense.Label{Source: offense.Source(g.Source), Type: offense.Type(g.OffenseType)}
			m[l.Key()] = g.Count
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	labels := offense.Labels()
	counts := make([]LabelCount, len(labels))
	for i, l := range labels {
		counts[i] = LabelCount{Label: l, Count: byKey[l.Key()]}
	}
	return counts, nil
}

// InvalidateCounts drops the cached label counts.
func (f *Finder) InvalidateCounts(ctx context.Context) {
	_ = f.counts.Delete(ctx, countsCacheKey)
}

func toRecords(summaries []store.CriminalSummary) []Record {
	records := make([]Record, 0, len(summaries))
	for _, s := range summaries {
		r := Record{ID: s.CriminalID, FirstName: s.FirstName, LastName: s.LastName}
		if s.HasOffense {
			r.OffenseType = s.Offense.OffenseType
			r.OffenseClass = s.Offense.OffenseClass
			r.ClassLabel = offense.ClassLabel(s.Offense.OffenseClass)
			r.Description = s.Offense.Description
			r.Source = strings.ToLower(s.Offense.Source)
		}
		records = append(records, r)
	}
	return records
}
