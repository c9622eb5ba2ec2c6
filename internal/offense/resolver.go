// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package offense

import (
	"fmt"
	"slices"
	"strings"
)

// ClassOption is one entry of a class select.
type ClassOption struct {
	Code     string `json:"code"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

// ClassResolver answers which classes are valid for a source and type.
type ClassResolver interface {
	Options(source Source, typ Type) ([]ClassOption, error)
	Allowed(source Source, typ Type, class string) bool
}

type key struct {
	source Source
	typ    Type
}

// Table is the static ClassResolver.
type Table struct {
	classes map[key][]string
}

// NewTable returns the class table for federal and Virginia offenses.
func NewTable() *Table {
	return &Table{classes: map[key][]string{
		{SourceFederal, TypeFelony}:       {"A", "B", "C", "D", "E"},
		{SourceFederal, TypeMisdemeanor}:  {"A", "B", "C"},
		{SourceFederal, TypeInfraction}:   {ClassNA},
		{SourceVirginia, TypeFelony}:      {"1", "2", "3", "4", "5", "6"},
		{SourceVirginia, TypeMisdemeanor}: {"1", "2", "3", "4"},
		{SourceVirginia, TypeInfraction}:  {ClassNA},
	}}
}

// Options returns the allowed classes. Infractions yield a single disabled
// NA option.
func (t *Table) Options(source Source, typ Type) ([]ClassOption, error) {
	codes, err := t.codes(source, typ)
	if err != nil {
		return nil, err
	}
	opts := make([]ClassOption, 0, len(codes))
	for _, c := range codes {
		opts = append(opts, ClassOption{
			Code:     c,
			Label:    ClassLabel(c),
			Disabled: typ == TypeInfraction,
		})
	}
	return opts, nil
}

// Allowed reports whether class is valid for source and type.
func (t *Table) Allowed(source Source, typ Type, class string) bool {
	codes, err := t.codes(source, typ)
	if err != nil {
		return false
	}
	return slices.Contains(codes, class)
}

func (t *Table) codes(source Source, typ Type) ([]string, error) {
	if !slices.Contains(Sources, source) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	if !slices.Contains(Types, typ) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return t.classes[key{source, typ}], nil
}

// Classified is a parsed and validated source, type and class.
type Classified struct {
	Source Source
	Type   Type
	Class  string
}

// Classify parses raw form or CSV values and validates the class against r.
// Matching is case-insensitive; an empty infraction class becomes NA.
func Classify(r ClassResolver, source, typ, class string) (Classified, error) {
	s, err := ParseSource(source)
	if err != nil {
		return Classified{}, err
	}
	t, err := ParseType(typ)
	if err != nil {
		return Classified{}, err
	}

	c := NormalizeClass(class)
	if t == TypeInfraction && c == "" {
		c = ClassNA
	}
	if !r.Allowed(s, t, c) {
		opts, _ := r.Options(s, t)
		codes := make([]string, len(opts))
		for i, o := range opts {
			codes[i] = o.Code
		}
		return Classified{}, fmt.Errorf("%w %q for %s %s (allowed: %s)",
			ErrInvalidClass, c, s.Title(), t, strings.Join(codes, ", "))
	}
	return Classified{Source: s, Type: t, Class: c}, nil
}
