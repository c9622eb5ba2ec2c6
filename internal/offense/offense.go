// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package offense defines offense sources, types and the fixed table of
// offense classes allowed for each combination.
package offense

import (
	"errors"
	"fmt"
	"strings"
)

// Source is the jurisdiction an offense is defined in.
type Source string

const (
	SourceFederal  Source = "federal"
	SourceVirginia Source = "virginia"
)

// Sources lists all sources in display order.
var Sources = []Source{SourceFederal, SourceVirginia}

// Type is the severity category of an offense.
type Type string

const (
	TypeFelony      Type = "Felony"
	TypeMisdemeanor Type = "Misdemeanor"
	TypeInfraction  Type = "Infraction"
)

// Types lists all types from most to least severe.
var Types = []Type{TypeFelony, TypeMisdemeanor, TypeInfraction}

// ClassNA is the only class an infraction can have.
const ClassNA = "NA"

var (
	ErrUnknownSource = errors.New("unknown offense source")
	ErrUnknownType   = errors.New("unknown offense type")
	ErrInvalidClass  = errors.New("invalid offense class")
	ErrUnknownLabel  = errors.New("unknown label")
)

// ParseSource matches s case-insensitively against the known sources.
func ParseSource(s string) (Source, error) {
	v := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, src := range Sources {
		if v == src {
			return src, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// ParseType matches s case-insensitively against the known types.
func ParseType(s string) (Type, error) {
	v := strings.TrimSpace(s)
	for _, t := range Types {
		if strings.EqualFold(v, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Title returns the display name of the source.
func (s Source) Title() string {
	switch s {
	case SourceFederal:
		return "Federal"
	case SourceVirginia:
		return "Virginia"
	}
	return string(s)
}

// Priority ranks types for picking a criminal's highest offense.
func (t Type) Priority() int {
	switch t {
	case TypeFelony:
		return 3
	case TypeMisdemeanor:
		return 2
	case TypeInfraction:
		return 1
	}
	return 0
}

// Plural is the name used for people whose highest offense has this type.
func (t Type) Plural() string {
	switch t {
	case TypeFelony:
		return "Felons"
	case TypeMisdemeanor:
		return "Misdemeanors"
	case TypeInfraction:
		return "Infractions"
	}
	return string(t)
}

// Slug is the lower-case URL form of the type.
func (t Type) Slug() string {
	return strings.ToLower(string(t))
}

// ClassLabel returns the display label of a class code.
func ClassLabel(code string) string {
	if code == ClassNA {
		return "Infraction"
	}
	return "Class " + code
}

// NormalizeClass trims and upper-cases a class code.
func NormalizeClass(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
