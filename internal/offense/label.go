// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package offense

import (
	"fmt"
	"strings"
)

// Label groups criminals by the source and type of their highest offense.
type Label struct {
	Source Source
	Type   Type
}

// Labels returns the six groupings in display order.
func Labels() []Label {
	labels := make([]Label, 0, len(Sources)*len(Types))
	for _, s := range Sources {
		for _, t := range Types {
			labels = append(labels, Label{Source: s, Type: t})
		}
	}
	return labels
}

// Key is the identifier used in URLs, e.g. "federal_felons".
func (l Label) Key() string {
	return string(l.Source) + "_" + strings.ToLower(l.Type.Plural())
}

// Name is the display name, e.g. "Federal Felons".
func (l Label) Name() string {
	return l.Source.Title() + " " + l.Type.Plural()
}

// ParseLabel resolves a label key.
func ParseLabel(key string) (Label, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, l := range Labels() {
		if l.Key() == k {
			return l, nil
		}
	}
	return Label{}, fmt.Errorf("%w: %q", ErrUnknownLabel, key)
}
