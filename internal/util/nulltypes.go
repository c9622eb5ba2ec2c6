// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the format of date-only form fields and CSV columns.
const DateLayout = "2006-01-02"

// NullInt64FromValue creates a valid sql.NullInt64.
func NullInt64FromValue(val int64) sql.NullInt64 {
	return sql.NullInt64{Int64: val, Valid: true}
}

// ParseNullDate parses an optional YYYY-MM-DD value as midnight UTC.
// An empty string yields an invalid NullTime.
func ParseNullDate(s string) (sql.NullTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullTime{}, nil
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return sql.NullTime{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}

// FormatNullDate is the inverse of ParseNullDate.
func FormatNullDate(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.UTC().Format(DateLayout)
}
