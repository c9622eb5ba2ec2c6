// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model holds the small shared vocabularies used across layers:
// event levels and categories, and account roles.
package model

// Event levels
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event categories
const (
	EventCategoryAuth      = "auth"
	EventCategoryUser      = "user"
	EventCategoryRecord    = "record"
	EventCategoryImport    = "import"
	EventCategoryScheduler = "scheduler"
	EventCategorySystem    = "system"
)

// EventLevels lists levels for the event log filter.
var EventLevels = []string{EventLevelInfo, EventLevelWarning, EventLevelError}

// EventCategories lists categories for the event log filter.
var EventCategories = []string{
	EventCategoryAuth,
	EventCategoryUser,
	EventCategoryRecord,
	EventCategoryImport,
	EventCategoryScheduler,
	EventCategorySystem,
}
