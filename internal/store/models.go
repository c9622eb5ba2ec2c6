// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"database/sql"
	"time"
)

// User is an account that can sign in to the application.
type User struct {
	ID                 int64
	Username           string
	Email              string
	PasswordHash       string
	FirstName          string
	LastName           string
	IsStaff            bool
	IsSuperuser        bool
	IsActive           bool
	FirstLogin         bool
	SecurityQuestion   string
	SecurityAnswerHash string
	ExpirationDate     sql.NullTime
	LastLoginAt        sql.NullTime
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FullName returns "First Last", falling back to the username.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

// Criminal is a person with one or more recorded offenses.
type Criminal struct {
	ID          int64
	FirstName   string
	LastName    string
	SearchFirst string
	SearchLast  string
	DateOfBirth sql.NullTime
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Offense is a shared offense definition.
type Offense struct {
	ID           int64
	Source       string
	OffenseType  string
	OffenseClass string
	Description  string
	CreatedAt    time.Time
}

// CriminalOffense links a criminal to an offense.
type CriminalOffense struct {
	ID          int64
	CriminalID  int64
	Offense     Offense
	DateCharged sql.NullTime
	Convicted   bool
	CreatedAt   time.Time
}

// CriminalSummary is a criminal together with the highest of their offenses.
// HasOffense is false for criminals without any linked offense.
type CriminalSummary struct {
	CriminalID int64
	FirstName  string
	LastName   string
	HasOffense bool
	Offense    Offense
}

// LabelCount is the number of criminals whose highest offense has the given
// source and type.
type LabelCount struct {
	Source      string
	OffenseType string
	Count       int64
}

// Event is an audit log entry.
type Event struct {
	ID        int64
	Level     string
	Category  string
	Message   string
	UserID    sql.NullInt64
	IPAddress string
	Metadata  string
	CreatedAt time.Time
	Username  sql.NullString
}

// ImportBatch records one CSV upload.
type ImportBatch struct {
	ID        string
	Kind      string
	Filename  string
	Inserted  int64
	Failed    int64
	CreatedBy sql.NullInt64
	CreatedAt time.Time
	Username  sql.NullString
}

// SchedulerOverride is a cron schedule set from the admin UI.
type SchedulerOverride struct {
	Source           string
	Name             string
	OverrideSchedule string
	UpdatedAt        time.Time
}
