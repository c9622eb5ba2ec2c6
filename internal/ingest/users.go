// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/criminology-go/internal/service"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/util"
)

// CredentialsHeader is the header of the generated credentials file.
var CredentialsHeader = []string{"first_name", "last_name", "email", "username", "temporary_password"}

// Credential is the login of an imported account.
type Credential struct {
	FirstName         string
	LastName          string
	Email             string
	Username          string
	TemporaryPassword string
}

// UserResult is a Result plus the credentials of the created accounts.
type UserResult struct {
	Result
	Credentials []Credential
}

// UserPipeline creates regular accounts from a CSV upload. Every account
// gets a temporary password and must change it on first login.
type UserPipeline struct {
	queries *store.Queries
	users   *service.UserService
	opts    Options
	now     func() time.Time
}

// NewUserPipeline creates a UserPipeline.
func NewUserPipeline(db *store.DB, users *service.UserService, opts Options) *UserPipeline {
	return &UserPipeline{
		queries: store.New(db),
		users:   users,
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// Ingest creates one account per valid row. Usernames are the local part of
// the email address.
func (p *UserPipeline) Ingest(ctx context.Context, up Upload) (UserResult, error) {
	start := p.now()

	f, err := openCSV(up, p.opts.MaxBytes, UserHeader)
	if err != nil {
		reject(ctx, p.opts, up, KindUsers, err)
		return UserResult{}, err
	}

	res := UserResult{Result: Result{BatchID: uuid.NewString()}}
	today := p.users.Today()
	actor := service.Actor{UserID: up.UploadedBy, IP: up.IP}

	err = f.each(ctx, &res.Result, func(row int, fields []string) {
		exp, err := util.ParseNullDate(fields[3])
		if err != nil {
			res.fail(row, err.Error())
			return
		}
		if exp.Valid && exp.Time.Before(today) {
			res.fail(row, "expiration date is in the past")
			return
		}

		u, temp, err := p.users.Create(ctx, service.NewUser{
			FirstName:      fields[0],
			LastName:       fields[1],
			Email:          fields[2],
			ExpirationDate: exp,
		}, actor)
		if err != nil {
			var fe service.FieldErrors
			if errors.As(err, &fe) {
				res.fail(row, fe.Error())
				return
			}
			p.opts.Logger.Error("user import row failed", "row", row, "error", err)
			res.fail(row, "could not be saved")
			return
		}

		res.Inserted++
		res.Credentials = append(res.Credentials, Credential{
			FirstName:         u.FirstName,
			LastName:          u.LastName,
			Email:             u.Email,
			Username:          u.Username,
			TemporaryPassword: temp,
		})
	})

	finish(ctx, p.queries, p.opts, up, KindUsers, f.filename, &res.Result, start, p.now().UTC())
	return res, err
}

// WriteCredentials writes creds as CSV with CredentialsHeader.
func WriteCredentials(w io.Writer, creds []Credential) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CredentialsHeader); err != nil {
		return err
	}
	for _, c := range creds {
		row := []string{c.FirstName, c.LastName, c.Email, c.Username, c.TemporaryPassword}
		for i := range row {
			row[i] = escapeFormula(row[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// escapeFormula quotes a cell that a spreadsheet would evaluate as a formula.
func escapeFormula(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
