// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var userColumns = []string{
	"id", "username", "email", "password_hash", "first_name", "last_name",
	"is_staff", "is_superuser", "is_active", "first_login",
	"security_question", "security_answer_hash", "expiration_date",
	"last_login_at", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsStaff, &u.IsSuperuser, &u.IsActive, &u.FirstLogin,
		&u.SecurityQuestion, &u.SecurityAnswerHash, &u.ExpirationDate,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// CreateUserParams holds the fields for CreateUser.
type CreateUserParams struct {
	Username       string
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	IsStaff        bool
	IsSuperuser    bool
	FirstLogin     bool
	ExpirationDate sql.NullTime
	CreatedAt      time.Time
}

// CreateUser inserts an active user and returns it.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	b := q.sb.Insert("users").
		Columns("username", "email", "password_hash", "first_name", "last_name",
			"is_staff", "is_superuser", "is_active", "first_login",
			"expiration_date", "created_at", "updated_at").
		Values(arg.Username, arg.Email, arg.PasswordHash, arg.FirstName, arg.LastName,
			arg.IsStaff, arg.IsSuperuser, true, arg.FirstLogin,
			arg.ExpirationDate, arg.CreatedAt, arg.CreatedAt).
		Suffix("RETURNING id")

	var id int64
	if err := q.queryRow(ctx, b, &id); err != nil {
		return User{}, err
	}

	return User{
		ID:             id,
		Username:       arg.Username,
		Email:          arg.Email,
		PasswordHash:   arg.PasswordHash,
		FirstName:      arg.FirstName,
		LastName:       arg.LastName,
		IsStaff:        arg.IsStaff,
		IsSuperuser:    arg.IsSuperuser,
		IsActive:       true,
		FirstLogin:     arg.FirstLogin,
		ExpirationDate: arg.ExpirationDate,
		CreatedAt:      arg.CreatedAt,
		UpdatedAt:      arg.CreatedAt,
	}, nil
}

func (q *Queries) getUser(ctx context.Context, where sq.Sqlizer) (User, error) {
	query, args, err := q.sb.Select(userColumns...).From("users").Where(where).Limit(1).ToSql()
	if err != nil {
		return User{}, err
	}
	return scanUser(q.db.QueryRowContext(ctx, query, args...))
}

// GetUserByID returns sql.ErrNoRows when the user does not exist.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	return q.getUser(ctx, sq.Eq{"id": id})
}

// GetUserByUsername looks a user up by exact username.
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return q.getUser(ctx, sq.Eq{"username": username})
}

// UsernameExists reports whether username is taken.
func (q *Queries) UsernameExists(ctx context.Context, username string) (bool, error) {
	n, err := q.count(ctx, q.sb.Select("COUNT(*)").From("users").Where(sq.Eq{"username": username}))
	return n > 0, err
}

// ListUsers returns users ordered by username.
func (q *Queries) ListUsers(ctx context.Context, limit, offset int64) ([]User, error) {
	rows, err := q.query(ctx, q.sb.Select(userColumns...).From("users").
		OrderBy("username").Limit(uint64(limit)).Offset(uint64(offset)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of users.
func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	return q.count(ctx, q.sb.Select("COUNT(*)").From("users"))
}

// UpdateUserPassword stores a new hash and the first-login flag.
func (q *Queries) UpdateUserPassword(ctx context.Context, id int64, hash string, firstLogin bool, now time.Time) error {
	_, err := q.exec(ctx, q.sb.Update("users").
		Set("password_hash", hash).
		Set("first_login", firstLogin).
		Set("updated_at", now).
		Where(sq.Eq{"id": id}))
	return err
}

// UpdateUserSecurityQuestion stores the recovery question and hashed answer.
func (q *Queries) UpdateUserSecurityQuestion(ctx context.Context, id int64, question, answerHash string, now time.Time) error {
	_, err := q.exec(ctx, q.sb.Update("users").
		Set("security_question", question).
		Set("security_answer_hash", answerHash).
		Set("updated_at", now).
		Where(sq.Eq{"id": id}))
	return err
}

// UpdateUserAdminParams holds the fields a superuser may change.
type UpdateUserAdminParams struct {
	ID             int64
	Email          string
	FirstName      string
	LastName       string
	IsActive       bool
	IsStaff        bool
	ExpirationDate sql.NullTime
	UpdatedAt      time.Time
}

// UpdateUserAdmin applies an administrative edit.
func (q *Queries) UpdateUserAdmin(ctx context.Context, arg UpdateUserAdminParams) error {
	_, err := q.exec(ctx, q.sb.Update("users").
		Set("email", arg.Email).
		Set("first_name", arg.FirstName).
		Set("last_name", arg.LastName).
		Set("is_active", arg.IsActive).
		Set("is_staff", arg.IsStaff).
		Set("expiration_date", arg.ExpirationDate).
		Set("updated_at", arg.UpdatedAt).
		Where(sq.Eq{"id": arg.ID}))
	return err
}

// UpdateUserLastLogin records a successful login.
func (q *Queries) UpdateUserLastLogin(ctx context.Context, id int64, now time.Time) error {
	_, err := q.exec(ctx, q.sb.Update("users").
		Set("last_login_at", now).
		Where(sq.Eq{"id": id}))
	return err
}

// DeleteUser removes a user.
func (q *Queries) DeleteUser(ctx context.Context, id int64) (int64, error) {
	return rowsAffected(q.exec(ctx, q.sb.Delete("users").Where(sq.Eq{"id": id})))
}

func expiredBefore(cutoff time.Time) sq.And {
	return sq.And{
		sq.NotEq{"expiration_date": nil},
		sq.Lt{"expiration_date": cutoff},
		sq.Eq{"is_superuser": false},
	}
}

// DeactivateExpiredUsers marks active accounts that expired before cutoff as
// inactive and returns how many changed.
func (q *Queries) DeactivateExpiredUsers(ctx context.Context, cutoff, now time.Time) (int64, error) {
	return rowsAffected(q.exec(ctx, q.sb.Update("users").
		Set("is_active", false).
		Set("updated_at", now).
		Where(expiredBefore(cutoff)).
		Where(sq.Eq{"is_active": true})))
}

// DeleteExpiredUsers removes accounts that expired before cutoff.
func (q *Queries) DeleteExpiredUsers(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(q.exec(ctx, q.sb.Delete("users").Where(expiredBefore(cutoff))))
}
