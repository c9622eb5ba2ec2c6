// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/olegiv/criminology-go/internal/auth"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/store"
)

// Cleanup modes for expired accounts.
const (
	CleanupDeactivate = "deactivate"
	CleanupDelete     = "delete"
)

// Authentication errors. Handlers show the same message for
// ErrInvalidCredentials and ErrAccountInactive.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountExpired     = errors.New("account has expired")
	ErrRecoveryMismatch   = errors.New("recovery details do not match")
	ErrNoSecurityQuestion = errors.New("no security question set")
)

// NewUser holds the fields an administrator enters for a new account.
// An empty Username is derived from the email; an empty Password gets a
// temporary one.
type NewUser struct {
	FirstName      string
	LastName       string
	Email          string
	Username       string
	Password       string
	Staff          bool
	ExpirationDate sql.NullTime
}

// UserUpdate holds the fields a superuser can edit.
type UserUpdate struct {
	FirstName      string
	LastName       string
	Email          string
	Active         bool
	Staff          bool
	ExpirationDate sql.NullTime
}

// UserService manages accounts and their lifecycle.
type UserService struct {
	queries *store.Queries
	events  *EventService
	now     func() time.Time
}

// NewUserService creates a UserService. events may be nil.
func NewUserService(db *store.DB, events *EventService) *UserService {
	return &UserService{
		queries: store.New(db),
		events:  events,
		now:     time.Now,
	}
}

// Today returns the current UTC date at midnight.
func (s *UserService) Today() time.Time {
	return startOfDay(s.now())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsExpired reports whether u's expiration date lies before today. An
// account stays usable through its expiration date. Superusers never expire.
func IsExpired(u store.User, now time.Time) bool {
	if u.IsSuperuser || !u.ExpirationDate.Valid {
		return false
	}
	return u.ExpirationDate.Time.Before(startOfDay(now))
}

// UsernameFromEmail returns the local part of an email address, lower-cased.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return strings.ToLower(local)
}

// Create adds an account that must change its password on first login.
// It returns the user and the temporary password when one was generated.
func (s *UserService) Create(ctx context.Context, in NewUser, actor Actor) (store.User, string, error) {
	errs := FieldErrors{}

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	if in.FirstName == "" {
		errs["first_name"] = "First name is required."
	}
	if in.LastName == "" {
		errs["last_name"] = "Last name is required."
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		errs["email"] = "Enter a valid email address."
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = UsernameFromEmail(in.Email)
	}
	if username == "" {
		errs["username"] = "Username is required."
	} else if _, ok := errs["email"]; !ok {
		exists, err := s.queries.UsernameExists(ctx, username)
		if err != nil {
			return store.User{}, "", fmt.Errorf("checking username: %w", err)
		}
		if exists {
			errs["username"] = fmt.Sprintf("A user with username %q already exists.", username)
		}
	}
	if len(errs) > 0 {
		return store.User{}, "", errs
	}

	password, temporary := in.Password, ""
	if password == "" {
		var err error
		if password, err = auth.TemporaryPassword(); err != nil {
			return store.User{}, "", err
		}
		temporary = password
	} else if problems := auth.ValidatePassword(password, username, in.Email, in.FirstName, in.LastName); len(problems) > 0 {
		return store.User{}, "", FieldErrors{"password": strings.Join(problems, " ")}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return store.User{}, "", fmt.Errorf("hashing password: %w", err)
	}

	u, err := s.queries.CreateUser(ctx, store.CreateUserParams{
		Username:       username,
		Email:          in.Email,
		PasswordHash:   hash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		IsStaff:        in.Staff,
		FirstLogin:     true,
		ExpirationDate: in.ExpirationDate,
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		return store.User{}, "", fmt.Errorf("creating user: %w", err)
	}

	s.log(ctx, actor, "User created", map[string]any{"username": u.Username, "staff": u.IsStaff})
	return u, temporary, nil
}

// Authenticate checks credentials and records the login time.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (store.User, error) {
	u, err := s.queries.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("loading user: %w", err)
	}

	ok, err := auth.CheckPassword(password, u.PasswordHash)
	if err != nil || !ok {
		return store.User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return store.User{}, ErrAccountInactive
	}
	if IsExpired(u, s.now()) {
		return store.User{}, ErrAccountExpired
	}

	// Hashes made with older argon2 parameters are upgraded on login.
	if auth.NeedsRehash(u.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			if err := s.queries.UpdateUserPassword(ctx, u.ID, hash, u.FirstLogin, s.now().UTC()); err != nil {
				slog.Error("failed to re-hash password", "error", err, "user_id", u.ID)
			} else {
				u.PasswordHash = hash
				slog.Info("password re-hashed with updated parameters", "user_id", u.ID)
			}
		}
	}

	if err := s.queries.UpdateUserLastLogin(ctx, u.ID, s.now().UTC()); err != nil {
		return store.User{}, fmt.Errorf("updating last login: %w", err)
	}
	return u, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id int64) (store.User, error) {
	u, err := s.queries.GetUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("loading user: %w", err)
	}
	return u, nil
}

// List returns one page of users and the total.
func (s *UserService) List(ctx context.Context, limit, offset int64) ([]store.User, int64, error) {
	users, err := s.queries.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	total, err := s.queries.CountUsers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}
	return users, total, nil
}

// SetPassword validates and stores a new password and ends the forced
// password change.
func (s *UserService) SetPassword(ctx context.Context, u store.User, password, confirm string) error {
	if password != confirm {
		return FieldErrors{"password": "The two password fields didn't match."}
	}
	if problems := auth.ValidatePassword(password, u.Username, u.Email, u.FirstName, u.LastName); len(problems) > 0 {
		return FieldErrors{"password": strings.Join(problems, " ")}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.queries.UpdateUserPassword(ctx, u.ID, hash, false, s.now().UTC()); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	s.log(ctx, Actor{UserID: u.ID}, "Password changed", nil)
	return nil
}

// SetSecurityQuestion stores the recovery question and hashed answer.
func (s *UserService) SetSecurityQuestion(ctx context.Context, u store.User, question, answer string) error {
	question = strings.TrimSpace(question)
	errs := FieldErrors{}
	if question == "" {
		errs["security_question"] = "Security question is required."
	}
	if strings.TrimSpace(answer) == "" {
		errs["security_answer"] = "Security answer is required."
	}
	if len(errs) > 0 {
		return errs
	}

	hash, err := auth.HashSecurityAnswer(answer)
	if err != nil {
		return fmt.Errorf("hashing answer: %w", err)
	}
	if err := s.queries.UpdateUserSecurityQuestion(ctx, u.ID, question, hash, s.now().UTC()); err != nil {
		return fmt.Errorf("saving security question: %w", err)
	}
	return nil
}

// StartRecovery finds the active account matching username and email.
func (s *UserService) StartRecovery(ctx context.Context, username, email string) (store.User, error) {
	u, err := s.queries.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrRecoveryMismatch
	}
	if err != nil {
		return store.User{}, fmt.Errorf("loading user: %w", err)
	}
	if !strings.EqualFold(u.Email, strings.TrimSpace(email)) || !u.IsActive {
		return store.User{}, ErrRecoveryMismatch
	}
	if u.SecurityAnswerHash == "" {
		return store.User{}, ErrNoSecurityQuestion
	}
	return u, nil
}

// CheckRecoveryAnswer compares answer with the stored security answer.
func (s *UserService) CheckRecoveryAnswer(u store.User, answer string) bool {
	ok, err := auth.CheckSecurityAnswer(answer, u.SecurityAnswerHash)
	return err == nil && ok
}

// Update applies a superuser's edit.
func (s *UserService) Update(ctx context.Context, id int64, in UserUpdate, actor Actor) error {
	in.Email = strings.TrimSpace(in.Email)
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return FieldErrors{"email": "Enter a valid email address."}
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	err := s.queries.UpdateUserAdmin(ctx, store.UpdateUserAdminParams{
		ID:             id,
		Email:          in.Email,
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		IsActive:       in.Active,
		IsStaff:        in.Staff,
		ExpirationDate: in.ExpirationDate,
		UpdatedAt:      s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	s.log(ctx, actor, "User updated", map[string]any{"user_id": id})
	return nil
}

// Delete removes an account.
func (s *UserService) Delete(ctx context.Context, id int64, actor Actor) error {
	n, err := s.queries.DeleteUser(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.log(ctx, actor, "User deleted", map[string]any{"user_id": id})
	return nil
}

// CleanupExpired deactivates or deletes non-superuser accounts whose
// expiration date lies before today. Running it twice changes nothing the
// second time.
func (s *UserService) CleanupExpired(ctx context.Context, mode string) (int64, error) {
	cutoff := s.Today()
	switch mode {
	case CleanupDeactivate:
		n, err := s.queries.DeactivateExpiredUsers(ctx, cutoff, s.now().UTC())
		if err != nil {
			return 0, fmt.Errorf("deactivating expired users: %w", err)
		}
		return n, nil
	case CleanupDelete:
		n, err := s.queries.DeleteExpiredUsers(ctx, cutoff)
		if err != nil {
			return 0, fmt.Errorf("deleting expired users: %w", err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unknown cleanup mode %q", mode)
}

func (s *UserService) log(ctx context.Context, actor Actor, msg string, meta map[string]any) {
	if s.events != nil {
		_ = s.events.LogUserEvent(ctx, model.EventLevelInfo, msg, actor.userID(), actor.IP, meta)
	}
}
