// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// User represents a persisted account.
type User struct {
	ID       int64     // backend row identifier, not a stable key
	UUID     uuid.UUID // stable client-facing identifier
	Email    *string
	Username *string
	Password string // PasswordHasher output, never plaintext
	IsAdmin  bool
}

// SetEmail validates address and stores it lowercased.
func (u *User) SetEmail(address string) error {
	if err := fieldValidator.Var(address, "required,email,max=254"); err != nil {
		return oops.Code("AUTH_INVALID_EMAIL").With("email", address).Wrap(ErrBadRequest)
	}
	normalized := strings.ToLower(address)
	u.Email = &normalized
	return nil
}

// EmailOrEmpty returns the email or "" when unset.
func (u *User) EmailOrEmpty() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// UsernameOrEmpty returns the username or "" when unset.
func (u *User) UsernameOrEmpty() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// LogValue implements slog.LogValuer. The password hash is never logged.
func (u *User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("uuid", u.UUID.String()),
		slog.String("email", u.EmailOrEmpty()),
		slog.String("username", u.UsernameOrEmpty()),
		slog.Bool("is_admin", u.IsAdmin),
	)
}

// Login selects a user by exactly one of Email or Username and carries the
// plaintext password to check.
type Login struct {
	Email    *string
	Username *string
	Password string
}

// Signup is a request to create a new account.
type Signup struct {
	Email    *string `validate:"required_without=Username,omitempty,email,max=254"`
	Username *string `validate:"required_without=Email,omitempty,min=3,max=64,printascii"`
	Password string  `validate:"required,password"`
}

// CredentialStore persists User records. Implementations classify
// uniqueness violations as *DuplicateCredentialError and lookup misses as
// ErrNotFound; everything else is returned as-is.
type CredentialStore interface {
	// Init creates the backing schema if it does not exist.
	Init(ctx context.Context) error
	CreateUser(ctx context.Context, id uuid.UUID, email, username *string, passwordHash string, isAdmin bool) error
	// UpdateUser replaces the mutable fields of the user matched by UUID.
	UpdateUser(ctx context.Context, user *User) error
	// DeleteUserByUUID and DeleteUserByEmail succeed when nothing matches.
	DeleteUserByUUID(ctx context.Context, id uuid.UUID) error
	DeleteUserByEmail(ctx context.Context, email string) error
	GetUserByUUID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func lowerPtr(s *string) *string {
	if s == nil {
		return nil
	}
	lowered := strings.ToLower(*s)
	return &lowered
}
