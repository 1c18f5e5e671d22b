// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides PostgreSQL implementations of the auth
// CredentialStore and SessionStore capabilities.
package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// Querier is the subset of *pgxpool.Pool used by the repositories.
// pgxmock.PgxPoolIface satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id         BIGSERIAL PRIMARY KEY,
	uuid       UUID NOT NULL CONSTRAINT users_uuid_key UNIQUE,
	email      TEXT CONSTRAINT users_email_key UNIQUE,
	username   TEXT CONSTRAINT users_username_key UNIQUE,
	password   TEXT NOT NULL,
	is_admin   BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const userColumns = `id, uuid, email, username, password, is_admin`

// UserRepository implements auth.CredentialStore using PostgreSQL.
type UserRepository struct {
	pool Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Querier) *UserRepository {
	return &UserRepository{pool: pool}
}

// Init creates the users table if it does not exist. Deployments managed
// by the migrate command already have it.
func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createUsersTable); err != nil {
		return oops.Code("USER_INIT_FAILED").
			With("operation", "create users table").
			Wrap(err)
	}
	return nil
}

// CreateUser inserts a new user row.
func (r *UserRepository) CreateUser(ctx context.Context, id uuid.UUID, email, username *string, passwordHash string, isAdmin bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (uuid, email, username, password, is_admin)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), email, username, passwordHash, isAdmin)
	if err != nil {
		if dup := classifyUnique(err); dup != nil {
			return oops.Code("USER_DUPLICATE").
				With("uuid", id.String()).
				With("field", dup.Field).
				Wrap(dup)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("uuid", id.String()).
			Wrap(err)
	}
	return nil
}

// UpdateUser replaces email, username, password and is_admin for user.UUID.
func (r *UserRepository) UpdateUser(ctx context.Context, user *auth.User) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, username = $3, password = $4, is_admin = $5, updated_at = now()
		WHERE uuid = $1
	`, user.UUID.String(), user.Email, user.Username, user.Password, user.IsAdmin)
	if err != nil {
		if dup := classifyUnique(err); dup != nil {
			return oops.Code("USER_DUPLICATE").
				With("uuid", user.UUID.String()).
				With("field", dup.Field).
				Wrap(dup)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("uuid", user.UUID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("uuid", user.UUID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteUserByUUID removes the user row. Deleting a missing user succeeds.
func (r *UserRepository) DeleteUserByUUID(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE uuid = $1`, id.String()); err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user by uuid").
			With("uuid", id.String()).
			Wrap(err)
	}
	return nil
}

// DeleteUserByEmail removes the user row with email. Deleting a missing user succeeds.
func (r *UserRepository) DeleteUserByEmail(ctx context.Context, email string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE email = $1`, email); err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user by email").
			With("email", email).
			Wrap(err)
	}
	return nil
}

// GetUserByUUID retrieves a user by UUID.
func (r *UserRepository) GetUserByUUID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE uuid = $1`, id.String())
	return r.getUser(row, "uuid", id.String())
}

// GetUserByEmail retrieves a user by email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return r.getUser(row, "email", email)
}

// GetUserByUsername retrieves a user by username.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return r.getUser(row, "username", username)
}

func (r *UserRepository) getUser(row pgx.Row, key, value string) (*auth.User, error) {
	var (
		user    auth.User
		uuidStr string
	)
	err := row.Scan(&user.ID, &uuidStr, &user.Email, &user.Username, &user.Password, &user.IsAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by "+key).
			With(key, value).
			Wrap(err)
	}
	user.UUID, err = uuid.Parse(uuidStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_UUID").
			With("operation", "parse user uuid").
			With("uuid", uuidStr).
			Wrap(err)
	}
	return &user, nil
}

// classifyUnique returns the duplicate field for a unique_violation, or nil
// for any other error.
func classifyUnique(err error) *auth.DuplicateCredentialError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	field := ""
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		field = "email"
	case strings.Contains(pgErr.ConstraintName, "username"):
		field = "username"
	case strings.Contains(pgErr.ConstraintName, "uuid"):
		field = "uuid"
	}
	return &auth.DuplicateCredentialError{Field: field}
}

// Compile-time interface check.
var _ auth.CredentialStore = (*UserRepository)(nil)
