// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite provides a file-backed CredentialStore on an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/holomush/gatekeeper/internal/auth"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid     TEXT NOT NULL UNIQUE,
	email    TEXT UNIQUE,
	username TEXT UNIQUE,
	password TEXT NOT NULL,
	is_admin INTEGER NOT NULL DEFAULT 0
)`

const userColumns = `id, uuid, email, username, password, is_admin`

// CredentialStore implements auth.CredentialStore on a single SQLite
// connection. Every call holds a one-slot semaphore for its duration.
type CredentialStore struct {
	db    *sql.DB
	guard *semaphore.Weighted
}

// Open opens the database at path, creating the file if needed. Use
// ":memory:" for a private in-memory database.
func Open(path string) (*CredentialStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	return New(db), nil
}

// New wraps db, restricting it to one open connection.
func New(db *sql.DB) *CredentialStore {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	return &CredentialStore{db: db, guard: semaphore.NewWeighted(1)}
}

// Close closes the database.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}

func (s *CredentialStore) acquire(ctx context.Context) error {
	if err := s.guard.Acquire(ctx, 1); err != nil {
		return oops.Code("SQLITE_ACQUIRE_FAILED").
			With("operation", "acquire connection").
			Wrap(err)
	}
	return nil
}

// Init creates the users table if it does not exist.
func (s *CredentialStore) Init(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.guard.Release(1)

	if _, err := s.db.ExecContext(ctx, createUsersTable); err != nil {
		return oops.Code("SQLITE_INIT_FAILED").
			With("operation", "create users table").
			Wrap(err)
	}
	return nil
}

// CreateUser inserts a new user row.
func (s *CredentialStore) CreateUser(ctx context.Context, id uuid.UUID, email, username *string, passwordHash string, isAdmin bool) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.guard.Release(1)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uuid, email, username, password, is_admin) VALUES (?, ?, ?, ?, ?)`,
		id.String(), email, username, passwordHash, isAdmin)
	if err != nil {
		if dup := classifyUnique(err); dup != nil {
			return oops.Code("SQLITE_DUPLICATE").
				With("uuid", id.String()).
				With("field", dup.Field).
				Wrap(dup)
		}
		return oops.Code("SQLITE_CREATE_FAILED").
			With("operation", "insert user").
			With("uuid", id.String()).
			Wrap(err)
	}
	return nil
}

// UpdateUser replaces email, username, password and is_admin for user.UUID.
func (s *CredentialStore) UpdateUser(ctx context.Context, user *auth.User) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.guard.Release(1)

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, username = ?, password = ?, is_admin = ? WHERE uuid = ?`,
		user.Email, user.Username, user.Password, user.IsAdmin, user.UUID.String())
	if err != nil {
		if dup := classifyUnique(err); dup != nil {
			return oops.Code("SQLITE_DUPLICATE").
				With("uuid", user.UUID.String()).
				With("field", dup.Field).
				Wrap(dup)
		}
		return oops.Code("SQLITE_UPDATE_FAILED").
			With("operation", "update user").
			With("uuid", user.UUID.String()).
			Wrap(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return oops.Code("SQLITE_UPDATE_FAILED").
			With("operation", "rows affected").
			Wrap(err)
	}
	if affected == 0 {
		return oops.Code("SQLITE_NOT_FOUND").
			With("uuid", user.UUID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteUserByUUID removes the user row if present.
func (s *CredentialStore) DeleteUserByUUID(ctx context.Context, id uuid.UUID) error {
	return s.delete(ctx, "uuid", id.String())
}

// DeleteUserByEmail removes the user row with email if present.
func (s *CredentialStore) DeleteUserByEmail(ctx context.Context, email string) error {
	return s.delete(ctx, "email", email)
}

// delete is only called with the fixed column names above.
func (s *CredentialStore) delete(ctx context.Context, column, value string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.guard.Release(1)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE `+column+` = ?`, value); err != nil {
		return oops.Code("SQLITE_DELETE_FAILED").
			With("operation", "delete user by "+column).
			With(column, value).
			Wrap(err)
	}
	return nil
}

// GetUserByUUID retrieves a user by UUID.
func (s *CredentialStore) GetUserByUUID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return s.get(ctx, "uuid", id.String())
}

// GetUserByEmail retrieves a user by email.
func (s *CredentialStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.get(ctx, "email", email)
}

// GetUserByUsername retrieves a user by username.
func (s *CredentialStore) GetUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.get(ctx, "username", username)
}

func (s *CredentialStore) get(ctx context.Context, column, value string) (*auth.User, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.guard.Release(1)

	var (
		user     auth.User
		uuidStr  string
		email    sql.NullString
		username sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value).
		Scan(&user.ID, &uuidStr, &email, &username, &user.Password, &user.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("SQLITE_NOT_FOUND").With(column, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SQLITE_GET_FAILED").
			With("operation", "get user by "+column).
			With(column, value).
			Wrap(err)
	}

	user.UUID, err = uuid.Parse(uuidStr)
	if err != nil {
		return nil, oops.Code("SQLITE_INVALID_UUID").With("uuid", uuidStr).Wrap(err)
	}
	if email.Valid {
		user.Email = &email.String
	}
	if username.Valid {
		user.Username = &username.String
	}
	return &user, nil
}

// classifyUnique maps a UNIQUE constraint failure to the offending column.
// The column is read from the message, e.g. "UNIQUE constraint failed: users.email".
func classifyUnique(err error) *auth.DuplicateCredentialError {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return nil
	}
	field := ""
	msg := sqliteErr.Error()
	for _, column := range []string{"email", "username", "uuid"} {
		if strings.Contains(msg, "users."+column) {
			field = column
			break
		}
	}
	return &auth.DuplicateCredentialError{Field: field}
}

var _ auth.CredentialStore = (*CredentialStore)(nil)
