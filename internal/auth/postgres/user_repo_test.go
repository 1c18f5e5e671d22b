// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

func strPtr(s string) *string { return &s }

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func TestUserRepository_Init(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, NewUserRepository(mock).Init(context.Background()))
}

func TestUserRepository_CreateUser(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantField string
		wantErr   bool
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(id.String(), strPtr("ann@example.com"), strPtr("ann"), "hash", false).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(id.String(), strPtr("ann@example.com"), strPtr("ann"), "hash", false).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})
			},
			wantField: "email",
			wantErr:   true,
		},
		{
			name: "duplicate username",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(id.String(), strPtr("ann@example.com"), strPtr("ann"), "hash", false).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_username_key"})
			},
			wantField: "username",
			wantErr:   true,
		},
		{
			name: "connection failure is unclassified",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(id.String(), strPtr("ann@example.com"), strPtr("ann"), "hash", false).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			err := NewUserRepository(mock).CreateUser(context.Background(), id,
				strPtr("ann@example.com"), strPtr("ann"), "hash", false)

			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantField == "" {
				assert.NotErrorIs(t, err, auth.ErrDuplicateCredential)
				errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
				return
			}
			var dup *auth.DuplicateCredentialError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, tt.wantField, dup.Field)
			assert.ErrorIs(t, err, auth.ErrDuplicateCredential)
		})
	}
}

func TestUserRepository_UpdateUser(t *testing.T) {
	user := &auth.User{
		UUID:     uuid.New(),
		Email:    strPtr("ann@example.com"),
		Password: "newhash",
		IsAdmin:  true,
	}

	t.Run("updates matching row", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users`).
			WithArgs(user.UUID.String(), user.Email, user.Username, "newhash", true).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewUserRepository(mock).UpdateUser(context.Background(), user))
	})

	t.Run("zero rows is not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users`).
			WithArgs(user.UUID.String(), user.Email, user.Username, "newhash", true).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewUserRepository(mock).UpdateUser(context.Background(), user)
		errutil.AssertClassified(t, err, auth.ErrNotFound, "USER_NOT_FOUND")
	})

	t.Run("unique violation is classified", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users`).
			WithArgs(user.UUID.String(), user.Email, user.Username, "newhash", true).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

		err := NewUserRepository(mock).UpdateUser(context.Background(), user)
		assert.ErrorIs(t, err, auth.ErrDuplicateCredential)
	})
}

func TestUserRepository_Delete(t *testing.T) {
	id := uuid.New()

	t.Run("by uuid succeeds with no rows", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM users WHERE uuid`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		require.NoError(t, NewUserRepository(mock).DeleteUserByUUID(context.Background(), id))
	})

	t.Run("by email", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM users WHERE email`).
			WithArgs("ann@example.com").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, NewUserRepository(mock).DeleteUserByEmail(context.Background(), "ann@example.com"))
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM users WHERE uuid`).
			WithArgs(id.String()).
			WillReturnError(errors.New("connection reset"))

		err := NewUserRepository(mock).DeleteUserByUUID(context.Background(), id)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_DELETE_FAILED")
	})
}

func TestUserRepository_Get(t *testing.T) {
	id := uuid.New()
	columns := []string{"id", "uuid", "email", "username", "password", "is_admin"}

	t.Run("by uuid", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM users WHERE uuid`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow(int64(7), id.String(), strPtr("ann@example.com"), (*string)(nil), "hash", false))

		user, err := NewUserRepository(mock).GetUserByUUID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
		assert.Equal(t, id, user.UUID)
		assert.Equal(t, "ann@example.com", user.EmailOrEmpty())
		assert.Nil(t, user.Username)
		assert.Equal(t, "hash", user.Password)
	})

	t.Run("by email miss", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM users WHERE email`).
			WithArgs("nobody@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewUserRepository(mock).GetUserByEmail(context.Background(), "nobody@example.com")
		errutil.AssertClassified(t, err, auth.ErrNotFound, "USER_NOT_FOUND")
	})

	t.Run("by username backend failure", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM users WHERE username`).
			WithArgs("ann").
			WillReturnError(errors.New("connection refused"))

		_, err := NewUserRepository(mock).GetUserByUsername(context.Background(), "ann")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_GET_FAILED")
	})
}

func TestClassifyUnique(t *testing.T) {
	assert.Nil(t, classifyUnique(errors.New("boom")))
	assert.Nil(t, classifyUnique(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
	assert.Equal(t, "uuid", classifyUnique(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_uuid_key"}).Field)
	assert.Empty(t, classifyUnique(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "other"}).Field)
}
