// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

func strPtr(s string) *string { return &s }

func newTestStore(t *testing.T) *CredentialStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestCredentialStore_InitIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init(context.Background()))
}

func TestCredentialStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.New()

	require.NoError(t, s.CreateUser(ctx, id, strPtr("ann@example.com"), nil, "hash", true))

	byUUID, err := s.GetUserByUUID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, byUUID.UUID)
	assert.Equal(t, "ann@example.com", byUUID.EmailOrEmpty())
	assert.Nil(t, byUUID.Username)
	assert.Equal(t, "hash", byUUID.Password)
	assert.True(t, byUUID.IsAdmin)
	assert.Positive(t, byUUID.ID)

	byEmail, err := s.GetUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.UUID)

	_, err = s.GetUserByUsername(ctx, "ann")
	errutil.AssertClassified(t, err, auth.ErrNotFound, "SQLITE_NOT_FOUND")
}

func TestCredentialStore_NullsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateUser(ctx, uuid.New(), strPtr("a@example.com"), nil, "hash", false))
	require.NoError(t, s.CreateUser(ctx, uuid.New(), strPtr("b@example.com"), nil, "hash", false))
}

func TestCredentialStore_DuplicateClassification(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.New()
	require.NoError(t, s.CreateUser(ctx, id, strPtr("ann@example.com"), strPtr("ann"), "hash", false))

	tests := []struct {
		name     string
		id       uuid.UUID
		email    *string
		username *string
		field    string
	}{
		{"email", uuid.New(), strPtr("ann@example.com"), strPtr("other"), "email"},
		{"username", uuid.New(), strPtr("other@example.com"), strPtr("ann"), "username"},
		{"uuid", id, strPtr("third@example.com"), nil, "uuid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CreateUser(ctx, tt.id, tt.email, tt.username, "hash", false)
			require.Error(t, err)
			var dup *auth.DuplicateCredentialError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, tt.field, dup.Field)
			assert.ErrorIs(t, err, auth.ErrDuplicateCredential)
		})
	}
}

func TestCredentialStore_ConcurrentDuplicateSignups(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Init(ctx))

	const workers = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, workers)
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.CreateUser(ctx, uuid.New(), strPtr("race@example.com"), nil, "hash", false)
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, auth.ErrDuplicateCredential)
	}
	assert.Equal(t, 1, successes)
}

func TestCredentialStore_UpdateUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	target, other := uuid.New(), uuid.New()
	require.NoError(t, s.CreateUser(ctx, target, strPtr("t@example.com"), strPtr("target"), "hash", false))
	require.NoError(t, s.CreateUser(ctx, other, strPtr("o@example.com"), strPtr("other"), "hash", false))

	t.Run("replaces fields of the matching row only", func(t *testing.T) {
		user, err := s.GetUserByUUID(ctx, target)
		require.NoError(t, err)
		user.Email = nil
		user.Username = strPtr("renamed")
		user.Password = "newhash"
		require.NoError(t, s.UpdateUser(ctx, user))

		updated, err := s.GetUserByUUID(ctx, target)
		require.NoError(t, err)
		assert.Nil(t, updated.Email)
		assert.Equal(t, "renamed", updated.UsernameOrEmpty())
		assert.Equal(t, "newhash", updated.Password)

		untouched, err := s.GetUserByUUID(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, "other", untouched.UsernameOrEmpty())
		assert.Equal(t, "hash", untouched.Password)
	})

	t.Run("collision is classified", func(t *testing.T) {
		user, err := s.GetUserByUUID(ctx, target)
		require.NoError(t, err)
		user.Username = strPtr("other")
		err = s.UpdateUser(ctx, user)
		var dup *auth.DuplicateCredentialError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "username", dup.Field)
	})

	t.Run("missing user is not found", func(t *testing.T) {
		err := s.UpdateUser(ctx, &auth.User{UUID: uuid.New(), Password: "hash"})
		errutil.AssertClassified(t, err, auth.ErrNotFound, "SQLITE_NOT_FOUND")
	})
}

func TestCredentialStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := uuid.New()
	require.NoError(t, s.CreateUser(ctx, id, strPtr("ann@example.com"), nil, "hash", false))

	require.NoError(t, s.DeleteUserByEmail(ctx, "ann@example.com"))
	require.NoError(t, s.DeleteUserByEmail(ctx, "ann@example.com"))
	require.NoError(t, s.DeleteUserByUUID(ctx, id))

	_, err := s.GetUserByUUID(ctx, id)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestCredentialStore_CancelledWaiterDoesNotHoldGuard(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.guard.Acquire(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetUserByUUID(ctx, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	errutil.AssertErrorCode(t, err, "SQLITE_ACQUIRE_FAILED")

	s.guard.Release(1)
	_, err = s.GetUserByUUID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
