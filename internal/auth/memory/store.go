// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process CredentialStore. Records are lost
// when the process exits.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// CredentialStore keeps users in maps indexed by uuid, email and username.
// Uniqueness is checked and applied under one lock, so concurrent creates of
// the same email resolve to exactly one winner.
type CredentialStore struct {
	mu         sync.RWMutex
	nextID     int64
	byUUID     map[uuid.UUID]*auth.User
	byEmail    map[string]uuid.UUID
	byUsername map[string]uuid.UUID
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		byUUID:     make(map[uuid.UUID]*auth.User),
		byEmail:    make(map[string]uuid.UUID),
		byUsername: make(map[string]uuid.UUID),
	}
}

// Init is a no-op; the maps are created by NewCredentialStore.
func (s *CredentialStore) Init(context.Context) error {
	return nil
}

// CreateUser inserts a new user.
func (s *CredentialStore) CreateUser(_ context.Context, id uuid.UUID, email, username *string, passwordHash string, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(id, uuid.Nil, email, username); err != nil {
		return err
	}

	s.nextID++
	user := &auth.User{
		ID:       s.nextID,
		UUID:     id,
		Email:    copyPtr(email),
		Username: copyPtr(username),
		Password: passwordHash,
		IsAdmin:  isAdmin,
	}
	s.index(user)
	return nil
}

// UpdateUser replaces the mutable fields of the user with user.UUID.
func (s *CredentialStore) UpdateUser(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byUUID[user.UUID]
	if !ok {
		return oops.Code("CREDENTIAL_NOT_FOUND").With("uuid", user.UUID.String()).Wrap(auth.ErrNotFound)
	}
	if err := s.checkUnique(uuid.Nil, user.UUID, user.Email, user.Username); err != nil {
		return err
	}

	s.unindex(existing)
	updated := &auth.User{
		ID:       existing.ID,
		UUID:     existing.UUID,
		Email:    copyPtr(user.Email),
		Username: copyPtr(user.Username),
		Password: user.Password,
		IsAdmin:  user.IsAdmin,
	}
	s.index(updated)
	return nil
}

// DeleteUserByUUID removes the user if present.
func (s *CredentialStore) DeleteUserByUUID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.byUUID[id]; ok {
		s.unindex(user)
	}
	return nil
}

// DeleteUserByEmail removes the user with email if present.
func (s *CredentialStore) DeleteUserByEmail(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[email]; ok {
		s.unindex(s.byUUID[id])
	}
	return nil
}

// GetUserByUUID returns a copy of the user.
func (s *CredentialStore) GetUserByUUID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byUUID[id]
	if !ok {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("uuid", id.String()).Wrap(auth.ErrNotFound)
	}
	return copyUser(user), nil
}

// GetUserByEmail returns a copy of the user.
func (s *CredentialStore) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return copyUser(s.byUUID[id]), nil
}

// GetUserByUsername returns a copy of the user.
func (s *CredentialStore) GetUserByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	return copyUser(s.byUUID[id]), nil
}

// Len returns the number of stored users.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUUID)
}

// checkUnique must be called with mu held. newID is checked for a uuid
// collision; self is the user being updated and may keep its own values.
func (s *CredentialStore) checkUnique(newID, self uuid.UUID, email, username *string) error {
	if newID != uuid.Nil {
		if _, taken := s.byUUID[newID]; taken {
			return duplicate("uuid")
		}
	}
	if email != nil {
		if owner, taken := s.byEmail[*email]; taken && owner != self {
			return duplicate("email")
		}
	}
	if username != nil {
		if owner, taken := s.byUsername[*username]; taken && owner != self {
			return duplicate("username")
		}
	}
	return nil
}

func (s *CredentialStore) index(user *auth.User) {
	s.byUUID[user.UUID] = user
	if user.Email != nil {
		s.byEmail[*user.Email] = user.UUID
	}
	if user.Username != nil {
		s.byUsername[*user.Username] = user.UUID
	}
}

func (s *CredentialStore) unindex(user *auth.User) {
	delete(s.byUUID, user.UUID)
	if user.Email != nil {
		delete(s.byEmail, *user.Email)
	}
	if user.Username != nil {
		delete(s.byUsername, *user.Username)
	}
}

func duplicate(field string) error {
	return oops.Code("CREDENTIAL_DUPLICATE").
		With("field", field).
		Wrap(&auth.DuplicateCredentialError{Field: field})
}

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	c.Email = copyPtr(u.Email)
	c.Username = copyPtr(u.Username)
	return &c
}

var _ auth.CredentialStore = (*CredentialStore)(nil)
