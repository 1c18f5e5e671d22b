// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks of the auth capability interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/gatekeeper/internal/auth"
)

// testingT is satisfied by *testing.T.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockCredentialStore is a mock of auth.CredentialStore.
type MockCredentialStore struct {
	mock.Mock
}

// NewMockCredentialStore creates a mock that asserts its expectations on cleanup.
func NewMockCredentialStore(t testingT) *MockCredentialStore {
	m := &MockCredentialStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCredentialStore) Init(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCredentialStore) CreateUser(ctx context.Context, id uuid.UUID, email, username *string, passwordHash string, isAdmin bool) error {
	return m.Called(ctx, id, email, username, passwordHash, isAdmin).Error(0)
}

func (m *MockCredentialStore) UpdateUser(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockCredentialStore) DeleteUserByUUID(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCredentialStore) DeleteUserByEmail(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockCredentialStore) GetUserByUUID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return userResult(m.Called(ctx, id))
}

func (m *MockCredentialStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return userResult(m.Called(ctx, email))
}

func (m *MockCredentialStore) GetUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return userResult(m.Called(ctx, username))
}

func userResult(args mock.Arguments) (*auth.User, error) {
	var user *auth.User
	if v := args.Get(0); v != nil {
		user = v.(*auth.User) //nolint:errcheck,forcetypeassert // mock misuse should panic
	}
	return user, args.Error(1)
}

// MockSessionStore is a mock of auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a mock that asserts its expectations on cleanup.
func NewMockSessionStore(t testingT) *MockSessionStore {
	m := &MockSessionStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionStore) Insert(ctx context.Context, id uuid.UUID, secret string) error {
	return m.Called(ctx, id, secret).Error(0)
}

func (m *MockSessionStore) InsertFor(ctx context.Context, id uuid.UUID, secret string, ttl time.Duration) error {
	return m.Called(ctx, id, secret, ttl).Error(0)
}

func (m *MockSessionStore) Remove(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionStore) Get(ctx context.Context, id uuid.UUID) (string, bool) {
	args := m.Called(ctx, id)
	return args.String(0), args.Bool(1)
}

func (m *MockSessionStore) ClearAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSessionStore) ClearExpired(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(encodedHash, password string) (bool, error) {
	args := m.Called(encodedHash, password)
	return args.Bool(0), args.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(encodedHash string) bool {
	return m.Called(encodedHash).Bool(0)
}

// MockTokenGenerator is a mock of auth.TokenGenerator.
type MockTokenGenerator struct {
	mock.Mock
}

// NewMockTokenGenerator creates a mock that asserts its expectations on cleanup.
func NewMockTokenGenerator(t testingT) *MockTokenGenerator {
	m := &MockTokenGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenGenerator) Generate(length int) (string, error) {
	args := m.Called(length)
	return args.String(0), args.Error(1)
}

var (
	_ auth.CredentialStore = (*MockCredentialStore)(nil)
	_ auth.SessionStore    = (*MockSessionStore)(nil)
	_ auth.PasswordHasher  = (*MockPasswordHasher)(nil)
	_ auth.TokenGenerator  = (*MockTokenGenerator)(nil)
)
