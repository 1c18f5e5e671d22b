// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/session"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// Operation names reported to the Recorder.
const (
	OpSignup          = "signup"
	OpCreateUser      = "create_user"
	OpLogin           = "login"
	OpLoginFor        = "login_for"
	OpLogout          = "logout"
	OpDelete          = "delete"
	OpDeleteByEmail   = "delete_by_email"
	OpModify          = "modify"
	OpGetByUUID       = "get_by_uuid"
	OpGetByEmail      = "get_by_email"
	OpGetByUsername   = "get_by_username"
	OpClearSessions   = "clear_sessions"
	OpClearExpired    = "clear_expired"
	OpInitCredentials = "init"
)

// Recorder receives one observation per orchestrator operation.
type Recorder interface {
	ObserveOperation(operation, outcome string)
	ObserveSweep(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string) {}
func (noopRecorder) ObserveSweep(string)             {}

// dummyPassword is hashed once per Users to give lookup misses the same
// verification cost as real users.
//
//nolint:gosec // G101: not a credential
const dummyPassword = "gatekeeper-timing-equalizer"

// fallbackDummyHash is used only if hashing dummyPassword fails.
//
//nolint:gosec // G101: intentionally fake hash
const fallbackDummyHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Users composes a CredentialStore and a SessionStore into signup, login and
// account management. It holds no locks of its own and is safe for
// concurrent use when its stores are.
type Users struct {
	creds       CredentialStore
	sessions    SessionStore
	hasher      PasswordHasher
	tokens      TokenGenerator
	validator   SignupValidator
	recorder    Recorder
	logger      *slog.Logger
	tokenLength int

	dummyOnce sync.Once
	dummyHash string
}

// Option configures Users.
type Option func(*Users)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(u *Users) { u.logger = logger }
}

// WithHasher sets the password hasher. Defaults to argon2id with DefaultArgon2Params.
func WithHasher(h PasswordHasher) Option {
	return func(u *Users) { u.hasher = h }
}

// WithTokenGenerator sets the token source. Defaults to crypto/rand.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(u *Users) { u.tokens = g }
}

// WithTokenLength sets the issued token length. Defaults to DefaultTokenLength.
func WithTokenLength(n int) Option {
	return func(u *Users) { u.tokenLength = n }
}

// WithValidator sets the signup policy. Defaults to DefaultPasswordPolicy.
func WithValidator(v SignupValidator) Option {
	return func(u *Users) { u.validator = v }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(u *Users) { u.recorder = r }
}

// NewUsers creates Users backed by creds with sessions kept in an
// in-process session.Map.
func NewUsers(creds CredentialStore, opts ...Option) (*Users, error) {
	return NewUsersWithSessions(creds, session.NewMap(), opts...)
}

// NewUsersWithSessions creates Users from a credential and session store pair.
func NewUsersWithSessions(creds CredentialStore, sessions SessionStore, opts ...Option) (*Users, error) {
	if creds == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("session store is required")
	}

	u := &Users{
		creds:       creds,
		sessions:    sessions,
		tokens:      NewRandomTokenGenerator(),
		validator:   NewPolicyValidator(DefaultPasswordPolicy()),
		recorder:    noopRecorder{},
		logger:      slog.Default(),
		tokenLength: DefaultTokenLength,
	}
	for _, opt := range opts {
		opt(u)
	}

	if u.hasher == nil {
		hasher, err := NewArgon2idHasher(DefaultArgon2Params())
		if err != nil {
			return nil, err
		}
		u.hasher = hasher
	}

	switch {
	case u.logger == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	case u.tokens == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("token generator is required")
	case u.validator == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("signup validator is required")
	case u.recorder == nil:
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("recorder is required")
	case u.tokenLength <= 0:
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("token_length", u.tokenLength).
			Errorf("token length must be positive")
	}

	return u, nil
}

// Sessions returns the session store in use.
func (u *Users) Sessions() SessionStore {
	return u.sessions
}

// Init creates the credential schema if needed.
func (u *Users) Init(ctx context.Context) (err error) {
	defer u.observe(OpInitCredentials, &err)
	if err := u.creds.Init(ctx); err != nil {
		return u.backendError(OpInitCredentials, err)
	}
	return nil
}

// Signup validates req and creates the account, returning its UUID.
func (u *Users) Signup(ctx context.Context, req Signup) (id uuid.UUID, err error) {
	defer u.observe(OpSignup, &err)

	if err := u.validator.ValidateSignup(req); err != nil {
		return uuid.Nil, err
	}

	id = uuid.New()
	if err := u.createUser(ctx, id, req.Email, req.Username, req.Password, false); err != nil {
		return uuid.Nil, err
	}

	u.logger.DebugContext(ctx, "user signed up", "uuid", id.String())
	return id, nil
}

// CreateUser hashes password and inserts the user. Unlike Signup it applies
// no validation policy and can create administrators.
func (u *Users) CreateUser(ctx context.Context, id uuid.UUID, email, username *string, password string, isAdmin bool) (err error) {
	defer u.observe(OpCreateUser, &err)
	return u.createUser(ctx, id, email, username, password, isAdmin)
}

func (u *Users) createUser(ctx context.Context, id uuid.UUID, email, username *string, password string, isAdmin bool) error {
	hash, err := u.hasher.Hash(password)
	if err != nil {
		return oops.Code("AUTH_HASH_FAILED").With("uuid", id.String()).Wrap(err)
	}

	email = lowerPtr(email)
	if err := u.creds.CreateUser(ctx, id, email, username, hash, isAdmin); err != nil {
		if errors.Is(err, ErrDuplicateCredential) {
			return duplicateError(err, email, username)
		}
		return u.backendError("create_user", err)
	}
	return nil
}

// Login authenticates form and issues a session with the session store's
// default lifetime.
func (u *Users) Login(ctx context.Context, form Login) (s Session, err error) {
	defer u.observe(OpLogin, &err)
	return u.login(ctx, form, func(id uuid.UUID, token string) error {
		return u.sessions.Insert(ctx, id, token)
	})
}

// LoginFor authenticates form and issues a session that expires after ttl.
func (u *Users) LoginFor(ctx context.Context, form Login, ttl time.Duration) (s Session, err error) {
	defer u.observe(OpLoginFor, &err)
	if ttl <= 0 {
		return Session{}, oops.Code("AUTH_INVALID_TTL").With("ttl", ttl.String()).Wrap(ErrBadRequest)
	}
	return u.login(ctx, form, func(id uuid.UUID, token string) error {
		return u.sessions.InsertFor(ctx, id, token, ttl)
	})
}

func (u *Users) login(ctx context.Context, form Login, issue func(uuid.UUID, string) error) (Session, error) {
	user, err := u.GetByLogin(ctx, form)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Equalize timing with a real verification.
			_, _ = u.hasher.Verify(u.dummy(), form.Password) //nolint:errcheck // result is irrelevant
		}
		return Session{}, err
	}

	ok, err := u.hasher.Verify(user.Password, form.Password)
	if err != nil {
		return Session{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("uuid", user.UUID.String()).
			Wrap(err)
	}
	if !ok {
		u.logger.DebugContext(ctx, "login rejected", "uuid", user.UUID.String())
		return Session{}, oops.Code("AUTH_INVALID_CREDENTIALS").
			With("uuid", user.UUID.String()).
			Wrap(ErrUnauthorized)
	}

	u.upgradeHash(ctx, user, form.Password)

	token, err := u.tokens.Generate(u.tokenLength)
	if err != nil {
		return Session{}, u.backendError("generate_token", err)
	}
	if err := issue(user.UUID, token); err != nil {
		return Session{}, u.backendError("insert_session", err)
	}

	u.logger.DebugContext(ctx, "user logged in", "user", user)
	return Session{UUID: user.UUID, AuthKey: token}, nil
}

// upgradeHash re-hashes a password stored with an outdated algorithm or
// profile. Failures are logged and never fail the login.
func (u *Users) upgradeHash(ctx context.Context, user *User, password string) {
	if !u.hasher.NeedsUpgrade(user.Password) {
		return
	}
	hash, err := u.hasher.Hash(password)
	if err == nil {
		upgraded := *user
		upgraded.Password = hash
		err = u.creds.UpdateUser(ctx, &upgraded)
	}
	if err != nil {
		u.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"operation", "upgrade_hash",
			"uuid", user.UUID.String(),
			"error", err.Error())
	}
}

// GetByLogin resolves the user selected by exactly one of form.Email or
// form.Username.
func (u *Users) GetByLogin(ctx context.Context, form Login) (*User, error) {
	hasEmail := form.Email != nil && *form.Email != ""
	hasUsername := form.Username != nil && *form.Username != ""

	switch {
	case hasEmail && hasUsername:
		return nil, oops.Code("AUTH_BAD_SELECTOR").
			With("reason", "both email and username were provided").
			Wrap(ErrInvalidSelector)
	case hasEmail:
		return u.getByEmail(ctx, *form.Email)
	case hasUsername:
		return u.getByUsername(ctx, *form.Username)
	default:
		return nil, oops.Code("AUTH_BAD_SELECTOR").
			With("reason", "neither email nor username was provided").
			Wrap(ErrInvalidSelector)
	}
}

// IsAuth reports whether s carries the live secret for its UUID.
func (u *Users) IsAuth(ctx context.Context, s Session) bool {
	if s.AuthKey == "" {
		return false
	}
	secret, ok := u.sessions.Get(ctx, s.UUID)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.AuthKey)) == 1
}

// Logout revokes s if it is the live session for its UUID. A stale or
// superseded session is left alone and no error is returned.
func (u *Users) Logout(ctx context.Context, s Session) (err error) {
	defer u.observe(OpLogout, &err)
	if !u.IsAuth(ctx, s) {
		return nil
	}
	if err := u.sessions.Remove(ctx, s.UUID); err != nil {
		return u.backendError("remove_session", err)
	}
	return nil
}

// Delete revokes the user's session and then deletes the account. If the
// account delete fails after the session was revoked, the returned error
// matches both ErrPartialDelete and ErrBackend and the call may be retried.
func (u *Users) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer u.observe(OpDelete, &err)

	if err := u.sessions.Remove(ctx, id); err != nil {
		return u.backendError("remove_session", err)
	}
	if err := u.creds.DeleteUserByUUID(ctx, id); err != nil {
		return partialDeleteError(id, err)
	}

	u.logger.DebugContext(ctx, "user deleted", "uuid", id.String())
	return nil
}

// DeleteByEmail resolves the account by email, revokes its session and
// deletes it.
func (u *Users) DeleteByEmail(ctx context.Context, email string) (err error) {
	defer u.observe(OpDeleteByEmail, &err)

	user, err := u.getByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := u.sessions.Remove(ctx, user.UUID); err != nil {
		return u.backendError("remove_session", err)
	}
	if err := u.creds.DeleteUserByEmail(ctx, user.EmailOrEmpty()); err != nil {
		return partialDeleteError(user.UUID, err)
	}

	u.logger.DebugContext(ctx, "user deleted", "uuid", user.UUID.String())
	return nil
}

// Modify persists user as given, matched by UUID. The password field is
// stored verbatim; use SetPassword first to change it.
func (u *Users) Modify(ctx context.Context, user *User) (err error) {
	defer u.observe(OpModify, &err)

	if user == nil {
		return oops.Code("AUTH_INVALID_USER").With("reason", "user is required").Wrap(ErrBadRequest)
	}

	updated := *user
	updated.Email = lowerPtr(user.Email)
	if err := u.creds.UpdateUser(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return oops.Code("AUTH_USER_NOT_FOUND").With("uuid", user.UUID.String()).Wrap(ErrUserNotFound)
		case errors.Is(err, ErrDuplicateCredential):
			return duplicateError(err, updated.Email, updated.Username)
		default:
			return u.backendError("update_user", err)
		}
	}
	user.Email = updated.Email
	return nil
}

// SetPassword hashes password into user.Password. It does not persist;
// call Modify afterwards.
func (u *Users) SetPassword(user *User, password string) error {
	hash, err := u.hasher.Hash(password)
	if err != nil {
		return oops.Code("AUTH_HASH_FAILED").With("uuid", user.UUID.String()).Wrap(err)
	}
	user.Password = hash
	return nil
}

// GetByUUID returns the user with the given UUID.
func (u *Users) GetByUUID(ctx context.Context, id uuid.UUID) (user *User, err error) {
	defer u.observe(OpGetByUUID, &err)
	user, err = u.creds.GetUserByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_NOT_FOUND").With("uuid", id.String()).Wrap(ErrUserNotFound)
		}
		return nil, u.backendError("get_user_by_uuid", err)
	}
	return user, nil
}

// GetByEmail returns the user with the given email, compared case-insensitively.
func (u *Users) GetByEmail(ctx context.Context, email string) (user *User, err error) {
	defer u.observe(OpGetByEmail, &err)
	return u.getByEmail(ctx, email)
}

func (u *Users) getByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(email)
	user, err := u.creds.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_EMAIL_NOT_FOUND").With("email", email).Wrap(ErrEmailNotFound)
		}
		return nil, u.backendError("get_user_by_email", err)
	}
	return user, nil
}

// GetByUsername returns the user with the given username.
func (u *Users) GetByUsername(ctx context.Context, username string) (user *User, err error) {
	defer u.observe(OpGetByUsername, &err)
	return u.getByUsername(ctx, username)
}

func (u *Users) getByUsername(ctx context.Context, username string) (*User, error) {
	user, err := u.creds.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USERNAME_NOT_FOUND").With("username", username).Wrap(ErrUsernameNotFound)
		}
		return nil, u.backendError("get_user_by_username", err)
	}
	return user, nil
}

// ClearAllSessions revokes every session in the session store.
func (u *Users) ClearAllSessions(ctx context.Context) (err error) {
	defer u.observe(OpClearSessions, &err)
	if err := u.sessions.ClearAll(ctx); err != nil {
		return u.backendError("clear_all_sessions", err)
	}
	return nil
}

// ClearExpiredSessions sweeps expired sessions.
func (u *Users) ClearExpiredSessions(ctx context.Context) (err error) {
	defer u.observe(OpClearExpired, &err)
	if err := u.sessions.ClearExpired(ctx); err != nil {
		return u.backendError("clear_expired_sessions", err)
	}
	return nil
}

func (u *Users) dummy() string {
	u.dummyOnce.Do(func() {
		hash, err := u.hasher.Hash(dummyPassword)
		if err != nil {
			hash = fallbackDummyHash
		}
		u.dummyHash = hash
	})
	return u.dummyHash
}

func (u *Users) observe(op string, errp *error) {
	u.recorder.ObserveOperation(op, Outcome(*errp))
}

func (u *Users) backendError(op string, err error) error {
	wrapped := oops.Code("AUTH_BACKEND_FAILED").
		With("operation", op).
		Wrap(&BackendError{Op: op, Err: err})
	errutil.LogError(u.logger, "backend operation failed", wrapped)
	return wrapped
}

func partialDeleteError(id uuid.UUID, err error) error {
	return oops.Code("AUTH_DELETE_PARTIAL").
		With("uuid", id.String()).
		With("session_removed", true).
		Wrap(errors.Join(ErrPartialDelete, &BackendError{Op: "delete_user", Err: err}))
}

// duplicateError names the field a uniqueness violation was reported on.
func duplicateError(err error, email, username *string) error {
	field := ""
	var dup *DuplicateCredentialError
	if errors.As(err, &dup) {
		field = dup.Field
	}
	if field == "" {
		switch {
		case email != nil:
			field = "email"
		case username != nil:
			field = "username"
		}
	}

	switch field {
	case "email":
		return oops.Code("AUTH_EMAIL_EXISTS").With("email", derefOr(email)).Wrap(ErrEmailAlreadyExists)
	case "username":
		return oops.Code("AUTH_USERNAME_EXISTS").With("username", derefOr(username)).Wrap(ErrUsernameAlreadyExists)
	default:
		return oops.Code("AUTH_DUPLICATE_CREDENTIAL").With("field", field).Wrap(err)
	}
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ SessionStore = (*session.Map)(nil)
