// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/session"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
	user_uuid  UUID PRIMARY KEY,
	secret     TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at)`

// SessionRepository implements auth.SessionStore using PostgreSQL. Expiry
// is computed from the repository clock and stored with each row; reads
// filter on it so expired rows are invisible before the sweep deletes them.
type SessionRepository struct {
	pool     Querier
	logger   *slog.Logger
	now      func() time.Time
	lifetime time.Duration
}

// SessionOption configures a SessionRepository.
type SessionOption func(*SessionRepository)

// WithSessionLogger sets the logger used for swallowed read failures.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(r *SessionRepository) { r.logger = logger }
}

// WithSessionClock replaces time.Now.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(r *SessionRepository) { r.now = now }
}

// WithSessionLifetime sets the lifetime used by Insert.
func WithSessionLifetime(d time.Duration) SessionOption {
	return func(r *SessionRepository) { r.lifetime = d }
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool Querier, opts ...SessionOption) *SessionRepository {
	r := &SessionRepository{
		pool:     pool,
		logger:   slog.Default(),
		now:      time.Now,
		lifetime: session.DefaultLifetime,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init creates the sessions table if it does not exist.
func (r *SessionRepository) Init(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createSessionsTable); err != nil {
		return oops.Code("SESSION_INIT_FAILED").
			With("operation", "create sessions table").
			Wrap(err)
	}
	return nil
}

// Insert stores secret for id with the default lifetime.
func (r *SessionRepository) Insert(ctx context.Context, id uuid.UUID, secret string) error {
	return r.InsertFor(ctx, id, secret, r.lifetime)
}

// InsertFor stores secret for id, replacing any existing row.
func (r *SessionRepository) InsertFor(ctx context.Context, id uuid.UUID, secret string, ttl time.Duration) error {
	expiresAt := r.now().Add(ttl).UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (user_uuid, secret, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_uuid) DO UPDATE
		SET secret = EXCLUDED.secret, expires_at = EXCLUDED.expires_at, created_at = now()
	`, id.String(), secret, expiresAt)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "upsert session").
			With("uuid", id.String()).
			Wrap(err)
	}
	return nil
}

// Remove deletes the session for id. Removing a missing session succeeds.
func (r *SessionRepository) Remove(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_uuid = $1`, id.String()); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			With("uuid", id.String()).
			Wrap(err)
	}
	return nil
}

// Get returns the unexpired secret for id.
func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (string, bool) {
	var secret string
	err := r.pool.QueryRow(ctx, `
		SELECT secret FROM sessions
		WHERE user_uuid = $1 AND expires_at > $2
	`, id.String(), r.now().UTC()).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false
	}
	if err != nil {
		errutil.LogErrorContext(ctx, r.logger, slog.LevelWarn, "session lookup failed",
			oops.Code("SESSION_GET_FAILED").With("uuid", id.String()).Wrap(err))
		return "", false
	}
	return secret, true
}

// ClearAll deletes every session.
func (r *SessionRepository) ClearAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions`); err != nil {
		return oops.Code("SESSION_CLEAR_FAILED").
			With("operation", "delete all sessions").
			Wrap(err)
	}
	return nil
}

// ClearExpired deletes sessions whose expiry has passed.
func (r *SessionRepository) ClearExpired(ctx context.Context) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	r.logger.DebugContext(ctx, "expired sessions cleared", "count", result.RowsAffected())
	return nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionRepository)(nil)
