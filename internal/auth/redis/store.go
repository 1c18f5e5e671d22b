// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis provides a SessionStore backed by Redis. Expiry is enforced
// by Redis key TTLs, so ClearExpired has nothing to do.
package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/session"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "gatekeeper:session:"

// scanBatch is the SCAN COUNT hint and the DEL batch size used by ClearAll.
const scanBatch = 100

// SessionStore implements auth.SessionStore on a go-redis client. Each
// session is one string key, prefix+uuid, holding the secret.
type SessionStore struct {
	client   goredis.UniversalClient
	prefix   string
	lifetime time.Duration
	logger   *slog.Logger
}

// Option configures a SessionStore.
type Option func(*SessionStore)

// WithKeyPrefix sets the key namespace. The prefix must not contain glob
// metacharacters since ClearAll matches on it.
func WithKeyPrefix(prefix string) Option {
	return func(s *SessionStore) { s.prefix = prefix }
}

// WithDefaultLifetime sets the TTL used by Insert.
func WithDefaultLifetime(d time.Duration) Option {
	return func(s *SessionStore) { s.lifetime = d }
}

// WithLogger sets the logger for swallowed read failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SessionStore) { s.logger = logger }
}

// NewSessionStore creates a SessionStore on client.
func NewSessionStore(client goredis.UniversalClient, opts ...Option) *SessionStore {
	s := &SessionStore{
		client:   client,
		prefix:   DefaultKeyPrefix,
		lifetime: session.DefaultLifetime,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

// Ping checks connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return oops.Code("REDIS_PING_FAILED").Wrap(err)
	}
	return nil
}

// Insert stores secret for id with the default lifetime.
func (s *SessionStore) Insert(ctx context.Context, id uuid.UUID, secret string) error {
	return s.InsertFor(ctx, id, secret, s.lifetime)
}

// InsertFor stores secret for id with a TTL of ttl, replacing any existing key.
func (s *SessionStore) InsertFor(ctx context.Context, id uuid.UUID, secret string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(id), secret, ttl).Err(); err != nil {
		return oops.Code("REDIS_SET_FAILED").
			With("operation", "set session").
			With("uuid", id.String()).
			Wrap(err)
	}
	return nil
}

// Remove deletes the key for id. Removing a missing key succeeds.
func (s *SessionStore) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return oops.Code("REDIS_DEL_FAILED").
			With("operation", "delete session").
			With("uuid", id.String()).
			Wrap(err)
	}
	return nil
}

// Get returns the secret for id. Redis never returns an expired key.
func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (string, bool) {
	secret, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false
	}
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, slog.LevelWarn, "session lookup failed",
			oops.Code("REDIS_GET_FAILED").With("uuid", id.String()).Wrap(err))
		return "", false
	}
	return secret, true
}

// ClearAll deletes every key under the prefix. Other keys in the same
// database are left alone.
func (s *SessionStore) ClearAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	removed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return oops.Code("REDIS_CLEAR_FAILED").
				With("operation", "delete session batch").
				With("removed", removed).
				Wrap(err)
		}
		removed += len(batch)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return oops.Code("REDIS_CLEAR_FAILED").
			With("operation", "scan session keys").
			With("removed", removed).
			Wrap(err)
	}
	if err := flush(); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "sessions cleared", "count", removed, "prefix", s.prefix)
	return nil
}

// ClearExpired is a no-op; Redis evicts expired keys itself.
func (s *SessionStore) ClearExpired(context.Context) error {
	return nil
}

var _ auth.SessionStore = (*SessionStore)(nil)
