// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session provides the default in-process session store.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLifetime is the lifetime applied by Insert: one year.
const DefaultLifetime = 365 * 24 * time.Hour

const shardCount = 32

// AuthKey is a stored bearer secret and its absolute expiry.
type AuthKey struct {
	Secret  string
	Expires time.Time
}

// Expired reports whether the key is no longer valid at now.
func (k AuthKey) Expired(now time.Time) bool {
	return !now.Before(k.Expires)
}

type shard struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]AuthKey
}

// Map is a sharded concurrent session store. Sessions live only as long as
// the process. Expired entries are never returned by Get; Sweep removes them.
type Map struct {
	shards   [shardCount]*shard
	now      func() time.Time
	lifetime time.Duration
}

// Option configures a Map.
type Option func(*Map)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Map) { m.now = now }
}

// WithDefaultLifetime sets the lifetime used by Insert.
func WithDefaultLifetime(d time.Duration) Option {
	return func(m *Map) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

// NewMap creates an empty Map.
func NewMap(opts ...Option) *Map {
	m := &Map{
		now:      time.Now,
		lifetime: DefaultLifetime,
	}
	for i := range m.shards {
		m.shards[i] = &shard{keys: make(map[uuid.UUID]AuthKey)}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Map) shardFor(id uuid.UUID) *shard {
	return m.shards[int(id[len(id)-1])%shardCount]
}

// Insert stores secret for id with the default lifetime.
func (m *Map) Insert(ctx context.Context, id uuid.UUID, secret string) error {
	return m.InsertFor(ctx, id, secret, m.lifetime)
}

// InsertFor stores secret for id, expiring ttl from now.
func (m *Map) InsertFor(_ context.Context, id uuid.UUID, secret string, ttl time.Duration) error {
	s := m.shardFor(id)
	key := AuthKey{Secret: secret, Expires: m.now().Add(ttl)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[id] = key
	return nil
}

// Remove deletes the entry for id.
func (m *Map) Remove(_ context.Context, id uuid.UUID) error {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, id)
	return nil
}

// Get returns the secret for id if it exists and has not expired. An expired
// entry is dropped on the way out.
func (m *Map) Get(_ context.Context, id uuid.UUID) (string, bool) {
	key, ok := m.Entry(id)
	if !ok {
		return "", false
	}
	if key.Expired(m.now()) {
		m.dropIfStale(id, key)
		return "", false
	}
	return key.Secret, true
}

// dropIfStale removes id only if it still holds stale, so a concurrent
// re-login is not lost.
func (m *Map) dropIfStale(id uuid.UUID, stale AuthKey) {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.keys[id]; ok && current == stale {
		delete(s.keys, id)
	}
}

// Entry returns the raw stored key for id, expired or not.
func (m *Map) Entry(id uuid.UUID) (AuthKey, bool) {
	s := m.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	return key, ok
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (m *Map) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.keys)
		s.mu.RUnlock()
	}
	return n
}

// ClearAll removes every entry.
func (m *Map) ClearAll(_ context.Context) error {
	for _, s := range m.shards {
		s.mu.Lock()
		clear(s.keys)
		s.mu.Unlock()
	}
	return nil
}

// ClearExpired removes every expired entry.
func (m *Map) ClearExpired(_ context.Context) error {
	m.Sweep()
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (m *Map) Sweep() int {
	now := m.now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for id, key := range s.keys {
			if key.Expired(now) {
				delete(s.keys, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
