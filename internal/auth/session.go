// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// DefaultTokenLength is the number of characters in an issued session token.
const DefaultTokenLength = 32

// Session identifies a logged-in user to the host. AuthKey is the bearer
// token issued at login; presenting it with the matching UUID is the only
// proof of an active session.
type Session struct {
	UUID    uuid.UUID
	AuthKey string
}

// SessionStore maps a user UUID to its single live bearer token.
//
// Get performs its own liveness check: an entry past its expiry is never
// returned, whether or not ClearExpired has run.
type SessionStore interface {
	// Insert stores secret for id with the backend's default lifetime,
	// replacing any existing entry.
	Insert(ctx context.Context, id uuid.UUID, secret string) error
	// InsertFor stores secret for id, expiring ttl after the call.
	InsertFor(ctx context.Context, id uuid.UUID, secret string, ttl time.Duration) error
	// Remove deletes the entry for id if present.
	Remove(ctx context.Context, id uuid.UUID) error
	// Get returns the live secret for id. A missing entry or an unreachable
	// backend both yield ("", false).
	Get(ctx context.Context, id uuid.UUID) (string, bool)
	// ClearAll removes every entry.
	ClearAll(ctx context.Context) error
	// ClearExpired sweeps entries past their expiry. Backends with native
	// eviction implement it as a no-op.
	ClearExpired(ctx context.Context) error
}

// TokenGenerator produces opaque bearer tokens.
type TokenGenerator interface {
	Generate(length int) (string, error)
}

// tokenAlphabet is printable ASCII without space and without the characters
// that break naive textual embedding: \ " ' { } ( ) `
var tokenAlphabet = func() string {
	var b strings.Builder
	for c := byte('!'); c <= '~'; c++ {
		if strings.IndexByte("\\\"'{}()`", c) >= 0 {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}()

// TokenAlphabet returns the set of characters tokens are drawn from.
func TokenAlphabet() string {
	return tokenAlphabet
}

// RandomTokenGenerator draws tokens uniformly from TokenAlphabet using a
// cryptographically secure source.
type RandomTokenGenerator struct {
	reader io.Reader
}

// NewRandomTokenGenerator returns a generator backed by crypto/rand.
func NewRandomTokenGenerator() *RandomTokenGenerator {
	return &RandomTokenGenerator{reader: rand.Reader}
}

// NewRandomTokenGeneratorFrom returns a generator reading entropy from r.
func NewRandomTokenGeneratorFrom(r io.Reader) *RandomTokenGenerator {
	return &RandomTokenGenerator{reader: r}
}

// Generate returns a token of exactly length characters.
func (g *RandomTokenGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", oops.Code("AUTH_INVALID_TOKEN_LENGTH").
			With("length", length).
			Errorf("token length must be positive")
	}

	limit := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(g.reader, limit)
		if err != nil {
			return "", oops.Code("AUTH_TOKEN_FAILED").With("operation", "read entropy").Wrap(err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}
