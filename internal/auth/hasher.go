// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params is the versioned argon2id parameter profile.
type Argon2Params struct {
	Time       uint32 // iterations
	Memory     uint32 // KiB
	Threads    uint8
	SaltLength uint32 // bytes
	KeyLength  uint32 // bytes
}

// DefaultArgon2Params returns the OWASP-recommended argon2id profile.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:       1,
		Memory:     64 * 1024,
		Threads:    4,
		SaltLength: 16,
		KeyLength:  32,
	}
}

// Validate checks that the profile is usable.
func (p Argon2Params) Validate() error {
	switch {
	case p.Time == 0:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 time must be positive")
	case p.Threads == 0:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 threads must be positive")
	case p.Memory < 8*uint32(p.Threads):
		return oops.Code("AUTH_INVALID_HASH_PARAMS").
			With("memory", p.Memory).
			With("threads", p.Threads).
			Errorf("argon2 memory must be at least 8 KiB per thread")
	case p.SaltLength < 8:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 salt length must be at least 8 bytes")
	case p.KeyLength < 16:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 key length must be at least 16 bytes")
	}
	return nil
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of the password. Every call uses a fresh salt.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or ErrHashing on a malformed hash.
	Verify(encodedHash, password string) (bool, error)

	// NeedsUpgrade returns true if the hash was produced by a different
	// algorithm or parameter profile than the hasher's current one.
	NeedsUpgrade(encodedHash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id, and verifies
// legacy bcrypt hashes.
type Argon2idHasher struct {
	params Argon2Params
	rand   io.Reader
}

// NewArgon2idHasher creates a hasher with the given parameter profile.
func NewArgon2idHasher(params Argon2Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params, rand: rand.Reader}, nil
}

// Params returns the hasher's parameter profile.
func (h *Argon2idHasher) Params() Argon2Params {
	return h.params
}

// Hash produces an argon2id hash of the password in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code("AUTH_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(encodedHash, password string) (bool, error) {
	if isBcrypt(encodedHash) {
		return verifyBcrypt(encodedHash, password)
	}

	phc, err := parseArgon2id(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), phc.salt, phc.params.Time, phc.params.Memory, phc.params.Threads, phc.params.KeyLength)
	return subtle.ConstantTimeCompare(computed, phc.key) == 1, nil
}

// NeedsUpgrade returns true for bcrypt hashes and for argon2id hashes whose
// parameters differ from the hasher's profile.
func (h *Argon2idHasher) NeedsUpgrade(encodedHash string) bool {
	phc, err := parseArgon2id(encodedHash)
	if err != nil {
		return true
	}
	p := phc.params
	return p.Time != h.params.Time ||
		p.Memory != h.params.Memory ||
		p.Threads != h.params.Threads ||
		p.KeyLength != h.params.KeyLength
}

type argon2PHC struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func parseArgon2id(encodedHash string) (*argon2PHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, malformedHash("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, malformedHash(fmt.Sprintf("unsupported hash algorithm: %s", parts[1]))
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, malformedHash("invalid version segment")
	}
	if version != argon2.Version {
		return nil, malformedHash(fmt.Sprintf("unsupported argon2 version: %d", version))
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, malformedHash("invalid parameter segment")
	}
	if threads == 0 || threads > 255 {
		return nil, malformedHash(fmt.Sprintf("threads value %d out of range", threads))
	}
	if time == 0 || memory == 0 {
		return nil, malformedHash("time and memory must be positive")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, malformedHash("invalid salt encoding")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, malformedHash("invalid key encoding")
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return nil, malformedHash(fmt.Sprintf("invalid hash key length: %d", len(key)))
	}

	return &argon2PHC{
		params: Argon2Params{
			Time:       time,
			Memory:     memory,
			Threads:    uint8(threads),
			SaltLength: uint32(len(salt)),
			KeyLength:  uint32(len(key)),
		},
		salt: salt,
		key:  key,
	}, nil
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

func verifyBcrypt(encodedHash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(errors.Join(ErrHashing, err))
	}
}

func malformedHash(reason string) error {
	return oops.Code("AUTH_INVALID_HASH").With("reason", reason).Wrap(ErrHashing)
}
