// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Lookup misses, specialized by the selector that missed.
var (
	ErrUserNotFound     = fmt.Errorf("user does not exist: %w", ErrNotFound)
	ErrEmailNotFound    = fmt.Errorf("email does not exist: %w", ErrNotFound)
	ErrUsernameNotFound = fmt.Errorf("username does not exist: %w", ErrNotFound)
)

// ErrDuplicateCredential is returned when a unique credential field is already taken.
var ErrDuplicateCredential = errors.New("duplicate credential")

// Uniqueness violations translated for callers.
var (
	ErrEmailAlreadyExists    = fmt.Errorf("email already exists: %w", ErrDuplicateCredential)
	ErrUsernameAlreadyExists = fmt.Errorf("username already exists: %w", ErrDuplicateCredential)
)

// ErrUnauthorized is returned when a password does not match the stored hash.
var ErrUnauthorized = errors.New("unauthorized")

// ErrBadRequest is returned for malformed caller input.
var ErrBadRequest = errors.New("bad request")

// Malformed input, specialized.
var (
	ErrInvalidSelector = fmt.Errorf("exactly one of email or username is required: %w", ErrBadRequest)
	ErrInvalidSignup   = fmt.Errorf("invalid signup: %w", ErrBadRequest)
	ErrEmptyPassword   = fmt.Errorf("password cannot be empty: %w", ErrBadRequest)
)

// ErrHashing is returned when a stored password hash is structurally malformed.
var ErrHashing = errors.New("malformed password hash")

// ErrBackend classifies storage and session failures that have no more specific meaning.
var ErrBackend = errors.New("backend failure")

// ErrPartialDelete is returned when a user's session was revoked but the
// credential record could not be deleted. Retrying the delete is safe.
var ErrPartialDelete = errors.New("session revoked but credential delete failed")

// DuplicateCredentialError is the classification every CredentialStore returns
// when a uniqueness constraint rejects a write. Field names the offending
// column ("email", "username", "uuid") or is empty when the backend cannot tell.
type DuplicateCredentialError struct {
	Field string
}

func (e *DuplicateCredentialError) Error() string {
	if e.Field == "" {
		return ErrDuplicateCredential.Error()
	}
	return fmt.Sprintf("duplicate credential: %s already in use", e.Field)
}

// Is reports whether target is ErrDuplicateCredential.
func (e *DuplicateCredentialError) Is(target error) bool {
	return target == ErrDuplicateCredential
}

// BackendError wraps an unclassified failure from a CredentialStore or
// SessionStore together with the operation that produced it.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBackend.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// Outcome labels used for metrics.
const (
	OutcomeSuccess      = "success"
	OutcomeNotFound     = "not_found"
	OutcomeDuplicate    = "duplicate"
	OutcomeUnauthorized = "unauthorized"
	OutcomeBadRequest   = "bad_request"
	OutcomeHashingError = "hashing_error"
	OutcomeBackendError = "backend_error"
)

// Outcome classifies err into one of the Outcome* labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrDuplicateCredential):
		return OutcomeDuplicate
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, ErrBadRequest):
		return OutcomeBadRequest
	case errors.Is(err, ErrHashing):
		return OutcomeHashingError
	default:
		return OutcomeBackendError
	}
}
