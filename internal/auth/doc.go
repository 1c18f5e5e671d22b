// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential and session management for Gatekeeper.
//
// # Capabilities
//
// Persistence is split into two interfaces, each implemented by
// interchangeable backends chosen at construction time:
//   - CredentialStore holds User records (see the memory, sqlite and postgres subpackages)
//   - SessionStore maps a user UUID to one live bearer token (see internal/session,
//     and the redis and postgres subpackages)
//
// Backends classify their own failures: uniqueness violations surface as
// *DuplicateCredentialError and lookup misses as ErrNotFound, so the
// orchestrator never inspects driver-specific codes.
//
// # Orchestrator
//
// Users composes one store of each kind with a PasswordHasher and a
// TokenGenerator:
//   - Signup, CreateUser - account creation with argon2id hashing
//   - Login, LoginFor - password check and session issuance
//   - IsAuth, Logout - session validation and revocation
//   - Delete, DeleteByEmail, Modify - account management
//   - GetByUUID, GetByEmail, GetByUsername - lookups
//
// Every error returned by Users matches one of ErrNotFound,
// ErrDuplicateCredential, ErrUnauthorized, ErrBadRequest, ErrHashing or
// ErrBackend via errors.Is.
package auth
