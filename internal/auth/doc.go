// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth is the credential and session authority for xyweb.
//
// # Domain Types
//
//   - User - a stored account; create with NewUser, which validates the
//     username and role
//   - Token - the record behind an opaque bearer token, stored under
//     TokenKey(token) so store contents never hold usable credentials
//   - Session - returned by Authenticate
//   - Identity - returned by ValidateToken
//
// # Repositories
//
// UserRepository, TokenRepository and SecretRepository abstract the shared
// key-value store. Implementations live in the memory, redis and postgres
// subpackages; internal/store holds the Postgres pool and migrations. They return
// ErrNotFound for absent or unreadable records and errors matching
// ErrStoreUnavailable when the backend cannot be reached.
//
// # Authority
//
// Authority coordinates hashing, token issuance and the account lifecycle.
// It is created with NewAuthority, which validates dependencies and
// bootstraps an empty store with the installation secret and the default
// administrator. Refusals are reported as errors matching the sentinels in
// errors.go and carry an oops code; RevokeToken reports idempotency with a
// bool instead.
package auth
