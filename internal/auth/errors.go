// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Store-level sentinels. Repository implementations return these (possibly
// wrapped) so callers can branch with errors.Is.
var (
	// ErrNotFound is returned when a requested record does not exist or
	// cannot be decoded.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by insert-if-absent writes.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStoreUnavailable marks a failure to reach or talk to the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Authority refusals.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrLastAdminProtected = errors.New("cannot delete the last administrator")

	// ErrInvalidToken matches every token refusal below.
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenNotFound = fmt.Errorf("%w: not found", ErrInvalidToken)
	ErrTokenExpired  = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrTokenOrphaned = fmt.Errorf("%w: owner no longer exists", ErrInvalidToken)
)

// StoreUnavailable wraps a backend failure so that it matches
// ErrStoreUnavailable and carries the STORE_UNAVAILABLE code.
func StoreUnavailable(operation string, err error) error {
	if err == nil {
		return nil
	}
	return oops.Code("STORE_UNAVAILABLE").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}
