// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/samber/oops"
)

// SecretBytes is the size of the installation secret before hex encoding.
const SecretBytes = 32

// SecretRepository persists the installation secret.
type SecretRepository interface {
	// GetSecret returns the stored secret or ErrNotFound.
	GetSecret(ctx context.Context) (string, error)

	// PutSecretIfAbsent stores secret unless one already exists and reports
	// whether it was written.
	PutSecretIfAbsent(ctx context.Context, secret string) (bool, error)
}

// GenerateSecret returns a fresh hex-encoded random secret.
func GenerateSecret() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("AUTH_SECRET_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}
