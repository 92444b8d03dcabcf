// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Bearer token configuration.
const (
	TokenBytes      = 32             // 32 bytes = 64 hex chars
	DefaultTokenTTL = 24 * time.Hour // 24 hour expiry
)

// Token is the stored record behind a bearer token.
type Token struct {
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpiredAt returns true if the token is past its expiry at t.
func (t *Token) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Session is the result of a successful authentication.
type Session struct {
	Username  string
	Role      Role
	Token     string
	ExpiresAt time.Time
}

// GenerateToken creates a secure random bearer token and its storage key.
// The token is returned to the client; only the key is persisted.
func GenerateToken() (token, key string, err error) {
	tokenBytes := make([]byte, TokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("AUTH_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, TokenKey(token), nil
}

// TokenKey computes the storage key of a bearer token (hex SHA-256).
func TokenKey(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenRepository manages token persistence. Keys are TokenKey values.
type TokenRepository interface {
	// Get retrieves a token record. Returns ErrNotFound when the record is
	// absent or unreadable.
	Get(ctx context.Context, key string) (*Token, error)

	// Put stores a token record and arranges its physical removal no later
	// than ttl from now.
	Put(ctx context.Context, key string, token *Token, ttl time.Duration) error

	// Delete removes a token record and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// List returns every readable token record keyed by storage key.
	List(ctx context.Context) (map[string]*Token, error)
}

// UserTokenDeleter is implemented by token repositories that can remove all
// of a user's tokens in one operation.
type UserTokenDeleter interface {
	DeleteByUser(ctx context.Context, username string) (int64, error)
}
