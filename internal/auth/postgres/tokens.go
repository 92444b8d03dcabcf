// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/xybot/xyweb/internal/auth"
)

// TokenRepository implements auth.TokenRepository on the auth_tokens table.
type TokenRepository struct {
	s *Store
}

// Get retrieves a token record that has not reached its purge deadline.
func (r *TokenRepository) Get(ctx context.Context, key string) (*auth.Token, error) {
	var t auth.Token
	err := r.s.db.QueryRow(ctx, `
		SELECT username, issued_at, expires_at
		FROM auth_tokens
		WHERE token_key = $1 AND purge_at > $2
	`, key, r.s.now()).Scan(&t.Username, &t.IssuedAt, &t.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, auth.StoreUnavailable("select token", err)
	}
	return &t, nil
}

// Put stores a token record that becomes invisible ttl from now.
func (r *TokenRepository) Put(ctx context.Context, key string, token *auth.Token, ttl time.Duration) error {
	_, err := r.s.db.Exec(ctx, `
		INSERT INTO auth_tokens (token_key, username, issued_at, expires_at, purge_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_key) DO UPDATE SET
			username = EXCLUDED.username,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			purge_at = EXCLUDED.purge_at
	`, key, token.Username, token.IssuedAt, token.ExpiresAt, r.s.now().Add(ttl))
	if err != nil {
		return auth.StoreUnavailable("upsert token", err)
	}
	return nil
}

// Delete removes a token record and reports whether a visible one existed.
func (r *TokenRepository) Delete(ctx context.Context, key string) (bool, error) {
	var visible bool
	err := r.s.db.QueryRow(ctx, `
		DELETE FROM auth_tokens WHERE token_key = $1
		RETURNING purge_at > $2
	`, key, r.s.now()).Scan(&visible)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, auth.StoreUnavailable("delete token", err)
	}
	return visible, nil
}

// List returns every visible token record keyed by token key.
func (r *TokenRepository) List(ctx context.Context) (map[string]*auth.Token, error) {
	rows, err := r.s.db.Query(ctx, `
		SELECT token_key, username, issued_at, expires_at
		FROM auth_tokens
		WHERE purge_at > $1
	`, r.s.now())
	if err != nil {
		return nil, auth.StoreUnavailable("list tokens", err)
	}
	defer rows.Close()

	out := make(map[string]*auth.Token)
	for rows.Next() {
		var (
			key string
			t   auth.Token
		)
		if err := rows.Scan(&key, &t.Username, &t.IssuedAt, &t.ExpiresAt); err != nil {
			return nil, auth.StoreUnavailable("scan token", err)
		}
		out[key] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, auth.StoreUnavailable("list tokens", err)
	}
	return out, nil
}

// DeleteByUser removes every token owned by username in one statement.
func (r *TokenRepository) DeleteByUser(ctx context.Context, username string) (int64, error) {
	tag, err := r.s.db.Exec(ctx, `DELETE FROM auth_tokens WHERE username = $1`, username)
	if err != nil {
		return 0, auth.StoreUnavailable("delete user tokens", err)
	}
	return tag.RowsAffected(), nil
}

// Purge removes rows whose purge deadline is at or before now.
func (r *TokenRepository) Purge(ctx context.Context) (int64, error) {
	tag, err := r.s.db.Exec(ctx, `DELETE FROM auth_tokens WHERE purge_at <= $1`, r.s.now())
	if err != nil {
		return 0, auth.StoreUnavailable("purge tokens", err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.TokenRepository = (*TokenRepository)(nil)
