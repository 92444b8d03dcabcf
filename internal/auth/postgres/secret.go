// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/xybot/xyweb/internal/auth"
)

// secretName is the auth_secrets row holding the installation secret.
const secretName = "secret_key"

// SecretRepository implements auth.SecretRepository on the auth_secrets table.
type SecretRepository struct {
	s *Store
}

// GetSecret returns the installation secret.
func (r *SecretRepository) GetSecret(ctx context.Context) (string, error) {
	var value string
	err := r.s.db.QueryRow(ctx, `SELECT value FROM auth_secrets WHERE name = $1`, secretName).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && value == "") {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", auth.StoreUnavailable("select secret", err)
	}
	return value, nil
}

// PutSecretIfAbsent stores secret unless one already exists.
func (r *SecretRepository) PutSecretIfAbsent(ctx context.Context, secret string) (bool, error) {
	tag, err := r.s.db.Exec(ctx, `
		INSERT INTO auth_secrets (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, secretName, secret)
	if err != nil {
		return false, auth.StoreUnavailable("insert secret", err)
	}
	return tag.RowsAffected() == 1, nil
}

var _ auth.SecretRepository = (*SecretRepository)(nil)
