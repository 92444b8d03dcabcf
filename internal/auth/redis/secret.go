// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xybot/xyweb/internal/auth"
)

// SecretRepository implements auth.SecretRepository.
type SecretRepository struct {
	s *Store
}

// GetSecret returns the stored secret.
func (r *SecretRepository) GetSecret(ctx context.Context) (string, error) {
	secret, err := r.s.client.Get(ctx, r.s.SecretKey()).Result()
	if errors.Is(err, goredis.Nil) || (err == nil && secret == "") {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", auth.StoreUnavailable("get secret", err)
	}
	return secret, nil
}

// PutSecretIfAbsent stores secret with SETNX.
func (r *SecretRepository) PutSecretIfAbsent(ctx context.Context, secret string) (bool, error) {
	written, err := r.s.client.SetNX(ctx, r.s.SecretKey(), secret, 0).Result()
	if err != nil {
		return false, auth.StoreUnavailable("setnx secret", err)
	}
	return written, nil
}

var _ auth.SecretRepository = (*SecretRepository)(nil)
