// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/xybot/xyweb/internal/auth"
)

// TokenRepository implements auth.TokenRepository with one key per token.
type TokenRepository struct {
	s *Store
}

// Get retrieves a token record.
func (r *TokenRepository) Get(ctx context.Context, key string) (*auth.Token, error) {
	data, err := r.s.client.Get(ctx, r.s.TokenKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, auth.StoreUnavailable("get token", err)
	}
	t, err := auth.DecodeToken(data)
	if err != nil {
		return nil, oops.Wrapf(auth.ErrNotFound, "unreadable token record: %v", err)
	}
	return t, nil
}

// Put stores a token record with EX ttl.
func (r *TokenRepository) Put(ctx context.Context, key string, token *auth.Token, ttl time.Duration) error {
	data, err := auth.EncodeToken(token)
	if err != nil {
		return err
	}
	if err := r.s.client.Set(ctx, r.s.TokenKey(key), data, ttl).Err(); err != nil {
		return auth.StoreUnavailable("set token", err)
	}
	return nil
}

// Delete removes a token record.
func (r *TokenRepository) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.s.client.Del(ctx, r.s.TokenKey(key)).Result()
	if err != nil {
		return false, auth.StoreUnavailable("del token", err)
	}
	return n > 0, nil
}

// List scans every token key and fetches the records in batches.
func (r *TokenRepository) List(ctx context.Context) (map[string]*auth.Token, error) {
	prefix := r.s.TokenKey("")
	out := make(map[string]*auth.Token)

	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vals, err := r.s.client.MGet(ctx, batch...).Result()
		if err != nil {
			return auth.StoreUnavailable("mget tokens", err)
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				// Expired between SCAN and MGET.
				continue
			}
			t, err := auth.DecodeToken([]byte(s))
			if err != nil {
				continue
			}
			out[strings.TrimPrefix(batch[i], prefix)] = t
		}
		batch = batch[:0]
		return nil
	}

	iter := r.s.client.Scan(ctx, 0, r.s.tokenPattern(), scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, auth.StoreUnavailable("scan tokens", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ auth.TokenRepository = (*TokenRepository)(nil)
