// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/xybot/xyweb/internal/auth"
)

// UserRepository implements auth.UserRepository on the users hash.
type UserRepository struct {
	s *Store
}

// Get retrieves a user by name.
func (r *UserRepository) Get(ctx context.Context, username string) (*auth.User, error) {
	data, err := r.s.client.HGet(ctx, r.s.UsersKey(), username).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.With("username", username).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, auth.StoreUnavailable("hget user", err)
	}
	u, err := auth.DecodeUser(username, data)
	if err != nil {
		return nil, oops.With("username", username).Wrapf(auth.ErrNotFound, "unreadable user record: %v", err)
	}
	return u, nil
}

// Put writes the user, replacing any existing record.
func (r *UserRepository) Put(ctx context.Context, user *auth.User) error {
	data, err := auth.EncodeUser(user)
	if err != nil {
		return err
	}
	if err := r.s.client.HSet(ctx, r.s.UsersKey(), user.Username, data).Err(); err != nil {
		return auth.StoreUnavailable("hset user", err)
	}
	return nil
}

// Create writes the user only if the field is free (HSETNX).
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	data, err := auth.EncodeUser(user)
	if err != nil {
		return err
	}
	created, err := r.s.client.HSetNX(ctx, r.s.UsersKey(), user.Username, data).Result()
	if err != nil {
		return auth.StoreUnavailable("hsetnx user", err)
	}
	if !created {
		return oops.With("username", user.Username).Wrap(auth.ErrAlreadyExists)
	}
	return nil
}

// Delete removes a user. With a guard, the users hash is WATCHed so the
// guard's snapshot and the HDEL commit atomically; conflicting writers cause
// a bounded retry.
func (r *UserRepository) Delete(ctx context.Context, username string, guard auth.DeleteGuard) error {
	if guard == nil {
		n, err := r.s.client.HDel(ctx, r.s.UsersKey(), username).Result()
		if err != nil {
			return auth.StoreUnavailable("hdel user", err)
		}
		if n == 0 {
			return oops.With("username", username).Wrap(auth.ErrNotFound)
		}
		return nil
	}

	err := retry.Do(ctx, r.s.txBackoff(), func(ctx context.Context) error {
		classified := false
		err := r.s.client.Watch(ctx, func(tx *goredis.Tx) error {
			err := r.guardedDelete(ctx, tx, username, guard)
			classified = err != nil && !errors.Is(err, goredis.TxFailedErr)
			return err
		}, r.s.UsersKey())
		switch {
		case err == nil:
			return nil
		case errors.Is(err, goredis.TxFailedErr):
			return retry.RetryableError(err)
		case classified:
			return err
		default:
			return auth.StoreUnavailable("watch users", err)
		}
	})
	if errors.Is(err, goredis.TxFailedErr) {
		return auth.StoreUnavailable("delete user", oops.With("username", username).Wrapf(err, "too much contention"))
	}
	return err
}

func (r *UserRepository) guardedDelete(ctx context.Context, tx *goredis.Tx, username string, guard auth.DeleteGuard) error {
	raw, err := tx.HGetAll(ctx, r.s.UsersKey()).Result()
	if err != nil {
		return auth.StoreUnavailable("hgetall users", err)
	}
	data, ok := raw[username]
	if !ok {
		return oops.With("username", username).Wrap(auth.ErrNotFound)
	}
	target, err := auth.DecodeUser(username, []byte(data))
	if err != nil {
		return oops.With("username", username).Wrapf(auth.ErrNotFound, "unreadable user record: %v", err)
	}
	if err := guard(target, decodeUsers(raw)); err != nil {
		return err
	}

	_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HDel(ctx, r.s.UsersKey(), username)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.TxFailedErr) {
		return auth.StoreUnavailable("hdel user", err)
	}
	return err
}

// List returns every readable user.
func (r *UserRepository) List(ctx context.Context) (map[string]*auth.User, error) {
	raw, err := r.s.client.HGetAll(ctx, r.s.UsersKey()).Result()
	if err != nil {
		return nil, auth.StoreUnavailable("hgetall users", err)
	}
	return decodeUsers(raw), nil
}

// Exists reports whether any record is stored under username.
func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	ok, err := r.s.client.HExists(ctx, r.s.UsersKey(), username).Result()
	if err != nil {
		return false, auth.StoreUnavailable("hexists user", err)
	}
	return ok, nil
}

// Ping checks the connection.
func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.s.client.Ping(ctx).Err(); err != nil {
		return auth.StoreUnavailable("ping", err)
	}
	return nil
}

func decodeUsers(raw map[string]string) map[string]*auth.User {
	out := make(map[string]*auth.User, len(raw))
	for name, data := range raw {
		u, err := auth.DecodeUser(name, []byte(data))
		if err != nil {
			continue
		}
		out[name] = u
	}
	return out
}

var _ auth.UserRepository = (*UserRepository)(nil)
