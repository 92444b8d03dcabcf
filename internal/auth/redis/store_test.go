// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xybot/xyweb/internal/auth"
	"github.com/xybot/xyweb/internal/auth/redis"
	"github.com/xybot/xyweb/pkg/errutil"
)

func newTestStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.New(client, opts...), mr
}

func testUser(name string, role auth.Role) *auth.User {
	return &auth.User{
		Username:     name,
		PasswordHash: "hash-of-" + name,
		Role:         role,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("uses the shared users hash", func(t *testing.T) {
		store, mr := newTestStore(t)
		require.NoError(t, store.Users().Put(ctx, testUser("bob", auth.RoleUser)))

		assert.Equal(t, "xybot:web:users", store.UsersKey())
		assert.Contains(t, mr.HGet("xybot:web:users", "bob"), `"password_hash":"hash-of-bob"`)
	})

	t.Run("reads records written by earlier deployments", func(t *testing.T) {
		store, mr := newTestStore(t)
		mr.HSet("xybot:web:users", "admin",
			`{"username": "admin", "password_hash": "AAAA", "role": "admin", "created_at": "2025-06-01T12:00:00.123456"}`)

		u, err := store.Users().Get(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, u.Role)
		assert.Equal(t, "AAAA", u.PasswordHash)
	})

	t.Run("create is insert-if-absent", func(t *testing.T) {
		store, _ := newTestStore(t)
		users := store.Users()
		require.NoError(t, users.Create(ctx, testUser("bob", auth.RoleUser)))

		clash := testUser("bob", auth.RoleAdmin)
		clash.PasswordHash = "other"
		assert.ErrorIs(t, users.Create(ctx, clash), auth.ErrAlreadyExists)

		got, err := users.Get(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "hash-of-bob", got.PasswordHash)
	})

	t.Run("unreadable records are absent and skipped", func(t *testing.T) {
		store, mr := newTestStore(t)
		users := store.Users()
		require.NoError(t, users.Put(ctx, testUser("bob", auth.RoleUser)))
		mr.HSet(store.UsersKey(), "broken", "{{{")

		_, err := users.Get(ctx, "broken")
		assert.ErrorIs(t, err, auth.ErrNotFound)

		all, err := users.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
		assert.Contains(t, all, "bob")
	})

	t.Run("guarded delete protects the last admin", func(t *testing.T) {
		store, _ := newTestStore(t)
		users := store.Users()
		require.NoError(t, users.Put(ctx, testUser("admin", auth.RoleAdmin)))
		require.NoError(t, users.Put(ctx, testUser("bob", auth.RoleUser)))

		err := users.Delete(ctx, "admin", auth.ProtectLastAdmin)
		require.ErrorIs(t, err, auth.ErrLastAdminProtected)

		require.NoError(t, users.Delete(ctx, "bob", auth.ProtectLastAdmin))
		exists, err := users.Exists(ctx, "bob")
		require.NoError(t, err)
		assert.False(t, exists)

		assert.ErrorIs(t, users.Delete(ctx, "bob", auth.ProtectLastAdmin), auth.ErrNotFound)
		assert.ErrorIs(t, users.Delete(ctx, "bob", nil), auth.ErrNotFound)
	})

	t.Run("backend errors surface as store unavailable", func(t *testing.T) {
		store, mr := newTestStore(t)
		mr.SetError("ERR backend exploded")

		_, err := store.Users().Get(ctx, "bob")
		require.ErrorIs(t, err, auth.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
		errutil.AssertErrorContext(t, err, "operation", "hget user")

		assert.ErrorIs(t, store.Users().Ping(ctx), auth.ErrStoreUnavailable)
	})
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &auth.Token{Username: "bob", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}

	t.Run("stores one key per token with a TTL", func(t *testing.T) {
		store, mr := newTestStore(t)
		require.NoError(t, store.Tokens().Put(ctx, "abc", rec, time.Hour))

		assert.True(t, mr.Exists("xybot:web:tokens:abc"))
		assert.Equal(t, time.Hour, mr.TTL("xybot:web:tokens:abc"))

		mr.FastForward(time.Hour)
		_, err := store.Tokens().Get(ctx, "abc")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete reports existence", func(t *testing.T) {
		store, _ := newTestStore(t)
		tokens := store.Tokens()
		require.NoError(t, tokens.Put(ctx, "abc", rec, time.Hour))

		deleted, err := tokens.Delete(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = tokens.Delete(ctx, "abc")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("list spans several scan batches and skips junk", func(t *testing.T) {
		store, mr := newTestStore(t, redis.WithKeyPrefix("test"))
		tokens := store.Tokens()
		for i := 0; i < 250; i++ {
			key := auth.TokenKey(time.Duration(i).String())
			require.NoError(t, tokens.Put(ctx, key, rec, time.Hour))
		}
		require.NoError(t, mr.Set("test:tokens:junk", "not json"))
		require.NoError(t, mr.Set("test:unrelated", "x"))

		all, err := tokens.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 250)
		for key, tok := range all {
			assert.Len(t, key, 64)
			assert.Equal(t, "bob", tok.Username)
		}
	})
}

func TestSecretRepository(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	secrets := store.Secrets()

	_, err := secrets.GetSecret(ctx)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	written, err := secrets.PutSecretIfAbsent(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, written)

	written, err = secrets.PutSecretIfAbsent(ctx, "s2")
	require.NoError(t, err)
	assert.False(t, written)

	got, err := mr.Get("xybot:web:secret_key")
	require.NoError(t, err)
	assert.Equal(t, "s1", got)
}

func TestStore_Collector(t *testing.T) {
	store, _ := newTestStore(t)
	assert.NotNil(t, store.Collector())
}
