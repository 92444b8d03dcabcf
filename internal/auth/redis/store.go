// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis implements the auth repositories on Redis.
//
// Layout, under a configurable prefix (default "xybot:web"):
//
//	<prefix>:users          hash, field = username, value = user JSON
//	<prefix>:tokens:<key>   string, value = token JSON, EX = token TTL
//	<prefix>:secret_key     string
//
// Token keys are auth.TokenKey values, never raw bearer tokens.
package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisprometheus/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultKeyPrefix matches the key namespace of earlier deployments.
const DefaultKeyPrefix = "xybot:web"

// Optimistic transaction retry policy.
const (
	defaultTxRetries     = 5
	defaultTxBackoffBase = 5 * time.Millisecond
)

// scanBatch bounds both SCAN COUNT hints and MGET sizes.
const scanBatch = 100

// Store binds the repositories to a Redis client.
type Store struct {
	client        goredis.UniversalClient
	prefix        string
	txRetries     uint64
	txBackoffBase time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTxRetries sets how many times a conflicting transaction is retried.
func WithTxRetries(n uint64) Option {
	return func(s *Store) {
		s.txRetries = n
	}
}

// New creates a Store over client.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:        client,
		prefix:        DefaultKeyPrefix,
		txRetries:     defaultTxRetries,
		txBackoffBase: defaultTxBackoffBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, opts *goredis.Options) (*goredis.Client, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("addr", opts.Addr).
			Wrap(err)
	}
	return client, nil
}

// Users returns the user repository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Tokens returns the token repository.
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

// Secrets returns the secret repository.
func (s *Store) Secrets() *SecretRepository { return &SecretRepository{s: s} }

// Collector exports client pool statistics.
func (s *Store) Collector() prometheus.Collector {
	return redisprometheus.NewCollector("xyweb", "redis", s.client)
}

// UsersKey returns the key of the users hash.
func (s *Store) UsersKey() string { return s.prefix + ":users" }

// TokenKey returns the key holding the token record stored under key.
func (s *Store) TokenKey(key string) string { return s.prefix + ":tokens:" + key }

// SecretKey returns the key of the installation secret.
func (s *Store) SecretKey() string { return s.prefix + ":secret_key" }

func (s *Store) tokenPattern() string { return s.prefix + ":tokens:*" }

func (s *Store) txBackoff() retry.Backoff {
	return retry.WithMaxRetries(s.txRetries, retry.NewExponential(s.txBackoffBase))
}
