// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store manages the PostgreSQL connection pool and the embedded
// auth schema migrations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolOptions tunes OpenPool.
type PoolOptions struct {
	// ConnectAttempts bounds the ping attempts made before giving up.
	ConnectAttempts uint64
	// ConnectBackoff is the initial delay between attempts; it doubles.
	ConnectBackoff time.Duration
	// MaxConns overrides the pgxpool default when positive.
	MaxConns int32
}

// DefaultPoolOptions returns the options used by the server.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		ConnectAttempts: 5,
		ConnectBackoff:  200 * time.Millisecond,
	}
}

// OpenPool creates a pgx pool for databaseURL and waits until the database
// answers a ping. Transient failures are retried with exponential backoff.
func OpenPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.ConnectAttempts, retry.NewExponential(max(opts.ConnectBackoff, time.Millisecond)))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "ping database").
			With("host", cfg.ConnConfig.Host).
			Wrap(err)
	}
	return pool, nil
}
