// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/xybot/xyweb/internal/auth"
	"github.com/xybot/xyweb/internal/auth/memory"
	"github.com/xybot/xyweb/internal/auth/postgres"
	redisstore "github.com/xybot/xyweb/internal/auth/redis"
	"github.com/xybot/xyweb/internal/config"
	"github.com/xybot/xyweb/internal/store"
)

// Backend is an opened credential store.
type Backend struct {
	Users   auth.UserRepository
	Tokens  auth.TokenRepository
	Secrets auth.SecretRepository

	// Collector exports store statistics. Optional.
	Collector prometheus.Collector
	// Sweeper purges expired tokens in the background. Optional.
	Sweeper *postgres.Sweeper

	closeFn func()
}

// Close releases the store connection.
func (b *Backend) Close() {
	if b.closeFn != nil {
		b.closeFn()
	}
}

// NewAuthority builds an Authority over the backend.
func (b *Backend) NewAuthority(ctx context.Context, hasher auth.PasswordHasher, opts ...auth.Option) (*auth.Authority, error) {
	return auth.NewAuthority(ctx, b.Users, b.Tokens, b.Secrets, hasher, opts...)
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.WarnContext(ctx, "using the memory store, accounts and tokens are lost on exit")
		s := memory.New()
		return &Backend{Users: s.Users(), Tokens: s.Tokens(), Secrets: s.Secrets()}, nil

	case config.BackendRedis:
		rc := cfg.Store.Redis
		client, err := redisstore.Dial(ctx, &goredis.Options{
			Addr:         rc.Addr,
			Username:     rc.Username,
			Password:     rc.Password,
			DB:           rc.DB,
			DialTimeout:  rc.DialTimeout,
			ReadTimeout:  rc.ReadTimeout,
			WriteTimeout: rc.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}
		s := redisstore.New(client, redisstore.WithKeyPrefix(cfg.Store.KeyPrefix))
		logger.InfoContext(ctx, "connected to redis", "addr", rc.Addr, "db", rc.DB, "key_prefix", cfg.Store.KeyPrefix)
		return &Backend{
			Users:     s.Users(),
			Tokens:    s.Tokens(),
			Secrets:   s.Secrets(),
			Collector: s.Collector(),
			closeFn: func() {
				if err := client.Close(); err != nil {
					logger.Warn("error closing redis client", "error", err)
				}
			},
		}, nil

	case config.BackendPostgres:
		pc := cfg.Store.Postgres
		if pc.AutoMigrate {
			if err := migrateUp(pc.URL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := store.OpenPool(ctx, pc.URL, store.DefaultPoolOptions())
		if err != nil {
			return nil, err
		}
		s := postgres.New(pool)
		logger.InfoContext(ctx, "connected to postgres")
		return &Backend{
			Users:   s.Users(),
			Tokens:  s.Tokens(),
			Secrets: s.Secrets(),
			Sweeper: postgres.NewSweeper(s.Tokens(), pc.SweepInterval, logger),
			closeFn: pool.Close,
		}, nil
	}
	return nil, oops.Code("CONFIG_INVALID").
		With("key", "store.backend").
		With("value", cfg.Store.Backend).
		Errorf("unsupported store backend")
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return err
	}
	status, err := m.Status()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", status.Version, "name", status.Name)
	return nil
}
