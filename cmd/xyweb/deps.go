// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/xybot/xyweb/internal/auth"
	"github.com/xybot/xyweb/internal/config"
	"github.com/xybot/xyweb/internal/store"
)

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// OpenBackend connects the configured credential store.
	// Default: openBackend
	OpenBackend func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// NewMigrator creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// ReadPassword prompts for a secret on the command's input.
	// Default: readPassword
	ReadPassword func(cmd *cobra.Command, prompt string) (string, error)

	// Hasher derives password hashes.
	// Default: auth.NewPBKDF2Hasher
	Hasher auth.PasswordHasher

	// HTTPClient queries a running server for the status command.
	// Default: a client with a 5 second timeout
	HTTPClient *http.Client

	// OnReady is called by serve once every listener is bound.
	OnReady func(webAddr, metricsAddr string)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

func (d Deps) withDefaults() Deps {
	if d.OpenBackend == nil {
		d.OpenBackend = openBackend
	}
	if d.NewMigrator == nil {
		d.NewMigrator = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.ReadPassword == nil {
		d.ReadPassword = readPassword
	}
	if d.Hasher == nil {
		d.Hasher = auth.NewPBKDF2Hasher()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if d.OnReady == nil {
		d.OnReady = func(string, string) {}
	}
	return d
}
