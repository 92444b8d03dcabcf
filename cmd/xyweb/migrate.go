// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/xybot/xyweb/internal/config"
)

func newMigrateCmd(opts *globalOptions, deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply or revert the embedded PostgreSQL schema migrations. The
database URL is read from store.postgres.url.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, deps, func(m Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert all migrations, dropping every account and token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, deps, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps <n>",
		Short: "Apply (n > 0) or revert (n < 0) n migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return oops.Code("INVALID_STEPS").With("steps", args[0]).Errorf("steps must be a non-zero integer")
			}
			return withMigrator(cmd, opts, deps, func(m Migrator) error {
				if err := m.Steps(n); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied to recover from a dirty schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			return withMigrator(cmd, opts, deps, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, deps, func(m Migrator) error {
				return printMigrationStatus(cmd, m)
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, opts *globalOptions, deps Deps, fn func(Migrator) error) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.Postgres.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "store.postgres.url").
			Errorf("store.postgres.url is required for migrations")
	}
	if cfg.Store.Backend != config.BackendPostgres {
		commandLogger(cmd, cfg).Warn("store.backend is not postgres, migrating anyway", "backend", cfg.Store.Backend)
	}

	m, err := deps.NewMigrator(cfg.Store.Postgres.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()
	return fn(m)
}

func printMigrationStatus(cmd *cobra.Command, m Migrator) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	name := status.Name
	if name == "" {
		name = "none"
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	cmd.Printf("Schema version: %d (%s)\n", status.Version, name)
	cmd.Printf("Applied migrations: %v\n", applied)
	if status.Dirty {
		cmd.Println("WARNING: schema is dirty, a migration failed part way; fix it and run 'xyweb migrate force <version>'")
	}
	if len(status.Pending) == 0 {
		cmd.Println("No pending migrations")
	} else {
		cmd.Printf("Pending migrations: %v\n", status.Pending)
	}
	return nil
}
