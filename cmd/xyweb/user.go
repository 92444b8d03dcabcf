// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xybot/xyweb/internal/auth"
)

func newUserCmd(opts *globalOptions, deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage web console accounts",
		Long: `Manage web console accounts directly in the credential store. The
same rules as the web API apply: the last administrator cannot be deleted.`,
	}
	cmd.AddCommand(newUserAddCmd(opts, deps))
	cmd.AddCommand(newUserDeleteCmd(opts, deps))
	cmd.AddCommand(newUserPasswdCmd(opts, deps))
	cmd.AddCommand(newUserListCmd(opts, deps))
	cmd.AddCommand(newUserLogoutAllCmd(opts, deps))
	return cmd
}

// withAuthority loads configuration, opens the store and runs fn against
// an Authority.
func withAuthority(cmd *cobra.Command, opts *globalOptions, deps Deps, fn func(ctx context.Context, a *auth.Authority) error) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	logger := commandLogger(cmd, cfg)
	ctx := cmd.Context()

	backend, err := deps.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	authority, err := backend.NewAuthority(ctx, deps.Hasher, authorityOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	return fn(ctx, authority)
}

func newUserAddCmd(opts *globalOptions, deps Deps) *cobra.Command {
	var (
		role     string
		password string
	)
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := promptNewPassword(cmd, deps, "Password: ")
				if err != nil {
					return err
				}
				password = p
			}
			return withAuthority(cmd, opts, deps, func(ctx context.Context, a *auth.Authority) error {
				if err := a.AddUser(ctx, args[0], password, auth.Role(role)); err != nil {
					return err
				}
				cmd.Printf("User %q created with role %s\n", args[0], roleOrDefault(role))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "account role (admin or user)")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func roleOrDefault(role string) string {
	if role == "" {
		return string(auth.RoleUser)
	}
	return role
}

func newUserDeleteCmd(opts *globalOptions, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <username>",
		Aliases: []string{"rm"},
		Short:   "Delete an account and its tokens",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthority(cmd, opts, deps, func(ctx context.Context, a *auth.Authority) error {
				if err := a.DeleteUser(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("User %q deleted\n", args[0])
				return nil
			})
		},
	}
}

func newUserPasswdCmd(opts *globalOptions, deps Deps) *cobra.Command {
	var oldPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Change an account password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if oldPassword == "" {
				if oldPassword, err = deps.ReadPassword(cmd, "Current password: "); err != nil {
					return err
				}
			}
			if newPassword == "" {
				if newPassword, err = promptNewPassword(cmd, deps, "New password: "); err != nil {
					return err
				}
			}
			return withAuthority(cmd, opts, deps, func(ctx context.Context, a *auth.Authority) error {
				if err := a.ChangePassword(ctx, args[0], oldPassword, newPassword); err != nil {
					return err
				}
				cmd.Printf("Password changed for %q\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&oldPassword, "old", "", "current password (prompted when omitted)")
	cmd.Flags().StringVar(&newPassword, "new", "", "new password (prompted when omitted)")
	return cmd
}

func newUserLogoutAllCmd(opts *globalOptions, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "logout-all <username>",
		Short: "Revoke every token of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthority(cmd, opts, deps, func(ctx context.Context, a *auth.Authority) error {
				n, err := a.RevokeUserTokens(ctx, args[0])
				if err != nil {
					return err
				}
				cmd.Printf("Revoked %d token(s) for %q\n", n, args[0])
				return nil
			})
		},
	}
}

// userRow is the listing shape of an account.
type userRow struct {
	Username  string     `json:"username" yaml:"username"`
	Role      auth.Role  `json:"role" yaml:"role"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

func newUserListCmd(opts *globalOptions, deps Deps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List accounts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "json" && output != "yaml" {
				return oops.Code("INVALID_OUTPUT").With("output", output).Errorf("output must be table, json or yaml")
			}
			return withAuthority(cmd, opts, deps, func(ctx context.Context, a *auth.Authority) error {
				users, err := a.ListUsers(ctx)
				if err != nil {
					return err
				}
				rows := make([]userRow, 0, len(users))
				for _, u := range users {
					rows = append(rows, userRow{Username: u.Username, Role: u.Role, CreatedAt: u.CreatedAt.UTC(), UpdatedAt: u.UpdatedAt})
				}
				slices.SortFunc(rows, func(a, b userRow) int { return strings.Compare(a.Username, b.Username) })
				return printUsers(cmd, rows, output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json or yaml)")
	return cmd
}

func printUsers(cmd *cobra.Command, rows []userRow, output string) error {
	out := cmd.OutOrStdout()
	switch output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer func() { _ = enc.Close() }()
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "USERNAME\tROLE\tCREATED\tPASSWORD CHANGED")
	for _, r := range rows {
		changed := "-"
		if r.UpdatedAt != nil {
			changed = r.UpdatedAt.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Username, r.Role, r.CreatedAt.Format(time.RFC3339), changed)
	}
	return w.Flush()
}
