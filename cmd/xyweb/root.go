// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xybot/xyweb/internal/config"
	"github.com/xybot/xyweb/internal/logging"
)

const serviceName = "xyweb"

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the xyweb CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(Deps{})
}

func newRootCmd(deps Deps) *cobra.Command {
	opts := &globalOptions{}
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "xyweb",
		Short: "xyweb - credential and session authority for the bot web console",
		Long: `xyweb authenticates web console users, issues and validates bearer
tokens, and manages accounts stored in Redis, PostgreSQL or memory.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/xyweb/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(opts, deps))
	cmd.AddCommand(newUserCmd(opts, deps))
	cmd.AddCommand(newMigrateCmd(opts, deps))
	cmd.AddCommand(newStatusCmd(opts, deps))
	cmd.AddCommand(newConfigCmd(opts))

	return cmd
}

// load reads the configuration for cmd, honoring its inherited flags.
func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		Path:   o.configFile,
		DotEnv: o.envFile,
		Flags:  cmd.Flags(),
	})
}

// commandLogger logs to the command's stderr in the configured format.
func commandLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.Setup(serviceName, version, logging.Options{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		Writer: cmd.ErrOrStderr(),
	})
}
