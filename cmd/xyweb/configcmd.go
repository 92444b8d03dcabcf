// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"net/url"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xybot/xyweb/internal/config"
	"github.com/xybot/xyweb/internal/xdg"
)

const redacted = "REDACTED"

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long: `Write the default configuration to --config, or to
$XDG_CONFIG_HOME/xyweb/config.yaml. An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configFile
			if path == "" {
				p, err := xdg.ConfigFile()
				if err != nil {
					return err
				}
				path = p
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(redactConfig(*cfg))
			if err != nil {
				return oops.Code("CONFIG_FORMAT_FAILED").Wrap(err)
			}
			cmd.Print(string(out))
			return nil
		},
	})

	return cmd
}

// redactConfig hides credentials from a configuration copy.
func redactConfig(cfg config.Config) config.Config {
	if cfg.Store.Redis.Password != "" {
		cfg.Store.Redis.Password = redacted
	}
	if u, err := url.Parse(cfg.Store.Postgres.URL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
			cfg.Store.Postgres.URL = u.String()
		}
	}
	return cfg
}
