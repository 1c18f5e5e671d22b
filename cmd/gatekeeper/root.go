// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/config"
	"github.com/holomush/gatekeeper/internal/logging"
)

const serviceName = "gatekeeper"

// cli carries state shared by every subcommand of one root command.
type cli struct {
	deps       *Deps
	configFile string
}

// NewRootCmd creates the root command for the gatekeeper CLI. A nil deps
// uses the production implementations.
func NewRootCmd(deps *Deps) *cobra.Command {
	c := &cli{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Gatekeeper - credential and session administration",
		Long: `Gatekeeper manages user credentials and login sessions: argon2id
password hashing, bearer session tokens, and pluggable PostgreSQL,
SQLite, Redis and in-memory stores.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&c.configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(c.newMigrateCmd())
	cmd.AddCommand(c.newUserCmd())
	cmd.AddCommand(c.newSessionsCmd())
	cmd.AddCommand(c.newJanitorCmd())
	cmd.AddCommand(c.newConfigCmd())

	return cmd
}

// loadConfig reads the config file, environment and flags of cmd. Without
// --config the XDG default path is used and may be absent.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := c.configFile
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return config.Load(path, cmd.Flags())
}

// setup loads the config and builds a logger writing to cmd's stderr.
func (c *cli) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, cmd.ErrOrStderr())
	return cfg, logger, nil
}
