// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/auth"
)

func (c *cli) newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain the session store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Revoke every session",
		Long:  `Revoke every session in the configured store. All users must log in again.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withUsers(cmd, func(ctx context.Context, users *auth.Users) error {
				if err := users.ClearAllSessions(ctx); err != nil {
					return err
				}
				cmd.Println("All sessions revoked")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withUsers(cmd, func(ctx context.Context, users *auth.Users) error {
				if err := users.ClearExpiredSessions(ctx); err != nil {
					return err
				}
				cmd.Println("Expired sessions removed")
				return nil
			})
		},
	})

	return cmd
}
