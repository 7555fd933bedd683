// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/authcore/pkg/authserver"
	"github.com/stacklok/authcore/pkg/logger"
)

func newGrantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "Manage persisted grants",
		Long: `List or revoke the grants a user has given: remembered consent, refresh
tokens and reference access tokens. Only useful with persistent storage.`,
	}
	cmd.AddCommand(newGrantsListCmd())
	cmd.AddCommand(newGrantsRevokeCmd())
	return cmd
}

func newGrantsListCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's grants per client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(engine *authserver.Engine) error {
				listed, err := engine.Grants().GetAllGrants(ctx, subject)
				if err != nil {
					return err
				}
				return printYAML(cmd, listed)
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject ID")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newGrantsRevokeCmd() *cobra.Command {
	var subject, clientID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a user's grants",
		Long:  "Revoke a user's grants for one client, or for every client when --client is omitted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(engine *authserver.Engine) error {
				if err := engine.Revoker().RevokeAll(ctx, subject, clientID); err != nil {
					return err
				}
				logger.Infow("revoked grants", "subject", subject, "clientID", clientID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject ID")
	cmd.Flags().StringVar(&clientID, "client", "", "Client ID (all clients when empty)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
