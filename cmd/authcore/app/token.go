// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/stacklok/authcore/pkg/authserver"
	"github.com/stacklok/authcore/pkg/authserver/model"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue tokens",
	}
	cmd.AddCommand(newTokenClientCredentialsCmd())
	return cmd
}

func newTokenClientCredentialsCmd() *cobra.Command {
	var (
		clientID string
		scopes   []string
	)
	cmd := &cobra.Command{
		Use:   "client-credentials",
		Short: "Issue an access token for a client",
		Long: `Issue an access token through the client_credentials grant. The client is
trusted as is; no client secret is checked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(engine *authserver.Engine) error {
				client, validated, err := engine.ValidateResources(ctx, clientID, scopes)
				if err != nil {
					return err
				}
				resp, err := engine.Token().Process(ctx, &model.ValidatedTokenRequest{
					GrantType:          model.GrantTypeClientCredentials,
					Client:             client,
					ValidatedResources: validated,
				})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp.ToMap())
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "Client ID")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Requested scopes")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}
