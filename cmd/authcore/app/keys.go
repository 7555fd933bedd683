// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	servercrypto "github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/authserver/server/keys"
	"github.com/stacklok/authcore/pkg/logger"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
	}
	cmd.AddCommand(newKeysGenerateCmd())
	cmd.AddCommand(newKeysJWKSCmd())
	return cmd
}

func newKeysGenerateCmd() *cobra.Command {
	var (
		algorithm string
		out       string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a PEM-encoded signing key",
		Long: `Generate a private signing key and write it as a PKCS#8 PEM file.

Reference the file from keys.signing_key_file, or from keys.fallback_key_files
while rotating keys.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(keys.GeneratableAlgorithms, algorithm) {
				return fmt.Errorf("unsupported algorithm %q, use one of %v", algorithm, keys.GeneratableAlgorithms)
			}
			key, err := keys.GeneratePrivateKey(algorithm)
			if err != nil {
				return err
			}
			data, err := servercrypto.EncodeSigningKey(key)
			if err != nil {
				return err
			}
			kid, err := servercrypto.DeriveKeyID(key)
			if err != nil {
				return err
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			f, err := os.OpenFile(out, flags, 0o600) // #nosec G304 - path is provided by the user
			if err != nil {
				return fmt.Errorf("failed to create key file: %w", err)
			}
			if _, err := f.Write(data); err != nil {
				_ = f.Close()
				return fmt.Errorf("failed to write key file: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Infof("Wrote %s signing key %s to %s", algorithm, kid, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "alg", keys.DefaultAlgorithm, "Signing algorithm of the key")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (stdout when empty)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing output file")
	return cmd
}

func newKeysJWKSCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "Print the validation keys as a JSON Web Key Set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := keys.NewServiceFromConfig(cmd.Context(), cfg.Keys)
			if err != nil {
				return err
			}
			set, err := keys.JWKS(cmd.Context(), svc)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(set)
		},
	}
}
