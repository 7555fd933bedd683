// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the authcore command-line application.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/authcore/pkg/authserver"
	"github.com/stacklok/authcore/pkg/logger"
	"github.com/stacklok/authcore/pkg/versions"
)

// NewRootCmd creates the root command for the authcore CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "authcore",
		DisableAutoGenTag: true,
		Short:             "OAuth 2.0 and OpenID Connect decision and issuance engine",
		Long: `authcore decides login and consent for validated authorize requests and issues
authorization codes, access, refresh and identity tokens, and device codes.

The commands operate on the engine described by the configuration file: they
validate it, manage its signing keys, issue tokens and manage persisted grants.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the authcore configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newGrantsCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printYAML(cmd, versions.GetVersionInfo())
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file.

This command checks:
- YAML/JSON syntax validity
- Issuer, key source, storage and event settings
- Resource and scope names
- Every client's grant types, redirect URIs and token settings`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger.Infof("Configuration is valid")
			logger.Infof("  Issuer: %s", cfg.Issuer)
			logger.Infof("  Clients: %d", len(cfg.Clients))
			logger.Infof("  Storage: %s", cfg.Storage.Type)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return err
		},
	}
}

func loadConfig() (*authserver.Config, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		return nil, fmt.Errorf("no configuration file specified, use --config flag")
	}
	logger.Debugf("Loading configuration from: %s", configPath)
	cfg, err := authserver.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	return cfg, nil
}

// withEngine runs fn against an engine built from the configuration file.
func withEngine(ctx context.Context, fn func(*authserver.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := authserver.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warnf("Failed to close engine: %v", err)
		}
	}()
	return fn(engine)
}

func printYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}
