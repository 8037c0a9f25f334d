// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the socialauth command-line application.
package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/socialauth/pkg/config"
	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/versions"
)

// EnvPrefix prefixes environment variables that override flags.
const EnvPrefix = "SOCIALAUTH"

// NewRootCmd creates a new root command for the socialauth CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "socialauth",
		DisableAutoGenTag: true,
		Short:             "socialauth drives OAuth 2.0 and OpenID Connect logins against social identity providers",
		Long: `socialauth drives the authorization-code flow against Google, GitHub, Microsoft, Apple
and any OpenID Connect or OAuth 2.0 provider, and validates the ID tokens they issue.

Providers are described in a YAML configuration file passed with --config.
Every flag can also be set through a SOCIALAUTH_* environment variable.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the socialauth configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newJWKSCmd())
	rootCmd.AddCommand(newAuthorizeURLCmd())
	rootCmd.AddCommand(newExchangeCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newValidateTokenCmd())
	rootCmd.AddCommand(newUserInfoCmd())
	rootCmd.AddCommand(newAppleSecretCmd())
	rootCmd.AddCommand(newServeCmd())

	return rootCmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the version of socialauth",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "socialauth %s\n", info.Version)
			fmt.Fprintf(out, "Commit: %s\n", info.Commit)
			fmt.Fprintf(out, "Built: %s\n", info.BuildDate)
			fmt.Fprintf(out, "Go version: %s\n", info.GoVersion)
			fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version information as JSON")
	return cmd
}

// newValidateCmd creates the validate command for checking configuration
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file without contacting any provider.

This command checks:
- YAML syntax and unknown fields
- Required provider fields and URLs
- Client secrets referenced through environment variables
- Cache, PKCE and state store settings`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Infof("Configuration is valid")
			for i := range cfg.Providers {
				p := &cfg.Providers[i]
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.ProviderName(), p.Type)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state store: %s\n", stateStoreLabel(&cfg.StateStore))
			return nil
		},
	}
}

func stateStoreLabel(s *config.StateStoreConfig) string {
	if s.Type == config.StateStoreRedis {
		return fmt.Sprintf("redis (%s)", s.Addr)
	}
	return s.Type
}
