// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/socialauth/pkg/socialauth/providers"
)

type appleSecretFlags struct {
	teamID   string
	clientID string
	keyID    string
	keyFile  string
	ttl      time.Duration
}

func newAppleSecretCmd() *cobra.Command {
	var f appleSecretFlags

	cmd := &cobra.Command{
		Use:   "apple-secret",
		Short: "Generate the signed client secret required by Sign in with Apple",
		Long: `Generate the ES256 JWT that Sign in with Apple expects as client_secret.

The secret is valid for at most 180 days. Store the output and reference it
from the provider's client_secret or client_secret_env.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := generateAppleSecret(f, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.teamID, "team-id", "", "Apple developer team ID")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "Services ID used as client_id")
	cmd.Flags().StringVar(&f.keyID, "key-id", "", "ID of the Sign in with Apple key")
	cmd.Flags().StringVar(&f.keyFile, "key-file", "", "Path to the .p8 private key")
	cmd.Flags().DurationVar(&f.ttl, "ttl", providers.MaxAppleClientSecretTTL, "Secret lifetime")
	return cmd
}

func generateAppleSecret(f appleSecretFlags, now time.Time) (string, error) {
	if f.keyFile == "" {
		return "", errors.New("--key-file is required")
	}
	// #nosec G304: path is provided by the operator
	pemBytes, err := os.ReadFile(filepath.Clean(f.keyFile))
	if err != nil {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}
	key, err := providers.ParseApplePrivateKey(pemBytes)
	if err != nil {
		return "", err
	}
	return providers.GenerateAppleClientSecret(providers.AppleSecretParams{
		TeamID:     f.teamID,
		ClientID:   f.clientID,
		KeyID:      f.keyID,
		PrivateKey: key,
		TTL:        f.ttl,
		Now:        now,
	})
}
