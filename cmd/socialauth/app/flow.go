// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/spf13/cobra"

	"github.com/stacklok/socialauth/pkg/config"
	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/discovery"
	"github.com/stacklok/socialauth/pkg/socialauth/jwks"
	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
)

// standaloneClient builds an HTTP client for commands that may run
// without a configuration file.
func standaloneClient() (*http.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		logger.Debugf("Using default HTTP settings: %v", err)
		cfg = config.Default()
	}
	return newHTTPClient(cfg)
}

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover <issuer>",
		Short: "Fetch and print an issuer's OpenID Connect discovery document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !networking.IsURL(args[0]) {
				return fmt.Errorf("issuer must be an http(s) URL: %q", args[0])
			}
			client, err := standaloneClient()
			if err != nil {
				return err
			}
			doc, err := discovery.NewCache(discovery.WithHTTPClient(client)).Discover(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func newJWKSCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jwks <jwks-uri> <kid>",
		Short: "Resolve one signing key from a JWKS endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !networking.IsURL(args[0]) {
				return fmt.Errorf("jwks URI must be an http(s) URL: %q", args[0])
			}
			client, err := standaloneClient()
			if err != nil {
				return err
			}
			key, err := jwks.NewCache(jwks.WithHTTPClient(client)).GetKey(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			jwkKey, err := jwk.Import(key)
			if err != nil {
				return fmt.Errorf("failed to encode key: %w", err)
			}
			if err := jwkKey.Set(jwk.KeyIDKey, args[1]); err != nil {
				return fmt.Errorf("failed to encode key: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), jwkKey)
		},
	}
}

type authorizeOutput struct {
	URL          string `json:"url"`
	State        string `json:"state"`
	Nonce        string `json:"nonce,omitempty"`
	CodeVerifier string `json:"code_verifier"`
}

func newAuthorizeURLCmd() *cobra.Command {
	var params map[string]string

	cmd := &cobra.Command{
		Use:   "authorize-url <provider>",
		Short: "Build an authorization URL with fresh state, nonce and PKCE verifier",
		Long: `Build an authorization URL for the named provider.

The state, nonce and code verifier are printed with the URL. Keep the verifier
and nonce: they are needed by "exchange" and "validate-token".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := loadProvider(args[0])
			if err != nil {
				return err
			}
			gen, err := cfg.PKCEGenerator()
			if err != nil {
				return err
			}
			verifier, challenge := gen.Pair()
			out := authorizeOutput{State: uuid.NewString(), CodeVerifier: verifier.String()}

			opts := []socialauth.AuthorizationOption{socialauth.WithCodeChallenge(challenge)}
			if usesNonce(p) {
				out.Nonce = uuid.NewString()
				opts = append(opts, socialauth.WithNonce(out.Nonce))
			}
			if len(params) > 0 {
				opts = append(opts, socialauth.WithAdditionalParams(params))
			}
			out.URL, err = p.AuthorizationURL(cmd.Context(), out.State, opts...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringToStringVar(&params, "param", nil, "Additional authorization parameter (key=value, repeatable)")
	return cmd
}

type tokenOutput struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	IDToken      string   `json:"id_token,omitempty"`
	ExpiresIn    int64    `json:"expires_in,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

func toTokenOutput(t *socialauth.TokenResponse) tokenOutput {
	out := tokenOutput{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		IDToken:      t.IDToken,
		ExpiresIn:    t.ExpiresIn,
		Scopes:       t.Scopes,
	}
	if !t.Expiry.IsZero() {
		out.Expiry = t.Expiry.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

func newExchangeCmd() *cobra.Command {
	var code, verifier string

	cmd := &cobra.Command{
		Use:   "exchange <provider>",
		Short: "Redeem an authorization code for tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" {
				return errors.New("--code is required")
			}
			var v *pkce.CodeVerifier
			if verifier != "" {
				parsed, err := pkce.FromRaw(verifier)
				if err != nil {
					return err
				}
				v = &parsed
			}
			p, _, err := loadProvider(args[0])
			if err != nil {
				return err
			}
			tokens, err := p.ExchangeCode(cmd.Context(), code, v)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), toTokenOutput(tokens))
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the callback")
	cmd.Flags().StringVar(&verifier, "verifier", "", "PKCE code verifier printed by authorize-url")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "refresh <provider>",
		Short: "Exchange a refresh token for new tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if refreshToken == "" {
				return errors.New("--refresh-token is required")
			}
			p, _, err := loadProvider(args[0])
			if err != nil {
				return err
			}
			tokens, err := p.RefreshToken(cmd.Context(), refreshToken)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), toTokenOutput(tokens))
		},
	}
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token")
	return cmd
}

type idTokenOutput struct {
	Issuer    string                     `json:"iss"`
	Audience  []string                   `json:"aud"`
	ExpiresAt time.Time                  `json:"exp"`
	IssuedAt  time.Time                  `json:"iat"`
	Claims    *socialauth.StandardClaims `json:"claims"`
}

func newValidateTokenCmd() *cobra.Command {
	var idToken, nonce string

	cmd := &cobra.Command{
		Use:   "validate-token <provider>",
		Short: "Verify an ID token's signature and claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if idToken == "" {
				return errors.New("--id-token is required")
			}
			p, _, err := loadProvider(args[0])
			if err != nil {
				return err
			}
			tok, err := p.ValidateIDToken(cmd.Context(), idToken, nonce)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), idTokenOutput{
				Issuer:    tok.Issuer,
				Audience:  tok.Audience,
				ExpiresAt: tok.ExpiresAt.UTC(),
				IssuedAt:  tok.IssuedAt.UTC(),
				Claims:    tok.StandardClaims(),
			})
		},
	}
	cmd.Flags().StringVar(&idToken, "id-token", "", "Raw ID token")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Nonce sent with the authorization request")
	return cmd
}

func newUserInfoCmd() *cobra.Command {
	var accessToken string

	cmd := &cobra.Command{
		Use:   "userinfo <provider>",
		Short: "Fetch the user profile with an access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if accessToken == "" {
				return errors.New("--access-token is required")
			}
			p, _, err := loadProvider(args[0])
			if err != nil {
				return err
			}
			claims, err := p.GetUserInfo(cmd.Context(), accessToken)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), claims)
		},
	}
	cmd.Flags().StringVar(&accessToken, "access-token", "", "Access token")
	return cmd
}
