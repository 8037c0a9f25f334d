// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package socialauth

import (
	"context"
	"maps"

	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
)

// OAuthProvider drives the authorization-code grant against one identity provider.
//
//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=provider.go OAuthProvider
type OAuthProvider interface {
	// Name returns the configured provider name.
	Name() string

	// IsOIDC reports whether the provider issues ID tokens.
	IsOIDC() bool

	// AuthorizationURL builds the URL the user agent is redirected to.
	// state is opaque to the provider; the caller generates and checks it.
	AuthorizationURL(ctx context.Context, state string, opts ...AuthorizationOption) (string, error)

	// ExchangeCode redeems an authorization code. verifier is nil when the
	// authorization request carried no PKCE challenge.
	ExchangeCode(ctx context.Context, code string, verifier *pkce.CodeVerifier) (*TokenResponse, error)

	// RefreshToken performs the refresh_token grant.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// ValidateIDToken verifies signature and claims of an ID token.
	// An empty expectedNonce skips the nonce check.
	ValidateIDToken(ctx context.Context, rawIDToken, expectedNonce string) (*IDToken, error)

	// GetUserInfo fetches the user profile with an access token.
	GetUserInfo(ctx context.Context, accessToken string) (*StandardClaims, error)
}

// AuthorizationOption configures authorization URL generation.
type AuthorizationOption func(*AuthorizationOptions)

// AuthorizationOptions is the resolved form of a set of AuthorizationOption values.
type AuthorizationOptions struct {
	Nonce            string
	CodeChallenge    *pkce.CodeChallenge
	AdditionalParams map[string]string
}

// WithNonce sets the OIDC nonce parameter for replay protection.
// Only affects providers that support OIDC.
func WithNonce(nonce string) AuthorizationOption {
	return func(o *AuthorizationOptions) {
		o.Nonce = nonce
	}
}

// WithCodeChallenge adds an S256 PKCE challenge.
func WithCodeChallenge(challenge pkce.CodeChallenge) AuthorizationOption {
	return func(o *AuthorizationOptions) {
		o.CodeChallenge = &challenge
	}
}

// WithAdditionalParams adds custom parameters to the authorization URL.
// Reserved OAuth parameters are never overridden.
func WithAdditionalParams(params map[string]string) AuthorizationOption {
	return func(o *AuthorizationOptions) {
		if o.AdditionalParams == nil {
			o.AdditionalParams = make(map[string]string, len(params))
		}
		maps.Copy(o.AdditionalParams, params)
	}
}

// ResolveAuthorizationOptions applies opts in order.
func ResolveAuthorizationOptions(opts ...AuthorizationOption) AuthorizationOptions {
	var o AuthorizationOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
