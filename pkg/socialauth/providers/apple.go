// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/socialauth"
)

// AppleDiscoveryURL is Sign in with Apple's discovery document.
const AppleDiscoveryURL = "https://appleid.apple.com/.well-known/openid-configuration"

// AppleProvider implements Sign in with Apple. Apple has no UserInfo
// endpoint; the profile is in the ID token.
type AppleProvider struct {
	*OIDCProvider
}

// NewApple creates an Apple provider. cfg.ClientSecret must hold a client
// secret JWT, see GenerateAppleClientSecret. Apple requires form_post
// responses when scopes are requested.
func NewApple(cfg *socialauth.ProviderConfig, opts ...Option) (*AppleProvider, error) {
	if cfg == nil {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "provider config is required")
	}
	if cfg.OAuth2 != nil {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "apple requires oidc configuration")
	}
	if cfg.ClientSecret == "" {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "apple requires a client secret")
	}

	p, err := newOIDCProvider("apple", cfg, oidcSettings{
		defaultDiscoveryURL: AppleDiscoveryURL,
		defaultScopes:       []string{"name", "email"},
	}, opts)
	if err != nil {
		return nil, err
	}
	if len(p.cfg.Scopes) > 0 {
		p.defaultParams = map[string]string{"response_mode": "form_post"}
	}
	return &AppleProvider{OIDCProvider: p}, nil
}

// GetUserInfo always fails with NotSupported.
func (*AppleProvider) GetUserInfo(context.Context, string) (*socialauth.StandardClaims, error) {
	return nil, autherrors.New(autherrors.KindNotSupported, "apple does not provide a userinfo endpoint")
}
