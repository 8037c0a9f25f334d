// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"github.com/stacklok/socialauth/pkg/socialauth"
)

// GoogleDiscoveryURL is Google's OpenID Connect discovery document.
const GoogleDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

// GoogleProvider signs users in with Google accounts.
type GoogleProvider struct {
	*OIDCProvider
}

// NewGoogle creates a Google provider. An empty discovery URL and empty
// scopes take Google's defaults. Tokens issued as "accounts.google.com"
// are accepted alongside the https issuer.
func NewGoogle(cfg *socialauth.ProviderConfig, opts ...Option) (*GoogleProvider, error) {
	p, err := newOIDCProvider("google", cfg, oidcSettings{
		defaultDiscoveryURL: GoogleDiscoveryURL,
		defaultScopes:       []string{"openid", "email", "profile"},
		alternateIssuers:    []string{"accounts.google.com"},
	}, opts)
	if err != nil {
		return nil, err
	}
	return &GoogleProvider{OIDCProvider: p}, nil
}
