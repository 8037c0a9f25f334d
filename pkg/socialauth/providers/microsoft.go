// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"fmt"
	"net/url"

	"github.com/stacklok/socialauth/pkg/socialauth"
)

// MicrosoftDefaultTenant accepts work, school and personal accounts.
const MicrosoftDefaultTenant = "common"

// MicrosoftDiscoveryURL returns the v2.0 discovery document URL for tenant.
func MicrosoftDiscoveryURL(tenant string) string {
	if tenant == "" {
		tenant = MicrosoftDefaultTenant
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0/.well-known/openid-configuration", url.PathEscape(tenant))
}

// MicrosoftProvider signs users in with the Microsoft identity platform.
type MicrosoftProvider struct {
	*OIDCProvider
	tenant string
}

// NewMicrosoft creates a Microsoft provider for tenant (default "common").
// The expected issuer is derived from the discovery URL, so multi-tenant
// tokens whose iss names a concrete tenant are rejected.
func NewMicrosoft(cfg *socialauth.ProviderConfig, tenant string, opts ...Option) (*MicrosoftProvider, error) {
	if tenant == "" {
		tenant = MicrosoftDefaultTenant
	}
	p, err := newOIDCProvider("microsoft", cfg, oidcSettings{
		defaultDiscoveryURL: MicrosoftDiscoveryURL(tenant),
		defaultScopes:       []string{"openid", "email", "profile", "offline_access"},
	}, opts)
	if err != nil {
		return nil, err
	}
	return &MicrosoftProvider{OIDCProvider: p, tenant: tenant}, nil
}

// Tenant returns the configured tenant.
func (p *MicrosoftProvider) Tenant() string {
	return p.tenant
}
