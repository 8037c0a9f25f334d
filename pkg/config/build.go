// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/stacklok/toolhive-core/env"

	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/discovery"
	"github.com/stacklok/socialauth/pkg/socialauth/jwks"
	"github.com/stacklok/socialauth/pkg/socialauth/login"
	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
	"github.com/stacklok/socialauth/pkg/socialauth/providers"
)

// Spec converts p into a provider spec, resolving secrets through envReader.
func (p *ProviderConfig) Spec(envReader env.Reader) (providers.ProviderSpec, error) {
	secret := p.ClientSecret
	if p.ClientSecretEnv != "" {
		secret = envReader.Getenv(p.ClientSecretEnv)
		if secret == "" {
			return providers.ProviderSpec{}, fmt.Errorf("environment variable %s is not set", p.ClientSecretEnv)
		}
	}

	spec := providers.ProviderSpec{
		Name: p.Name,
		Type: providers.Type(p.Type),
		Config: socialauth.ProviderConfig{
			ClientID:     p.ClientID,
			ClientSecret: secret,
			RedirectURI:  p.RedirectURI,
			Scopes:       p.Scopes,
		},
		Tenant:           p.Tenant,
		AdditionalParams: p.AdditionalParams,
	}
	if p.UserInfoMapping != nil {
		spec.UserInfoMapping = *p.UserInfoMapping
	}

	useNonce := true
	if p.UseNonce != nil {
		useNonce = *p.UseNonce
	}
	switch spec.Type {
	case providers.TypeOIDC:
		spec.Config.OIDC = &socialauth.OIDCConfig{DiscoveryURL: p.DiscoveryURL, UseNonce: useNonce}
	case providers.TypeOAuth2:
		if p.Endpoints != nil {
			spec.Config.OAuth2 = &socialauth.OAuth2Config{
				AuthorizationEndpoint: p.Endpoints.Authorization,
				TokenEndpoint:         p.Endpoints.Token,
				UserInfoEndpoint:      p.Endpoints.UserInfo,
			}
		}
	case providers.TypeGoogle, providers.TypeMicrosoft, providers.TypeApple:
		if p.DiscoveryURL != "" || p.UseNonce != nil {
			spec.Config.OIDC = &socialauth.OIDCConfig{DiscoveryURL: p.DiscoveryURL, UseNonce: useNonce}
		}
	}
	return spec, nil
}

// NewHTTPClient builds the outbound client for provider calls.
func (h *HTTPConfig) NewHTTPClient() (*http.Client, error) {
	return networking.NewHttpClientBuilder().
		WithTimeout(h.Timeout).
		WithCABundle(h.CABundle).
		WithUserAgent(h.UserAgent).
		WithPrivateIPs(h.AllowPrivateIPs).
		Build()
}

// ProviderOptions creates the discovery and JWKS caches shared by every
// provider and returns the options that inject them.
func (c *Config) ProviderOptions(client networking.HTTPClient) []providers.Option {
	discoveryCache := discovery.NewCache(
		discovery.WithHTTPClient(client),
		discovery.WithTTL(c.Cache.DiscoveryTTL),
	)
	keyCache := jwks.NewCache(
		jwks.WithHTTPClient(client),
		jwks.WithTTL(c.Cache.JWKSTTL),
		jwks.WithMinRefreshInterval(c.Cache.JWKSMinRefreshInterval),
	)
	return []providers.Option{
		providers.WithHTTPClient(client),
		providers.WithDiscoveryCache(discoveryCache),
		providers.WithKeyCache(keyCache),
	}
}

// BuildRegistry constructs every configured provider.
func (c *Config) BuildRegistry(envReader env.Reader, opts ...providers.Option) (*providers.Registry, error) {
	registry, err := providers.NewRegistry()
	if err != nil {
		return nil, err
	}
	for i := range c.Providers {
		p, err := c.BuildProvider(c.Providers[i].ProviderName(), envReader, opts...)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// BuildProvider constructs the provider registered under name.
func (c *Config) BuildProvider(name string, envReader env.Reader, opts ...providers.Option) (socialauth.OAuthProvider, error) {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.ProviderName() != name {
			continue
		}
		spec, err := p.Spec(envReader)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		provider, err := providers.New(spec, opts...)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		return provider, nil
	}
	return nil, fmt.Errorf("provider %q is not configured", name)
}

// PKCEGenerator returns the configured verifier generator.
func (c *Config) PKCEGenerator() (*pkce.Generator, error) {
	return pkce.NewGenerator(c.PKCE.VerifierLength)
}

// StateStore is a pending-login store that owns resources.
type StateStore interface {
	login.Store
	io.Closer
}

// OpenStateStore opens the configured pending-login store.
func (s *StateStoreConfig) OpenStateStore(ctx context.Context, envReader env.Reader) (StateStore, error) {
	switch s.Type {
	case StateStoreRedis:
		var password string
		if s.PasswordEnv != "" {
			password = envReader.Getenv(s.PasswordEnv)
		}
		return login.NewRedisStore(ctx, login.RedisConfig{
			Addr:      s.Addr,
			Username:  s.Username,
			Password:  password,
			DB:        s.DB,
			KeyPrefix: s.KeyPrefix,
			TTL:       s.TTL,
		})
	case StateStoreMemory, "":
		return login.NewMemoryStore(login.WithTTL(s.TTL)), nil
	default:
		return nil, fmt.Errorf("unknown state store type %q", s.Type)
	}
}
