// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"
	"log/slog"
	"maps"

	"golang.org/x/oauth2"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/flow"
	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
)

// Compile-time interface compliance check.
var _ socialauth.OAuthProvider = (*BaseOAuth2Provider)(nil)

// base holds the parts shared by every provider kind.
type base struct {
	name          string
	cfg           *socialauth.ProviderConfig
	authorizer    *flow.Authorizer
	tokens        *flow.TokenClient
	httpClient    networking.HTTPClient
	mapping       flow.ClaimMapping
	defaultParams map[string]string
	logger        *slog.Logger
}

func newBase(name string, cfg *socialauth.ProviderConfig, o *options, style oauth2.AuthStyle) base {
	l := o.logger.With("provider", name)
	return base{
		name:       name,
		cfg:        cfg,
		authorizer: flow.NewAuthorizer(cfg.ClientID, cfg.RedirectURI, cfg.Scopes),
		tokens: flow.NewTokenClient(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI,
			flow.WithHTTPClient(o.httpClient),
			flow.WithAuthStyle(style),
			flow.WithClock(o.now),
			flow.WithLogger(l),
		),
		httpClient: o.httpClient,
		logger:     l,
	}
}

// Name returns the provider name.
func (b *base) Name() string {
	return b.name
}

func (b *base) rename(name string) {
	b.name = name
	b.logger = b.logger.With("name", name)
}

// addDefaultParams merges params into the authorization parameters sent on
// every request. Call-site parameters still win.
func (b *base) addDefaultParams(params map[string]string) {
	if len(params) == 0 {
		return
	}
	merged := maps.Clone(b.defaultParams)
	if merged == nil {
		merged = make(map[string]string, len(params))
	}
	maps.Copy(merged, params)
	b.defaultParams = merged
}

// Config returns a copy of the provider configuration.
func (b *base) Config() *socialauth.ProviderConfig {
	return b.cfg.Clone()
}

func (b *base) buildURL(endpoint, state, nonce string, opts []socialauth.AuthorizationOption) (string, error) {
	ao := socialauth.ResolveAuthorizationOptions(opts...)
	params := maps.Clone(b.defaultParams)
	if params == nil {
		params = make(map[string]string)
	}
	maps.Copy(params, ao.AdditionalParams)
	return b.authorizer.BuildURL(endpoint, state, nonce, ao.CodeChallenge, params)
}

// BaseOAuth2Provider implements plain OAuth 2.0 providers with explicit
// endpoints. It issues no ID tokens.
type BaseOAuth2Provider struct {
	base
}

// NewOAuth2 creates a plain OAuth 2.0 provider. cfg must carry OAuth2
// endpoints. mapping is applied to UserInfo responses.
func NewOAuth2(name string, cfg *socialauth.ProviderConfig, mapping flow.ClaimMapping, opts ...Option) (*BaseOAuth2Provider, error) {
	return newOAuth2Provider(name, cfg, mapping, oauth2.AuthStyleInParams, opts)
}

func newOAuth2Provider(
	name string,
	cfg *socialauth.ProviderConfig,
	mapping flow.ClaimMapping,
	style oauth2.AuthStyle,
	opts []Option,
) (*BaseOAuth2Provider, error) {
	if name == "" {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "provider name is required")
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OAuth2 == nil {
		return nil, autherrors.Newf(autherrors.KindInvalidConfiguration, "provider %s requires oauth2 endpoints", name)
	}

	p := &BaseOAuth2Provider{base: newBase(name, cfg, resolveOptions(opts), style)}
	p.mapping = mapping
	return p, nil
}

// IsOIDC returns false.
func (*BaseOAuth2Provider) IsOIDC() bool {
	return false
}

// AuthorizationURL builds the authorization redirect. Nonces are not sent.
func (p *BaseOAuth2Provider) AuthorizationURL(
	_ context.Context,
	state string,
	opts ...socialauth.AuthorizationOption,
) (string, error) {
	return p.buildURL(p.cfg.OAuth2.AuthorizationEndpoint, state, "", opts)
}

// ExchangeCode redeems an authorization code.
func (p *BaseOAuth2Provider) ExchangeCode(
	ctx context.Context,
	code string,
	verifier *pkce.CodeVerifier,
) (*socialauth.TokenResponse, error) {
	return p.tokens.Exchange(ctx, p.cfg.OAuth2.TokenEndpoint, code, verifier)
}

// RefreshToken performs the refresh_token grant.
func (p *BaseOAuth2Provider) RefreshToken(ctx context.Context, refreshToken string) (*socialauth.TokenResponse, error) {
	return p.tokens.Refresh(ctx, p.cfg.OAuth2.TokenEndpoint, refreshToken)
}

// ValidateIDToken always fails: plain OAuth 2.0 providers issue no ID tokens.
func (p *BaseOAuth2Provider) ValidateIDToken(context.Context, string, string) (*socialauth.IDToken, error) {
	return nil, autherrors.Newf(autherrors.KindNotSupported, "provider %s does not issue ID tokens", p.name)
}

// GetUserInfo queries the configured UserInfo endpoint.
func (p *BaseOAuth2Provider) GetUserInfo(ctx context.Context, accessToken string) (*socialauth.StandardClaims, error) {
	if p.cfg.OAuth2.UserInfoEndpoint == "" {
		return nil, autherrors.Newf(autherrors.KindNotSupported, "provider %s has no userinfo endpoint", p.name)
	}
	return flow.FetchUserInfo(ctx, p.httpClient, p.cfg.OAuth2.UserInfoEndpoint, accessToken, p.mapping)
}
