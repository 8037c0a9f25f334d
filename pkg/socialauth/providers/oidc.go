// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/oauth2"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/discovery"
	"github.com/stacklok/socialauth/pkg/socialauth/flow"
	"github.com/stacklok/socialauth/pkg/socialauth/idtoken"
	"github.com/stacklok/socialauth/pkg/socialauth/jwks"
	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
)

// Compile-time interface compliance check.
var _ socialauth.OAuthProvider = (*OIDCProvider)(nil)

// Warmer is implemented by providers that can prefetch remote metadata.
type Warmer interface {
	Warm(ctx context.Context) error
}

// OIDCProvider implements OpenID Connect providers. Endpoints come from the
// discovery document on every call, so cached documents are reused until
// they expire.
type OIDCProvider struct {
	base

	issuer           string
	alternateIssuers []string
	discovery        *discovery.Cache
	keys             *jwks.Cache
	validator        *idtoken.Validator
}

// oidcSettings are the per-variant knobs of an OIDC provider.
type oidcSettings struct {
	defaultDiscoveryURL string
	defaultScopes       []string
	alternateIssuers    []string
	defaultParams       map[string]string
	authStyle           oauth2.AuthStyle
}

// NewOIDC creates a generic OpenID Connect provider.
func NewOIDC(name string, cfg *socialauth.ProviderConfig, opts ...Option) (*OIDCProvider, error) {
	return newOIDCProvider(name, cfg, oidcSettings{defaultScopes: []string{"openid"}}, opts)
}

func newOIDCProvider(name string, cfg *socialauth.ProviderConfig, s oidcSettings, opts []Option) (*OIDCProvider, error) {
	if name == "" {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "provider name is required")
	}
	if cfg == nil {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "provider config is required")
	}
	cfg = cfg.Clone()
	if cfg.OAuth2 != nil {
		return nil, autherrors.Newf(autherrors.KindInvalidConfiguration, "provider %s requires oidc configuration", name)
	}
	if cfg.OIDC == nil {
		cfg.OIDC = &socialauth.OIDCConfig{UseNonce: true}
	}
	if cfg.OIDC.DiscoveryURL == "" {
		cfg.OIDC.DiscoveryURL = s.defaultDiscoveryURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = slices.Clone(s.defaultScopes)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := resolveOptions(opts)
	b := newBase(name, cfg, o, s.authStyle)
	b.mapping = flow.DefaultClaimMapping()
	b.defaultParams = s.defaultParams

	return &OIDCProvider{
		base:             b,
		issuer:           socialauth.IssuerFromDiscoveryURL(cfg.OIDC.DiscoveryURL),
		alternateIssuers: s.alternateIssuers,
		discovery:        o.discovery,
		keys:             o.keys,
		validator: idtoken.NewValidator(o.keys,
			idtoken.WithClock(o.now),
			idtoken.WithClockSkew(o.clockSkew),
			idtoken.WithLogger(b.logger),
		),
	}, nil
}

// IsOIDC returns true.
func (*OIDCProvider) IsOIDC() bool {
	return true
}

// Issuer returns the expected iss claim, derived from the discovery URL.
func (p *OIDCProvider) Issuer() string {
	return p.issuer
}

// UsesNonce reports whether authorization requests carry a nonce.
func (p *OIDCProvider) UsesNonce() bool {
	return p.cfg.OIDC.UseNonce
}

// Discover returns the provider's discovery document.
func (p *OIDCProvider) Discover(ctx context.Context) (*socialauth.OIDCDiscovery, error) {
	return p.discovery.Discover(ctx, p.issuer)
}

// Warm fetches the discovery document and the signing keys.
func (p *OIDCProvider) Warm(ctx context.Context) error {
	doc, err := p.Discover(ctx)
	if err != nil {
		return err
	}
	if err := p.keys.Prefetch(ctx, doc.JWKSURI); err != nil {
		return fmt.Errorf("prefetching keys for %s: %w", p.name, err)
	}
	return nil
}

// AuthorizationURL builds the authorization redirect against the
// discovered authorization endpoint.
func (p *OIDCProvider) AuthorizationURL(
	ctx context.Context,
	state string,
	opts ...socialauth.AuthorizationOption,
) (string, error) {
	doc, err := p.Discover(ctx)
	if err != nil {
		return "", err
	}
	nonce := socialauth.ResolveAuthorizationOptions(opts...).Nonce
	return p.buildURL(doc.AuthorizationEndpoint, state, nonce, opts)
}

// ExchangeCode redeems an authorization code at the discovered token endpoint.
func (p *OIDCProvider) ExchangeCode(
	ctx context.Context,
	code string,
	verifier *pkce.CodeVerifier,
) (*socialauth.TokenResponse, error) {
	doc, err := p.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return p.tokens.Exchange(ctx, doc.TokenEndpoint, code, verifier)
}

// RefreshToken performs the refresh_token grant at the discovered token endpoint.
func (p *OIDCProvider) RefreshToken(ctx context.Context, refreshToken string) (*socialauth.TokenResponse, error) {
	doc, err := p.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return p.tokens.Refresh(ctx, doc.TokenEndpoint, refreshToken)
}

// ValidateIDToken verifies rawIDToken against the discovered key set. The
// nonce is checked when the provider uses nonces and expectedNonce is set.
func (p *OIDCProvider) ValidateIDToken(
	ctx context.Context,
	rawIDToken, expectedNonce string,
) (*socialauth.IDToken, error) {
	doc, err := p.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return p.validator.Validate(ctx, rawIDToken, idtoken.Params{
		JWKSURI:          doc.JWKSURI,
		Issuer:           p.issuer,
		AlternateIssuers: p.alternateIssuers,
		ClientID:         p.cfg.ClientID,
		CheckNonce:       p.cfg.OIDC.UseNonce,
		ExpectedNonce:    expectedNonce,
	})
}

// GetUserInfo queries the discovered UserInfo endpoint.
func (p *OIDCProvider) GetUserInfo(ctx context.Context, accessToken string) (*socialauth.StandardClaims, error) {
	doc, err := p.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if doc.UserInfoEndpoint == "" {
		return nil, autherrors.Newf(autherrors.KindNotSupported, "provider %s publishes no userinfo endpoint", p.name)
	}
	return flow.FetchUserInfo(ctx, p.httpClient, doc.UserInfoEndpoint, accessToken, p.mapping)
}
