// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package socialauth

import (
	"net/url"
	"slices"
	"strings"
	"time"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/networking"
)

// WellKnownPath is the OIDC discovery document path appended to an issuer.
const WellKnownPath = "/.well-known/openid-configuration"

// tokenExpirationBuffer is subtracted from the access token lifetime to absorb
// clock skew and network latency.
const tokenExpirationBuffer = 30 * time.Second

// OAuth2Config holds explicit endpoints for a provider without discovery.
type OAuth2Config struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	// UserInfoEndpoint is optional.
	UserInfoEndpoint string
}

// OIDCConfig configures a provider that publishes a discovery document.
type OIDCConfig struct {
	DiscoveryURL string
	// UseNonce requests a nonce on authorization and checks it in the ID token.
	UseNonce bool
}

// ProviderConfig is the static configuration of one identity provider.
// Exactly one of OAuth2 and OIDC must be set.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	OAuth2 *OAuth2Config
	OIDC   *OIDCConfig
}

// Validate reports configuration problems detectable without network access.
func (c *ProviderConfig) Validate() error {
	if c == nil {
		return autherrors.New(autherrors.KindInvalidConfiguration, "provider config is required")
	}
	if c.ClientID == "" {
		return autherrors.New(autherrors.KindInvalidConfiguration, "client_id is required")
	}
	if c.RedirectURI == "" {
		return autherrors.New(autherrors.KindInvalidConfiguration, "redirect_uri is required")
	}
	if u, err := url.Parse(c.RedirectURI); err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "") {
		return autherrors.Newf(autherrors.KindInvalidConfiguration, "redirect_uri %q is not an absolute URL", c.RedirectURI)
	}

	switch {
	case c.OAuth2 != nil && c.OIDC != nil:
		return autherrors.New(autherrors.KindInvalidConfiguration, "oauth2 and oidc configuration are mutually exclusive")
	case c.OAuth2 == nil && c.OIDC == nil:
		return autherrors.New(autherrors.KindInvalidConfiguration, "one of oauth2 or oidc configuration is required")
	case c.OIDC != nil:
		if err := networking.ValidateEndpointURL(c.OIDC.DiscoveryURL); err != nil {
			return autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid discovery_url", err)
		}
	default:
		if err := networking.ValidateEndpointURL(c.OAuth2.AuthorizationEndpoint); err != nil {
			return autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid authorization_endpoint", err)
		}
		if err := networking.ValidateEndpointURL(c.OAuth2.TokenEndpoint); err != nil {
			return autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid token_endpoint", err)
		}
		if c.OAuth2.UserInfoEndpoint != "" {
			if err := networking.ValidateEndpointURL(c.OAuth2.UserInfoEndpoint); err != nil {
				return autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid userinfo_endpoint", err)
			}
		}
	}
	return nil
}

// Clone returns a deep copy so the owner can treat it as immutable.
func (c *ProviderConfig) Clone() *ProviderConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Scopes = slices.Clone(c.Scopes)
	if c.OAuth2 != nil {
		o := *c.OAuth2
		out.OAuth2 = &o
	}
	if c.OIDC != nil {
		o := *c.OIDC
		out.OIDC = &o
	}
	return &out
}

// IssuerFromDiscoveryURL strips the well-known suffix from a discovery URL.
func IssuerFromDiscoveryURL(discoveryURL string) string {
	issuer := strings.TrimSuffix(discoveryURL, WellKnownPath)
	return strings.TrimSuffix(issuer, "/")
}

// DiscoveryURLFromIssuer appends the well-known suffix to an issuer.
func DiscoveryURLFromIssuer(issuer string) string {
	return strings.TrimRight(issuer, "/") + WellKnownPath
}

// OIDCDiscovery is the subset of an OpenID Provider Metadata document this
// package consumes.
type OIDCDiscovery struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// Validate checks that the required metadata fields are present.
func (d *OIDCDiscovery) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"issuer", d.Issuer},
		{"authorization_endpoint", d.AuthorizationEndpoint},
		{"token_endpoint", d.TokenEndpoint},
		{"jwks_uri", d.JWKSURI},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return autherrors.Newf(autherrors.KindDiscoveryFailed, "discovery document missing %s", f.name)
		}
	}
	return nil
}

// SupportsPKCE reports whether the provider advertises the S256 method.
func (d *OIDCDiscovery) SupportsPKCE() bool {
	return slices.Contains(d.CodeChallengeMethodsSupported, "S256")
}

// TokenResponse is the result of a successful code exchange or refresh.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string
	// ExpiresIn is the lifetime in seconds reported by the provider, 0 if absent.
	ExpiresIn int64
	// Expiry is the absolute expiry computed when the response was received.
	Expiry time.Time
	Scopes []string
}

// IsExpired reports whether the access token is expired at now, with a
// small buffer. A zero Expiry never expires.
func (t *TokenResponse) IsExpired(now time.Time) bool {
	if t == nil {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return now.Add(tokenExpirationBuffer).After(t.Expiry)
}

// ParseScopes splits a granted scope string. GitHub separates with commas.
func ParseScopes(scope string) []string {
	fields := strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// IDToken holds the claims of a validated OIDC ID token.
type IDToken struct {
	Issuer          string
	Subject         string
	Audience        []string
	ExpiresAt       time.Time
	IssuedAt        time.Time
	Nonce           string
	AuthorizedParty string

	Email             string
	EmailVerified     bool
	Name              string
	GivenName         string
	FamilyName        string
	Picture           string
	Locale            string
	PreferredUsername string

	// Extra holds every claim not mapped to a field above.
	Extra map[string]any
}

// StandardClaims projects the token onto the profile claims.
func (t *IDToken) StandardClaims() *StandardClaims {
	if t == nil {
		return nil
	}
	var extra map[string]any
	if len(t.Extra) > 0 {
		extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			extra[k] = v
		}
	}
	return &StandardClaims{
		Subject:           t.Subject,
		Email:             t.Email,
		EmailVerified:     t.EmailVerified,
		Name:              t.Name,
		GivenName:         t.GivenName,
		FamilyName:        t.FamilyName,
		Picture:           t.Picture,
		Locale:            t.Locale,
		PreferredUsername: t.PreferredUsername,
		Extra:             extra,
	}
}

// StandardClaims is the user profile returned by a UserInfo endpoint or
// projected from an ID token.
type StandardClaims struct {
	Subject           string         `json:"sub"`
	Email             string         `json:"email,omitempty"`
	EmailVerified     bool           `json:"email_verified,omitempty"`
	Name              string         `json:"name,omitempty"`
	GivenName         string         `json:"given_name,omitempty"`
	FamilyName        string         `json:"family_name,omitempty"`
	Picture           string         `json:"picture,omitempty"`
	Locale            string         `json:"locale,omitempty"`
	PreferredUsername string         `json:"preferred_username,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}
