// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/flow"
)

// GitHubUserURL is the REST endpoint for the authenticated user.
const GitHubUserURL = "https://api.github.com/user"

// gitHubClaimMapping maps GET /user onto StandardClaims.
var gitHubClaimMapping = flow.ClaimMapping{
	Subject:           "id",
	PreferredUsername: "login",
	Picture:           "avatar_url",
}

type gitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider signs users in with GitHub OAuth apps. GitHub is plain
// OAuth 2.0 and issues no ID tokens.
type GitHubProvider struct {
	*BaseOAuth2Provider
}

// NewGitHub creates a GitHub provider. Endpoints left empty in cfg.OAuth2
// take GitHub's public values.
func NewGitHub(cfg *socialauth.ProviderConfig, opts ...Option) (*GitHubProvider, error) {
	if cfg == nil {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "provider config is required")
	}
	if cfg.OIDC != nil {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "github does not support oidc configuration")
	}
	cfg = cfg.Clone()
	if cfg.OAuth2 == nil {
		cfg.OAuth2 = &socialauth.OAuth2Config{}
	}
	if cfg.OAuth2.AuthorizationEndpoint == "" {
		cfg.OAuth2.AuthorizationEndpoint = github.Endpoint.AuthURL
	}
	if cfg.OAuth2.TokenEndpoint == "" {
		cfg.OAuth2.TokenEndpoint = github.Endpoint.TokenURL
	}
	if cfg.OAuth2.UserInfoEndpoint == "" {
		cfg.OAuth2.UserInfoEndpoint = GitHubUserURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"read:user", "user:email"}
	}

	p, err := newOAuth2Provider("github", cfg, gitHubClaimMapping, oauth2.AuthStyleInParams, opts)
	if err != nil {
		return nil, err
	}
	return &GitHubProvider{BaseOAuth2Provider: p}, nil
}

// GetUserInfo fetches the user profile. When the public profile hides the
// email, the primary verified address from /user/emails is used.
func (p *GitHubProvider) GetUserInfo(ctx context.Context, accessToken string) (*socialauth.StandardClaims, error) {
	claims, err := p.BaseOAuth2Provider.GetUserInfo(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Email != "" {
		return claims, nil
	}

	emailsURL := p.cfg.OAuth2.UserInfoEndpoint + "/emails"
	result, err := networking.FetchJSON[[]gitHubEmail](ctx, p.httpClient, emailsURL, networking.WithBearerToken(accessToken))
	if err != nil {
		// The user:email scope may not have been granted.
		p.logger.Debug("failed to fetch github emails", "error", err)
		return claims, nil
	}
	for _, e := range result.Data {
		if e.Primary && e.Verified {
			claims.Email = e.Email
			claims.EmailVerified = true
			break
		}
	}
	return claims, nil
}
