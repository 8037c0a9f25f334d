// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
)

const (
	grantTypeAuthorizationCode = "authorization_code"
	grantTypeRefreshToken      = "refresh_token"

	tokenTypeBearer = "bearer"
)

// tokenResponse is the token endpoint response, RFC 6749 section 5.1. The
// error fields cover section 5.2 bodies, which some providers send with 200.
type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	RefreshToken     string    `json:"refresh_token"`
	IDToken          string    `json:"id_token"`
	ExpiresIn        expiresIn `json:"expires_in"`
	Scope            string    `json:"scope"`
	Error            string    `json:"error"`
	ErrorDescription string    `json:"error_description"`
}

// tokenErrorResponse is an RFC 6749 section 5.2 error body.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// expiresIn accepts expires_in as a JSON number or a numeric string.
type expiresIn int64

func (e *expiresIn) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("expires_in: %w", err)
		}
		n = json.Number(s)
	}
	if n == "" {
		*e = 0
		return nil
	}
	if v, err := n.Int64(); err == nil {
		*e = expiresIn(v)
		return nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return fmt.Errorf("expires_in: %w", err)
	}
	*e = expiresIn(f)
	return nil
}

// TokenClient performs token requests for one client registration.
type TokenClient struct {
	clientID     string
	clientSecret string
	redirectURI  string
	client       networking.HTTPClient
	authStyle    oauth2.AuthStyle
	now          func() time.Time
	logger       *slog.Logger
}

// TokenOption configures a TokenClient.
type TokenOption func(*TokenClient)

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(client networking.HTTPClient) TokenOption {
	return func(c *TokenClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithAuthStyle selects how client credentials are sent. Only
// oauth2.AuthStyleInParams and oauth2.AuthStyleInHeader are meaningful;
// anything else sends them in the form body.
func WithAuthStyle(style oauth2.AuthStyle) TokenOption {
	return func(c *TokenClient) {
		c.authStyle = style
	}
}

// WithClock replaces time.Now when computing token expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenClient) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TokenOption {
	return func(c *TokenClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewTokenClient creates a TokenClient.
func NewTokenClient(clientID, clientSecret, redirectURI string, opts ...TokenOption) *TokenClient {
	c := &TokenClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		client:       http.DefaultClient,
		authStyle:    oauth2.AuthStyleInParams,
		now:          time.Now,
		logger:       logger.Component("token"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange redeems an authorization code at endpoint. verifier is sent as
// code_verifier when non-nil.
func (c *TokenClient) Exchange(
	ctx context.Context,
	endpoint, code string,
	verifier *pkce.CodeVerifier,
) (*socialauth.TokenResponse, error) {
	if code == "" {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "authorization code is required")
	}
	form := url.Values{
		"grant_type": {grantTypeAuthorizationCode},
		"code":       {code},
	}
	if c.redirectURI != "" {
		form.Set("redirect_uri", c.redirectURI)
	}
	if verifier != nil && *verifier != "" {
		form.Set("code_verifier", verifier.String())
	}
	return c.tokenRequest(ctx, autherrors.KindTokenExchangeFailed, endpoint, form)
}

// Refresh obtains new tokens with refreshToken. When the provider does not
// rotate it, the returned response carries refreshToken.
func (c *TokenClient) Refresh(ctx context.Context, endpoint, refreshToken string) (*socialauth.TokenResponse, error) {
	if refreshToken == "" {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "refresh token is required")
	}
	form := url.Values{
		"grant_type":    {grantTypeRefreshToken},
		"refresh_token": {refreshToken},
	}
	resp, err := c.tokenRequest(ctx, autherrors.KindTokenRefreshFailed, endpoint, form)
	if err != nil {
		return nil, err
	}
	if resp.RefreshToken == "" {
		resp.RefreshToken = refreshToken
	}
	return resp, nil
}

func (c *TokenClient) tokenRequest(
	ctx context.Context,
	kind autherrors.Kind,
	endpoint string,
	form url.Values,
) (*socialauth.TokenResponse, error) {
	if c.clientID == "" {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "client_id is required")
	}
	if err := networking.ValidateEndpointURL(endpoint); err != nil {
		return nil, autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid token endpoint", err)
	}

	opts := []networking.FetchOption{
		networking.WithoutContentTypeValidation(),
		networking.WithErrorHandler(func(_ *http.Response, body []byte) error {
			var errResp tokenErrorResponse
			if json.Unmarshal(body, &errResp) != nil || errResp.Error == "" {
				return nil
			}
			return tokenError(kind, errResp.Error, errResp.ErrorDescription)
		}),
	}
	if c.authStyle == oauth2.AuthStyleInHeader {
		opts = append(opts, networking.WithBasicAuth(c.clientID, c.clientSecret))
	} else {
		form.Set("client_id", c.clientID)
		if c.clientSecret != "" {
			form.Set("client_secret", c.clientSecret)
		}
	}

	grantType := form.Get("grant_type")
	result, err := networking.FetchJSONWithForm[tokenResponse](ctx, c.client, endpoint, form, opts...)
	if err != nil {
		c.logger.Debug("token request failed", "endpoint", endpoint, "grant_type", grantType, "error", err)
		var authErr *autherrors.Error
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		return nil, autherrors.Wrap(kind, fmt.Sprintf("token request to %s failed", endpoint), err)
	}

	data := result.Data
	if data.Error != "" {
		return nil, tokenError(kind, data.Error, data.ErrorDescription)
	}
	if data.AccessToken == "" {
		return nil, autherrors.New(kind, "token response missing access_token")
	}
	if data.TokenType != "" && !strings.EqualFold(data.TokenType, tokenTypeBearer) {
		return nil, autherrors.Newf(kind, "unsupported token_type %q", data.TokenType)
	}

	resp := &socialauth.TokenResponse{
		AccessToken:  data.AccessToken,
		TokenType:    data.TokenType,
		RefreshToken: data.RefreshToken,
		IDToken:      data.IDToken,
		ExpiresIn:    int64(data.ExpiresIn),
		Scopes:       socialauth.ParseScopes(data.Scope),
	}
	if data.ExpiresIn > 0 {
		resp.Expiry = c.now().Add(time.Duration(data.ExpiresIn) * time.Second)
	}

	c.logger.Debug("token request succeeded",
		"endpoint", endpoint,
		"grant_type", grantType,
		"has_refresh_token", data.RefreshToken != "",
		"has_id_token", data.IDToken != "",
	)
	return resp, nil
}

// tokenError builds a kind error from an OAuth error body. The description
// falls back to the error code.
func tokenError(kind autherrors.Kind, code, description string) error {
	if description == "" {
		description = code
	}
	return autherrors.New(kind, code).WithDescription(description)
}
