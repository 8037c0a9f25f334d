// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/networking/mocks"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/discovery"
	"github.com/stacklok/socialauth/pkg/socialauth/flow"
	"github.com/stacklok/socialauth/pkg/socialauth/jwks"
	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
	"github.com/stacklok/socialauth/pkg/testkit"
)

const testRedirectURI = "http://127.0.0.1:8080/callback"

func newIdP(t *testing.T, opts ...testkit.IdPOption) *testkit.TestIdP {
	t.Helper()
	idp, err := testkit.NewTestIdP(opts...)
	require.NoError(t, err)
	t.Cleanup(idp.Close)
	return idp
}

func oidcConfig(idp *testkit.TestIdP) *socialauth.ProviderConfig {
	return &socialauth.ProviderConfig{
		ClientID:     idp.ClientID(),
		ClientSecret: idp.ClientSecret(),
		RedirectURI:  testRedirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		OIDC:         &socialauth.OIDCConfig{DiscoveryURL: idp.DiscoveryURL(), UseNonce: true},
	}
}

// followAuthorize drives the authorization redirect and returns the query
// of the callback URL.
func followAuthorize(t *testing.T, client *http.Client, authURL string) url.Values {
	t.Helper()
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := c.Get(authURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return location.Query()
}

func TestOIDCProvider_LoginFlow(t *testing.T) {
	t.Parallel()

	idp := newIdP(t)
	p, err := NewOIDC("corp", oidcConfig(idp), WithHTTPClient(idp.Client()))
	require.NoError(t, err)
	assert.True(t, p.IsOIDC())
	assert.Equal(t, "corp", p.Name())
	assert.Equal(t, idp.Issuer(), p.Issuer())

	ctx := context.Background()
	verifier := pkce.GenerateVerifier()
	authURL, err := p.AuthorizationURL(ctx, "state-1",
		socialauth.WithNonce("nonce-1"),
		socialauth.WithCodeChallenge(pkce.ChallengeFor(verifier)),
		socialauth.WithAdditionalParams(map[string]string{"prompt": "consent"}),
	)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	assert.Equal(t, "nonce-1", u.Query().Get("nonce"))
	assert.Equal(t, "consent", u.Query().Get("prompt"))

	callback := followAuthorize(t, idp.Client(), authURL)
	assert.Equal(t, "state-1", callback.Get("state"))

	tokens, err := p.ExchangeCode(ctx, callback.Get("code"), &verifier)
	require.NoError(t, err)

	tok, err := p.ValidateIDToken(ctx, tokens.IDToken, "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, testkit.DefaultSubject, tok.Subject)
	assert.Equal(t, "test.user@example.com", tok.Email)

	_, err = p.ValidateIDToken(ctx, tokens.IDToken, "other-nonce")
	assert.True(t, errors.Is(err, autherrors.ErrNonceMismatch))

	info, err := p.GetUserInfo(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testkit.DefaultSubject, info.Subject)

	refreshed, err := p.RefreshToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	assert.Equal(t, 1, idp.DiscoveryHits())
	assert.Equal(t, 1, idp.JWKSHits())
}

func TestOIDCProvider_DiscoveryFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p, err := NewOIDC("broken", &socialauth.ProviderConfig{
		ClientID:    "client",
		RedirectURI: testRedirectURI,
		OIDC:        &socialauth.OIDCConfig{DiscoveryURL: srv.URL + socialauth.WellKnownPath},
	}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.AuthorizationURL(ctx, "s")
	assert.True(t, errors.Is(err, autherrors.ErrDiscoveryFailed))
	_, err = p.ExchangeCode(ctx, "code", nil)
	assert.True(t, errors.Is(err, autherrors.ErrDiscoveryFailed))
	_, err = p.ValidateIDToken(ctx, "a.b.c", "")
	assert.True(t, errors.Is(err, autherrors.ErrDiscoveryFailed))
	assert.Error(t, p.Warm(ctx))
}

func TestGoogle(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		p, err := NewGoogle(&socialauth.ProviderConfig{ClientID: "c", RedirectURI: testRedirectURI})
		require.NoError(t, err)
		cfg := p.Config()
		assert.Equal(t, GoogleDiscoveryURL, cfg.OIDC.DiscoveryURL)
		assert.True(t, cfg.OIDC.UseNonce)
		assert.Equal(t, []string{"openid", "email", "profile"}, cfg.Scopes)
		assert.Equal(t, "https://accounts.google.com", p.Issuer())
		assert.Equal(t, "google", p.Name())
	})

	t.Run("bare issuer accepted", func(t *testing.T) {
		t.Parallel()

		idp := newIdP(t)
		p, err := NewGoogle(oidcConfig(idp), WithHTTPClient(idp.Client()))
		require.NoError(t, err)

		claims := idp.Claims("")
		claims["iss"] = "accounts.google.com"
		raw, err := idp.SignIDToken(claims)
		require.NoError(t, err)

		tok, err := p.ValidateIDToken(context.Background(), raw, "")
		require.NoError(t, err)
		assert.Equal(t, "accounts.google.com", tok.Issuer)
	})
}

func TestMicrosoft(t *testing.T) {
	t.Parallel()

	t.Run("tenant discovery url", func(t *testing.T) {
		t.Parallel()

		p, err := NewMicrosoft(&socialauth.ProviderConfig{ClientID: "c", RedirectURI: testRedirectURI}, "contoso.onmicrosoft.com")
		require.NoError(t, err)
		assert.Equal(t, "contoso.onmicrosoft.com", p.Tenant())
		assert.Equal(t,
			"https://login.microsoftonline.com/contoso.onmicrosoft.com/v2.0/.well-known/openid-configuration",
			p.Config().OIDC.DiscoveryURL)
		assert.Equal(t, "https://login.microsoftonline.com/contoso.onmicrosoft.com/v2.0", p.Issuer())

		common, err := NewMicrosoft(&socialauth.ProviderConfig{ClientID: "c", RedirectURI: testRedirectURI}, "")
		require.NoError(t, err)
		assert.Equal(t, MicrosoftDefaultTenant, common.Tenant())
		assert.Equal(t, MicrosoftDiscoveryURL("common"), common.Config().OIDC.DiscoveryURL)
	})

	t.Run("issuer derived from discovery url", func(t *testing.T) {
		t.Parallel()

		idp := newIdP(t, testkit.WithBasePath("/common/v2.0"))
		p, err := NewMicrosoft(oidcConfig(idp), "", WithHTTPClient(idp.Client()))
		require.NoError(t, err)
		ctx := context.Background()

		raw, err := idp.SignIDToken(idp.Claims(""))
		require.NoError(t, err)
		_, err = p.ValidateIDToken(ctx, raw, "")
		require.NoError(t, err)

		claims := idp.Claims("")
		u, err := url.Parse(idp.Issuer())
		require.NoError(t, err)
		claims["iss"] = u.Scheme + "://" + u.Host + "/9188040d-6c67-4c5b-b112-36a304b66dad/v2.0"
		raw, err = idp.SignIDToken(claims)
		require.NoError(t, err)
		_, err = p.ValidateIDToken(ctx, raw, "")
		assert.True(t, errors.Is(err, autherrors.ErrIssuerMismatch), "got %v", err)
	})
}

func TestApple(t *testing.T) {
	t.Parallel()

	t.Run("empty secret fails before network", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		client := mocks.NewMockHTTPClient(ctrl)
		client.EXPECT().Do(gomock.Any()).Times(0)

		_, err := NewApple(&socialauth.ProviderConfig{ClientID: "com.example.web", RedirectURI: testRedirectURI},
			WithHTTPClient(client))
		require.Error(t, err)
		assert.True(t, errors.Is(err, autherrors.ErrInvalidConfiguration))
	})

	t.Run("oauth2 config rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewApple(&socialauth.ProviderConfig{
			ClientID: "c", ClientSecret: "s", RedirectURI: testRedirectURI,
			OAuth2: &socialauth.OAuth2Config{AuthorizationEndpoint: "https://a", TokenEndpoint: "https://t"},
		})
		assert.True(t, errors.Is(err, autherrors.ErrInvalidConfiguration))
	})

	t.Run("form post and no userinfo", func(t *testing.T) {
		t.Parallel()

		idp := newIdP(t)
		cfg := oidcConfig(idp)
		cfg.Scopes = nil
		p, err := NewApple(cfg, WithHTTPClient(idp.Client()))
		require.NoError(t, err)
		assert.Equal(t, "apple", p.Name())

		ctx := context.Background()
		authURL, err := p.AuthorizationURL(ctx, "s")
		require.NoError(t, err)
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		assert.Equal(t, "form_post", u.Query().Get("response_mode"))
		assert.Equal(t, "name email", u.Query().Get("scope"))

		_, err = p.GetUserInfo(ctx, "access-token")
		assert.True(t, errors.Is(err, autherrors.ErrNotSupported))
		assert.Zero(t, idp.UserInfoHits())
	})
}

// githubServer emulates the GitHub OAuth and REST endpoints.
func githubServer(t *testing.T, tokenBody, userBody, emailsBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(tokenBody))
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(userBody))
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, _ *http.Request) {
		if emailsBody == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(emailsBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func githubConfig(srv *httptest.Server) *socialauth.ProviderConfig {
	return &socialauth.ProviderConfig{
		ClientID:     "Iv1.abc",
		ClientSecret: "secret",
		RedirectURI:  testRedirectURI,
		OAuth2: &socialauth.OAuth2Config{
			AuthorizationEndpoint: srv.URL + "/login/oauth/authorize",
			TokenEndpoint:         srv.URL + "/login/oauth/access_token",
			UserInfoEndpoint:      srv.URL + "/user",
		},
	}
}

func TestGitHub(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		p, err := NewGitHub(&socialauth.ProviderConfig{ClientID: "c", RedirectURI: testRedirectURI})
		require.NoError(t, err)
		cfg := p.Config()
		assert.Equal(t, "https://github.com/login/oauth/authorize", cfg.OAuth2.AuthorizationEndpoint)
		assert.Equal(t, "https://github.com/login/oauth/access_token", cfg.OAuth2.TokenEndpoint)
		assert.Equal(t, GitHubUserURL, cfg.OAuth2.UserInfoEndpoint)
		assert.False(t, p.IsOIDC())

		_, err = p.ValidateIDToken(context.Background(), "a.b.c", "")
		assert.True(t, errors.Is(err, autherrors.ErrNotSupported))

		authURL, err := p.AuthorizationURL(context.Background(), "s", socialauth.WithNonce("n"))
		require.NoError(t, err)
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		assert.NotContains(t, u.Query(), "nonce")
		assert.Equal(t, "read:user user:email", u.Query().Get("scope"))
	})

	t.Run("error body with 200", func(t *testing.T) {
		t.Parallel()

		srv := githubServer(t,
			`{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired.",`+
				`"error_uri":"https://docs.github.com"}`, "", "")
		p, err := NewGitHub(githubConfig(srv), WithHTTPClient(srv.Client()))
		require.NoError(t, err)

		_, err = p.ExchangeCode(context.Background(), "code", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, autherrors.ErrTokenExchangeFailed))
		assert.Equal(t, "The code passed is incorrect or expired.", autherrors.DescriptionOf(err))
	})

	t.Run("comma separated scopes", func(t *testing.T) {
		t.Parallel()

		srv := githubServer(t, `{"access_token":"gho_x","token_type":"bearer","scope":"read:user,user:email"}`, "", "")
		p, err := NewGitHub(githubConfig(srv), WithHTTPClient(srv.Client()))
		require.NoError(t, err)

		tokens, err := p.ExchangeCode(context.Background(), "code", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"read:user", "user:email"}, tokens.Scopes)
	})

	t.Run("userinfo email fallback", func(t *testing.T) {
		t.Parallel()

		srv := githubServer(t, "",
			`{"id":583231,"login":"octocat","name":"The Octocat","email":null}`,
			`[{"email":"old@example.com","primary":false,"verified":true},`+
				`{"email":"octocat@github.com","primary":true,"verified":true}]`)
		p, err := NewGitHub(githubConfig(srv), WithHTTPClient(srv.Client()))
		require.NoError(t, err)

		info, err := p.GetUserInfo(context.Background(), "gho_x")
		require.NoError(t, err)
		assert.Equal(t, "583231", info.Subject)
		assert.Equal(t, "octocat", info.PreferredUsername)
		assert.Equal(t, "octocat@github.com", info.Email)
		assert.True(t, info.EmailVerified)
	})

	t.Run("emails scope missing", func(t *testing.T) {
		t.Parallel()

		srv := githubServer(t, "", `{"id":1,"login":"ghost"}`, "")
		p, err := NewGitHub(githubConfig(srv), WithHTTPClient(srv.Client()))
		require.NoError(t, err)

		info, err := p.GetUserInfo(context.Background(), "gho_x")
		require.NoError(t, err)
		assert.Equal(t, "1", info.Subject)
		assert.Empty(t, info.Email)
	})

	t.Run("oidc config rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewGitHub(&socialauth.ProviderConfig{
			ClientID: "c", RedirectURI: testRedirectURI,
			OIDC: &socialauth.OIDCConfig{DiscoveryURL: "https://github.com"},
		})
		assert.True(t, errors.Is(err, autherrors.ErrInvalidConfiguration))
	})
}

func TestOAuth2Provider(t *testing.T) {
	t.Parallel()

	_, err := NewOAuth2("plain", &socialauth.ProviderConfig{
		ClientID: "c", RedirectURI: testRedirectURI,
		OIDC: &socialauth.OIDCConfig{DiscoveryURL: "https://idp.example.com/.well-known/openid-configuration"},
	}, flow.ClaimMapping{})
	assert.True(t, errors.Is(err, autherrors.ErrInvalidConfiguration))

	p, err := NewOAuth2("plain", &socialauth.ProviderConfig{
		ClientID: "c", RedirectURI: testRedirectURI,
		OAuth2: &socialauth.OAuth2Config{
			AuthorizationEndpoint: "https://idp.example.com/authorize",
			TokenEndpoint:         "https://idp.example.com/token",
		},
	}, flow.ClaimMapping{})
	require.NoError(t, err)

	_, err = p.GetUserInfo(context.Background(), "token")
	assert.True(t, errors.Is(err, autherrors.ErrNotSupported))
	_, err = p.ValidateIDToken(context.Background(), "a.b.c", "")
	assert.True(t, errors.Is(err, autherrors.ErrNotSupported))

	_, err = NewOIDC("", &socialauth.ProviderConfig{ClientID: "c", RedirectURI: testRedirectURI})
	assert.True(t, errors.Is(err, autherrors.ErrInvalidConfiguration))
}

func TestNew(t *testing.T) {
	t.Parallel()

	oauth2Endpoints := &socialauth.OAuth2Config{
		AuthorizationEndpoint: "https://idp.example.com/authorize",
		TokenEndpoint:         "https://idp.example.com/token",
	}
	oidc := &socialauth.OIDCConfig{DiscoveryURL: "https://idp.example.com/.well-known/openid-configuration"}

	tests := []struct {
		name     string
		spec     ProviderSpec
		wantName string
		wantType any
		wantOIDC bool
	}{
		{name: "google", spec: ProviderSpec{Type: TypeGoogle}, wantName: "google", wantType: &GoogleProvider{}, wantOIDC: true},
		{name: "github", spec: ProviderSpec{Type: TypeGitHub}, wantName: "github", wantType: &GitHubProvider{}},
		{name: "microsoft", spec: ProviderSpec{Type: TypeMicrosoft, Tenant: "t"}, wantName: "microsoft", wantType: &MicrosoftProvider{}, wantOIDC: true},
		{
			name:     "apple renamed",
			spec:     ProviderSpec{Name: "apple-web", Type: TypeApple, Config: socialauth.ProviderConfig{ClientSecret: "jwt"}},
			wantName: "apple-web", wantType: &AppleProvider{}, wantOIDC: true,
		},
		{
			name:     "generic oidc",
			spec:     ProviderSpec{Name: "okta", Type: TypeOIDC, Config: socialauth.ProviderConfig{OIDC: oidc}},
			wantName: "okta", wantType: &OIDCProvider{}, wantOIDC: true,
		},
		{
			name:     "generic oauth2",
			spec:     ProviderSpec{Name: "gitlab", Type: TypeOAuth2, Config: socialauth.ProviderConfig{OAuth2: oauth2Endpoints}},
			wantName: "gitlab", wantType: &BaseOAuth2Provider{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spec := tt.spec
			spec.Config.ClientID = "client"
			spec.Config.RedirectURI = testRedirectURI

			p, err := New(spec)
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, p)
			assert.Equal(t, tt.wantName, p.Name())
			assert.Equal(t, tt.wantOIDC, p.IsOIDC())
		})
	}

	gitlab, err := New(ProviderSpec{
		Name: "gitlab",
		Type: TypeOAuth2,
		Config: socialauth.ProviderConfig{
			ClientID: "client", RedirectURI: testRedirectURI, OAuth2: oauth2Endpoints,
		},
		AdditionalParams: map[string]string{"prompt": "consent", "access_type": "offline"},
	})
	require.NoError(t, err)
	authURL, err := gitlab.AuthorizationURL(context.Background(), "s",
		socialauth.WithAdditionalParams(map[string]string{"prompt": "none"}))
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	assert.Equal(t, "none", u.Query().Get("prompt"))

	_, err = New(ProviderSpec{Type: "facebook"})
	assert.True(t, errors.Is(err, autherrors.ErrInvalidConfiguration))

	p, err := New(ProviderSpec{Type: TypeApple, Config: socialauth.ProviderConfig{ClientID: "c", RedirectURI: testRedirectURI}})
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, autherrors.ErrInvalidConfiguration))
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	idp := newIdP(t)
	client := idp.Client()
	discoveryCache := discovery.NewCache(discovery.WithHTTPClient(client))
	keyCache := jwks.NewCache(jwks.WithHTTPClient(client))
	shared := []Option{WithHTTPClient(client), WithDiscoveryCache(discoveryCache), WithKeyCache(keyCache)}

	first, err := NewOIDC("first", oidcConfig(idp), shared...)
	require.NoError(t, err)
	second, err := NewOIDC("second", oidcConfig(idp), shared...)
	require.NoError(t, err)
	gh, err := NewGitHub(&socialauth.ProviderConfig{ClientID: "c", RedirectURI: testRedirectURI})
	require.NoError(t, err)

	r, err := NewRegistry(second, gh, first)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "github", "second"}, r.Names())

	got, ok := r.Get("first")
	require.True(t, ok)
	assert.Same(t, first, got)
	_, ok = r.Get("missing")
	assert.False(t, ok)

	err = r.Register(first)
	assert.True(t, errors.Is(err, autherrors.ErrInvalidConfiguration))
	assert.True(t, errors.Is(r.Register(nil), autherrors.ErrInvalidConfiguration))

	require.NoError(t, r.Warm(context.Background()))
	assert.Equal(t, 1, idp.DiscoveryHits())
	assert.Equal(t, 1, idp.JWKSHits())

	raw, err := idp.SignIDToken(idp.Claims("n"))
	require.NoError(t, err)
	_, err = second.ValidateIDToken(context.Background(), raw, "n")
	require.NoError(t, err)
	assert.Equal(t, 1, idp.JWKSHits())
}
