// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package testkit provides testing utilities for the social authentication
// packages.
//
// Its sole purpose is
//
//   - providing an in-process OpenID Connect identity provider, backed by
//     httptest, that serves discovery, JWKS, authorization, token and
//     UserInfo endpoints
//   - providing helpers to sign ID tokens with arbitrary claims, headers and
//     keys so tests can exercise every validation failure
//
// The file `pkg/testkit/testkit_test.go` contains a few tests that
// exemplify how to use the framework.
package testkit

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const wellKnownPath = "/.well-known/openid-configuration"

// DefaultSubject is the sub claim of the user the test IdP logs in.
const DefaultSubject = "test-user-123"

type signingKey struct {
	kid     string
	alg     jose.SignatureAlgorithm
	private crypto.Signer
}

func (k *signingKey) jwk() jose.JSONWebKey {
	return jose.JSONWebKey{Key: k.private.Public(), KeyID: k.kid, Algorithm: string(k.alg), Use: "sig"}
}

type codeGrant struct {
	redirectURI string
	nonce       string
	challenge   string
}

type tokenError struct {
	status      int
	code        string
	description string
}

// TestIdP is an in-process OpenID Connect provider for tests. It serves
// discovery, JWKS, an auto-consenting authorization endpoint, a token
// endpoint with PKCE, and UserInfo.
type TestIdP struct {
	server *httptest.Server

	basePath       string
	clientID       string
	clientSecret   string
	alg            jose.SignatureAlgorithm
	middlewares    []func(http.Handler) http.Handler
	profile        map[string]any
	rotateRefresh  bool
	includeIDToken bool
	now            func() time.Time

	mu            sync.Mutex
	keys          []*signingKey
	active        *signingKey
	codes         map[string]codeGrant
	accessTokens  map[string]struct{}
	refreshTokens map[string]struct{}
	tokenErr      *tokenError

	discoveryHits atomic.Int32
	jwksHits      atomic.Int32
	tokenHits     atomic.Int32
	userInfoHits  atomic.Int32
	lastTokenForm atomic.Pointer[url.Values]
}

// IdPOption configures a TestIdP.
type IdPOption func(*TestIdP) error

// WithClientCredentials sets the accepted client_id and client_secret.
func WithClientCredentials(clientID, clientSecret string) IdPOption {
	return func(p *TestIdP) error {
		if clientID == "" {
			return fmt.Errorf("client id is required")
		}
		p.clientID = clientID
		p.clientSecret = clientSecret
		return nil
	}
}

// WithBasePath serves the provider under path, which becomes part of the issuer.
func WithBasePath(path string) IdPOption {
	return func(p *TestIdP) error {
		if path != "" && !strings.HasPrefix(path, "/") {
			return fmt.Errorf("base path must start with /")
		}
		p.basePath = strings.TrimRight(path, "/")
		return nil
	}
}

// WithSigningAlgorithm selects the key type: RS256, ES256 or EdDSA.
func WithSigningAlgorithm(alg jose.SignatureAlgorithm) IdPOption {
	return func(p *TestIdP) error {
		switch alg {
		case jose.RS256, jose.ES256, jose.EdDSA:
			p.alg = alg
			return nil
		}
		return fmt.Errorf("unsupported signing algorithm %s", alg)
	}
}

// WithProfile sets the profile claims returned in ID tokens and by UserInfo.
func WithProfile(claims map[string]any) IdPOption {
	return func(p *TestIdP) error {
		p.profile = maps.Clone(claims)
		return nil
	}
}

// WithoutRefreshRotation makes refresh responses omit refresh_token.
func WithoutRefreshRotation() IdPOption {
	return func(p *TestIdP) error {
		p.rotateRefresh = false
		return nil
	}
}

// WithoutIDToken makes token responses omit id_token.
func WithoutIDToken() IdPOption {
	return func(p *TestIdP) error {
		p.includeIDToken = false
		return nil
	}
}

// WithIdPMiddlewares wraps every endpoint with the given middlewares.
func WithIdPMiddlewares(middlewares ...func(http.Handler) http.Handler) IdPOption {
	return func(p *TestIdP) error {
		p.middlewares = append(p.middlewares, middlewares...)
		return nil
	}
}

// WithIdPClock replaces time.Now for issued token timestamps.
func WithIdPClock(now func() time.Time) IdPOption {
	return func(p *TestIdP) error {
		p.now = now
		return nil
	}
}

// NewTestIdP starts a test identity provider. Call Close when done.
func NewTestIdP(options ...IdPOption) (*TestIdP, error) {
	p := &TestIdP{
		clientID:       "test-client",
		clientSecret:   "test-secret",
		alg:            jose.RS256,
		rotateRefresh:  true,
		includeIDToken: true,
		now:            time.Now,
		profile: map[string]any{
			"email":          "test.user@example.com",
			"email_verified": true,
			"name":           "Test User",
		},
		codes:         make(map[string]codeGrant),
		accessTokens:  make(map[string]struct{}),
		refreshTokens: make(map[string]struct{}),
	}

	for _, option := range options {
		if err := option(p); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if _, err := p.RotateKey(); err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(append([]func(http.Handler) http.Handler{middleware.Recoverer}, p.middlewares...)...)
	router.Route(p.basePath+"/", func(r chi.Router) {
		r.Get(strings.TrimPrefix(wellKnownPath, "/"), p.discoveryHandler)
		r.Get("jwks", p.jwksHandler)
		r.Get("authorize", p.authorizeHandler)
		r.Post("token", p.tokenHandler)
		r.Get("userinfo", p.userInfoHandler)
	})

	p.server = httptest.NewServer(router)
	return p, nil
}

// Close shuts the server down.
func (p *TestIdP) Close() { p.server.Close() }

// Client returns an HTTP client for the server.
func (p *TestIdP) Client() *http.Client { return p.server.Client() }

// Issuer returns the issuer identifier.
func (p *TestIdP) Issuer() string { return p.server.URL + p.basePath }

// DiscoveryURL returns the discovery document URL.
func (p *TestIdP) DiscoveryURL() string { return p.Issuer() + wellKnownPath }

// JWKSURI returns the key set URL.
func (p *TestIdP) JWKSURI() string { return p.Issuer() + "/jwks" }

// AuthorizationEndpoint returns the authorization endpoint URL.
func (p *TestIdP) AuthorizationEndpoint() string { return p.Issuer() + "/authorize" }

// TokenEndpoint returns the token endpoint URL.
func (p *TestIdP) TokenEndpoint() string { return p.Issuer() + "/token" }

// UserInfoEndpoint returns the UserInfo endpoint URL.
func (p *TestIdP) UserInfoEndpoint() string { return p.Issuer() + "/userinfo" }

// ClientID returns the accepted client_id.
func (p *TestIdP) ClientID() string { return p.clientID }

// ClientSecret returns the accepted client_secret.
func (p *TestIdP) ClientSecret() string { return p.clientSecret }

// DiscoveryHits returns how many discovery requests were served.
func (p *TestIdP) DiscoveryHits() int { return int(p.discoveryHits.Load()) }

// JWKSHits returns how many JWKS requests were served.
func (p *TestIdP) JWKSHits() int { return int(p.jwksHits.Load()) }

// TokenHits returns how many token requests were served.
func (p *TestIdP) TokenHits() int { return int(p.tokenHits.Load()) }

// UserInfoHits returns how many UserInfo requests were served.
func (p *TestIdP) UserInfoHits() int { return int(p.userInfoHits.Load()) }

// LastTokenRequest returns the form of the most recent token request.
func (p *TestIdP) LastTokenRequest() url.Values {
	if v := p.lastTokenForm.Load(); v != nil {
		return *v
	}
	return nil
}

// RotateKey generates a new signing key, publishes it alongside the old
// ones and makes it the active key. It returns the new kid.
func (p *TestIdP) RotateKey() (string, error) {
	key, err := newSigningKey(p.alg)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.active = key
	return key.kid, nil
}

// ActiveKeyID returns the kid of the key used for signing.
func (p *TestIdP) ActiveKeyID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.kid
}

// SetTokenError makes the token endpoint reply with an OAuth error body.
// A 200 status reproduces providers that report errors with success codes.
// A zero status clears it.
func (p *TestIdP) SetTokenError(status int, code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status == 0 {
		p.tokenErr = nil
		return
	}
	p.tokenErr = &tokenError{status: status, code: code, description: description}
}

// Claims returns a valid claim set for DefaultSubject, expiring in an hour.
func (p *TestIdP) Claims(nonce string) map[string]any {
	now := p.now()
	claims := map[string]any{
		"iss": p.Issuer(),
		"sub": DefaultSubject,
		"aud": p.clientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	maps.Copy(claims, p.profile)
	return claims
}

// SignIDToken signs claims with the active key.
func (p *TestIdP) SignIDToken(claims map[string]any) (string, error) {
	p.mu.Lock()
	key := p.active
	p.mu.Unlock()
	return SignToken(key.private, key.alg, key.kid, claims)
}

// SignToken signs claims as a compact JWT with the given key and kid.
// An empty kid omits the header.
func SignToken(key crypto.Signer, alg jose.SignatureAlgorithm, kid string, claims map[string]any) (string, error) {
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if kid != "" {
		opts = opts.WithHeader("kid", kid)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	return josejwt.Signed(signer).Claims(claims).Serialize()
}

func newSigningKey(alg jose.SignatureAlgorithm) (*signingKey, error) {
	var (
		priv crypto.Signer
		err  error
	)
	switch alg {
	case jose.ES256:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case jose.EdDSA:
		_, priv, err = ed25519.GenerateKey(rand.Reader)
	default:
		priv, err = rsa.GenerateKey(rand.Reader, 2048)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &signingKey{kid: uuid.NewString(), alg: alg, private: priv}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (p *TestIdP) discoveryHandler(w http.ResponseWriter, _ *http.Request) {
	p.discoveryHits.Add(1)
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.Issuer(),
		"authorization_endpoint":                p.AuthorizationEndpoint(),
		"token_endpoint":                        p.TokenEndpoint(),
		"jwks_uri":                              p.JWKSURI(),
		"userinfo_endpoint":                     p.UserInfoEndpoint(),
		"scopes_supported":                      []string{"openid", "email", "profile"},
		"response_types_supported":              []string{"code"},
		"id_token_signing_alg_values_supported": []string{string(p.alg)},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic"},
	})
}

func (p *TestIdP) jwksHandler(w http.ResponseWriter, _ *http.Request) {
	p.jwksHits.Add(1)
	p.mu.Lock()
	set := jose.JSONWebKeySet{}
	for _, k := range p.keys {
		set.Keys = append(set.Keys, k.jwk())
	}
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, set)
}

// authorizeHandler consents immediately and redirects back with a code.
func (p *TestIdP) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	target, err := url.Parse(redirectURI)
	if err != nil || redirectURI == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	if q.Get("client_id") != p.clientID || q.Get("response_type") != "code" {
		http.Error(w, "invalid authorization request", http.StatusBadRequest)
		return
	}
	if method := q.Get("code_challenge_method"); q.Get("code_challenge") != "" && method != "S256" {
		http.Error(w, "unsupported code_challenge_method", http.StatusBadRequest)
		return
	}

	code := uuid.NewString()
	p.mu.Lock()
	p.codes[code] = codeGrant{
		redirectURI: redirectURI,
		nonce:       q.Get("nonce"),
		challenge:   q.Get("code_challenge"),
	}
	p.mu.Unlock()

	params := target.Query()
	params.Set("code", code)
	params.Set("state", q.Get("state"))
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (p *TestIdP) tokenHandler(w http.ResponseWriter, r *http.Request) {
	p.tokenHits.Add(1)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	form := r.PostForm
	p.lastTokenForm.Store(&form)

	p.mu.Lock()
	forced := p.tokenErr
	p.mu.Unlock()
	if forced != nil {
		writeJSON(w, forced.status, map[string]string{"error": forced.code, "error_description": forced.description})
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if ok {
		clientID, _ = url.QueryUnescape(clientID)
		clientSecret, _ = url.QueryUnescape(clientSecret)
	} else {
		clientID, clientSecret = form.Get("client_id"), form.Get("client_secret")
	}
	if clientID != p.clientID || clientSecret != p.clientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch form.Get("grant_type") {
	case "authorization_code":
		p.exchange(w, form)
	case "refresh_token":
		p.refresh(w, form)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (p *TestIdP) exchange(w http.ResponseWriter, form url.Values) {
	p.mu.Lock()
	grant, ok := p.codes[form.Get("code")]
	delete(p.codes, form.Get("code"))
	p.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid_grant", "error_description": "authorization code is invalid or was already redeemed",
		})
		return
	}
	if grant.redirectURI != form.Get("redirect_uri") {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid_grant", "error_description": "redirect_uri mismatch",
		})
		return
	}
	if grant.challenge != "" && oauth2.S256ChallengeFromVerifier(form.Get("code_verifier")) != grant.challenge {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid_grant", "error_description": "PKCE verification failed",
		})
		return
	}

	resp := p.issueTokens(true)
	if p.includeIDToken {
		idToken, err := p.SignIDToken(p.Claims(grant.nonce))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
			return
		}
		resp["id_token"] = idToken
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p *TestIdP) refresh(w http.ResponseWriter, form url.Values) {
	token := form.Get("refresh_token")
	p.mu.Lock()
	_, ok := p.refreshTokens[token]
	if ok && p.rotateRefresh {
		delete(p.refreshTokens, token)
	}
	p.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid_grant", "error_description": "refresh token is invalid",
		})
		return
	}
	writeJSON(w, http.StatusOK, p.issueTokens(p.rotateRefresh))
}

func (p *TestIdP) issueTokens(withRefresh bool) map[string]any {
	access := uuid.NewString()
	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        "openid email profile",
	}
	p.mu.Lock()
	p.accessTokens[access] = struct{}{}
	if withRefresh {
		refresh := uuid.NewString()
		p.refreshTokens[refresh] = struct{}{}
		resp["refresh_token"] = refresh
	}
	p.mu.Unlock()
	return resp
}

func (p *TestIdP) userInfoHandler(w http.ResponseWriter, r *http.Request) {
	p.userInfoHits.Add(1)
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	p.mu.Lock()
	_, ok := p.accessTokens[token]
	p.mu.Unlock()
	if !found || !ok {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	claims := map[string]any{"sub": DefaultSubject}
	maps.Copy(claims, p.profile)
	writeJSON(w, http.StatusOK, claims)
}
