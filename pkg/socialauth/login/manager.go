// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
)

// ErrProviderMismatch is returned when a callback presents a state issued
// for another provider. The pending login is consumed either way.
var ErrProviderMismatch = errors.New("login state was issued for a different provider")

// ErrUnknownProvider is returned for provider names missing from the source.
// It also carries the InvalidConfiguration kind.
var ErrUnknownProvider = errors.New("unknown provider")

// ProviderSource looks providers up by name. *providers.Registry satisfies it.
type ProviderSource interface {
	Get(name string) (socialauth.OAuthProvider, bool)
}

// Authorization is the outcome of Begin.
type Authorization struct {
	URL   string
	State string
}

// Identity is the verified outcome of Complete.
type Identity struct {
	Provider string
	Subject  string
	Claims   *socialauth.StandardClaims
	// IDToken is nil for plain OAuth2 providers, whose identity comes from UserInfo.
	IDToken *socialauth.IDToken
	Tokens  *socialauth.TokenResponse
}

// Manager runs the begin and complete halves of a login.
type Manager struct {
	providers ProviderSource
	store     Store
	pkce      *pkce.Generator
	params    map[string]string
	now       func() time.Time
	logger    *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPKCEGenerator sets the verifier generator.
func WithPKCEGenerator(g *pkce.Generator) ManagerOption {
	return func(m *Manager) {
		if g != nil {
			m.pkce = g
		}
	}
}

// WithAuthorizationParams adds parameters to every authorization URL.
func WithAuthorizationParams(params map[string]string) ManagerOption {
	return func(m *Manager) {
		m.params = params
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager.
func NewManager(providers ProviderSource, store Store, opts ...ManagerOption) (*Manager, error) {
	if providers == nil {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "provider source is required")
	}
	if store == nil {
		return nil, autherrors.New(autherrors.KindInvalidConfiguration, "state store is required")
	}
	gen, err := pkce.NewGenerator(pkce.MinVerifierLength)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		providers: providers,
		store:     store,
		pkce:      gen,
		now:       time.Now,
		logger:    logger.Component("login"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) provider(name string) (socialauth.OAuthProvider, error) {
	p, ok := m.providers.Get(name)
	if !ok {
		return nil, autherrors.Wrap(autherrors.KindInvalidConfiguration, fmt.Sprintf("provider %q", name), ErrUnknownProvider)
	}
	return p, nil
}

func usesNonce(p socialauth.OAuthProvider) bool {
	if n, ok := p.(interface{ UsesNonce() bool }); ok {
		return n.UsesNonce()
	}
	return p.IsOIDC()
}

// Begin starts a login with the named provider and returns the URL to
// redirect the user agent to.
func (m *Manager) Begin(ctx context.Context, providerName string) (*Authorization, error) {
	p, err := m.provider(providerName)
	if err != nil {
		return nil, err
	}

	verifier, challenge := m.pkce.Pair()
	pending := &PendingLogin{
		Provider:     p.Name(),
		State:        uuid.NewString(),
		CodeVerifier: verifier,
		CreatedAt:    m.now(),
	}
	opts := []socialauth.AuthorizationOption{socialauth.WithCodeChallenge(challenge)}
	if usesNonce(p) {
		pending.Nonce = uuid.NewString()
		opts = append(opts, socialauth.WithNonce(pending.Nonce))
	}
	if len(m.params) > 0 {
		opts = append(opts, socialauth.WithAdditionalParams(m.params))
	}

	authURL, err := p.AuthorizationURL(ctx, pending.State, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to save pending login: %w", err)
	}

	m.logger.Debug("login started", "provider", pending.Provider, "nonce", pending.Nonce != "")
	return &Authorization{URL: authURL, State: pending.State}, nil
}

// Complete finishes a login from the callback's state and code. For OIDC
// providers the identity comes from the validated ID token, and a token
// response without one fails with MalformedToken.
func (m *Manager) Complete(ctx context.Context, providerName, state, code string) (*Identity, error) {
	if state == "" {
		return nil, ErrStateNotFound
	}
	p, err := m.provider(providerName)
	if err != nil {
		return nil, err
	}

	pending, err := m.store.Take(ctx, state)
	if err != nil {
		return nil, err
	}
	if pending.Provider != p.Name() {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrProviderMismatch, pending.Provider, p.Name())
	}

	var verifier *pkce.CodeVerifier
	if pending.CodeVerifier != "" {
		v := pending.CodeVerifier
		verifier = &v
	}
	tokens, err := p.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	identity := &Identity{Provider: p.Name(), Tokens: tokens}
	if p.IsOIDC() {
		// OIDC identities come only from a validated ID token.
		if tokens.IDToken == "" {
			return nil, autherrors.New(autherrors.KindMalformedToken, "token response is missing the id_token")
		}
		idToken, err := p.ValidateIDToken(ctx, tokens.IDToken, pending.Nonce)
		if err != nil {
			return nil, err
		}
		identity.IDToken = idToken
		identity.Claims = idToken.StandardClaims()
	} else {
		claims, err := p.GetUserInfo(ctx, tokens.AccessToken)
		if err != nil {
			return nil, err
		}
		identity.Claims = claims
	}
	identity.Subject = identity.Claims.Subject

	m.logger.Debug("login completed", "provider", identity.Provider, "from_id_token", identity.IDToken != nil)
	return identity, nil
}

// Cancel discards the pending login for state, as when the provider reports
// an error to the callback. An unknown state is not an error.
func (m *Manager) Cancel(ctx context.Context, state string) error {
	if state == "" {
		return nil
	}
	pending, err := m.store.Take(ctx, state)
	if errors.Is(err, ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.logger.Debug("login cancelled", "provider", pending.Provider)
	return nil
}
