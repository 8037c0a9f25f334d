// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package idtoken verifies OpenID Connect ID tokens.
//
// Validation runs in a fixed order and stops at the first failure: JWT
// structure, signature (against a key resolved by kid), then the exp, iss,
// aud and nonce claims. Each step maps to its own error kind.
package idtoken

import (
	"context"
	"crypto"
	"crypto/subtle"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/socialauth"
)

// SupportedAlgorithms lists the accepted signature algorithms. Symmetric and
// "none" algorithms are never accepted.
var SupportedAlgorithms = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// KeySource resolves a verification key by jwks_uri and kid.
// *jwks.Cache satisfies it.
type KeySource interface {
	GetKey(ctx context.Context, jwksURI, kid string) (crypto.PublicKey, error)
}

// Params holds the per-provider expectations for one validation.
type Params struct {
	// JWKSURI locates the provider's signing keys.
	JWKSURI string
	// Issuer is the expected iss claim.
	Issuer string
	// AlternateIssuers are additional accepted iss values.
	AlternateIssuers []string
	// ClientID must appear in aud.
	ClientID string
	// CheckNonce enables the nonce check when ExpectedNonce is non-empty.
	CheckNonce    bool
	ExpectedNonce string
}

// Validator verifies ID tokens. It holds no mutable state of its own.
type Validator struct {
	keys      KeySource
	clockSkew time.Duration
	logger    *slog.Logger
	now       func() time.Time
	parser    *jwt.Parser
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithClockSkew tolerates clocks running behind the provider by d when checking exp.
func WithClockSkew(d time.Duration) Option {
	return func(v *Validator) {
		if d >= 0 {
			v.clockSkew = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewValidator creates a Validator that resolves keys through keys.
func NewValidator(keys KeySource, opts ...Option) *Validator {
	v := &Validator{
		keys:   keys,
		logger: logger.Component("idtoken"),
		now:    time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods(SupportedAlgorithms),
			// claims are checked below in a fixed order
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate verifies rawIDToken and returns its claims. No claims are returned
// on failure.
func (v *Validator) Validate(ctx context.Context, rawIDToken string, params Params) (*socialauth.IDToken, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if rawIDToken == "" {
		return nil, autherrors.New(autherrors.KindMalformedToken, "ID token is empty")
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(rawIDToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return v.keys.GetKey(ctx, params.JWKSURI, kid)
	})
	if err != nil {
		v.logger.Debug("ID token verification failed", "error", err)
		return nil, classifyParseError(err)
	}

	// An expired token reports TokenExpired even when other claims are malformed.
	exp, err := expiration(claims)
	if err != nil {
		return nil, err
	}
	if err := v.validateExpiry(exp); err != nil {
		return nil, err
	}
	tok, err := decodeClaims(claims, exp)
	if err != nil {
		return nil, err
	}

	if err := validateIssuer(tok, params); err != nil {
		return nil, err
	}
	if err := validateAudience(tok, params.ClientID); err != nil {
		return nil, err
	}
	if params.CheckNonce && params.ExpectedNonce != "" {
		if err := validateNonce(tok, params.ExpectedNonce); err != nil {
			return nil, err
		}
	}

	return tok, nil
}

func (p Params) validate() error {
	switch {
	case p.JWKSURI == "":
		return autherrors.New(autherrors.KindInvalidConfiguration, "jwks_uri is required for ID token validation")
	case p.Issuer == "":
		return autherrors.New(autherrors.KindInvalidConfiguration, "expected issuer is required for ID token validation")
	case p.ClientID == "":
		return autherrors.New(autherrors.KindInvalidConfiguration, "client_id is required for ID token validation")
	}
	return nil
}

// classifyParseError maps golang-jwt parse errors onto error kinds. Errors
// raised by the key source keep their own kind.
func classifyParseError(err error) error {
	var authErr *autherrors.Error
	if errors.As(err, &authErr) {
		return authErr
	}
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return autherrors.Wrap(autherrors.KindMalformedToken, "parsing ID token", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return autherrors.Wrap(autherrors.KindInvalidSignature, "verifying ID token", err)
	default:
		return autherrors.Wrap(autherrors.KindMalformedToken, "parsing ID token", err)
	}
}

func (v *Validator) validateExpiry(exp time.Time) error {
	now := v.now()
	if !now.Before(exp.Add(v.clockSkew)) {
		return autherrors.Newf(autherrors.KindTokenExpired, "expired at %s", exp.UTC().Format(time.RFC3339))
	}
	return nil
}

func validateIssuer(tok *socialauth.IDToken, params Params) error {
	if tok.Issuer == params.Issuer || slices.Contains(params.AlternateIssuers, tok.Issuer) {
		return nil
	}
	return autherrors.Newf(autherrors.KindIssuerMismatch, "expected %q, got %q", params.Issuer, tok.Issuer)
}

func validateAudience(tok *socialauth.IDToken, clientID string) error {
	if !slices.Contains(tok.Audience, clientID) {
		return autherrors.Newf(autherrors.KindAudienceMismatch, "expected %q in audience %q", clientID, tok.Audience)
	}
	// OIDC Core 3.1.3.7 steps 4 and 5
	if len(tok.Audience) > 1 && tok.AuthorizedParty != "" && tok.AuthorizedParty != clientID {
		return autherrors.Newf(autherrors.KindAudienceMismatch, "authorized party %q is not %q", tok.AuthorizedParty, clientID)
	}
	return nil
}

// validateNonce requires the nonce claim to be present and equal.
func validateNonce(tok *socialauth.IDToken, expected string) error {
	if tok.Nonce == "" {
		return autherrors.New(autherrors.KindNonceMismatch, "ID token has no nonce")
	}
	if subtle.ConstantTimeCompare([]byte(tok.Nonce), []byte(expected)) != 1 {
		return autherrors.New(autherrors.KindNonceMismatch, "nonce does not match the authorization request")
	}
	return nil
}
