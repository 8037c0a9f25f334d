// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"crypto/ecdsa"
	"time"

	"github.com/golang-jwt/jwt/v5"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
)

const (
	// AppleAudience is the aud claim of an Apple client secret.
	AppleAudience = "https://appleid.apple.com"

	// MaxAppleClientSecretTTL is the longest lifetime Apple accepts.
	MaxAppleClientSecretTTL = 180 * 24 * time.Hour
)

// AppleSecretParams describes an Apple client secret.
type AppleSecretParams struct {
	// TeamID is the Apple developer team, used as iss.
	TeamID string
	// ClientID is the Services ID, used as sub.
	ClientID string
	// KeyID identifies the Sign in with Apple key, sent as kid.
	KeyID string
	// PrivateKey is the P-256 key downloaded from Apple.
	PrivateKey *ecdsa.PrivateKey
	// TTL defaults to MaxAppleClientSecretTTL.
	TTL time.Duration
	// Now defaults to time.Now().
	Now time.Time
}

// GenerateAppleClientSecret signs the ES256 JWT Apple expects as client_secret.
func GenerateAppleClientSecret(p AppleSecretParams) (string, error) {
	switch {
	case p.TeamID == "":
		return "", autherrors.New(autherrors.KindInvalidConfiguration, "apple team id is required")
	case p.ClientID == "":
		return "", autherrors.New(autherrors.KindInvalidConfiguration, "apple client id is required")
	case p.KeyID == "":
		return "", autherrors.New(autherrors.KindInvalidConfiguration, "apple key id is required")
	case p.PrivateKey == nil:
		return "", autherrors.New(autherrors.KindInvalidConfiguration, "apple private key is required")
	case p.TTL < 0 || p.TTL > MaxAppleClientSecretTTL:
		return "", autherrors.Newf(autherrors.KindInvalidConfiguration, "apple client secret ttl must be at most %s", MaxAppleClientSecretTTL)
	}

	ttl := p.TTL
	if ttl == 0 {
		ttl = MaxAppleClientSecretTTL
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    p.TeamID,
		Subject:   p.ClientID,
		Audience:  jwt.ClaimStrings{AppleAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	token.Header["kid"] = p.KeyID

	signed, err := token.SignedString(p.PrivateKey)
	if err != nil {
		return "", autherrors.Wrap(autherrors.KindInvalidConfiguration, "signing apple client secret", err)
	}
	return signed, nil
}

// ParseApplePrivateKey parses the PEM encoded PKCS#8 key Apple issues.
func ParseApplePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindInvalidConfiguration, "parsing apple private key", err)
	}
	return key, nil
}
