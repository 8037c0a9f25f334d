// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pkce generates and validates Proof Key for Code Exchange values
// (RFC 7636). Only the S256 challenge method is supported.
package pkce

import (
	"crypto/rand"

	"golang.org/x/oauth2"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
)

// MethodS256 is the PKCE challenge method using SHA-256 (RFC 7636).
const MethodS256 = "S256"

const (
	// MinVerifierLength is the shortest code_verifier allowed by RFC 7636 Section 4.1.
	MinVerifierLength = 43
	// MaxVerifierLength is the longest code_verifier allowed by RFC 7636 Section 4.1.
	MaxVerifierLength = 128
)

// unreserved is the RFC 3986 unreserved character set allowed in a verifier.
const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// CodeVerifier is the high-entropy secret kept by the client until token exchange.
type CodeVerifier string

// CodeChallenge is the S256 digest of a CodeVerifier, sent on the authorization request.
type CodeChallenge string

// String returns the verifier as a plain string.
func (v CodeVerifier) String() string { return string(v) }

// String returns the challenge as a plain string.
func (c CodeChallenge) String() string { return string(c) }

// GenerateVerifier returns a 43 character verifier (32 random bytes, base64url
// without padding). It panics if the system random source fails.
func GenerateVerifier() CodeVerifier {
	return CodeVerifier(oauth2.GenerateVerifier())
}

// ChallengeFor computes code_challenge = BASE64URL(SHA256(verifier)).
func ChallengeFor(v CodeVerifier) CodeChallenge {
	return CodeChallenge(oauth2.S256ChallengeFromVerifier(string(v)))
}

// FromRaw validates an externally supplied verifier.
func FromRaw(s string) (CodeVerifier, error) {
	if len(s) < MinVerifierLength || len(s) > MaxVerifierLength {
		return "", autherrors.Newf(autherrors.KindInvalidConfiguration,
			"code verifier length %d outside [%d, %d]", len(s), MinVerifierLength, MaxVerifierLength)
	}
	for i := 0; i < len(s); i++ {
		if !isUnreserved(s[i]) {
			return "", autherrors.Newf(autherrors.KindInvalidConfiguration,
				"code verifier contains invalid character at position %d", i)
		}
	}
	return CodeVerifier(s), nil
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// Generator produces verifiers of a fixed length.
type Generator struct {
	length int
}

// NewGenerator returns a Generator for verifiers of the given length.
func NewGenerator(length int) (*Generator, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return nil, autherrors.Newf(autherrors.KindInvalidConfiguration,
			"verifier length %d outside [%d, %d]", length, MinVerifierLength, MaxVerifierLength)
	}
	return &Generator{length: length}, nil
}

// Length returns the configured verifier length.
func (g *Generator) Length() int {
	return g.length
}

// Verifier returns a new random verifier drawn uniformly from the unreserved
// alphabet. It panics if the system random source fails.
func (g *Generator) Verifier() CodeVerifier {
	if g.length == MinVerifierLength {
		return GenerateVerifier()
	}

	// Reject bytes >= 198 (3 * 66) so the modulo stays uniform.
	const limit = 3 * len(unreserved)
	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length)
	for len(out) < g.length {
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, unreserved[int(b)%len(unreserved)])
			if len(out) == g.length {
				break
			}
		}
	}
	return CodeVerifier(out)
}

// Pair returns a fresh verifier together with its challenge.
func (g *Generator) Pair() (CodeVerifier, CodeChallenge) {
	v := g.Verifier()
	return v, ChallengeFor(v)
}
