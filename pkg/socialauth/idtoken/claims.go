// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package idtoken

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/socialauth"
)

// mappedClaims are decoded into IDToken fields and left out of Extra.
var mappedClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "iat": {}, "nonce": {}, "azp": {},
	"email": {}, "email_verified": {}, "name": {}, "given_name": {}, "family_name": {},
	"picture": {}, "locale": {}, "preferred_username": {},
}

// expiration returns the required exp claim.
func expiration(claims jwt.MapClaims) (time.Time, error) {
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, autherrors.Wrap(autherrors.KindMalformedToken, "invalid exp claim", err)
	}
	if exp == nil {
		return time.Time{}, autherrors.New(autherrors.KindMalformedToken, "missing exp claim")
	}
	return exp.Time, nil
}

// decodeClaims builds an IDToken from verified claims expiring at exp. sub
// is required and iat, when present, must precede exp.
func decodeClaims(claims jwt.MapClaims, exp time.Time) (*socialauth.IDToken, error) {
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindMalformedToken, "invalid iat claim", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindMalformedToken, "invalid sub claim", err)
	}
	if sub == "" {
		return nil, autherrors.New(autherrors.KindMalformedToken, "missing sub claim")
	}
	iss, err := claims.GetIssuer()
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindMalformedToken, "invalid iss claim", err)
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindMalformedToken, "invalid aud claim", err)
	}

	tok := &socialauth.IDToken{
		Issuer:    iss,
		Subject:   sub,
		Audience:  []string(aud),
		ExpiresAt: exp,
	}
	if iat != nil {
		if !iat.Before(exp) {
			return nil, autherrors.New(autherrors.KindMalformedToken, "iat is not before exp")
		}
		tok.IssuedAt = iat.Time
	}

	tok.Nonce = stringClaim(claims, "nonce")
	tok.AuthorizedParty = stringClaim(claims, "azp")
	tok.Email = stringClaim(claims, "email")
	tok.EmailVerified = boolClaim(claims, "email_verified")
	tok.Name = stringClaim(claims, "name")
	tok.GivenName = stringClaim(claims, "given_name")
	tok.FamilyName = stringClaim(claims, "family_name")
	tok.Picture = stringClaim(claims, "picture")
	tok.Locale = stringClaim(claims, "locale")
	tok.PreferredUsername = stringClaim(claims, "preferred_username")

	for k, v := range claims {
		if _, ok := mappedClaims[k]; ok {
			continue
		}
		if tok.Extra == nil {
			tok.Extra = make(map[string]any)
		}
		tok.Extra[k] = v
	}

	return tok, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// boolClaim accepts JSON booleans and the string form Apple uses.
func boolClaim(claims jwt.MapClaims, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
