// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package socialauth defines the data model and provider interface for logging
users in through external identity providers.

A login runs as a sequence of independent steps against an [OAuthProvider]:

	url, _ := p.AuthorizationURL(ctx, state,
		socialauth.WithNonce(nonce),
		socialauth.WithCodeChallenge(pkce.ChallengeFor(verifier)))
	// redirect the user, receive ?code=...&state=...
	tokens, err := p.ExchangeCode(ctx, code, &verifier)
	claims, err := p.ValidateIDToken(ctx, tokens.IDToken, nonce)

Concrete providers live in the providers subpackage. Discovery documents and
signing keys are cached by the discovery and jwks subpackages; caches are
created once by the application and injected into providers.

Every failure is a *errors.Error from pkg/errors carrying a Kind. None of
them imply partial trust.
*/
package socialauth
