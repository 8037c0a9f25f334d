// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package flow implements the client side of the OAuth 2.0 authorization
// code grant: building the authorization redirect, exchanging and refreshing
// tokens, and querying UserInfo.
package flow

import (
	"net/url"
	"slices"
	"strings"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
)

// Authorization request parameters. Extra parameters never replace these.
const (
	paramClientID            = "client_id"
	paramRedirectURI         = "redirect_uri"
	paramResponseType        = "response_type"
	paramScope               = "scope"
	paramState               = "state"
	paramNonce               = "nonce"
	paramCodeChallenge       = "code_challenge"
	paramCodeChallengeMethod = "code_challenge_method"
)

var reservedParams = []string{
	paramClientID, paramRedirectURI, paramResponseType, paramScope,
	paramState, paramNonce, paramCodeChallenge, paramCodeChallengeMethod,
}

// Authorizer builds authorization URLs for one client registration.
type Authorizer struct {
	clientID    string
	redirectURI string
	scopes      []string
}

// NewAuthorizer creates an Authorizer. scopes are sent in order.
func NewAuthorizer(clientID, redirectURI string, scopes []string) *Authorizer {
	return &Authorizer{
		clientID:    clientID,
		redirectURI: redirectURI,
		scopes:      slices.Clone(scopes),
	}
}

// BuildURL returns endpoint with the authorization request parameters
// added. Query parameters already on endpoint are kept. nonce and challenge
// are optional.
func (a *Authorizer) BuildURL(
	endpoint, state, nonce string,
	challenge *pkce.CodeChallenge,
	extra map[string]string,
) (string, error) {
	if a.clientID == "" {
		return "", autherrors.New(autherrors.KindInvalidConfiguration, "client_id is required")
	}
	if state == "" {
		return "", autherrors.New(autherrors.KindInvalidConfiguration, "state is required")
	}
	if err := networking.ValidateEndpointURL(endpoint); err != nil {
		return "", autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid authorization endpoint", err)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid authorization endpoint", err)
	}

	params := u.Query()
	for k, v := range extra {
		if slices.Contains(reservedParams, k) {
			continue
		}
		params.Set(k, v)
	}

	params.Set(paramClientID, a.clientID)
	params.Set(paramResponseType, "code")
	params.Set(paramState, state)
	if a.redirectURI != "" {
		params.Set(paramRedirectURI, a.redirectURI)
	}
	if len(a.scopes) > 0 {
		params.Set(paramScope, strings.Join(a.scopes, " "))
	}
	if nonce != "" {
		params.Set(paramNonce, nonce)
	}
	if challenge != nil && *challenge != "" {
		params.Set(paramCodeChallenge, challenge.String())
		params.Set(paramCodeChallengeMethod, pkce.MethodS256)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}
