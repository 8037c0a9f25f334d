// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error taxonomy shared by the social
// authentication packages.
//
// Every failure carries a Kind. Callers branch on the kind with errors.Is
// against the exported sentinels, or with IsKind. No kind implies partial
// trust: callers are expected to deny authentication for all of them.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a social authentication failure.
type Kind string

// Error kinds
const (
	// KindInvalidConfiguration is returned for bad or missing setup, detected before any network call.
	KindInvalidConfiguration Kind = "invalid_configuration"

	// KindDiscoveryFailed is returned when the OIDC discovery document cannot be fetched or is invalid.
	KindDiscoveryFailed Kind = "discovery_failed"

	// KindUnknownSigningKey is returned when no key in the provider's JWKS matches the token.
	KindUnknownSigningKey Kind = "unknown_signing_key"

	// KindMalformedToken is returned when a JWT cannot be parsed or lacks required claims.
	KindMalformedToken Kind = "malformed_token"

	// KindInvalidSignature is returned when signature verification fails or the algorithm is not accepted.
	KindInvalidSignature Kind = "invalid_signature"

	// KindTokenExpired is returned when the exp claim is in the past.
	KindTokenExpired Kind = "token_expired"

	// KindIssuerMismatch is returned when the iss claim does not match the expected issuer.
	KindIssuerMismatch Kind = "issuer_mismatch"

	// KindAudienceMismatch is returned when the aud claim does not contain the client ID.
	KindAudienceMismatch Kind = "audience_mismatch"

	// KindNonceMismatch is returned when the nonce claim is missing or differs from the expected value.
	KindNonceMismatch Kind = "nonce_mismatch"

	// KindTokenExchangeFailed is returned when the authorization code exchange fails.
	KindTokenExchangeFailed Kind = "token_exchange_failed"

	// KindTokenRefreshFailed is returned when the refresh grant fails.
	KindTokenRefreshFailed Kind = "token_refresh_failed"

	// KindNotSupported is returned when a provider lacks a capability.
	KindNotSupported Kind = "not_supported"

	// KindUserInfoFailed is returned when the UserInfo endpoint cannot be queried.
	KindUserInfoFailed Kind = "userinfo_failed"
)

// Sentinels for use with errors.Is. Any *Error of the same kind matches.
var (
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrDiscoveryFailed      = &Error{Kind: KindDiscoveryFailed}
	ErrUnknownSigningKey    = &Error{Kind: KindUnknownSigningKey}
	ErrMalformedToken       = &Error{Kind: KindMalformedToken}
	ErrInvalidSignature     = &Error{Kind: KindInvalidSignature}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired}
	ErrIssuerMismatch       = &Error{Kind: KindIssuerMismatch}
	ErrAudienceMismatch     = &Error{Kind: KindAudienceMismatch}
	ErrNonceMismatch        = &Error{Kind: KindNonceMismatch}
	ErrTokenExchangeFailed  = &Error{Kind: KindTokenExchangeFailed}
	ErrTokenRefreshFailed   = &Error{Kind: KindTokenRefreshFailed}
	ErrNotSupported         = &Error{Kind: KindNotSupported}
	ErrUserInfoFailed       = &Error{Kind: KindUserInfoFailed}
)

// Error represents a social authentication failure
type Error struct {
	// Kind is the error kind
	Kind Kind

	// Message is the error message
	Message string

	// Description is the raw error description reported by the provider, if any
	Description string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Description != "" {
		msg = fmt.Sprintf("%s (provider: %s)", msg, e.Description)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a new error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new error of the given kind caused by err
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDescription returns a copy of e carrying the provider's error description.
func (e *Error) WithDescription(description string) *Error {
	c := *e
	c.Description = description
	return &c
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// IsKind checks if err carries the given kind
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// DescriptionOf returns the provider error description carried by err, if any.
func DescriptionOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Description
}
