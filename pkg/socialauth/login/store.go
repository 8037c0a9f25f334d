// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package login orchestrates a social login: it starts the authorization
// redirect, remembers the per-login secrets, and completes the callback into
// a verified identity.
package login

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/socialauth/pkg/socialauth/pkce"
)

// DefaultStateTTL is how long a pending login waits for its callback.
const DefaultStateTTL = 10 * time.Minute

// ErrStateNotFound is returned for unknown, expired or already used states.
var ErrStateNotFound = errors.New("login state not found")

// PendingLogin holds the secrets of an authorization request until its
// callback arrives.
type PendingLogin struct {
	Provider     string            `json:"provider"`
	State        string            `json:"state"`
	Nonce        string            `json:"nonce,omitempty"`
	CodeVerifier pkce.CodeVerifier `json:"code_verifier,omitempty"`
	RedirectURI  string            `json:"redirect_uri,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Store persists pending logins keyed by state.
type Store interface {
	// Save stores login until its TTL elapses.
	Save(ctx context.Context, login *PendingLogin) error

	// Take removes and returns the pending login for state. A state can be
	// taken once; later calls return ErrStateNotFound.
	Take(ctx context.Context, state string) (*PendingLogin, error)
}
