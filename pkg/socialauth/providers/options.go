// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package providers implements socialauth.OAuthProvider for Google, GitHub,
// Microsoft, Apple and generic OpenID Connect or OAuth 2.0 identity
// providers.
//
// Providers share discovery and key caches when they are injected with
// WithDiscoveryCache and WithKeyCache. A provider constructed without them
// owns private caches.
package providers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth/discovery"
	"github.com/stacklok/socialauth/pkg/socialauth/jwks"
)

// Option configures a provider.
type Option func(*options)

type options struct {
	httpClient networking.HTTPClient
	discovery  *discovery.Cache
	keys       *jwks.Cache
	logger     *slog.Logger
	now        func() time.Time
	clockSkew  time.Duration
}

// WithHTTPClient sets the HTTP client for token, UserInfo and, when the
// caches are private, discovery and JWKS requests.
func WithHTTPClient(client networking.HTTPClient) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithDiscoveryCache shares a discovery cache between providers.
func WithDiscoveryCache(c *discovery.Cache) Option {
	return func(o *options) {
		o.discovery = c
	}
}

// WithKeyCache shares a JWKS cache between providers.
func WithKeyCache(c *jwks.Cache) Option {
	return func(o *options) {
		o.keys = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithClockSkew tolerates provider clocks running ahead by d when checking
// ID token expiry.
func WithClockSkew(d time.Duration) Option {
	return func(o *options) {
		o.clockSkew = d
	}
}

func resolveOptions(opts []Option) *options {
	o := &options{
		httpClient: http.DefaultClient,
		logger:     logger.Component("provider"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.discovery == nil {
		o.discovery = discovery.NewCache(
			discovery.WithHTTPClient(o.httpClient),
			discovery.WithLogger(o.logger),
			discovery.WithClock(o.now),
		)
	}
	if o.keys == nil {
		o.keys = jwks.NewCache(
			jwks.WithHTTPClient(o.httpClient),
			jwks.WithLogger(o.logger),
			jwks.WithClock(o.now),
		)
	}
	return o
}
