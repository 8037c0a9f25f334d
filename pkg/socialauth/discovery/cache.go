// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package discovery fetches and caches OpenID Connect discovery documents.
//
// Concurrent lookups for the same issuer share a single network fetch. The
// fetch runs detached from any one caller's context, bounded by its own
// timeout, so a caller that gives up does not fail the others. When every
// caller has given up the fetch is cancelled. Failed or cancelled fetches
// are never cached.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth"
	"github.com/stacklok/socialauth/pkg/socialauth/internal/flight"
)

const (
	// DefaultTTL is how long a discovery document is served from cache.
	DefaultTTL = time.Hour
	// DefaultFetchTimeout bounds a single discovery fetch.
	DefaultFetchTimeout = 10 * time.Second
	// DefaultMaxEntries caps the number of cached issuers.
	DefaultMaxEntries = 1000
)

type cacheEntry struct {
	doc       *socialauth.OIDCDiscovery
	expiresAt time.Time
}

// Cache is a TTL cache of discovery documents keyed by issuer.
// It is safe for concurrent use.
type Cache struct {
	client       networking.HTTPClient
	ttl          time.Duration
	fetchTimeout time.Duration
	maxEntries   int
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	group   *flight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient sets the client used for fetches.
func WithHTTPClient(client networking.HTTPClient) Option {
	return func(c *Cache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTTL sets how long documents stay fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithFetchTimeout bounds each shared fetch.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout > 0 {
			c.fetchTimeout = timeout
		}
	}
}

// WithMaxEntries caps the number of cached issuers.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache creates an empty discovery cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		client:       http.DefaultClient,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		maxEntries:   DefaultMaxEntries,
		logger:       logger.Component("discovery"),
		now:          time.Now,
		entries:      make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.group = flight.New(c.fetchTimeout)
	return c
}

// Discover returns the discovery document for issuer, fetching it from
// {issuer}/.well-known/openid-configuration on a miss.
// The returned document is shared and must be treated as read-only.
func (c *Cache) Discover(ctx context.Context, issuer string) (*socialauth.OIDCDiscovery, error) {
	issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	if err := networking.ValidateEndpointURL(issuer); err != nil {
		return nil, autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid issuer", err)
	}

	if doc := c.lookup(issuer); doc != nil {
		c.logger.Debug("discovery cache hit", "issuer", issuer)
		return doc, nil
	}

	c.logger.Debug("discovery cache miss", "issuer", issuer)

	val, err := c.group.Do(ctx, issuer, func(fetchCtx context.Context) (any, error) {
		// Another flight may have filled the entry while this one was queued
		if doc := c.lookup(issuer); doc != nil {
			return doc, nil
		}

		doc, err := c.fetch(fetchCtx, issuer)
		if err != nil {
			return nil, err
		}
		if fetchCtx.Err() != nil {
			return nil, autherrors.Wrap(autherrors.KindDiscoveryFailed, "discovery abandoned", fetchCtx.Err())
		}
		c.store(issuer, doc)
		return doc, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, autherrors.Wrap(autherrors.KindDiscoveryFailed, "discovery abandoned by caller", err)
		}
		return nil, err
	}
	return val.(*socialauth.OIDCDiscovery), nil
}

// Invalidate drops the cached document for issuer.
func (c *Cache) Invalidate(issuer string) {
	issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, issuer)
}

// Len returns the number of cached documents, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(issuer string) *socialauth.OIDCDiscovery {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[issuer]
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil
	}
	return entry.doc
}

func (c *Cache) store(issuer string, doc *socialauth.OIDCDiscovery) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[issuer]; !exists && len(c.entries) >= c.maxEntries {
		c.evictExpiredLocked()
		if len(c.entries) >= c.maxEntries {
			c.logger.Debug("discovery cache at capacity, not caching new entry", "capacity", c.maxEntries)
			return
		}
	}

	c.entries[issuer] = &cacheEntry{
		doc:       doc,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *Cache) evictExpiredLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) fetch(ctx context.Context, issuer string) (*socialauth.OIDCDiscovery, error) {
	discoveryURL := socialauth.DiscoveryURLFromIssuer(issuer)

	result, err := networking.FetchJSON[socialauth.OIDCDiscovery](ctx, c.client, discoveryURL)
	if err != nil {
		c.logger.Debug("discovery fetch failed", "issuer", issuer, "error", err)
		return nil, autherrors.Wrap(autherrors.KindDiscoveryFailed, "fetching "+discoveryURL, err)
	}

	doc := result.Data
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}

	c.logger.Debug("discovered OIDC endpoints",
		"issuer", doc.Issuer,
		"authorization_endpoint", doc.AuthorizationEndpoint,
		"token_endpoint", doc.TokenEndpoint,
		"jwks_uri", doc.JWKSURI,
	)
	return &doc, nil
}

// validateDocument checks required fields and that every endpoint is HTTPS
// (plain HTTP only on loopback).
func validateDocument(doc *socialauth.OIDCDiscovery) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	endpoints := []struct {
		name  string
		value string
	}{
		{"authorization_endpoint", doc.AuthorizationEndpoint},
		{"token_endpoint", doc.TokenEndpoint},
		{"jwks_uri", doc.JWKSURI},
		{"userinfo_endpoint", doc.UserInfoEndpoint},
	}
	for _, ep := range endpoints {
		if ep.value == "" {
			continue
		}
		if err := networking.ValidateEndpointURL(ep.value); err != nil {
			return autherrors.Wrap(autherrors.KindDiscoveryFailed, "invalid "+ep.name, err)
		}
	}
	return nil
}
