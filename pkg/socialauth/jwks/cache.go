// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package jwks caches provider signing keys keyed by jwks_uri.
//
// A lookup that misses its kid on a fresh key set triggers exactly one
// refetch, so a rotated key validates without waiting for the TTL.
// Concurrent refetches of the same URI share one request, and a refetch
// abandoned by every caller is cancelled without touching the cache.
// WithMinRefreshInterval optionally rate limits kid-miss refetches per URI;
// a limited miss fails without a network call.
package jwks

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/time/rate"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/logger"
	"github.com/stacklok/socialauth/pkg/networking"
	"github.com/stacklok/socialauth/pkg/socialauth/internal/flight"
)

const (
	// DefaultTTL is how long a key set is trusted before it is refetched.
	DefaultTTL = 10 * time.Minute
	// DefaultMinRefreshInterval is the minimum spacing of kid-miss refetches
	// per URI. Zero leaves them unlimited.
	DefaultMinRefreshInterval time.Duration = 0
	// DefaultFetchTimeout bounds a single JWKS fetch.
	DefaultFetchTimeout = 10 * time.Second
)

type keySetEntry struct {
	set       jwk.Set
	fetchedAt time.Time
}

type refreshResult struct {
	entry   *keySetEntry
	limited bool
}

// Cache holds the current key set for each jwks_uri. It is safe for concurrent use.
type Cache struct {
	client             networking.HTTPClient
	ttl                time.Duration
	minRefreshInterval time.Duration
	fetchTimeout       time.Duration
	logger             *slog.Logger
	now                func() time.Time

	mu       sync.RWMutex
	entries  map[string]*keySetEntry
	limiters map[string]*rate.Limiter
	group    *flight.Group
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

// WithTTL sets how long a key set stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMinRefreshInterval sets the minimum spacing of kid-miss refetches.
// Zero disables rate limiting.
func WithMinRefreshInterval(interval time.Duration) Option {
	return func(c *Cache) {
		if interval >= 0 {
			c.minRefreshInterval = interval
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

// NewCache creates an empty key cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		client:             http.DefaultClient,
		ttl:                DefaultTTL,
		minRefreshInterval: DefaultMinRefreshInterval,
		fetchTimeout:       DefaultFetchTimeout,
		logger:             logger.Component("jwks"),
		now:                time.Now,
		entries:            make(map[string]*keySetEntry),
		limiters:           make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.group = flight.New(c.fetchTimeout)
	return c
}

// GetKey returns the public key identified by kid in the key set at jwksURI.
// An empty kid matches only when the set holds exactly one key.
func (c *Cache) GetKey(ctx context.Context, jwksURI, kid string) (crypto.PublicKey, error) {
	if err := networking.ValidateEndpointURL(jwksURI); err != nil {
		return nil, autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid jwks_uri", err)
	}

	observed := c.get(jwksURI)
	if observed != nil && c.fresh(observed) {
		if key, ok := lookup(observed.set, kid); ok {
			return exportPublic(key)
		}
		c.logger.Debug("kid not in cached key set, refetching", "jwks_uri", jwksURI, "kid", kid)
	}

	res, err := c.refresh(ctx, jwksURI, observed)
	if err != nil {
		return nil, err
	}

	key, ok := lookup(res.entry.set, kid)
	if !ok {
		if res.limited {
			return nil, autherrors.Newf(autherrors.KindUnknownSigningKey,
				"kid %q not found in %s (refetch rate limited)", kid, jwksURI)
		}
		return nil, autherrors.Newf(autherrors.KindUnknownSigningKey, "kid %q not found in %s", kid, jwksURI)
	}
	return exportPublic(key)
}

// Prefetch loads the key set for jwksURI unless a fresh one is cached.
func (c *Cache) Prefetch(ctx context.Context, jwksURI string) error {
	if err := networking.ValidateEndpointURL(jwksURI); err != nil {
		return autherrors.Wrap(autherrors.KindInvalidConfiguration, "invalid jwks_uri", err)
	}
	if entry := c.get(jwksURI); entry != nil && c.fresh(entry) {
		return nil
	}
	_, err := c.refresh(ctx, jwksURI, nil)
	return err
}

// Invalidate drops the cached key set for jwksURI.
func (c *Cache) Invalidate(jwksURI string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, jwksURI)
}

// refresh joins or starts the single flight for jwksURI. observed is the
// entry the caller already looked at, nil if none.
func (c *Cache) refresh(ctx context.Context, jwksURI string, observed *keySetEntry) (*refreshResult, error) {
	val, err := c.group.Do(ctx, jwksURI, func(fetchCtx context.Context) (any, error) {
		current := c.get(jwksURI)
		if current != nil && c.fresh(current) {
			if current != observed {
				// replaced since the caller looked
				return &refreshResult{entry: current}, nil
			}
			if !c.allowRefetch(jwksURI) {
				return &refreshResult{entry: current, limited: true}, nil
			}
		}

		set, err := c.fetch(fetchCtx, jwksURI)
		if err != nil {
			return nil, err
		}
		if fetchCtx.Err() != nil {
			return nil, autherrors.Wrap(autherrors.KindUnknownSigningKey, "key fetch abandoned", fetchCtx.Err())
		}
		entry := &keySetEntry{set: set, fetchedAt: c.now()}
		c.store(jwksURI, entry)
		return &refreshResult{entry: entry}, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, autherrors.Wrap(autherrors.KindUnknownSigningKey, "key lookup abandoned by caller", err)
		}
		return nil, err
	}
	return val.(*refreshResult), nil
}

func (c *Cache) fetch(ctx context.Context, jwksURI string) (jwk.Set, error) {
	result, err := networking.FetchJSON[json.RawMessage](ctx, c.client, jwksURI)
	if err != nil {
		c.logger.Debug("JWKS fetch failed", "jwks_uri", jwksURI, "error", err)
		return nil, autherrors.Wrap(autherrors.KindUnknownSigningKey, "fetching "+jwksURI, err)
	}

	set, err := jwk.Parse(result.Body)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindUnknownSigningKey, "parsing key set from "+jwksURI, err)
	}

	c.logger.Debug("fetched JWKS", "jwks_uri", jwksURI, "keys", set.Len())
	return set, nil
}

func (c *Cache) get(jwksURI string) *keySetEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[jwksURI]
}

func (c *Cache) store(jwksURI string, entry *keySetEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[jwksURI] = entry
}

func (c *Cache) fresh(entry *keySetEntry) bool {
	return c.now().Before(entry.fetchedAt.Add(c.ttl))
}

// allowRefetch consumes a refetch token for jwksURI.
func (c *Cache) allowRefetch(jwksURI string) bool {
	if c.minRefreshInterval == 0 {
		return true
	}

	c.mu.Lock()
	limiter, ok := c.limiters[jwksURI]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(c.minRefreshInterval), 1)
		c.limiters[jwksURI] = limiter
	}
	c.mu.Unlock()

	allowed := limiter.AllowN(c.now(), 1)
	if !allowed {
		c.logger.Debug("JWKS refetch rate limited", "jwks_uri", jwksURI)
	}
	return allowed
}

func lookup(set jwk.Set, kid string) (jwk.Key, bool) {
	if kid == "" {
		if set.Len() != 1 {
			return nil, false
		}
		return set.Key(0)
	}
	return set.LookupKeyID(kid)
}

func exportPublic(key jwk.Key) (crypto.PublicKey, error) {
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, autherrors.Wrap(autherrors.KindUnknownSigningKey, "exporting key", err)
	}
	// a set that leaks private material still yields only the public half
	if priv, ok := raw.(interface{ Public() crypto.PublicKey }); ok {
		return priv.Public(), nil
	}
	return raw, nil
}
