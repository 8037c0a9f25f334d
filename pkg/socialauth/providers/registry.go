// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package providers

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	autherrors "github.com/stacklok/socialauth/pkg/errors"
	"github.com/stacklok/socialauth/pkg/socialauth"
)

// Registry holds providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]socialauth.OAuthProvider
}

// NewRegistry creates a Registry holding providers.
func NewRegistry(providers ...socialauth.OAuthProvider) (*Registry, error) {
	r := &Registry{providers: make(map[string]socialauth.OAuthProvider, len(providers))}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds p. Names must be unique.
func (r *Registry) Register(p socialauth.OAuthProvider) error {
	if p == nil {
		return autherrors.New(autherrors.KindInvalidConfiguration, "provider is nil")
	}
	name := p.Name()
	if name == "" {
		return autherrors.New(autherrors.KindInvalidConfiguration, "provider name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return autherrors.Newf(autherrors.KindInvalidConfiguration, "provider %q is already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered as name.
func (r *Registry) Get(name string) (socialauth.OAuthProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Warm prefetches discovery documents and keys for every provider that
// implements Warmer, concurrently. It returns the first failure.
func (r *Registry) Warm(ctx context.Context) error {
	r.mu.RLock()
	warmers := make(map[string]Warmer)
	for name, p := range r.providers {
		if w, ok := p.(Warmer); ok {
			warmers[name] = w
		}
	}
	r.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for name, w := range warmers {
		g.Go(func() error {
			if err := w.Warm(ctx); err != nil {
				return fmt.Errorf("warming provider %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
