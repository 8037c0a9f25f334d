// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package login

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often expired entries are swept.
const DefaultCleanupInterval = time.Minute

type timedEntry struct {
	login     *PendingLogin
	expiresAt time.Time
}

// MemoryStore is an in-process Store. Entries are swept by a background
// goroutine; call Close to stop it.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*timedEntry

	ttl             time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// WithTTL sets how long entries live.
func WithTTL(ttl time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStoreClock replaces time.Now.
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a MemoryStore and starts its cleanup goroutine.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:         make(map[string]*timedEntry),
		ttl:             DefaultStateTTL,
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, login *PendingLogin) error {
	if login == nil || login.State == "" {
		return errors.New("pending login requires a state")
	}
	c := *login
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[login.State] = &timedEntry{login: &c, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, state string) (*PendingLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(s.entries, state)
	if !s.now().Before(entry.expiresAt) {
		return nil, ErrStateNotFound
	}
	return entry.login, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the background cleanup goroutine and waits for it to finish.
// It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	<-s.cleanupDone
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for state, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, state)
		}
	}
}
