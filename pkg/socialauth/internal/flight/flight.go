// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package flight coalesces concurrent fetches of the same key.
//
// A shared fetch runs on a context owned by the group, not by any single
// caller. A caller that cancels returns its own context error and leaves the
// fetch running for the others. Once every caller has left, the shared
// context is cancelled and the key is forgotten, so the next caller starts a
// fresh fetch instead of joining the abandoned one.
package flight

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Func performs the shared work. ctx is cancelled when the timeout elapses or
// every caller has gone away; results must not be cached once ctx is done.
type Func func(ctx context.Context) (any, error)

type call struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Group is a singleflight.Group whose calls are cancelled when abandoned.
// The zero value is not usable; use New.
type Group struct {
	timeout time.Duration

	mu    sync.Mutex
	calls map[string]*call
	group singleflight.Group
}

// New creates a Group whose shared calls are bounded by timeout.
func New(timeout time.Duration) *Group {
	return &Group{timeout: timeout, calls: make(map[string]*call)}
}

// Do runs fn once for all concurrent callers of key. When ctx is done
// first, Do returns ctx.Err() without waiting for fn.
func (g *Group) Do(ctx context.Context, key string, fn Func) (any, error) {
	c := g.join(key)
	defer g.leave(key, c)

	ch := g.group.DoChan(key, func() (any, error) {
		return fn(c.ctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Waiters returns the number of callers currently waiting on key.
func (g *Group) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

func (g *Group) join(key string) *call {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.calls[key]
	if !ok {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		c = &call{ctx: ctx, cancel: cancel}
		g.calls[key] = c
	}
	c.waiters++
	return c
}

func (g *Group) leave(key string, c *call) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c.waiters--
	if c.waiters > 0 {
		return
	}
	c.cancel()
	if g.calls[key] == c {
		delete(g.calls, key)
		g.group.Forget(key)
	}
}
