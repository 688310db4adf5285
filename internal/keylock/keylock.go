// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package keylock provides an arena of mutual-exclusion locks keyed by string.
//
// Locks are created on first use and released back to the arena once nobody
// holds or waits for them. Waiters for the same key acquire it in arrival
// order.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	held    bool
	waiters []chan struct{}
}

// Arena is a set of per-key locks. The zero value is ready to use.
type Arena struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty [Arena].
func New() *Arena {
	return &Arena{}
}

// Lock acquires the lock for key, blocking until it is available or ctx is
// done. On success it returns the function that releases the lock; it must be
// called exactly once.
func (a *Arena) Lock(ctx context.Context, key string) (unlock func(), err error) {
	a.mu.Lock()
	if a.entries == nil {
		a.entries = make(map[string]*entry)
	}
	e, ok := a.entries[key]
	if !ok {
		e = &entry{}
		a.entries[key] = e
	}
	if !e.held {
		e.held = true
		a.mu.Unlock()
		return a.releaser(key), nil
	}
	ready := make(chan struct{})
	e.waiters = append(e.waiters, ready)
	a.mu.Unlock()

	select {
	case <-ready:
		return a.releaser(key), nil
	case <-ctx.Done():
		a.mu.Lock()
		for i, w := range e.waiters {
			if w == ready {
				e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
				a.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		a.mu.Unlock()
		// Ownership was handed over while ctx fired; pass it on.
		a.unlock(key)
		return nil, ctx.Err()
	}
}

func (a *Arena) releaser(key string) func() {
	var once sync.Once
	return func() { once.Do(func() { a.unlock(key) }) }
}

func (a *Arena) unlock(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok || !e.held {
		panic("keylock: unlock of unlocked key " + key)
	}
	if len(e.waiters) > 0 {
		next := e.waiters[0]
		e.waiters = e.waiters[1:]
		close(next)
		return
	}
	e.held = false
	delete(a.entries, key)
}

// Len reports how many keys are currently held or waited on.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
