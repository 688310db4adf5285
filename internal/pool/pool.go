// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool provides typed object pooling and a shared [*bytes.Buffer] pool
// for request and notification bodies.
package pool

import (
	"bytes"
	"sync"
)

// maxBufferSize bounds the capacity of buffers returned to [Bytes]. Larger
// buffers are dropped so one oversized payload does not pin memory.
const maxBufferSize = 1 << 20

// Pool is a generics wrapper around [sync.Pool] to provide strongly-typed object pooling.
type Pool[T any] struct {
	p      sync.Pool
	accept func(T) bool
}

// Resetter is implemented by pooled values that clear themselves on Put.
type Resetter interface {
	Reset()
}

// New returns a new [Pool] for T, and will use fn to construct new T's when the pool is empty.
func New[T any](fn func() T) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() any {
				return fn()
			},
		},
	}
}

// Get gets a T from the pool, or creates a new one if the pool is empty.
func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

// Put resets x and returns it into the pool.
func (p *Pool[T]) Put(x T) {
	if p.accept != nil && !p.accept(x) {
		return
	}
	if r, ok := any(x).(Resetter); ok {
		r.Reset()
	}
	p.p.Put(x)
}

// Bytes provides the [*bytes.Buffer] pooling objects.
var Bytes = func() *Pool[*bytes.Buffer] {
	p := New(func() *bytes.Buffer { return new(bytes.Buffer) })
	p.accept = func(b *bytes.Buffer) bool { return b.Cap() <= maxBufferSize }
	return p
}()
