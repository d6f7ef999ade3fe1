// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp

import (
	"sync/atomic"
	"unsafe"
)

// Protect loads *src, publishes the value in g, and repeats until the value
// is confirmed unchanged after publication. The returned pointer, which may be
// nil, is safe to dereference until g is cleared, reassigned or freed, even if
// it is concurrently unlinked and retired.
func Protect[T any](g Guard, src *atomic.Pointer[T]) *T {
	p := src.Load()
	for {
		g.Set(unsafe.Pointer(p))
		q := src.Load()
		if q == p {
			return p
		}
		p = q
	}
}

// ProtectFunc is Protect for pointers not held in an [atomic.Pointer]. load
// must perform an atomic load.
func ProtectFunc[T any](g Guard, load func() *T) *T {
	p := load()
	for {
		g.Set(unsafe.Pointer(p))
		q := load()
		if q == p {
			return p
		}
		p = q
	}
}

// Assign publishes p in g without validation. It is only safe when p is
// already protected by another guard, for instance when handing protection
// from one guard to another during traversal.
func Assign[T any](g Guard, p *T) *T {
	g.Set(unsafe.Pointer(p))
	return p
}

// Retire is the typed form of [Thread.Retire].
func Retire[T any](t *Thread, p *T, dispose func(*T)) {
	if p == nil {
		panic("retired pointer is nil")
	}
	if dispose == nil {
		panic("dispose function must be non-nil")
	}
	t.Retire(unsafe.Pointer(p), func(q unsafe.Pointer) {
		dispose((*T)(q))
	})
}
