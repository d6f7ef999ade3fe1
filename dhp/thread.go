// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp

import "unsafe"

// Thread is one goroutine's attachment to a [GC]. It owns a list of guard
// slots and a cache of bookkeeping nodes, neither of which is synchronized,
// so a Thread must be used by only one goroutine at a time.
type Thread struct {
	gc     *GC
	guards *guardSlot // all owned slots, linked by threadNext
	free   *guardSlot // owned slots not handed out, linked by nextFree
	nodes  *retiredNode
}

// Attach registers a new Thread. It panics if the collector has been closed.
// An Attach racing Close either panics or is reported by Close as attached.
func (gc *GC) Attach() *Thread {
	gc.attached.Increment()
	if gc.closed.Load() {
		gc.attached.Decrement()
		panic("garbage collector is closed")
	}
	list := gc.guards.allocList(gc.initialGuardCount)
	return &Thread{
		gc:     gc,
		guards: list,
		free:   list,
	}
}

// Detach clears and returns all of t's guards to the collector. Guards
// obtained from t must not be used afterwards. Detaching twice panics.
func (t *Thread) Detach() {
	if t.gc == nil {
		panic("thread already detached")
	}
	gc := t.gc
	gc.guards.freeList(t.guards)
	gc.nodes.release(t.nodes)
	t.guards = nil
	t.free = nil
	t.nodes = nil
	t.gc = nil
	gc.attached.Decrement()
}

// GC returns the collector t is attached to, or nil after Detach.
func (t *Thread) GC() *GC {
	return t.gc
}

// AllocGuard returns a clear guard, growing t's list from the global pool if
// every owned guard is in use.
func (t *Thread) AllocGuard() Guard {
	s := t.free
	if s != nil {
		t.free = s.nextFree
		s.nextFree = nil
		s.free = false
		return Guard{s}
	}
	s = t.gc.guards.alloc()
	s.threadNext = t.guards
	t.guards = s
	return Guard{s}
}

// FreeGuard clears g and makes it available to later AllocGuard calls on t.
// Freeing a guard twice panics.
func (t *Thread) FreeGuard(g Guard) {
	if g.s == nil {
		return
	}
	if g.s.free {
		panic("guard freed twice")
	}
	g.s.free = true
	g.s.store(nil)
	g.s.nextFree = t.free
	t.free = g.s
}

// AllocGuards returns n guards at once.
func (t *Thread) AllocGuards(n int) []Guard {
	gs := make([]Guard, n)
	for i := range gs {
		gs[i] = t.AllocGuard()
	}
	return gs
}

func (t *Thread) FreeGuards(gs []Guard) {
	for _, g := range gs {
		t.FreeGuard(g)
	}
}

// Retire hands p to the collector. dispose is called with p exactly once, from
// whichever goroutine performs the scan that finds p unguarded. The caller
// must have unlinked p so that no new reader can reach it, and must not
// dereference p afterwards. If the retired buffer reaches the liberate
// threshold, a scan runs before Retire returns. Retiring after the collector
// has been closed panics.
func (t *Thread) Retire(p unsafe.Pointer, dispose func(unsafe.Pointer)) {
	if t.gc.closed.Load() {
		panic("garbage collector is closed")
	}
	if p == nil {
		panic("retired pointer is nil")
	}
	if dispose == nil {
		panic("dispose function must be non-nil")
	}
	n := t.nodes
	if n == nil {
		n = t.gc.nodes.grab()
	}
	t.nodes = n.nextFree
	n.nextFree = nil
	n.next = nil
	n.ptr = p
	n.dispose = dispose
	t.gc.retire(n)
}

// Scan runs [GC.Scan] on t's collector.
func (t *Thread) Scan() {
	t.gc.Scan()
}
