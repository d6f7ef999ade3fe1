// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
)

// guardSlot is the shared cell behind a Guard. Slots are linked into the
// pool's global list when created and stay there for the life of the GC, so a
// scan can reach every slot without locking.
type guardSlot struct {
	post       unsafe.Pointer // atomic; nil when unguarded
	globalNext atomic.Pointer[guardSlot]

	// nextFree links the global free list (under guardPool.mu) or the owning
	// Thread's free list.
	nextFree *guardSlot

	// threadNext links all slots currently owned by one Thread.
	threadNext *guardSlot

	// free is false only while the slot is handed out by AllocGuard.
	free bool
}

func (s *guardSlot) load() unsafe.Pointer {
	return atomic.LoadPointer(&s.post)
}

func (s *guardSlot) store(p unsafe.Pointer) {
	atomic.StorePointer(&s.post, p)
}

// Guard is a borrowed handle to a hazard slot owned by one [Thread]. While a
// guard holds an address, no scan will dispose of a retired pointer with that
// address. The handle is valid from [Thread.AllocGuard] until the matching
// [Thread.FreeGuard] or [Thread.Detach]; the slot itself outlives it and is
// reused.
type Guard struct {
	s *guardSlot
}

// Set publishes p. It must be followed by re-validating that p is still
// reachable before p is dereferenced; [Protect] does both.
func (g Guard) Set(p unsafe.Pointer) {
	g.s.store(p)
}

func (g Guard) Get() unsafe.Pointer {
	return g.s.load()
}

// Clear ends protection. Clearing an already clear guard has no effect.
func (g Guard) Clear() {
	g.s.store(nil)
}

// IsValid reports whether g refers to a slot.
func (g Guard) IsValid() bool {
	return g.s != nil
}

// guardPool owns every slot ever created by a GC.
type guardPool struct {
	head atomic.Pointer[guardSlot] // linked by globalNext

	// The free list is mutex-protected because lock-free pops would be
	// ABA-prone: a slot popped and pushed back between another popper's load
	// and CAS would corrupt the list.
	mu   sync.Mutex
	free *guardSlot

	stat   *stat
	logger *zap.Logger
}

func (p *guardPool) newSlot() *guardSlot {
	s := &guardSlot{}
	head := p.head.Load()
	for {
		s.globalNext.Store(head)
		if p.head.CompareAndSwap(head, s) {
			break
		}
		head = p.head.Load()
	}
	p.stat.add(&p.stat.guardCount, 1)
	return s
}

func (p *guardPool) alloc() *guardSlot {
	p.mu.Lock()
	s := p.free
	if s != nil {
		p.free = s.nextFree
	}
	p.mu.Unlock()
	if s == nil {
		s = p.newSlot()
		p.logger.Debug("guard pool grew",
			zap.String("component", "dhp"),
			zap.Int64("guard_count", p.stat.guardCount.Load()))
	} else {
		p.stat.add(&p.stat.freeGuardCount, -1)
	}
	s.nextFree = nil
	s.threadNext = nil
	s.free = false
	s.store(nil)
	return s
}

// allocList returns n slots linked by both threadNext and nextFree.
func (p *guardPool) allocList(n int) *guardSlot {
	var head, last *guardSlot
	for range n {
		s := p.alloc()
		s.free = true
		if last == nil {
			head = s
		} else {
			last.threadNext = s
			last.nextFree = s
		}
		last = s
	}
	return head
}

// freeList returns a Thread's whole slot list, linked by threadNext, to the
// global free list.
func (p *guardPool) freeList(list *guardSlot) {
	if list == nil {
		return
	}
	n := int64(1)
	last := list
	for {
		last.store(nil)
		last.free = true
		next := last.threadNext
		last.nextFree = next
		if next == nil {
			break
		}
		last = next
		n++
	}
	p.mu.Lock()
	last.nextFree = p.free
	p.free = list
	p.mu.Unlock()
	p.stat.add(&p.stat.freeGuardCount, n)
}

// each calls f with the current value of every slot.
func (p *guardPool) each(f func(unsafe.Pointer)) {
	for s := p.head.Load(); s != nil; s = s.globalNext.Load() {
		if v := s.load(); v != nil {
			f(v)
		}
	}
}
