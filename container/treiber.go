// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package container

import (
	"sync"
	"sync/atomic"

	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/dhp"
)

type stackNode[T any] struct {
	value T
	next  *stackNode[T]
}

// TreiberStack is a lock-free LIFO stack. Popped nodes are retired to the
// stack's collector and recycled once no guard refers to them, which rules
// out the ABA problem on the top pointer.
type TreiberStack[T any] struct {
	top     atomic.Pointer[stackNode[T]]
	gc      *dhp.GC
	nodes   sync.Pool
	counter cds.ItemCounter
	backoff cds.Backoff
}

// NewTreiberStack returns an empty stack whose nodes are reclaimed through gc.
// Every operation takes a Thread attached to gc.
func NewTreiberStack[T any](gc *dhp.GC, cfg LockFreeConfig) *TreiberStack[T] {
	return &TreiberStack[T]{
		gc:      gc,
		counter: itemCounterOrDefault(cfg.ItemCounter),
		backoff: backoffOrDefault(cfg.Backoff),
	}
}

func (s *TreiberStack[T]) newNode(v T) *stackNode[T] {
	n, _ := s.nodes.Get().(*stackNode[T])
	if n == nil {
		n = &stackNode[T]{}
	}
	n.value = v
	return n
}

func (s *TreiberStack[T]) dispose(n *stackNode[T]) {
	*n = stackNode[T]{}
	s.nodes.Put(n)
}

func (s *TreiberStack[T]) checkThread(t *dhp.Thread) {
	if t.GC() != s.gc {
		panic("thread is not attached to the stack's garbage collector")
	}
}

func (s *TreiberStack[T]) Push(t *dhp.Thread, v T) {
	s.checkThread(t)
	n := s.newNode(v)
	for attempt := 0; ; attempt++ {
		top := s.top.Load()
		n.next = top
		if s.top.CompareAndSwap(top, n) {
			s.counter.Inc()
			return
		}
		s.backoff.Spin(attempt)
	}
}

// Pop removes and returns the most recently pushed value. The second result
// is false if the stack was empty.
func (s *TreiberStack[T]) Pop(t *dhp.Thread) (T, bool) {
	s.checkThread(t)
	g := t.AllocGuard()
	defer t.FreeGuard(g)
	for attempt := 0; ; attempt++ {
		top := dhp.Protect(g, &s.top)
		if top == nil {
			var zero T
			return zero, false
		}
		if s.top.CompareAndSwap(top, top.next) {
			v := top.value
			g.Clear()
			s.counter.Dec()
			dhp.Retire(t, top, s.dispose)
			return v, true
		}
		s.backoff.Spin(attempt)
	}
}

// Empty reports whether the stack was empty at the moment of the call.
func (s *TreiberStack[T]) Empty() bool {
	return s.top.Load() == nil
}

// Size returns the item counter's value.
func (s *TreiberStack[T]) Size() int64 {
	return s.counter.Value()
}

// Clear pops every value.
func (s *TreiberStack[T]) Clear(t *dhp.Thread) {
	for {
		if _, ok := s.Pop(t); !ok {
			return
		}
	}
}
