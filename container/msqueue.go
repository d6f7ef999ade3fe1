// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package container

import (
	"sync"
	"sync/atomic"

	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/dhp"
)

type queueNode[T any] struct {
	value T
	next  atomic.Pointer[queueNode[T]]
}

// MSQueue is the lock-free FIFO queue of Michael and Scott ("Simple, Fast, and
// Practical Non-Blocking and Blocking Concurrent Queue Algorithms", PODC 1996).
// The head always points at a dummy node whose successor holds the oldest
// value. Dequeued dummies are retired to the queue's collector, so the
// pointer modification counters used in the paper are unnecessary.
type MSQueue[T any] struct {
	head    atomic.Pointer[queueNode[T]]
	tail    atomic.Pointer[queueNode[T]]
	gc      *dhp.GC
	nodes   sync.Pool
	counter cds.ItemCounter
	backoff cds.Backoff
}

// NewMSQueue returns an empty queue whose nodes are reclaimed through gc.
// Every operation takes a Thread attached to gc.
func NewMSQueue[T any](gc *dhp.GC, cfg LockFreeConfig) *MSQueue[T] {
	q := &MSQueue[T]{
		gc:      gc,
		counter: itemCounterOrDefault(cfg.ItemCounter),
		backoff: backoffOrDefault(cfg.Backoff),
	}
	dummy := &queueNode[T]{}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

func (q *MSQueue[T]) newNode(v T) *queueNode[T] {
	n, _ := q.nodes.Get().(*queueNode[T])
	if n == nil {
		n = &queueNode[T]{}
	}
	n.value = v
	return n
}

func (q *MSQueue[T]) dispose(n *queueNode[T]) {
	var zero T
	n.value = zero
	n.next.Store(nil)
	q.nodes.Put(n)
}

func (q *MSQueue[T]) checkThread(t *dhp.Thread) {
	if t.GC() != q.gc {
		panic("thread is not attached to the queue's garbage collector")
	}
}

func (q *MSQueue[T]) Enqueue(t *dhp.Thread, v T) {
	q.checkThread(t)
	n := q.newNode(v)
	g := t.AllocGuard()
	defer t.FreeGuard(g)
	for attempt := 0; ; attempt++ {
		tail := dhp.Protect(g, &q.tail)
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			// Tail is falling behind; help it along.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.counter.Inc()
			return
		}
		q.backoff.Spin(attempt)
	}
}

// Dequeue removes and returns the oldest value. The second result is false if
// the queue was empty.
func (q *MSQueue[T]) Dequeue(t *dhp.Thread) (T, bool) {
	q.checkThread(t)
	gs := t.AllocGuards(2)
	defer t.FreeGuards(gs)
	for attempt := 0; ; attempt++ {
		head := dhp.Protect(gs[0], &q.head)
		next := dhp.Protect(gs[1], &head.next)
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			var zero T
			return zero, false
		}
		if tail := q.tail.Load(); head == tail {
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if q.head.CompareAndSwap(head, next) {
			// next is the new dummy; only this goroutine reads its value.
			v := next.value
			gs[0].Clear()
			q.counter.Dec()
			dhp.Retire(t, head, q.dispose)
			return v, true
		}
		q.backoff.Spin(attempt)
	}
}

// Empty reports whether the queue was empty at the moment of the call.
func (q *MSQueue[T]) Empty() bool {
	t := q.head.Load()
	return t.next.Load() == nil
}

func (q *MSQueue[T]) Size() int64 {
	return q.counter.Value()
}

// Clear dequeues every value.
func (q *MSQueue[T]) Clear(t *dhp.Thread) {
	for {
		if _, ok := q.Dequeue(t); !ok {
			return
		}
	}
}
