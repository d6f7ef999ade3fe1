// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package container

import (
	"github.com/gammazero/deque"
	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/fc"
)

const (
	opEnqueue = fc.ReqOperation + iota
	opDequeue
	opQueueClear
)

type queueRequest[T any] struct {
	value T
	ok    bool
}

// FCQueue is a FIFO queue serialized by flat combining.
type FCQueue[T any] struct {
	k     *fc.Kernel[queueRequest[T]]
	store queueStore[T]
}

type queueStore[T any] struct {
	items   deque.Deque[T]
	counter cds.ItemCounter
}

func NewFCQueue[T any](cfg FCConfig) (*FCQueue[T], error) {
	k, err := fc.New[queueRequest[T]](cfg.Kernel)
	if err != nil {
		return nil, err
	}
	q := &FCQueue[T]{k: k}
	q.store.counter = itemCounterOrDefault(cfg.ItemCounter)
	return q, nil
}

func (q *FCQueue[T]) Enqueue(v T) {
	rec := q.k.AcquireRecord()
	rec.Data.value = v
	q.k.Combine(opEnqueue, rec, &q.store)
	q.k.ReleaseRecord(rec)
}

// Dequeue removes and returns the oldest value. The second result is false if
// the queue was empty.
func (q *FCQueue[T]) Dequeue() (T, bool) {
	rec := q.k.AcquireRecord()
	q.k.Combine(opDequeue, rec, &q.store)
	v, ok := rec.Data.value, rec.Data.ok
	q.k.ReleaseRecord(rec)
	return v, ok
}

func (q *FCQueue[T]) Clear() {
	rec := q.k.AcquireRecord()
	q.k.Combine(opQueueClear, rec, &q.store)
	q.k.ReleaseRecord(rec)
}

func (q *FCQueue[T]) Len() int {
	var n int
	q.k.InvokeExclusive(func() {
		n = q.store.items.Len()
	})
	return n
}

func (q *FCQueue[T]) Empty() bool {
	return q.Len() == 0
}

func (q *FCQueue[T]) Size() int64 {
	return q.store.counter.Value()
}

func (q *FCQueue[T]) Statistics() fc.Stat {
	return q.k.Statistics()
}

func (s *queueStore[T]) ApplyRecord(rec *fc.Record[queueRequest[T]]) {
	switch rec.Op() {
	case opEnqueue:
		s.items.PushBack(rec.Data.value)
		s.counter.Inc()
	case opDequeue:
		if s.items.Len() == 0 {
			var zero T
			rec.Data.value = zero
			rec.Data.ok = false
			return
		}
		rec.Data.value = s.items.PopFront()
		rec.Data.ok = true
		s.counter.Dec()
	case opQueueClear:
		s.items.Clear()
		s.counter.Reset()
	default:
		panic("unknown queue operation")
	}
}
