// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package container

import (
	"cmp"

	"github.com/addrummond/heap"
	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/fc"
)

const (
	opPQPush = fc.ReqOperation + iota
	opPQPop
	opPQPeek
	opPQClear
)

type pqRequest[T any] struct {
	value T
	ok    bool
}

type pqEntry[T any] struct {
	value T
	seq   uint64
	cmp   func(a, b T) int
}

// Cmp orders entries by value, and entries with equal values by insertion,
// earlier first.
func (a *pqEntry[T]) Cmp(b *pqEntry[T]) int {
	if c := a.cmp(a.value, b.value); c != 0 {
		return c
	}
	return cmp.Compare(b.seq, a.seq)
}

// FCPriorityQueue is a max-priority queue serialized by flat combining. Pop
// returns the greatest value under the comparison function given to
// NewFCPriorityQueue. Equal values come out in insertion order.
type FCPriorityQueue[T any] struct {
	k     *fc.Kernel[pqRequest[T]]
	store pqStore[T]
}

type pqStore[T any] struct {
	entries heap.Heap[pqEntry[T], heap.Max]
	len     int
	seq     uint64
	cmp     func(a, b T) int
	counter cds.ItemCounter
}

// NewFCPriorityQueue returns an empty queue ordered by compare, which returns
// a negative number, zero or a positive number as a is less than, equal to or
// greater than b.
func NewFCPriorityQueue[T any](compare func(a, b T) int, cfg FCConfig) (*FCPriorityQueue[T], error) {
	if compare == nil {
		panic("comparison function must be non-nil")
	}
	k, err := fc.New[pqRequest[T]](cfg.Kernel)
	if err != nil {
		return nil, err
	}
	q := &FCPriorityQueue[T]{k: k}
	q.store.cmp = compare
	q.store.counter = itemCounterOrDefault(cfg.ItemCounter)
	return q, nil
}

// NewOrderedFCPriorityQueue is NewFCPriorityQueue with [cmp.Compare].
func NewOrderedFCPriorityQueue[T cmp.Ordered](cfg FCConfig) (*FCPriorityQueue[T], error) {
	return NewFCPriorityQueue(cmp.Compare[T], cfg)
}

func (q *FCPriorityQueue[T]) Push(v T) {
	rec := q.k.AcquireRecord()
	rec.Data.value = v
	q.k.Combine(opPQPush, rec, &q.store)
	q.k.ReleaseRecord(rec)
}

func (q *FCPriorityQueue[T]) do(op int32) (T, bool) {
	rec := q.k.AcquireRecord()
	q.k.Combine(op, rec, &q.store)
	v, ok := rec.Data.value, rec.Data.ok
	q.k.ReleaseRecord(rec)
	return v, ok
}

// Pop removes and returns the greatest value. The second result is false if
// the queue was empty.
func (q *FCPriorityQueue[T]) Pop() (T, bool) {
	return q.do(opPQPop)
}

// Peek returns the greatest value without removing it.
func (q *FCPriorityQueue[T]) Peek() (T, bool) {
	return q.do(opPQPeek)
}

func (q *FCPriorityQueue[T]) Clear() {
	rec := q.k.AcquireRecord()
	q.k.Combine(opPQClear, rec, &q.store)
	q.k.ReleaseRecord(rec)
}

func (q *FCPriorityQueue[T]) Len() int {
	var n int
	q.k.InvokeExclusive(func() {
		n = q.store.len
	})
	return n
}

func (q *FCPriorityQueue[T]) Empty() bool {
	return q.Len() == 0
}

func (q *FCPriorityQueue[T]) Size() int64 {
	return q.store.counter.Value()
}

func (q *FCPriorityQueue[T]) Statistics() fc.Stat {
	return q.k.Statistics()
}

func (s *pqStore[T]) ApplyRecord(rec *fc.Record[pqRequest[T]]) {
	var zero T
	switch rec.Op() {
	case opPQPush:
		s.seq++
		heap.PushOrderable(&s.entries, pqEntry[T]{
			value: rec.Data.value,
			seq:   s.seq,
			cmp:   s.cmp,
		})
		s.len++
		s.counter.Inc()
	case opPQPop:
		e, ok := heap.PopOrderable(&s.entries)
		if !ok {
			rec.Data.value, rec.Data.ok = zero, false
			return
		}
		s.len--
		s.counter.Dec()
		rec.Data.value, rec.Data.ok = e.value, true
	case opPQPeek:
		e, ok := heap.Peek(&s.entries)
		if !ok {
			rec.Data.value, rec.Data.ok = zero, false
			return
		}
		rec.Data.value, rec.Data.ok = e.value, true
	case opPQClear:
		s.entries = heap.Heap[pqEntry[T], heap.Max]{}
		s.len = 0
		s.counter.Reset()
	default:
		panic("unknown priority queue operation")
	}
}
