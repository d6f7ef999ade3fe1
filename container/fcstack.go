// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package container

import (
	"sync/atomic"

	"github.com/gammazero/deque"
	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/fc"
)

const (
	opPush = fc.ReqOperation + iota
	opPop
	opClear
)

type stackRequest[T any] struct {
	value T
	ok    bool
}

// FCStack is a LIFO stack serialized by flat combining.
type FCStack[T any] struct {
	k           *fc.Kernel[stackRequest[T]]
	store       stackStore[T]
	elimination bool
}

// stackStore is only touched by the combiner.
type stackStore[T any] struct {
	items      deque.Deque[T]
	counter    cds.ItemCounter
	pushes     []*fc.Record[stackRequest[T]]
	eliminated atomic.Int64
}

func NewFCStack[T any](cfg FCConfig) (*FCStack[T], error) {
	k, err := fc.New[stackRequest[T]](cfg.Kernel)
	if err != nil {
		return nil, err
	}
	s := &FCStack[T]{
		k:           k,
		elimination: cfg.Elimination,
	}
	s.store.counter = itemCounterOrDefault(cfg.ItemCounter)
	return s, nil
}

func (s *FCStack[T]) combine(op int32, rec *fc.Record[stackRequest[T]]) {
	if s.elimination {
		s.k.BatchCombine(op, rec, &s.store)
	} else {
		s.k.Combine(op, rec, &s.store)
	}
}

func (s *FCStack[T]) Push(v T) {
	rec := s.k.AcquireRecord()
	rec.Data.value = v
	s.combine(opPush, rec)
	s.k.ReleaseRecord(rec)
}

// Pop removes and returns the most recently pushed value. The second result
// is false if the stack was empty.
func (s *FCStack[T]) Pop() (T, bool) {
	rec := s.k.AcquireRecord()
	s.combine(opPop, rec)
	v, ok := rec.Data.value, rec.Data.ok
	s.k.ReleaseRecord(rec)
	return v, ok
}

func (s *FCStack[T]) Clear() {
	rec := s.k.AcquireRecord()
	s.combine(opClear, rec)
	s.k.ReleaseRecord(rec)
}

// Len returns the exact number of stored values.
func (s *FCStack[T]) Len() int {
	var n int
	s.k.InvokeExclusive(func() {
		n = s.store.items.Len()
	})
	return n
}

func (s *FCStack[T]) Empty() bool {
	return s.Len() == 0
}

// Size returns the item counter's value, which is approximate while
// operations are in flight.
func (s *FCStack[T]) Size() int64 {
	return s.store.counter.Value()
}

// Eliminated returns the number of push and pop pairs answered against each
// other without touching the store.
func (s *FCStack[T]) Eliminated() int64 {
	return s.store.eliminated.Load()
}

func (s *FCStack[T]) Statistics() fc.Stat {
	return s.k.Statistics()
}

func (s *stackStore[T]) ApplyRecord(rec *fc.Record[stackRequest[T]]) {
	switch rec.Op() {
	case opPush:
		s.items.PushBack(rec.Data.value)
		s.counter.Inc()
	case opPop:
		if s.items.Len() == 0 {
			var zero T
			rec.Data.value = zero
			rec.Data.ok = false
			return
		}
		rec.Data.value = s.items.PopBack()
		rec.Data.ok = true
		s.counter.Dec()
	case opClear:
		s.items.Clear()
		s.counter.Reset()
	default:
		panic("unknown stack operation")
	}
}

// ProcessBatch pairs each pending pop with an earlier pending push in the
// same pass.
func (s *stackStore[T]) ProcessBatch(b fc.Batch[stackRequest[T]]) {
	pushes := s.pushes[:0]
	for rec := range b.Pending() {
		switch rec.Op() {
		case opPush:
			pushes = append(pushes, rec)
		case opPop:
			n := len(pushes)
			if n == 0 {
				continue
			}
			push := pushes[n-1]
			pushes = pushes[:n-1]
			rec.Data.value = push.Data.value
			rec.Data.ok = true
			b.Done(push)
			b.Done(rec)
			s.eliminated.Add(1)
		}
	}
	clear(pushes[:cap(pushes)])
	s.pushes = pushes[:0]
}
