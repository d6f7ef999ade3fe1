// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package cds

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ItemCounter tracks the number of items in a container. Containers call Inc
// and Dec as items come and go; Value reports the count, which under
// concurrent modification is only approximate.
type ItemCounter interface {
	Inc()
	Dec()
	Reset()
	Value() int64
}

// EmptyCounter counts nothing. Value always reports zero.
type EmptyCounter struct{}

func (EmptyCounter) Inc()         {}
func (EmptyCounter) Dec()         {}
func (EmptyCounter) Reset()       {}
func (EmptyCounter) Value() int64 { return 0 }

// AtomicCounter keeps the count in a single atomic word.
type AtomicCounter struct {
	v atomic.Int64
}

func (c *AtomicCounter) Inc()         { c.v.Add(1) }
func (c *AtomicCounter) Dec()         { c.v.Add(-1) }
func (c *AtomicCounter) Reset()       { c.v.Store(0) }
func (c *AtomicCounter) Value() int64 { return c.v.Load() }

// StripedCounter spreads updates across cache-line-padded stripes, which
// scales better than [AtomicCounter] under heavy write contention at the cost
// of a more expensive Value.
type StripedCounter struct {
	c *xsync.Counter
}

func NewStripedCounter() *StripedCounter {
	return &StripedCounter{c: xsync.NewCounter()}
}

func (c *StripedCounter) Inc()         { c.c.Inc() }
func (c *StripedCounter) Dec()         { c.c.Dec() }
func (c *StripedCounter) Reset()       { c.c.Reset() }
func (c *StripedCounter) Value() int64 { return c.c.Value() }
