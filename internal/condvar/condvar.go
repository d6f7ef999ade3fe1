// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package condvar provides a condition variable whose Wait may be bounded by a
// timeout, which [sync.Cond] does not support.
package condvar

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/petenewcomb/cds-go/internal/timerp"
)

// Cond must not be copied after first use. Each Broadcast closes the channel
// that current waiters are blocked on and installs a fresh one for later
// waiters. Like [sync.Cond], wakeups carry no state: callers re-check their
// condition after Wait returns.
type Cond struct {
	L  sync.Locker
	ch atomic.Pointer[chan struct{}]
}

func New(l sync.Locker) *Cond {
	return &Cond{L: l}
}

func (c *Cond) channel() chan struct{} {
	p := c.ch.Load()
	if p == nil {
		ch := make(chan struct{})
		if c.ch.CompareAndSwap(nil, &ch) {
			return ch
		}
		p = c.ch.Load()
	}
	return *p
}

// Wait atomically unlocks c.L and suspends the calling goroutine until a
// Broadcast or Signal, or until timeout elapses if it is positive. c.L is
// locked again before Wait returns. The result is false only on timeout.
func (c *Cond) Wait(timeout time.Duration) bool {
	ch := c.channel()
	c.L.Unlock()
	woken := timerp.Wait(ch, timeout)
	c.L.Lock()
	return woken
}

// Broadcast wakes all goroutines waiting on c.
func (c *Cond) Broadcast() {
	ch := make(chan struct{})
	if old := c.ch.Swap(&ch); old != nil {
		close(*old)
	}
}

// Signal wakes the goroutines waiting on c. There is at most one waiter per
// Cond in the intended use, so it is the same as Broadcast.
func (c *Cond) Signal() {
	c.Broadcast()
}
