// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package timerp pools timers for short bounded waits.
package timerp

import (
	"sync"
	"time"
)

// This implementation relies on [Go 1.23+ behavior]: a stopped or reset timer
// never delivers a stale value, so pooled timers need no draining.
//
// [Go 1.23+ behavior]: https://pkg.go.dev/time#NewTimer

var pool = sync.Pool{
	New: func() any {
		t := time.NewTimer(time.Hour)
		t.Stop()
		return t
	},
}

func Get() *time.Timer {
	return pool.Get().(*time.Timer)
}

func Put(t *time.Timer) {
	t.Stop()
	pool.Put(t)
}

// Sleep blocks for d using a pooled timer.
func Sleep(d time.Duration) {
	t := Get()
	t.Reset(d)
	<-t.C
	Put(t)
}

// Wait blocks until ch is closed or d elapses, reporting whether ch was
// closed. A non-positive d waits without bound.
func Wait(ch <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		<-ch
		return true
	}
	t := Get()
	defer Put(t)
	t.Reset(d)
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
