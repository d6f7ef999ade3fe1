// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package cds

import (
	"runtime"
	"time"

	"github.com/petenewcomb/cds-go/internal/timerp"
)

// Backoff is applied by a goroutine that cannot make progress because of a
// conflicting concurrent operation. Attempt is the number of consecutive
// back-off steps taken so far by the caller, starting at zero, and lets
// stateless policies escalate.
type Backoff interface {
	Spin(attempt int)
}

// EmptyBackoff returns immediately.
type EmptyBackoff struct{}

func (EmptyBackoff) Spin(int) {}

// YieldBackoff yields the processor once per step.
type YieldBackoff struct{}

func (YieldBackoff) Spin(int) {
	runtime.Gosched()
}

const defaultExponentialShift = 10

// ExponentialBackoff yields 1<<attempt times per step, with the exponent capped
// at MaxShift. A zero MaxShift selects a cap of 10.
type ExponentialBackoff struct {
	MaxShift int
}

func (b ExponentialBackoff) Spin(attempt int) {
	limit := b.MaxShift
	if limit <= 0 {
		limit = defaultExponentialShift
	}
	shift := min(attempt, limit)
	for range 1 << shift {
		runtime.Gosched()
	}
}

// DelayBackoff sleeps for a fixed duration per step.
type DelayBackoff struct {
	Delay time.Duration
}

func (b DelayBackoff) Spin(int) {
	if b.Delay <= 0 {
		runtime.Gosched()
		return
	}
	timerp.Sleep(b.Delay)
}
