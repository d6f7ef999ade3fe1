// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package fc

import "sync/atomic"

type stat struct {
	enabled bool

	operations            atomic.Int64
	combinings            atomic.Int64
	compactions           atomic.Int64
	deactivations         atomic.Int64
	activations           atomic.Int64
	recordsCreated        atomic.Int64
	recordsDeleted        atomic.Int64
	passiveWaits          atomic.Int64
	passiveWaitIterations atomic.Int64
	passiveWaitWakeups    atomic.Int64
	invokeExclusive       atomic.Int64
	wakeupsByNotifying    atomic.Int64
	passiveToCombiner     atomic.Int64
}

func (s *stat) add(c *atomic.Int64) {
	if s.enabled {
		c.Add(1)
	}
}

// Stat is a snapshot of a kernel's counters. All fields are zero unless
// statistics were enabled in the Config.
type Stat struct {
	Operations            int64 // requests posted
	Combinings            int64 // combining cycles
	Compactions           int64
	DeactivatedRecords    int64
	ActivatedRecords      int64 // records linked into the publication list
	RecordsCreated        int64
	RecordsDeleted        int64
	PassiveWaits          int64 // requests that did not find the lock free
	PassiveWaitIterations int64
	PassiveWaitWakeups    int64 // waiters that took the lock only to find their answer
	InvokeExclusive       int64
	WakeupsByNotifying    int64
	PassiveToCombiner     int64
}

// CombiningFactor is the mean number of operations per combining cycle.
func (s Stat) CombiningFactor() float64 {
	if s.Combinings == 0 {
		return 0
	}
	return float64(s.Operations) / float64(s.Combinings)
}

// Statistics returns a snapshot of the kernel's counters.
func (k *Kernel[T]) Statistics() Stat {
	s := &k.stat
	return Stat{
		Operations:            s.operations.Load(),
		Combinings:            s.combinings.Load(),
		Compactions:           s.compactions.Load(),
		DeactivatedRecords:    s.deactivations.Load(),
		ActivatedRecords:      s.activations.Load(),
		RecordsCreated:        s.recordsCreated.Load(),
		RecordsDeleted:        s.recordsDeleted.Load(),
		PassiveWaits:          s.passiveWaits.Load(),
		PassiveWaitIterations: s.passiveWaitIterations.Load(),
		PassiveWaitWakeups:    s.passiveWaitWakeups.Load(),
		InvokeExclusive:       s.invokeExclusive.Load(),
		WakeupsByNotifying:    s.wakeupsByNotifying.Load(),
		PassiveToCombiner:     s.passiveToCombiner.Load(),
	}
}
