// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp

import "sync/atomic"

type stat struct {
	enabled bool

	guardCount     atomic.Int64
	freeGuardCount atomic.Int64
	nodeBlocks     atomic.Int64
	retired        atomic.Int64
	scans          atomic.Int64
	scansSkipped   atomic.Int64
	freed          atomic.Int64
	rebuffered     atomic.Int64
	doublings      atomic.Int64
	lastSetSize    atomic.Int64
}

func (s *stat) add(c *atomic.Int64, n int64) {
	if s.enabled {
		c.Add(n)
	}
}

// Stat is a snapshot of a GC's counters. Only the fields describing current
// state, from LiberateThreshold through LastLiberateSetSize, are maintained
// when statistics are disabled in the Config.
type Stat struct {
	LiberateThreshold int64
	Epoch             uint64
	AttachedThreads   int64
	Buffered          int64

	// LastLiberateSetSize is the bucket count of the most recent scan that
	// found work.
	LastLiberateSetSize int64

	GuardCount     int64
	FreeGuardCount int64
	NodeBlocks     int64

	Retired          int64
	Scans            int64
	ScansSkipped     int64
	Freed            int64
	Rebuffered       int64
	ThresholdDoubled int64
}
