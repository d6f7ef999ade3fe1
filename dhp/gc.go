// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/petenewcomb/cds-go/internal/refcount"
	"go.uber.org/zap"
)

// GC is a Dynamic Hazard Pointer garbage collector. It is constructed with
// [New], used through attached [Thread]s, and torn down with [Close]. All
// methods are safe for concurrent use.
type GC struct {
	threshold         atomic.Int64
	initialGuardCount int
	guards            guardPool
	nodes             *nodePool
	buffer            retiredBuffer
	scanMu            sync.Mutex
	attached          refcount.Counter
	closed            atomic.Bool
	stat              stat
	logger            *zap.Logger
}

// New validates cfg and returns a ready collector.
func New(cfg Config) (*GC, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	gc := &GC{
		initialGuardCount: cfg.InitialThreadGuardCount,
		logger:            cfg.Logger,
	}
	gc.stat.enabled = cfg.EnableStatistics
	gc.threshold.Store(int64(cfg.LiberateThreshold))
	gc.guards.stat = &gc.stat
	gc.guards.logger = cfg.Logger
	gc.nodes = newNodePool(cfg.EpochCount, &gc.stat)
	gc.attached.Name = "dhp thread"
	return gc, nil
}

// Close performs a final synchronous scan. Pointers that are still guarded
// remain buffered. Close returns [ErrThreadsAttached] if any Thread has not
// been detached; the collector is closed regardless, and further Attach calls
// panic.
func (gc *GC) Close() error {
	if !gc.closed.CompareAndSwap(false, true) {
		return nil
	}
	gc.ForceDispose()
	gc.logger.Debug("garbage collector closed",
		zap.String("component", "dhp"),
		zap.Int64("still_buffered", gc.buffer.size()),
		zap.Int64("attached", gc.attached.Load()))
	if n := gc.attached.Load(); n != 0 {
		return fmt.Errorf("%w: %d", ErrThreadsAttached, n)
	}
	return nil
}

// LiberateThreshold returns the current scan threshold. It starts at the
// configured value and only grows.
func (gc *GC) LiberateThreshold() int {
	return int(gc.threshold.Load())
}

// Epoch returns the retirement epoch, which advances once per scan that finds
// work, before any pointer from that scan is disposed of.
func (gc *GC) Epoch() uint64 {
	return gc.nodes.epoch.Load()
}

// Scan attempts one reclamation pass. If another goroutine is already
// scanning, Scan returns immediately and the pending retirements are left for
// that or a later pass.
func (gc *GC) Scan() {
	if !gc.scanMu.TryLock() {
		gc.stat.add(&gc.stat.scansSkipped, 1)
		return
	}
	defer gc.scanMu.Unlock()
	gc.scan()
}

// ForceDispose waits for any scan in progress and then performs a full pass
// of its own. It must not be called from a disposer.
func (gc *GC) ForceDispose() {
	gc.scanMu.Lock()
	defer gc.scanMu.Unlock()
	gc.scan()
}

func (gc *GC) retire(n *retiredNode) {
	gc.stat.add(&gc.stat.retired, 1)
	if gc.buffer.push(n) >= gc.threshold.Load() {
		gc.Scan()
	}
}

// scan requires scanMu.
func (gc *GC) scan() {
	list, _ := gc.buffer.privatize()
	if list == nil {
		return
	}
	gc.stat.add(&gc.stat.scans, 1)

	threshold := gc.threshold.Load()
	var count int64
	for n := list; n != nil; n = n.next {
		count++
	}
	bucketCount := ceil2(int(max(count, threshold)))
	gc.stat.lastSetSize.Store(int64(bucketCount))

	set := newLiberateSet(bucketCount)
	for n := list; n != nil; {
		next := n.next
		set.insert(n)
		n = next
	}

	// Move every guarded address, with all of its same-address nodes, to
	// the busy list.
	var busyFirst, busyLast *retiredNode
	var busyCount int64
	gc.guards.each(func(p unsafe.Pointer) {
		e := set.erase(p)
		if e == nil {
			return
		}
		for n := e; n != nil; n = n.nextFree {
			if busyLast == nil {
				busyFirst = n
			} else {
				busyLast.next = n
			}
			busyLast = n
			busyCount++
		}
	})
	if busyLast != nil {
		busyLast.next = nil
	}

	gc.nodes.incEpoch()
	head, tail, freed := set.freeAll()
	if head != nil {
		gc.nodes.freeRange(head, tail)
	}

	if busyFirst != nil {
		gc.buffer.pushList(busyFirst, busyLast, busyCount)
	}

	gc.stat.add(&gc.stat.freed, freed)
	gc.stat.add(&gc.stat.rebuffered, busyCount)

	if freed == 0 {
		doubled := min(threshold*2, maxLiberateThreshold)
		if doubled != threshold && gc.threshold.CompareAndSwap(threshold, doubled) {
			gc.stat.add(&gc.stat.doublings, 1)
			gc.logger.Debug("liberate threshold doubled",
				zap.String("component", "dhp"),
				zap.Int64("threshold", doubled),
				zap.Int64("busy", busyCount))
		}
	}
}

// Statistics returns a snapshot of the collector's counters.
func (gc *GC) Statistics() Stat {
	s := &gc.stat
	return Stat{
		LiberateThreshold:   gc.threshold.Load(),
		Epoch:               gc.nodes.epoch.Load(),
		AttachedThreads:     gc.attached.Load(),
		Buffered:            gc.buffer.size(),
		LastLiberateSetSize: s.lastSetSize.Load(),
		GuardCount:          s.guardCount.Load(),
		FreeGuardCount:      s.freeGuardCount.Load(),
		NodeBlocks:          s.nodeBlocks.Load(),
		Retired:             s.retired.Load(),
		Scans:               s.scans.Load(),
		ScansSkipped:        s.scansSkipped.Load(),
		Freed:               s.freed.Load(),
		Rebuffered:          s.rebuffered.Load(),
		ThresholdDoubled:    s.doublings.Load(),
	}
}
