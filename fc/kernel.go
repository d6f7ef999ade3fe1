// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package fc

import (
	"iter"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
)

// Container applies operations to the sequential structure guarded by a
// [Kernel]. ApplyRecord is only ever called by the current combiner, so it
// needs no synchronization of its own; it dispatches on rec.Op() and leaves
// any result in rec.Data.
type Container[T any] interface {
	ApplyRecord(rec *Record[T])
}

// ContainerFunc adapts a function to [Container].
type ContainerFunc[T any] func(rec *Record[T])

func (f ContainerFunc[T]) ApplyRecord(rec *Record[T]) {
	f(rec)
}

// BatchContainer is a [Container] that can see every pending request at once,
// for instance to eliminate matching pushes and pops.
type BatchContainer[T any] interface {
	Container[T]

	// ProcessBatch is called by the combiner one or more times per cycle.
	// Each record it answers must be passed to [Batch.Done]. Records it leaves
	// pending are applied one by one afterwards.
	ProcessBatch(b Batch[T])
}

// Kernel coordinates flat combining for one shared structure.
type Kernel[T any] struct {
	mu          sync.Mutex // combiner lock
	count       atomic.Uint32
	head        Record[T] // sentinel; never handed out
	freeMu      sync.Mutex
	free        []*Record[T]
	compactMask uint32
	passCount   int
	wait        WaitStrategy
	stat        stat
	logger      *zap.Logger
}

// New validates cfg and returns a kernel with an empty publication list.
func New[T any](cfg Config) (*Kernel[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	k := &Kernel[T]{
		compactMask: uint32(ceil2(cfg.CompactFactor) - 1),
		passCount:   cfg.CombinePassCount,
		wait:        cfg.WaitStrategy,
		logger:      cfg.Logger,
	}
	k.stat.enabled = cfg.EnableStatistics
	return k, nil
}

// recordOf recovers the record embedding h. Every header reachable from a
// Kernel[T] is the first field of a Record[T].
func recordOf[T any](h *Header) *Record[T] {
	return (*Record[T])(unsafe.Pointer(h))
}

func (k *Kernel[T]) CompactFactor() int {
	return int(k.compactMask) + 1
}

func (k *Kernel[T]) CombinePassCount() int {
	return k.passCount
}

// WaitStrategy returns the strategy the kernel was configured with.
func (k *Kernel[T]) WaitStrategy() WaitStrategy {
	return k.wait
}

// AcquireRecord returns an active, empty record for the caller's exclusive
// use until it is passed to ReleaseRecord or RemoveRecord.
func (k *Kernel[T]) AcquireRecord() *Record[T] {
	k.freeMu.Lock()
	var rec *Record[T]
	if n := len(k.free); n > 0 {
		rec = k.free[n-1]
		k.free[n-1] = nil
		k.free = k.free[:n-1]
	}
	k.freeMu.Unlock()

	if rec == nil {
		rec = &Record[T]{}
		rec.aux = k.wait.NewAux()
		k.stat.add(&k.stat.recordsCreated)
		head := &k.head.Header
		next := head.nextAllocated.Load()
		for {
			rec.nextAllocated.Store(next)
			if head.nextAllocated.CompareAndSwap(next, &rec.Header) {
				break
			}
			next = head.nextAllocated.Load()
		}
	}
	k.republish(rec)
	return rec
}

// ReleaseRecord makes rec available to later AcquireRecord calls. The last
// request on rec must have been answered. Releasing twice panics.
func (k *Kernel[T]) ReleaseRecord(rec *Record[T]) {
	if !rec.request.CompareAndSwap(ReqResponse, ReqEmpty) {
		panic("publication record released before its request was answered or released twice")
	}
	var zero T
	rec.Data = zero
	k.freeMu.Lock()
	k.free = append(k.free, rec)
	k.freeMu.Unlock()
}

// RemoveRecord retires rec for good. It is unlinked and dropped at the next
// compaction. rec must not carry a pending request.
func (k *Kernel[T]) RemoveRecord(rec *Record[T]) {
	if rec.Pending() {
		panic("publication record removed while its request is pending")
	}
	rec.request.Store(ReqEmpty)
	rec.state.Store(int32(Removed))
}

// Combine posts op on rec and returns once it has been applied, either by the
// calling goroutine acting as combiner or by another. owner applies the
// operations of every record processed while the caller is combiner.
func (k *Kernel[T]) Combine(op int32, rec *Record[T], owner Container[T]) {
	if op < ReqOperation {
		panic("operation code must be >= ReqOperation")
	}
	rec.request.Store(op)
	k.stat.add(&k.stat.operations)
	if k.tryLock(rec) {
		k.republish(rec)
		k.combining(owner)
		k.unlock()
	}
	k.checkDone(rec)
}

// BatchCombine is Combine for containers that process the whole publication
// list at once.
func (k *Kernel[T]) BatchCombine(op int32, rec *Record[T], owner BatchContainer[T]) {
	if op < ReqOperation {
		panic("operation code must be >= ReqOperation")
	}
	rec.request.Store(op)
	k.stat.add(&k.stat.operations)
	if k.tryLock(rec) {
		k.republish(rec)
		k.batchCombining(owner)
		k.unlock()
	}
	k.checkDone(rec)
}

func (k *Kernel[T]) checkDone(rec *Record[T]) {
	if !rec.IsDone() {
		panic("flat combining request was not answered")
	}
}

// InvokeExclusive calls fn while holding the combiner lock, without
// processing any pending requests, and then wakes a waiter so that pending
// requests are not stranded.
func (k *Kernel[T]) InvokeExclusive(fn func()) {
	k.mu.Lock()
	defer k.unlock()
	k.stat.add(&k.stat.invokeExclusive)
	fn()
}

// OperationDone answers rec. Containers call it, through [Batch.Done], for
// records they process in batch mode.
func (k *Kernel[T]) OperationDone(rec *Record[T]) {
	k.operationDone(&rec.Header)
}

func (k *Kernel[T]) operationDone(h *Header) {
	h.request.Store(ReqResponse)
	k.wait.Notify(h)
}

// FirstPending returns the first active record with an unanswered request, or
// nil. Wait strategies use it to hand the combiner role on.
func (k *Kernel[T]) FirstPending() *Header {
	for h := k.head.next.Load(); h != nil; h = h.next.Load() {
		if h.State() == Active && h.Pending() {
			return h
		}
	}
	return nil
}

func (k *Kernel[T]) unlock() {
	k.mu.Unlock()
	k.wait.Wakeup(k)
}

// tryLock either takes the combiner lock, returning true, or waits until
// rec has been answered, returning false. A waiter only blocks after its
// record is linked and a lock attempt has failed, so the holder's Wakeup is
// guaranteed to see it.
func (k *Kernel[T]) tryLock(rec *Record[T]) bool {
	if k.mu.TryLock() {
		return true
	}
	h := &rec.Header
	k.wait.Prepare(h)
	k.stat.add(&k.stat.passiveWaits)
	for {
		k.republish(rec)
		if k.mu.TryLock() {
			if rec.IsDone() {
				k.unlock()
				k.stat.add(&k.stat.passiveWaitWakeups)
				return false
			}
			k.stat.add(&k.stat.passiveToCombiner)
			return true
		}
		if rec.IsDone() {
			return false
		}
		k.stat.add(&k.stat.passiveWaitIterations)
		if k.wait.Wait(h) {
			k.stat.add(&k.stat.wakeupsByNotifying)
		}
	}
}

func (k *Kernel[T]) publish(rec *Record[T]) {
	rec.age.Store(k.count.Load())
	rec.state.Store(int32(Active))
	head := &k.head.Header
	p := head.next.Load()
	for {
		rec.next.Store(p)
		if head.next.CompareAndSwap(p, &rec.Header) {
			break
		}
		p = head.next.Load()
	}
	k.stat.add(&k.stat.activations)
}

func (k *Kernel[T]) republish(rec *Record[T]) {
	if rec.State() != Active {
		k.publish(rec)
	}
}

// combining requires the combiner lock.
func (k *Kernel[T]) combining(owner Container[T]) {
	curAge := k.count.Add(1)
	var empty, useful int
	for range k.passCount {
		if k.combiningPass(owner, curAge) {
			useful++
		} else if empty++; empty > useful {
			break
		}
	}
	k.stat.add(&k.stat.combinings)
	if curAge&k.compactMask == 0 {
		k.compact(curAge)
	}
}

func (k *Kernel[T]) combiningPass(owner Container[T], curAge uint32) bool {
	done := false
	for h := k.head.next.Load(); h != nil; h = h.next.Load() {
		if h.State() == Active && h.Pending() {
			h.age.Store(curAge)
			owner.ApplyRecord(recordOf[T](h))
			k.operationDone(h)
			done = true
		}
	}
	return done
}

func (k *Kernel[T]) batchCombining(owner BatchContainer[T]) {
	curAge := k.count.Add(1)
	b := Batch[T]{k: k, age: curAge}
	for range k.passCount {
		owner.ProcessBatch(b)
	}
	k.combiningPass(owner, curAge)
	k.stat.add(&k.stat.combinings)
	if curAge&k.compactMask == 0 {
		k.compact(curAge)
	}
}

// compact unlinks active records that have not carried a request for more
// than a compact factor's worth of cycles, marking them inactive, and drops
// removed records. The sentinel head is never unlinked. A record whose owner
// posts a request while it is being deactivated is notified, so that the
// owner wakes up and relinks it.
func (k *Kernel[T]) compact(curAge uint32) {
	deactivated := 0
restart:
	for {
		prev := &k.head.Header
		for p := prev.next.Load(); p != nil; {
			switch p.State() {
			case Active:
				if !p.Pending() && p.age.Load()+k.compactMask < curAge {
					next := p.next.Load()
					if prev.next.CompareAndSwap(p, next) {
						p.state.Store(int32(Inactive))
						if p.Pending() {
							k.wait.Notify(p)
						}
						k.stat.add(&k.stat.deactivations)
						deactivated++
						p = next
						continue
					}
				}
			case Removed:
				next := p.next.Load()
				if prev.next.CompareAndSwap(p, next) {
					p = next
					continue
				}
				// Only the head link is contended, by publishers.
				continue restart
			}
			prev = p
			p = p.next.Load()
		}
		break
	}

	prev := &k.head.Header
	for p := prev.nextAllocated.Load(); p != nil; {
		if p.State() == Removed {
			next := p.nextAllocated.Load()
			if prev.nextAllocated.CompareAndSwap(p, next) {
				k.stat.add(&k.stat.recordsDeleted)
				p = next
				continue
			}
		}
		prev = p
		p = p.nextAllocated.Load()
	}

	k.stat.add(&k.stat.compactions)
	k.logger.Debug("publication list compacted",
		zap.String("component", "fc"),
		zap.Uint32("age", curAge),
		zap.Int("deactivated", deactivated))
}

// Batch gives a [BatchContainer] access to the pending records of the current
// combining cycle.
type Batch[T any] struct {
	k   *Kernel[T]
	age uint32
}

// Pending yields, in publication list order, the records that are active and
// carry an unanswered request. Each call starts a fresh pass.
func (b Batch[T]) Pending() iter.Seq[*Record[T]] {
	return func(yield func(*Record[T]) bool) {
		for h := b.k.head.next.Load(); h != nil; h = h.next.Load() {
			if h.State() == Active && h.Pending() {
				h.age.Store(b.age)
				if !yield(recordOf[T](h)) {
					return
				}
			}
		}
	}
}

// Done answers rec.
func (b Batch[T]) Done(rec *Record[T]) {
	b.k.operationDone(&rec.Header)
}
