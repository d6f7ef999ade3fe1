// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package fc

import (
	"sync"
	"time"
	"unsafe"

	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/internal/condvar"
)

// PublicationList is the view of a [Kernel] that wait strategies get.
type PublicationList interface {
	FirstPending() *Header
}

// WaitStrategy decides how a goroutine whose request is pending waits for a
// combiner.
//
// The kernel calls Prepare once per waiting episode, then alternates Wait with
// attempts to take the combiner lock until the request is answered. The
// combiner calls Notify after storing a record's response, and Wakeup on a
// publication list after releasing the lock. A Wait that blocks must return
// once Notify has been called for its record, including when Notify came
// first, and must report whether it was woken that way. Wait may also return
// spuriously. Every record's auxiliary block is created by NewAux when the
// record is allocated and is reachable through [Header.Aux].
type WaitStrategy interface {
	NewAux() any
	Prepare(h *Header)
	Wait(h *Header) bool
	Notify(h *Header)
	Wakeup(l PublicationList)
}

// BareWait never suspends. The kernel simply re-checks the record and the
// combiner lock in a tight loop.
type BareWait struct{}

func (BareWait) NewAux() any            { return nil }
func (BareWait) Prepare(*Header)        {}
func (BareWait) Wait(*Header) bool      { return false }
func (BareWait) Notify(*Header)         {}
func (BareWait) Wakeup(PublicationList) {}

type backoffAux struct {
	attempt int
}

// BackoffWait applies a back-off step between checks.
type BackoffWait struct {
	Backoff cds.Backoff
}

func (BackoffWait) NewAux() any {
	return &backoffAux{}
}

func (BackoffWait) Prepare(h *Header) {
	h.aux.(*backoffAux).attempt = 0
}

func (w BackoffWait) Wait(h *Header) bool {
	a := h.aux.(*backoffAux)
	w.Backoff.Spin(a.attempt)
	a.attempt++
	return false
}

func (BackoffWait) Notify(*Header)         {}
func (BackoffWait) Wakeup(PublicationList) {}

// notifyFirst is the Wakeup shared by the blocking strategies: hand the
// combiner role to the first waiter that still needs it.
func notifyFirst(w WaitStrategy, l PublicationList) {
	if h := l.FirstPending(); h != nil {
		w.Notify(h)
	}
}

type recordCond struct {
	mu       sync.Mutex
	cond     condvar.Cond
	notified bool
}

// MultiMutexMultiCondvar gives every record its own mutex and condition
// variable, so notification targets exactly one waiter. A positive Timeout
// bounds each wait.
type MultiMutexMultiCondvar struct {
	Timeout time.Duration
}

func (MultiMutexMultiCondvar) NewAux() any {
	a := &recordCond{}
	a.cond.L = &a.mu
	return a
}

func (MultiMutexMultiCondvar) Prepare(*Header) {}

func (w MultiMutexMultiCondvar) Wait(h *Header) bool {
	a := h.aux.(*recordCond)
	a.mu.Lock()
	if !a.notified && h.Pending() {
		a.cond.Wait(w.Timeout)
	}
	notified := a.notified
	a.notified = false
	a.mu.Unlock()
	return notified
}

func (MultiMutexMultiCondvar) Notify(h *Header) {
	a := h.aux.(*recordCond)
	a.mu.Lock()
	a.notified = true
	a.cond.Signal()
	a.mu.Unlock()
}

func (w MultiMutexMultiCondvar) Wakeup(l PublicationList) {
	notifyFirst(w, l)
}

type notifiedFlag struct {
	notified bool
}

// SingleMutexSingleCondvar shares one mutex and one condition variable among
// all records. Every notification wakes every waiter, and those not addressed
// go back to checking their records. A positive Timeout bounds each wait.
type SingleMutexSingleCondvar struct {
	Timeout time.Duration
	mu      sync.Mutex
	cond    condvar.Cond
	init    sync.Once
}

func NewSingleMutexSingleCondvar(timeout time.Duration) *SingleMutexSingleCondvar {
	return &SingleMutexSingleCondvar{Timeout: timeout}
}

func (w *SingleMutexSingleCondvar) NewAux() any {
	w.init.Do(func() {
		w.cond.L = &w.mu
	})
	return &notifiedFlag{}
}

func (*SingleMutexSingleCondvar) Prepare(*Header) {}

func (w *SingleMutexSingleCondvar) Wait(h *Header) bool {
	a := h.aux.(*notifiedFlag)
	w.mu.Lock()
	if !a.notified && h.Pending() {
		w.cond.Wait(w.Timeout)
	}
	notified := a.notified
	a.notified = false
	w.mu.Unlock()
	return notified
}

func (w *SingleMutexSingleCondvar) Notify(h *Header) {
	a := h.aux.(*notifiedFlag)
	w.mu.Lock()
	a.notified = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *SingleMutexSingleCondvar) Wakeup(l PublicationList) {
	notifyFirst(w, l)
}

type sharedCond struct {
	cond     condvar.Cond
	notified bool
}

// SingleMutexMultiCondvar protects per-record condition variables with one
// shared mutex. A positive Timeout bounds each wait.
type SingleMutexMultiCondvar struct {
	Timeout time.Duration
	mu      sync.Mutex
}

func NewSingleMutexMultiCondvar(timeout time.Duration) *SingleMutexMultiCondvar {
	return &SingleMutexMultiCondvar{Timeout: timeout}
}

func (w *SingleMutexMultiCondvar) NewAux() any {
	a := &sharedCond{}
	a.cond.L = &w.mu
	return a
}

func (*SingleMutexMultiCondvar) Prepare(*Header) {}

func (w *SingleMutexMultiCondvar) Wait(h *Header) bool {
	a := h.aux.(*sharedCond)
	w.mu.Lock()
	if !a.notified && h.Pending() {
		a.cond.Wait(w.Timeout)
	}
	notified := a.notified
	a.notified = false
	w.mu.Unlock()
	return notified
}

func (w *SingleMutexMultiCondvar) Notify(h *Header) {
	a := h.aux.(*sharedCond)
	w.mu.Lock()
	a.notified = true
	a.cond.Signal()
	w.mu.Unlock()
}

func (w *SingleMutexMultiCondvar) Wakeup(l PublicationList) {
	notifyFirst(w, l)
}

// DefaultAdaptiveThreshold is the payload size, in bytes, up to which
// [Adaptive] chooses spinning.
const DefaultAdaptiveThreshold = 4 * unsafe.Sizeof(uintptr(0))

// Adaptive picks a strategy from the size of the record payload T: payloads
// no larger than threshold spin with exponential back-off, larger ones block
// on a per-record condition variable. A zero threshold selects
// [DefaultAdaptiveThreshold].
func Adaptive[T any](threshold uintptr) WaitStrategy {
	if threshold == 0 {
		threshold = DefaultAdaptiveThreshold
	}
	var zero T
	if unsafe.Sizeof(zero) <= threshold {
		return BackoffWait{Backoff: cds.ExponentialBackoff{}}
	}
	return MultiMutexMultiCondvar{}
}
