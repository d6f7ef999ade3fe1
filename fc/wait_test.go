// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package fc

import (
	"testing"
	"time"

	"github.com/petenewcomb/cds-go"
	"github.com/stretchr/testify/require"
)

type fakeList struct {
	first *Header
}

func (l fakeList) FirstPending() *Header {
	return l.first
}

func blockingStrategies() map[string]WaitStrategy {
	return map[string]WaitStrategy{
		"multi-mutex-multi-condvar":   MultiMutexMultiCondvar{Timeout: time.Minute},
		"single-mutex-single-condvar": NewSingleMutexSingleCondvar(time.Minute),
		"single-mutex-multi-condvar":  NewSingleMutexMultiCondvar(time.Minute),
	}
}

func pendingHeader(ws WaitStrategy) *Header {
	h := &Header{aux: ws.NewAux()}
	h.request.Store(ReqOperation)
	h.state.Store(int32(Active))
	return h
}

func TestNotifyBeforeWaitIsNotLost(t *testing.T) {
	for name, ws := range blockingStrategies() {
		t.Run(name, func(t *testing.T) {
			chk := require.New(t)
			h := pendingHeader(ws)
			ws.Prepare(h)
			ws.Notify(h)
			start := time.Now()
			chk.True(ws.Wait(h))
			chk.Less(time.Since(start), 10*time.Second)
		})
	}
}

func TestNotifyWakesBlockedWaiter(t *testing.T) {
	for name, ws := range blockingStrategies() {
		t.Run(name, func(t *testing.T) {
			chk := require.New(t)
			h := pendingHeader(ws)
			ws.Prepare(h)
			woken := make(chan bool)
			go func() {
				woken <- ws.Wait(h)
			}()
			time.Sleep(time.Millisecond)
			ws.Wakeup(fakeList{first: h})
			select {
			case notified := <-woken:
				chk.True(notified)
			case <-time.After(10 * time.Second):
				t.Fatal("waiter was not woken")
			}
		})
	}
}

func TestTimedWaitExpires(t *testing.T) {
	chk := require.New(t)
	for _, ws := range []WaitStrategy{
		MultiMutexMultiCondvar{Timeout: 2 * time.Millisecond},
		NewSingleMutexSingleCondvar(3 * time.Millisecond),
		NewSingleMutexMultiCondvar(2 * time.Millisecond),
	} {
		h := pendingHeader(ws)
		ws.Prepare(h)
		chk.False(ws.Wait(h))
	}
}

func TestAnsweredRecordDoesNotBlock(t *testing.T) {
	chk := require.New(t)
	for _, ws := range blockingStrategies() {
		h := pendingHeader(ws)
		h.request.Store(ReqResponse)
		chk.False(ws.Wait(h))
	}
}

func TestWakeupWithNothingPending(t *testing.T) {
	for _, ws := range blockingStrategies() {
		require.NotPanics(t, func() {
			ws.Wakeup(fakeList{})
		})
	}
}

func TestBackoffWaitRestartsEachEpisode(t *testing.T) {
	chk := require.New(t)
	ws := BackoffWait{Backoff: cds.EmptyBackoff{}}
	h := pendingHeader(ws)
	ws.Prepare(h)
	for range 5 {
		chk.False(ws.Wait(h))
	}
	chk.Equal(5, h.aux.(*backoffAux).attempt)
	ws.Prepare(h)
	chk.Zero(h.aux.(*backoffAux).attempt)
}

func TestAdaptiveChoosesBySize(t *testing.T) {
	chk := require.New(t)
	chk.IsType(BackoffWait{}, Adaptive[int](0))
	chk.IsType(MultiMutexMultiCondvar{}, Adaptive[[64]byte](0))
	chk.IsType(BackoffWait{}, Adaptive[[64]byte](64))
	chk.IsType(MultiMutexMultiCondvar{}, Adaptive[int64](4))
}
