// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package fc_test

import (
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/fc"
	"github.com/stretchr/testify/require"
)

const (
	opPush = fc.ReqOperation + iota
	opPop
	opEcho
)

type request struct {
	value  int
	result int
	ok     bool
}

// testStack is a sequential stack that counts how many goroutines are inside
// ApplyRecord at once.
type testStack struct {
	items      []int
	inside     atomic.Int32
	violations atomic.Int32
	applied    int
}

func (s *testStack) ApplyRecord(rec *fc.Record[request]) {
	if s.inside.Add(1) > 1 {
		s.violations.Add(1)
	}
	defer s.inside.Add(-1)
	s.applied++
	switch rec.Op() {
	case opPush:
		s.items = append(s.items, rec.Data.value)
	case opPop:
		if n := len(s.items); n > 0 {
			rec.Data.result = s.items[n-1]
			rec.Data.ok = true
			s.items = s.items[:n-1]
		} else {
			rec.Data.ok = false
		}
	case opEcho:
		rec.Data.result = rec.Data.value * 3
		rec.Data.ok = true
	}
}

func waitStrategies() map[string]func() fc.WaitStrategy {
	return map[string]func() fc.WaitStrategy{
		"bare":          func() fc.WaitStrategy { return fc.BareWait{} },
		"backoff-empty": func() fc.WaitStrategy { return fc.BackoffWait{Backoff: cds.EmptyBackoff{}} },
		"backoff-yield": func() fc.WaitStrategy { return fc.BackoffWait{Backoff: cds.YieldBackoff{}} },
		"backoff-exp":   func() fc.WaitStrategy { return fc.BackoffWait{Backoff: cds.ExponentialBackoff{MaxShift: 4}} },
		"backoff-delay": func() fc.WaitStrategy { return fc.BackoffWait{Backoff: cds.DelayBackoff{Delay: 20 * time.Microsecond}} },
		"multi-mutex-multi-condvar": func() fc.WaitStrategy {
			return fc.MultiMutexMultiCondvar{}
		},
		"multi-mutex-multi-condvar-timed": func() fc.WaitStrategy {
			return fc.MultiMutexMultiCondvar{Timeout: 2 * time.Millisecond}
		},
		"single-mutex-single-condvar": func() fc.WaitStrategy {
			return fc.NewSingleMutexSingleCondvar(0)
		},
		"single-mutex-single-condvar-timed": func() fc.WaitStrategy {
			return fc.NewSingleMutexSingleCondvar(3 * time.Millisecond)
		},
		"single-mutex-multi-condvar": func() fc.WaitStrategy {
			return fc.NewSingleMutexMultiCondvar(0)
		},
		"single-mutex-multi-condvar-timed": func() fc.WaitStrategy {
			return fc.NewSingleMutexMultiCondvar(2 * time.Millisecond)
		},
		"adaptive-small": func() fc.WaitStrategy { return fc.Adaptive[request](0) },
		"adaptive-large": func() fc.WaitStrategy { return fc.Adaptive[[256]byte](0) },
	}
}

func newKernel(t *testing.T, ws fc.WaitStrategy) *fc.Kernel[request] {
	cfg := fc.DefaultConfig()
	cfg.WaitStrategy = ws
	cfg.EnableStatistics = true
	k, err := fc.New[request](cfg)
	require.NoError(t, err)
	return k
}

func TestConfigValidation(t *testing.T) {
	chk := require.New(t)
	for _, cfg := range []fc.Config{
		{CompactFactor: -1},
		{CombinePassCount: -1},
		{MemoryModel: cds.MemoryModel(7)},
	} {
		_, err := fc.New[int](cfg)
		chk.ErrorIs(err, fc.ErrInvalidConfig)
	}
	_, err := fc.New[int](fc.Config{MemoryModel: cds.MemoryModel(7)})
	chk.ErrorIs(err, cds.ErrInvalidMemoryModel)

	k, err := fc.New[int](fc.Config{CompactFactor: 1000})
	chk.NoError(err)
	chk.Equal(1024, k.CompactFactor())
	chk.Equal(fc.DefaultCombinePassCount, k.CombinePassCount())
	chk.NotNil(k.WaitStrategy())
}

func TestEightConcurrentPushes(t *testing.T) {
	for name, newWS := range waitStrategies() {
		t.Run(name, func(t *testing.T) {
			chk := require.New(t)
			k := newKernel(t, newWS())
			s := &testStack{}

			var wg sync.WaitGroup
			startCh := make(chan struct{})
			for i := range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					rec := k.AcquireRecord()
					rec.Data.value = i
					<-startCh
					k.Combine(opPush, rec, s)
					k.ReleaseRecord(rec)
				}()
			}
			close(startCh)
			wg.Wait()

			var items []int
			k.InvokeExclusive(func() {
				items = slices.Clone(s.items)
			})
			slices.Sort(items)
			chk.Equal([]int{0, 1, 2, 3, 4, 5, 6, 7}, items)
			chk.Zero(s.violations.Load())
			chk.EqualValues(8, k.Statistics().Operations)
		})
	}
}

// TestConcurrentCombining drives every wait strategy with a mix of pushes,
// pops and echoes, checking mutual exclusion of the combiner, that every
// result is visible to its requester, and that no value is lost or popped
// twice.
func TestConcurrentCombining(t *testing.T) {
	goroutines, opsPerGoroutine := 16, 2000
	if testing.Short() {
		opsPerGoroutine = 200
	}

	for name, newWS := range waitStrategies() {
		t.Run(name, func(t *testing.T) {
			chk := require.New(t)
			k := newKernel(t, newWS())
			s := &testStack{}

			popped := make([][]int, goroutines)
			var badEchoes atomic.Int32
			var wg sync.WaitGroup
			startCh := make(chan struct{})
			for g := range goroutines {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-startCh
					for i := range opsPerGoroutine {
						rec := k.AcquireRecord()
						switch i % 3 {
						case 0:
							rec.Data.value = g*opsPerGoroutine + i
							k.Combine(opPush, rec, s)
						case 1:
							k.Combine(opPop, rec, s)
							if rec.Data.ok {
								popped[g] = append(popped[g], rec.Data.result)
							}
						case 2:
							rec.Data.value = i
							k.Combine(opEcho, rec, s)
							if !rec.Data.ok || rec.Data.result != 3*i {
								badEchoes.Add(1)
							}
						}
						k.ReleaseRecord(rec)
					}
				}()
			}
			close(startCh)
			wg.Wait()

			chk.Zero(s.violations.Load())
			chk.Zero(badEchoes.Load())

			seen := make(map[int]bool)
			for _, vs := range popped {
				for _, v := range vs {
					chk.False(seen[v], "value %d popped twice", v)
					seen[v] = true
				}
			}
			k.InvokeExclusive(func() {
				for _, v := range s.items {
					chk.False(seen[v], "value %d both popped and present", v)
					seen[v] = true
				}
			})
			pushes := 0
			for g := range goroutines {
				for i := 0; i < opsPerGoroutine; i += 3 {
					chk.True(seen[g*opsPerGoroutine+i])
					pushes++
				}
			}
			chk.Len(seen, pushes)

			st := k.Statistics()
			chk.EqualValues(goroutines*opsPerGoroutine, st.Operations)
			chk.Equal(goroutines*opsPerGoroutine, s.applied)
			chk.GreaterOrEqual(st.CombiningFactor(), 1.0)
			t.Logf("%+v factor %.2f", st, st.CombiningFactor())
		})
	}
}

// TestCompactionUnderContention compacts on every combining cycle while
// goroutines keep records across several requests, so records are unlinked
// while their owners post to them and must be relinked by the waiter. Some
// records are removed instead of released.
func TestCompactionUnderContention(t *testing.T) {
	goroutines, opsPerGoroutine := 32, 3000
	if testing.Short() {
		goroutines, opsPerGoroutine = 8, 300
	}

	for name, newWS := range waitStrategies() {
		t.Run(name, func(t *testing.T) {
			chk := require.New(t)
			k, err := fc.New[request](fc.Config{
				CompactFactor:    1,
				CombinePassCount: 1,
				WaitStrategy:     newWS(),
				EnableStatistics: true,
			})
			chk.NoError(err)
			s := &testStack{}

			var badEchoes, removed atomic.Int32
			var wg sync.WaitGroup
			startCh := make(chan struct{})
			for g := range goroutines {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-startCh
					rec := k.AcquireRecord()
					for i := range opsPerGoroutine {
						rec.Data.value = g*opsPerGoroutine + i
						k.Combine(opEcho, rec, s)
						if !rec.Data.ok || rec.Data.result != 3*(g*opsPerGoroutine+i) {
							badEchoes.Add(1)
						}
						rec.Data.ok = false
						if i%5 == 4 {
							if (g+i)%7 == 0 {
								k.RemoveRecord(rec)
								removed.Add(1)
							} else {
								k.ReleaseRecord(rec)
							}
							rec = k.AcquireRecord()
						}
					}
					k.ReleaseRecord(rec)
				}()
			}

			doneCh := make(chan struct{})
			go func() {
				wg.Wait()
				close(doneCh)
			}()
			close(startCh)
			select {
			case <-doneCh:
			case <-time.After(5 * time.Minute):
				chk.FailNow("combining stalled")
			}

			chk.Zero(s.violations.Load())
			chk.Zero(badEchoes.Load())
			chk.Equal(goroutines*opsPerGoroutine, s.applied)

			st := k.Statistics()
			chk.EqualValues(goroutines*opsPerGoroutine, st.Operations)
			chk.Positive(removed.Load())
			chk.Positive(st.Compactions)
			t.Logf("%+v factor %.2f", st, st.CombiningFactor())
		})
	}
}

func TestInvokeExclusiveExcludesCombiner(t *testing.T) {
	chk := require.New(t)
	k := newKernel(t, fc.MultiMutexMultiCondvar{})
	s := &testStack{}

	var wg sync.WaitGroup
	var stop atomic.Bool
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; !stop.Load(); i++ {
				rec := k.AcquireRecord()
				rec.Data.value = i
				k.Combine(opPush, rec, s)
				k.ReleaseRecord(rec)
			}
		}()
	}
	for range 200 {
		k.InvokeExclusive(func() {
			if s.inside.Add(1) > 1 {
				s.violations.Add(1)
			}
			s.items = s.items[:0]
			s.inside.Add(-1)
		})
	}
	stop.Store(true)
	wg.Wait()
	chk.Zero(s.violations.Load())
	chk.EqualValues(200, k.Statistics().InvokeExclusive)
}

func TestSequentialStatistics(t *testing.T) {
	chk := require.New(t)
	k := newKernel(t, fc.BareWait{})
	s := &testStack{}

	rec := k.AcquireRecord()
	for i := range 10 {
		rec.Data.value = i
		k.Combine(opEcho, rec, s)
		chk.True(rec.IsDone())
		chk.Equal(3*i, rec.Data.result)
	}
	k.ReleaseRecord(rec)

	st := k.Statistics()
	chk.EqualValues(10, st.Operations)
	chk.EqualValues(10, st.Combinings)
	chk.EqualValues(1, st.RecordsCreated)
	chk.EqualValues(1, st.ActivatedRecords)
	chk.Zero(st.PassiveWaits)
	chk.Equal(1.0, st.CombiningFactor())

	again := k.AcquireRecord()
	chk.Same(rec, again)
	chk.Equal(fc.ReqEmpty, again.Op())
	chk.Zero(again.Data)
	chk.Equal(fc.Active, again.State())
}

func TestRecordMisusePanics(t *testing.T) {
	chk := require.New(t)
	k := newKernel(t, fc.BareWait{})
	s := &testStack{}

	rec := k.AcquireRecord()
	chk.PanicsWithValue("publication record released before its request was answered or released twice", func() {
		k.ReleaseRecord(rec)
	})
	chk.PanicsWithValue("operation code must be >= ReqOperation", func() {
		k.Combine(fc.ReqResponse, rec, s)
	})
	k.Combine(opPush, rec, s)
	k.ReleaseRecord(rec)
	chk.PanicsWithValue("publication record released before its request was answered or released twice", func() {
		k.ReleaseRecord(rec)
	})
}

// batchStack answers matching push/pop pairs directly in ProcessBatch.
type batchStack struct {
	testStack
	eliminated int
}

func (s *batchStack) ProcessBatch(b fc.Batch[request]) {
	var push *fc.Record[request]
	for rec := range b.Pending() {
		switch rec.Op() {
		case opPush:
			if push == nil {
				push = rec
			}
		case opPop:
			if push != nil {
				rec.Data.result = push.Data.value
				rec.Data.ok = true
				b.Done(push)
				b.Done(rec)
				push = nil
				s.eliminated++
			}
		}
	}
}

func TestBatchCombineEliminates(t *testing.T) {
	chk := require.New(t)
	k := newKernel(t, fc.BackoffWait{Backoff: cds.YieldBackoff{}})
	s := &batchStack{}

	goroutines, pairs := 8, 500
	if testing.Short() {
		pairs = 50
	}
	var wg sync.WaitGroup
	var pushed, poppedOK atomic.Int64
	for g := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range pairs {
				rec := k.AcquireRecord()
				if (g+i)%2 == 0 {
					rec.Data.value = g*pairs + i
					k.BatchCombine(opPush, rec, s)
					pushed.Add(1)
				} else {
					k.BatchCombine(opPop, rec, s)
					if rec.Data.ok {
						poppedOK.Add(1)
					}
				}
				k.ReleaseRecord(rec)
			}
		}()
	}
	wg.Wait()

	var remaining int
	k.InvokeExclusive(func() {
		remaining = len(s.items)
	})
	chk.Zero(s.violations.Load())
	chk.EqualValues(pushed.Load()-poppedOK.Load(), remaining)
	t.Logf("eliminated %d pairs", s.eliminated)
}
