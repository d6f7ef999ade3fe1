// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/dhp"
	"github.com/stretchr/testify/require"
)

type object struct {
	id       int
	disposed atomic.Int32
}

func disposeObject(o *object) {
	o.disposed.Add(1)
}

func newGC(t *testing.T, threshold int) *dhp.GC {
	cfg := dhp.DefaultConfig()
	cfg.LiberateThreshold = threshold
	cfg.EnableStatistics = true
	gc, err := dhp.New(cfg)
	require.NoError(t, err)
	return gc
}

func TestConfigValidation(t *testing.T) {
	chk := require.New(t)

	for _, cfg := range []dhp.Config{
		{LiberateThreshold: -1},
		{InitialThreadGuardCount: -1},
		{EpochCount: -1},
		{LiberateThreshold: 1 << 30},
		{MemoryModel: cds.MemoryModel(7)},
	} {
		_, err := dhp.New(cfg)
		chk.ErrorIs(err, dhp.ErrInvalidConfig)
	}
	_, err := dhp.New(dhp.Config{MemoryModel: cds.MemoryModel(7)})
	chk.ErrorIs(err, cds.ErrInvalidMemoryModel)

	gc, err := dhp.New(dhp.Config{MemoryModel: cds.SequentiallyConsistent})
	chk.NoError(err)
	chk.Equal(dhp.DefaultLiberateThreshold, gc.LiberateThreshold())
	chk.NoError(gc.Close())
}

func TestGuardClearIsIdempotent(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 16)
	th := gc.Attach()

	g := th.AllocGuard()
	chk.True(g.IsValid())
	chk.Nil(g.Get())

	o := &object{}
	g.Set(unsafe.Pointer(o))
	chk.Equal(unsafe.Pointer(o), g.Get())
	g.Clear()
	chk.Nil(g.Get())
	g.Clear()
	chk.Nil(g.Get())

	// Reuse after repeated set/clear cycles must not disturb the global list.
	for range 100 {
		g.Set(unsafe.Pointer(o))
		g.Clear()
	}
	th.FreeGuard(g)
	before := gc.Statistics().GuardCount
	g2 := th.AllocGuard()
	chk.Equal(before, gc.Statistics().GuardCount)
	th.FreeGuard(g2)

	th.Detach()
	chk.NoError(gc.Close())
}

func TestRetireGuardedPointerIsRebuffered(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 64)
	a := gc.Attach()
	b := gc.Attach()

	var slot atomic.Pointer[object]
	p := &object{id: 1}
	slot.Store(p)

	g := b.AllocGuard()
	chk.Same(p, dhp.Protect(g, &slot))

	slot.Store(nil)
	dhp.Retire(a, p, disposeObject)

	gc.Scan()
	chk.Zero(p.disposed.Load())
	chk.EqualValues(1, gc.Statistics().Buffered)

	g.Clear()
	gc.Scan()
	chk.EqualValues(1, p.disposed.Load())
	chk.Zero(gc.Statistics().Buffered)

	gc.Scan()
	chk.EqualValues(1, p.disposed.Load())

	b.FreeGuard(g)
	a.Detach()
	b.Detach()
	chk.NoError(gc.Close())
}

func TestUnproductiveScanDoublesThreshold(t *testing.T) {
	chk := require.New(t)
	const threshold = 16
	gc := newGC(t, threshold)
	th := gc.Attach()

	objs := make([]*object, 4)
	guards := th.AllocGuards(len(objs))
	for i := range objs {
		objs[i] = &object{id: i}
		guards[i].Set(unsafe.Pointer(objs[i]))
		dhp.Retire(th, objs[i], disposeObject)
	}

	gc.ForceDispose()
	st := gc.Statistics()
	chk.EqualValues(threshold, st.LastLiberateSetSize)
	chk.EqualValues(2*threshold, st.LiberateThreshold)
	chk.EqualValues(1, st.ThresholdDoubled)
	for _, o := range objs {
		chk.Zero(o.disposed.Load())
	}

	// The next scan is sized from the doubled threshold and, having freed
	// something, leaves the threshold alone.
	guards[0].Clear()
	gc.ForceDispose()
	st = gc.Statistics()
	chk.EqualValues(2*threshold, st.LastLiberateSetSize)
	chk.EqualValues(2*threshold, st.LiberateThreshold)
	chk.EqualValues(1, objs[0].disposed.Load())

	th.FreeGuards(guards)
	gc.ForceDispose()
	for _, o := range objs {
		chk.EqualValues(1, o.disposed.Load())
	}
	chk.EqualValues(2*threshold, gc.LiberateThreshold())

	th.Detach()
	chk.NoError(gc.Close())
}

func TestEventualReclamation(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 8)
	th := gc.Attach()

	const n = 1000
	objs := make([]*object, n)
	for i := range objs {
		objs[i] = &object{id: i}
		dhp.Retire(th, objs[i], disposeObject)
	}
	gc.ForceDispose()

	for _, o := range objs {
		chk.EqualValues(1, o.disposed.Load(), "object %d", o.id)
	}
	st := gc.Statistics()
	chk.EqualValues(n, st.Retired)
	chk.EqualValues(n, st.Freed)
	chk.Zero(st.Buffered)
	chk.EqualValues(8, st.LiberateThreshold)

	th.Detach()
	chk.NoError(gc.Close())
}

func TestSameAddressRetiredTwice(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 64)
	th := gc.Attach()

	o := &object{}
	g := th.AllocGuard()
	g.Set(unsafe.Pointer(o))
	dhp.Retire(th, o, disposeObject)
	dhp.Retire(th, o, disposeObject)

	gc.ForceDispose()
	chk.Zero(o.disposed.Load())
	chk.EqualValues(2, gc.Statistics().Buffered)

	th.FreeGuard(g)
	gc.ForceDispose()
	chk.EqualValues(2, o.disposed.Load())

	th.Detach()
	chk.NoError(gc.Close())
}

func TestEpochAdvancesOncePerProductiveScan(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 64)
	th := gc.Attach()

	chk.Zero(gc.Epoch())
	gc.ForceDispose()
	chk.Zero(gc.Epoch())

	var epochAtDispose uint64
	o := &object{}
	dhp.Retire(th, o, func(o *object) {
		epochAtDispose = gc.Epoch()
		disposeObject(o)
	})
	gc.ForceDispose()
	chk.EqualValues(1, gc.Epoch())
	chk.EqualValues(1, epochAtDispose)

	th.Detach()
	chk.NoError(gc.Close())
}

func TestGuardPoolGrowsAndIsReused(t *testing.T) {
	chk := require.New(t)
	cfg := dhp.DefaultConfig()
	cfg.InitialThreadGuardCount = 2
	cfg.EnableStatistics = true
	gc, err := dhp.New(cfg)
	chk.NoError(err)

	th := gc.Attach()
	chk.EqualValues(2, gc.Statistics().GuardCount)
	guards := th.AllocGuards(5)
	chk.EqualValues(5, gc.Statistics().GuardCount)
	th.FreeGuards(guards)
	th.Detach()
	chk.EqualValues(5, gc.Statistics().FreeGuardCount)

	th = gc.Attach()
	guards = th.AllocGuards(5)
	chk.EqualValues(5, gc.Statistics().GuardCount)
	for _, g := range guards {
		chk.Nil(g.Get())
	}
	th.FreeGuards(guards)
	th.Detach()
	chk.NoError(gc.Close())
}

func TestCloseLifecycle(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 64)
	th := gc.Attach()

	o := &object{}
	dhp.Retire(th, o, disposeObject)

	chk.ErrorIs(gc.Close(), dhp.ErrThreadsAttached)
	chk.EqualValues(1, o.disposed.Load())
	chk.NoError(gc.Close())

	chk.PanicsWithValue("garbage collector is closed", func() {
		dhp.Retire(th, &object{}, disposeObject)
	})
	chk.Zero(gc.Statistics().Buffered)

	chk.PanicsWithValue("garbage collector is closed", func() {
		gc.Attach()
	})

	th.Detach()
	chk.PanicsWithValue("thread already detached", func() {
		th.Detach()
	})
}

// TestAttachRacingClose holds every successfully attached Thread until Close
// has returned, so Close must report them.
func TestAttachRacingClose(t *testing.T) {
	chk := require.New(t)
	rounds := 200
	if testing.Short() {
		rounds = 20
	}

	for range rounds {
		gc := newGC(t, 64)
		var attached, badPanics atomic.Int32
		var wg sync.WaitGroup
		startCh := make(chan struct{})
		releaseCh := make(chan struct{})
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-startCh
				var th *dhp.Thread
				func() {
					defer func() {
						if r := recover(); r != nil && r != "garbage collector is closed" {
							badPanics.Add(1)
						}
					}()
					th = gc.Attach()
				}()
				if th == nil {
					return
				}
				attached.Add(1)
				<-releaseCh
				th.Detach()
			}()
		}
		close(startCh)
		err := gc.Close()
		close(releaseCh)
		wg.Wait()
		chk.Zero(badPanics.Load())
		if attached.Load() > 0 {
			chk.ErrorIs(err, dhp.ErrThreadsAttached)
		}
	}
}

func TestGuardFreedTwicePanics(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 64)
	th := gc.Attach()

	g := th.AllocGuard()
	th.FreeGuard(g)
	chk.PanicsWithValue("guard freed twice", func() {
		th.FreeGuard(g)
	})

	a := th.AllocGuard()
	b := th.AllocGuard()
	chk.NotEqual(a, b)
	th.FreeGuard(a)
	th.FreeGuard(b)

	th.Detach()
	th = gc.Attach()
	gs := th.AllocGuards(3)
	th.FreeGuards(gs)
	chk.PanicsWithValue("guard freed twice", func() {
		th.FreeGuard(gs[1])
	})
	th.Detach()
	chk.NoError(gc.Close())
}

func TestRetireMisusePanics(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 64)
	th := gc.Attach()
	defer func() {
		th.Detach()
		chk.NoError(gc.Close())
	}()

	chk.PanicsWithValue("retired pointer is nil", func() {
		dhp.Retire[object](th, nil, disposeObject)
	})
	chk.PanicsWithValue("dispose function must be non-nil", func() {
		dhp.Retire(th, &object{}, nil)
	})
}

// TestNoPrematureFree has readers repeatedly protect and inspect the current
// value of a shared slot while writers replace and retire it. A reader that
// observes a disposed object through a guard would indicate a premature free.
func TestNoPrematureFree(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 4)

	readers, writers, iterations := 8, 4, 20000
	if testing.Short() {
		iterations = 2000
	}

	const slotCount = 4
	var slots [slotCount]atomic.Pointer[object]
	for i := range slots {
		slots[i].Store(&object{id: i})
	}

	var stop atomic.Bool
	var violations atomic.Int64
	var reads atomic.Int64
	var wg sync.WaitGroup
	startCh := make(chan struct{})

	for r := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th := gc.Attach()
			defer th.Detach()
			g := th.AllocGuard()
			defer th.FreeGuard(g)
			<-startCh
			for i := 0; !stop.Load(); i++ {
				o := dhp.Protect(g, &slots[(r+i)%slotCount])
				if o != nil && o.disposed.Load() != 0 {
					violations.Add(1)
				}
				g.Clear()
				reads.Add(1)
			}
		}()
	}

	var writerWG sync.WaitGroup
	for w := range writers {
		writerWG.Add(1)
		go func() {
			defer writerWG.Done()
			th := gc.Attach()
			defer th.Detach()
			<-startCh
			for i := range iterations {
				fresh := &object{id: w*iterations + i}
				old := slots[(w+i)%slotCount].Swap(fresh)
				dhp.Retire(th, old, disposeObject)
			}
		}()
	}

	close(startCh)
	writerWG.Wait()
	stop.Store(true)
	wg.Wait()

	chk.Zero(violations.Load())
	t.Logf("%d reads, stats %+v", reads.Load(), gc.Statistics())

	for i := range slots {
		o := slots[i].Swap(nil)
		th := gc.Attach()
		dhp.Retire(th, o, disposeObject)
		th.Detach()
	}
	chk.NoError(gc.Close())
	st := gc.Statistics()
	chk.Equal(st.Retired, st.Freed)
	chk.Zero(st.Buffered)
}

// TestConcurrentScansNeverDoubleFree races explicit scans from many
// goroutines against retirement and checks every pointer is disposed of
// exactly once.
func TestConcurrentScansNeverDoubleFree(t *testing.T) {
	chk := require.New(t)
	gc := newGC(t, 2)

	goroutines, perGoroutine := 8, 2000
	if testing.Short() {
		perGoroutine = 200
	}
	objs := make([][]*object, goroutines)
	var wg sync.WaitGroup
	startCh := make(chan struct{})
	for i := range goroutines {
		objs[i] = make([]*object, perGoroutine)
		wg.Add(1)
		go func() {
			defer wg.Done()
			th := gc.Attach()
			defer th.Detach()
			<-startCh
			for j := range perGoroutine {
				o := &object{id: j}
				objs[i][j] = o
				dhp.Retire(th, o, disposeObject)
				if j%7 == 0 {
					th.Scan()
				}
				if j%97 == 0 {
					gc.ForceDispose()
				}
			}
		}()
	}
	close(startCh)
	wg.Wait()
	chk.NoError(gc.Close())

	for _, row := range objs {
		for _, o := range row {
			chk.EqualValues(1, o.disposed.Load())
		}
	}
}
