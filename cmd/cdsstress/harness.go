// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// harness runs the workers of one stress run and accounts for every value
// they push, so that lost or duplicated values are detected.
type harness struct {
	name       string
	set        *metrics.Set
	latency    *metrics.Histogram
	empty      *metrics.Counter
	throughput gometrics.Meter
	received   []atomic.Int32
}

func newHarness(name string, cc commonConfig) *harness {
	set := metrics.NewSet()
	return &harness{
		name:       name,
		set:        set,
		latency:    set.NewHistogram(fmt.Sprintf(`cdsstress_op_duration_seconds{container=%q}`, name)),
		empty:      set.NewCounter(fmt.Sprintf(`cdsstress_empty_pops_total{container=%q}`, name)),
		throughput: gometrics.NewMeter(),
		received:   make([]atomic.Int32, cc.goroutines*cc.ops),
	}
}

// gauge exposes f under the given statistic name.
func (h *harness) gauge(stat string, f func() float64) {
	h.set.NewGauge(fmt.Sprintf(`cdsstress_%s{container=%q}`, stat, h.name), f)
}

// run starts worker(g) on each of n goroutines at once and returns the time
// until all of them finished.
func (h *harness) run(n int, worker func(g int)) time.Duration {
	var wg sync.WaitGroup
	startCh := make(chan struct{})
	for g := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-startCh
			worker(g)
		}()
	}
	start := time.Now()
	close(startCh)
	wg.Wait()
	return time.Since(start)
}

func (h *harness) timed(op func()) {
	start := time.Now()
	op()
	h.latency.UpdateDuration(start)
	h.throughput.Mark(1)
}

func (h *harness) receive(v int, ok bool) {
	if !ok {
		h.empty.Inc()
		return
	}
	h.received[v].Add(1)
}

// check reports values that were popped other than exactly once.
func (h *harness) check() error {
	var missing, duplicated int
	for v := range h.received {
		switch n := h.received[v].Load(); {
		case n == 0:
			missing++
		case n > 1:
			duplicated++
		}
	}
	if missing != 0 || duplicated != 0 {
		return fmt.Errorf("%w: %d missing, %d duplicated", errLostValues, missing, duplicated)
	}
	return nil
}

func (h *harness) report(w io.Writer, cc commonConfig, elapsed time.Duration) {
	snap := h.throughput.Snapshot()
	h.throughput.Stop()
	fmt.Fprintf(w, "%s: %d goroutines x %d ops in %v\n", h.name, cc.goroutines, cc.ops, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  operations: %d (%.0f ops/s), empty pops: %d\n", snap.Count(), snap.RateMean(), h.empty.Get())
}

func (h *harness) writeMetrics(w io.Writer) {
	h.set.WritePrometheus(w)
}
