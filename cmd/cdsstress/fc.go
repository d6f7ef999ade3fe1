// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/petenewcomb/cds-go/container"
	"github.com/petenewcomb/cds-go/fc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newFCCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fc",
		Short: "stress a flat-combining container",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFC(cmd.OutOrStdout(), v)
		},
	}
	key := "container"
	cmd.Flags().String(key, "stack", "container to stress (stack, queue, pqueue)")
	key = "wait-strategy"
	cmd.Flags().String(key, "backoff", fmt.Sprintf("how non-combiners wait %v", waitStrategyNames))
	key = "timeout-ms"
	cmd.Flags().Int(key, 0, "bound on each blocking wait in milliseconds, 0 for none")
	key = "elimination"
	cmd.Flags().Bool(key, false, "let the stack answer concurrent push and pop pairs directly")
	key = "compact-factor"
	cmd.Flags().Int(key, fc.DefaultCompactFactor, "combining cycles between publication list compactions")
	key = "combine-pass-count"
	cmd.Flags().Int(key, fc.DefaultCombinePassCount, "maximum passes over the publication list per cycle")
	return cmd
}

// fcContainer is the part of the flat-combining containers the stress run
// uses.
type fcContainer interface {
	push(v int)
	pop() (int, bool)
	Statistics() fc.Stat
}

type fcStack struct{ *container.FCStack[int] }

func (s fcStack) push(v int)       { s.Push(v) }
func (s fcStack) pop() (int, bool) { return s.Pop() }

type fcQueue struct{ *container.FCQueue[int] }

func (q fcQueue) push(v int)       { q.Enqueue(v) }
func (q fcQueue) pop() (int, bool) { return q.Dequeue() }

type fcPQueue struct{ *container.FCPriorityQueue[int] }

func (q fcPQueue) push(v int)       { q.Push(v) }
func (q fcPQueue) pop() (int, bool) { return q.Pop() }

func runFC(w io.Writer, v *viper.Viper) error {
	cc, err := readCommonConfig(v)
	if err != nil {
		return err
	}
	defer cc.logger.Sync()

	timeout := time.Duration(v.GetInt("timeout-ms")) * time.Millisecond
	ws, err := parseWaitStrategy(v.GetString("wait-strategy"), timeout)
	if err != nil {
		return err
	}
	cfg := container.DefaultFCConfig()
	cfg.Kernel.CompactFactor = v.GetInt("compact-factor")
	cfg.Kernel.CombinePassCount = v.GetInt("combine-pass-count")
	cfg.Kernel.WaitStrategy = ws
	cfg.Kernel.EnableStatistics = true
	cfg.Kernel.Logger = cc.logger
	cfg.Elimination = v.GetBool("elimination")

	var c fcContainer
	name := v.GetString("container")
	switch name {
	case "stack":
		s, err := container.NewFCStack[int](cfg)
		if err != nil {
			return err
		}
		c = fcStack{s}
	case "queue":
		q, err := container.NewFCQueue[int](cfg)
		if err != nil {
			return err
		}
		c = fcQueue{q}
	case "pqueue":
		q, err := container.NewOrderedFCPriorityQueue[int](cfg)
		if err != nil {
			return err
		}
		c = fcPQueue{q}
	default:
		return fmt.Errorf("%w: container %q", errUnknownValue, name)
	}

	h := newHarness(name, cc)
	elapsed := h.run(cc.goroutines, func(g int) {
		for i := range cc.ops {
			h.timed(func() {
				c.push(g*cc.ops + i)
			})
			h.timed(func() {
				h.receive(c.pop())
			})
		}
	})
	for {
		x, ok := c.pop()
		if !ok {
			break
		}
		h.receive(x, ok)
	}

	st := c.Statistics()
	h.report(w, cc, elapsed)
	fmt.Fprintf(w, "  wait strategy: %s, combinings: %d, combining factor: %.2f\n",
		v.GetString("wait-strategy"), st.Combinings, st.CombiningFactor())
	fmt.Fprintf(w, "  passive waits: %d (%d iterations, %d by notification), passive to combiner: %d\n",
		st.PassiveWaits, st.PassiveWaitIterations, st.WakeupsByNotifying, st.PassiveToCombiner)
	fmt.Fprintf(w, "  compactions: %d, deactivated: %d, records created: %d\n",
		st.Compactions, st.DeactivatedRecords, st.RecordsCreated)
	if s, ok := c.(fcStack); ok && cfg.Elimination {
		fmt.Fprintf(w, "  eliminated pairs: %d\n", s.Eliminated())
	}

	if cc.metrics {
		h.gauge("fc_combinings", func() float64 { return float64(st.Combinings) })
		h.gauge("fc_combining_factor", st.CombiningFactor)
		h.gauge("fc_passive_waits", func() float64 { return float64(st.PassiveWaits) })
		h.writeMetrics(w)
	}
	return h.check()
}
