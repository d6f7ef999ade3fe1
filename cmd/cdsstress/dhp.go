// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/container"
	"github.com/petenewcomb/cds-go/dhp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDHPCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dhp",
		Short: "stress a lock-free container whose nodes are reclaimed by hazard pointers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDHP(cmd.OutOrStdout(), v)
		},
	}
	key := "container"
	cmd.Flags().String(key, "treiber", "container to stress (treiber, msqueue)")
	key = "liberate-threshold"
	cmd.Flags().Int(key, dhp.DefaultLiberateThreshold, "retired pointers buffered before a scan")
	key = "epoch-count"
	cmd.Flags().Int(key, dhp.DefaultEpochCount, "epochs a freed bookkeeping node waits before reuse")
	return cmd
}

func runDHP(w io.Writer, v *viper.Viper) error {
	cc, err := readCommonConfig(v)
	if err != nil {
		return err
	}
	defer cc.logger.Sync()

	cfg := dhp.DefaultConfig()
	cfg.LiberateThreshold = v.GetInt("liberate-threshold")
	cfg.EpochCount = v.GetInt("epoch-count")
	cfg.EnableStatistics = true
	cfg.Logger = cc.logger
	gc, err := dhp.New(cfg)
	if err != nil {
		return err
	}

	var (
		push func(*dhp.Thread, int)
		pop  func(*dhp.Thread) (int, bool)
	)
	lf := container.LockFreeConfig{Backoff: cds.ExponentialBackoff{MaxShift: 4}}
	name := v.GetString("container")
	switch name {
	case "treiber":
		s := container.NewTreiberStack[int](gc, lf)
		push, pop = s.Push, s.Pop
	case "msqueue":
		q := container.NewMSQueue[int](gc, lf)
		push, pop = q.Enqueue, q.Dequeue
	default:
		return fmt.Errorf("%w: container %q", errUnknownValue, name)
	}

	h := newHarness(name, cc)
	elapsed := h.run(cc.goroutines, func(g int) {
		t := gc.Attach()
		defer t.Detach()
		for i := range cc.ops {
			h.timed(func() {
				push(t, g*cc.ops+i)
			})
			h.timed(func() {
				h.receive(pop(t))
			})
		}
	})

	t := gc.Attach()
	for {
		x, ok := pop(t)
		if !ok {
			break
		}
		h.receive(x, ok)
	}
	t.Detach()
	closeErr := gc.Close()

	st := gc.Statistics()
	h.report(w, cc, elapsed)
	fmt.Fprintf(w, "  retired: %d, freed: %d, still buffered: %d, rebuffered: %d\n",
		st.Retired, st.Freed, st.Buffered, st.Rebuffered)
	fmt.Fprintf(w, "  scans: %d (skipped %d), liberate threshold: %d (doubled %d times), epoch: %d\n",
		st.Scans, st.ScansSkipped, st.LiberateThreshold, st.ThresholdDoubled, st.Epoch)
	fmt.Fprintf(w, "  guards: %d, node blocks: %d\n", st.GuardCount, st.NodeBlocks)

	if cc.metrics {
		h.gauge("dhp_retired", func() float64 { return float64(st.Retired) })
		h.gauge("dhp_freed", func() float64 { return float64(st.Freed) })
		h.gauge("dhp_scans", func() float64 { return float64(st.Scans) })
		h.gauge("dhp_liberate_threshold", func() float64 { return float64(st.LiberateThreshold) })
		h.writeMetrics(w)
	}
	return errors.Join(h.check(), closeErr)
}
