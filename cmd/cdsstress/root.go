// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("cds")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "cdsstress",
		Short: "stress test for the cds containers",
		Long: `cdsstress runs a mix of operations against one container from many
goroutines, checks that every value comes out exactly once, and prints
throughput, latency and kernel or collector statistics.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return v.BindPFlags(cmd.Flags())
		},
	}

	key := "goroutines"
	root.PersistentFlags().Int(key, runtime.GOMAXPROCS(0), "number of worker goroutines")
	key = "ops"
	root.PersistentFlags().Int(key, 100_000, "operations per goroutine")
	key = "metrics"
	root.PersistentFlags().Bool(key, false, "print latency histograms and statistics in Prometheus text format")
	key = "log-level"
	root.PersistentFlags().String(key, "info", "zap log level (debug, info, warn, error)")

	root.AddCommand(newDHPCmd(v), newFCCmd(v))
	return root
}

// commonConfig holds the flags shared by all subcommands.
type commonConfig struct {
	goroutines int
	ops        int
	metrics    bool
	logger     *zap.Logger
}

func readCommonConfig(v *viper.Viper) (commonConfig, error) {
	c := commonConfig{
		goroutines: v.GetInt("goroutines"),
		ops:        v.GetInt("ops"),
		metrics:    v.GetBool("metrics"),
	}
	if c.goroutines < 1 {
		return c, fmt.Errorf("%w: goroutines must be at least 1, got %d", errInvalidFlag, c.goroutines)
	}
	if c.ops < 1 {
		return c, fmt.Errorf("%w: ops must be at least 1, got %d", errInvalidFlag, c.ops)
	}
	logger, err := newLogger(v.GetString("log-level"))
	if err != nil {
		return c, err
	}
	c.logger = logger
	return c, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidFlag, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
