// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp

import (
	"fmt"

	"github.com/petenewcomb/cds-go"
	"go.uber.org/zap"
)

const (
	DefaultLiberateThreshold       = 1024
	DefaultInitialThreadGuardCount = 8
	DefaultEpochCount              = 16

	// The threshold stops doubling here so that a long run of unproductive
	// scans cannot demand an unbounded liberate set.
	maxLiberateThreshold = 1 << 20
)

// Config holds the recognized options for a [GC]. Zero numeric fields select
// the corresponding defaults.
type Config struct {
	// LiberateThreshold is the retired buffer size that triggers a scan. A
	// value of 1 scans after every retirement.
	LiberateThreshold int

	// InitialThreadGuardCount is the number of guards each Thread takes from
	// the global pool when it attaches.
	InitialThreadGuardCount int

	// EpochCount is the number of retirement epochs over which freed
	// bookkeeping nodes are rotated before reuse. It is rounded up to a power
	// of two.
	EpochCount int

	// MemoryModel is validated but currently has no effect; see
	// [cds.MemoryModel].
	MemoryModel      cds.MemoryModel
	EnableStatistics bool

	// Logger receives debug-level records of rare events such as threshold
	// changes and guard pool growth. Nil disables logging.
	Logger *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		LiberateThreshold:       DefaultLiberateThreshold,
		InitialThreadGuardCount: DefaultInitialThreadGuardCount,
		EpochCount:              DefaultEpochCount,
	}
}

// Validate reports the first invalid option, wrapped in [ErrInvalidConfig].
func (c Config) Validate() error {
	if c.LiberateThreshold < 0 || c.LiberateThreshold > maxLiberateThreshold {
		return fmt.Errorf("%w: liberate threshold %d out of range [0, %d]", ErrInvalidConfig, c.LiberateThreshold, maxLiberateThreshold)
	}
	if c.InitialThreadGuardCount < 0 {
		return fmt.Errorf("%w: initial thread guard count %d must be >= 0", ErrInvalidConfig, c.InitialThreadGuardCount)
	}
	if c.EpochCount < 0 || c.EpochCount > 1<<16 {
		return fmt.Errorf("%w: epoch count %d out of range [0, %d]", ErrInvalidConfig, c.EpochCount, 1<<16)
	}
	if err := c.MemoryModel.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.LiberateThreshold == 0 {
		c.LiberateThreshold = DefaultLiberateThreshold
	}
	if c.InitialThreadGuardCount == 0 {
		c.InitialThreadGuardCount = DefaultInitialThreadGuardCount
	}
	if c.EpochCount == 0 {
		c.EpochCount = DefaultEpochCount
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// ceil2 returns the smallest power of two >= n, or 1 for n <= 1.
func ceil2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
