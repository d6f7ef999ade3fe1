// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package fc

import (
	"fmt"

	"github.com/petenewcomb/cds-go"
	"go.uber.org/zap"
)

const (
	DefaultCompactFactor    = 1024
	DefaultCombinePassCount = 8
)

// Config holds the recognized options for a [Kernel]. Zero fields select
// defaults.
type Config struct {
	// CompactFactor is the number of combining cycles between publication
	// list compactions. It is rounded up to a power of two.
	CompactFactor int

	// CombinePassCount bounds the passes a combiner makes over the list per
	// cycle. The combiner stops early once empty passes outnumber useful ones.
	CombinePassCount int

	// WaitStrategy governs how non-combiners wait. The default spins with
	// exponential back-off.
	WaitStrategy WaitStrategy

	// MemoryModel is validated but currently has no effect; see
	// [cds.MemoryModel].
	MemoryModel      cds.MemoryModel
	EnableStatistics bool

	// Logger receives debug-level records of compactions. Nil disables
	// logging.
	Logger *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		CompactFactor:    DefaultCompactFactor,
		CombinePassCount: DefaultCombinePassCount,
		WaitStrategy:     BackoffWait{Backoff: cds.ExponentialBackoff{}},
	}
}

// Validate reports the first invalid option, wrapped in [ErrInvalidConfig].
func (c Config) Validate() error {
	if c.CompactFactor < 0 || c.CompactFactor > 1<<30 {
		return fmt.Errorf("%w: compact factor %d out of range [0, %d]", ErrInvalidConfig, c.CompactFactor, 1<<30)
	}
	if c.CombinePassCount < 0 {
		return fmt.Errorf("%w: combine pass count %d must be >= 0", ErrInvalidConfig, c.CombinePassCount)
	}
	if err := c.MemoryModel.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.CompactFactor == 0 {
		c.CompactFactor = DefaultCompactFactor
	}
	if c.CombinePassCount == 0 {
		c.CombinePassCount = DefaultCombinePassCount
	}
	if c.WaitStrategy == nil {
		c.WaitStrategy = BackoffWait{Backoff: cds.ExponentialBackoff{}}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func ceil2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
