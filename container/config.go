// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package container

import (
	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/fc"
)

// FCConfig configures the flat-combining containers.
type FCConfig struct {
	Kernel fc.Config

	// ItemCounter tracks the number of stored items. Nil selects
	// cds.AtomicCounter.
	ItemCounter cds.ItemCounter

	// Elimination lets an FCStack answer matching push and pop requests
	// against each other without touching the store. Other containers
	// ignore it.
	Elimination bool
}

func DefaultFCConfig() FCConfig {
	return FCConfig{Kernel: fc.DefaultConfig()}
}

// LockFreeConfig configures the containers built on dhp.
type LockFreeConfig struct {
	// ItemCounter tracks the number of stored items. Nil selects
	// cds.AtomicCounter.
	ItemCounter cds.ItemCounter

	// Backoff is applied after a failed compare-and-swap. Nil selects
	// cds.EmptyBackoff.
	Backoff cds.Backoff
}

func itemCounterOrDefault(c cds.ItemCounter) cds.ItemCounter {
	if c == nil {
		return &cds.AtomicCounter{}
	}
	return c
}

func backoffOrDefault(b cds.Backoff) cds.Backoff {
	if b == nil {
		return cds.EmptyBackoff{}
	}
	return b
}
