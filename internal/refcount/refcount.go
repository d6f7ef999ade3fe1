// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package refcount provides a checked counter for attach/detach bracketing.
package refcount

import (
	"fmt"
	"sync/atomic"
)

type Counter struct {
	Name string
	v    atomic.Int64
}

// Increment returns true if this was the first reference.
func (c *Counter) Increment() bool {
	return c.v.Add(1) == 1
}

// Decrement returns true if this released the last reference. It panics if
// the counter would go negative.
func (c *Counter) Decrement() bool {
	newValue := c.v.Add(-1)
	if newValue < 0 {
		panic(fmt.Sprintf("%s released more times than acquired", c.Name))
	}
	return newValue == 0
}

func (c *Counter) Load() int64 {
	return c.v.Load()
}

func (c *Counter) IsZero() bool {
	return c.v.Load() == 0
}
