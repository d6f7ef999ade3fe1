// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"time"

	"github.com/petenewcomb/cds-go"
	"github.com/petenewcomb/cds-go/fc"
)

var waitStrategyNames = []string{
	"bare",
	"yield",
	"backoff",
	"delay",
	"multi-mutex-multi-condvar",
	"single-mutex-single-condvar",
	"single-mutex-multi-condvar",
	"adaptive",
}

// parseWaitStrategy maps a flag value to a strategy. timeout bounds blocking
// waits, and is the sleep per step for "delay".
func parseWaitStrategy(name string, timeout time.Duration) (fc.WaitStrategy, error) {
	switch name {
	case "bare":
		return fc.BareWait{}, nil
	case "yield":
		return fc.BackoffWait{Backoff: cds.YieldBackoff{}}, nil
	case "backoff":
		return fc.BackoffWait{Backoff: cds.ExponentialBackoff{}}, nil
	case "delay":
		if timeout <= 0 {
			timeout = 2 * time.Millisecond
		}
		return fc.BackoffWait{Backoff: cds.DelayBackoff{Delay: timeout}}, nil
	case "multi-mutex-multi-condvar":
		return fc.MultiMutexMultiCondvar{Timeout: timeout}, nil
	case "single-mutex-single-condvar":
		return fc.NewSingleMutexSingleCondvar(timeout), nil
	case "single-mutex-multi-condvar":
		return fc.NewSingleMutexMultiCondvar(timeout), nil
	case "adaptive":
		return fc.Adaptive[int](0), nil
	default:
		return nil, fmt.Errorf("%w: wait strategy %q (want one of %v)", errUnknownValue, name, waitStrategyNames)
	}
}
