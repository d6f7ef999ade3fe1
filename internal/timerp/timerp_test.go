// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package timerp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWait(t *testing.T) {
	chk := require.New(t)

	ch := make(chan struct{})
	chk.False(Wait(ch, time.Millisecond))

	close(ch)
	chk.True(Wait(ch, time.Hour))
	chk.True(Wait(ch, 0))
}

func TestSleepReusesTimers(t *testing.T) {
	chk := require.New(t)
	for range 3 {
		start := time.Now()
		Sleep(time.Millisecond)
		chk.GreaterOrEqual(time.Since(start), time.Millisecond)
	}
}
