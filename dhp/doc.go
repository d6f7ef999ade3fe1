// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package dhp implements Dynamic Hazard Pointer safe memory reclamation.
//
// A lock-free data structure that unlinks a node cannot reuse or tear it down
// immediately, because other goroutines may still be traversing it. Instead
// the node is retired to a [GC], which defers disposal until no [Guard]
// publishes the node's address. Readers protect each pointer they load with a
// guard before dereferencing it, using [Protect] for the load-publish-verify
// loop.
//
// Each goroutine that touches protected structures works through a [Thread]
// obtained from [GC.Attach] and returned with [Thread.Detach]. Threads hand
// out guards from a thread-local free list that grows on demand from the
// collector's global pool, so the number of guards is not fixed in advance.
//
// Retired pointers collect in a lock-free buffer. When the buffer reaches the
// liberate threshold, or when [GC.Scan] is called, the buffer is privatized,
// bucketed by address into a liberate set, and checked against every guard.
// Unguarded pointers are disposed of and guarded ones go back to the buffer.
// If a scan frees nothing, the threshold doubles so that later scans batch
// more work.
//
// Typical use:
//
//	gc, err := dhp.New(dhp.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer gc.Close()
//
//	t := gc.Attach()
//	defer t.Detach()
//
//	g := t.AllocGuard()
//	defer t.FreeGuard(g)
//	if n := dhp.Protect(g, &head); n != nil {
//		use(n.value)
//	}
package dhp
