// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package container provides concurrent containers built on the kernels in
// [github.com/petenewcomb/cds-go/fc] and
// [github.com/petenewcomb/cds-go/dhp].
//
// The flat-combining containers ([FCStack], [FCQueue], [FCPriorityQueue])
// wrap a sequential store and may be used from any goroutine without further
// setup. The lock-free containers ([TreiberStack], [MSQueue]) take the
// calling goroutine's [dhp.Thread] on every operation and hand unlinked nodes
// to its collector.
package container
