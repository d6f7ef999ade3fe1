// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package fc implements flat combining, which turns a sequential data
// structure into a concurrent one by funneling operations through a single
// combiner.
//
// A goroutine that wants to operate on the shared structure takes a
// publication [Record] from the [Kernel], fills in its payload, and posts an
// operation code with [Kernel.Combine]. If the kernel's combiner lock is free,
// the caller becomes the combiner: it walks the publication list and applies
// every pending operation, its own included, in list order. Otherwise the
// caller waits, according to the configured [WaitStrategy], until a combiner
// has answered its request, trying now and then to take the lock itself.
//
// The publication list only grows when a goroutine publishes a record, and is
// periodically compacted: records that have not carried a request for a
// while are unlinked and marked inactive, and are relinked the next time they
// are used.
package fc
