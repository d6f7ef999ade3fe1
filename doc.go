// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package cds holds the options shared by the concurrency primitives in this
// module: back-off strategies used while spinning, item counters used by
// containers to report their size, and the memory model recognized by every
// constructor.
//
// The primitives themselves live in subpackages. Package dhp implements
// Dynamic Hazard Pointer safe memory reclamation, which lets lock-free
// algorithms defer disposal of unlinked nodes until no reader can observe
// them. Package fc implements a flat-combining kernel, which serializes
// operations posted by many goroutines through a single elected combiner so
// that a plain sequential data structure can be shared safely. Package
// container provides a handful of containers built on both.
package cds
