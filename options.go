// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package cds

import "fmt"

// MemoryModel selects the ordering used for atomic operations that the
// algorithms permit to be relaxed. Go's sync/atomic operations are all
// sequentially consistent, so both models currently produce identical code;
// the option is validated so that configurations remain portable.
type MemoryModel int

const (
	Relaxed MemoryModel = iota
	SequentiallyConsistent
)

func (m MemoryModel) String() string {
	switch m {
	case Relaxed:
		return "relaxed"
	case SequentiallyConsistent:
		return "sequentially-consistent"
	default:
		return fmt.Sprintf("MemoryModel(%d)", int(m))
	}
}

// Validate returns an error wrapping [ErrInvalidMemoryModel] if m is not one of
// the recognized models.
func (m MemoryModel) Validate() error {
	switch m {
	case Relaxed, SequentiallyConsistent:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrInvalidMemoryModel, int(m))
	}
}

// ParseMemoryModel is the inverse of [MemoryModel.String].
func ParseMemoryModel(s string) (MemoryModel, error) {
	switch s {
	case "relaxed":
		return Relaxed, nil
	case "sequentially-consistent", "seq-cst":
		return SequentiallyConsistent, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMemoryModel, s)
	}
}
