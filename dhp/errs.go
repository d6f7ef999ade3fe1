// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp

import "github.com/petenewcomb/cds-go/internal/cerr"

const (
	ErrInvalidConfig   = cerr.Error("invalid dhp configuration")
	ErrThreadsAttached = cerr.Error("threads still attached to garbage collector")
)
