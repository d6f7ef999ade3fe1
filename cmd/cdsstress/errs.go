// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package main

import "github.com/petenewcomb/cds-go/internal/cerr"

const (
	errInvalidFlag  = cerr.Error("invalid flag value")
	errLostValues   = cerr.Error("values lost or duplicated")
	errUnknownValue = cerr.Error("unknown value")
)
