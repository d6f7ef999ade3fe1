// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package fc

import "github.com/petenewcomb/cds-go/internal/cerr"

const ErrInvalidConfig = cerr.Error("invalid flat combining configuration")
