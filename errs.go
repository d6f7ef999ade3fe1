// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package cds

type constError string

func (e constError) Error() string {
	return string(e)
}

const ErrInvalidMemoryModel = constError("invalid memory model")
