// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package fc

import "sync/atomic"

// Request codes. Codes at or above ReqOperation are container operations.
const (
	ReqEmpty     int32 = 0
	ReqResponse  int32 = 1
	ReqOperation int32 = 2
)

type RecordState int32

const (
	Inactive RecordState = iota
	Active
	Removed
)

func (s RecordState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Header is the part of a publication record the kernel and wait strategies
// work with. A record is linked into the publication list exactly when it is
// Active, except transiently while the combiner compacts the list.
type Header struct {
	request       atomic.Int32
	state         atomic.Int32
	age           atomic.Uint32
	next          atomic.Pointer[Header]
	nextAllocated atomic.Pointer[Header]

	// aux is the wait strategy's per-record block, created by
	// WaitStrategy.NewAux when the record is allocated.
	aux any
}

// Request returns the record's current request code.
func (h *Header) Request() int32 {
	return h.request.Load()
}

func (h *Header) State() RecordState {
	return RecordState(h.state.Load())
}

// Pending reports whether the record carries an unanswered operation.
func (h *Header) Pending() bool {
	return h.request.Load() >= ReqOperation
}

// Aux returns the wait strategy's per-record block.
func (h *Header) Aux() any {
	return h.aux
}

// Record is a publication record carrying a payload of type T. The owner
// writes operands into Data before posting a request, and reads results from
// it once the request has been answered; the combiner reads and writes Data
// while applying the operation.
type Record[T any] struct {
	Header
	Data T
}

// Op returns the record's current request code.
func (r *Record[T]) Op() int32 {
	return r.request.Load()
}

// IsDone reports whether the last request has been answered.
func (r *Record[T]) IsDone() bool {
	return r.request.Load() == ReqResponse
}
