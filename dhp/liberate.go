// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp

import (
	"encoding/binary"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// liberateSet groups the nodes of one scan by address. Each bucket chain
// (linked by next) holds one entry per distinct address, and further nodes
// retired with the same address hang off that entry's nextFree chain.
type liberateSet struct {
	buckets []*retiredNode
	mask    uint64
}

func newLiberateSet(bucketCount int) *liberateSet {
	if bucketCount <= 0 || bucketCount&(bucketCount-1) != 0 {
		panic("liberate set bucket count must be a power of two")
	}
	return &liberateSet{
		buckets: make([]*retiredNode, bucketCount),
		mask:    uint64(bucketCount - 1),
	}
}

func (s *liberateSet) bucket(p unsafe.Pointer) **retiredNode {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(uintptr(p)))
	return &s.buckets[xxhash.Sum64(b[:])&s.mask]
}

func (s *liberateSet) insert(n *retiredNode) {
	n.next = nil
	n.nextFree = nil
	ref := s.bucket(n.ptr)
	for e := *ref; e != nil; e = e.next {
		if e.ptr == n.ptr {
			n.nextFree = e.nextFree
			e.nextFree = n
			return
		}
	}
	n.next = *ref
	*ref = n
}

// erase unlinks and returns the entry for p together with its same-address
// chain, or nil if p is not in the set.
func (s *liberateSet) erase(p unsafe.Pointer) *retiredNode {
	ref := s.bucket(p)
	var prev *retiredNode
	for e := *ref; e != nil; e = e.next {
		if e.ptr == p {
			if prev == nil {
				*ref = e.next
			} else {
				prev.next = e.next
			}
			e.next = nil
			return e
		}
		prev = e
	}
	return nil
}

// freeAll disposes of every remaining node and returns them as one chain
// linked by nextFree, with its tail and length. head is nil if the set was
// empty.
func (s *liberateSet) freeAll() (head, tail *retiredNode, count int64) {
	for i, e := range s.buckets {
		for e != nil {
			next := e.next
			if tail == nil {
				head = e
			} else {
				tail.nextFree = e
			}
			for n := e; n != nil; n = n.nextFree {
				n.free()
				n.next = nil
				count++
				tail = n
			}
			e = next
		}
		s.buckets[i] = nil
	}
	return head, tail, count
}
