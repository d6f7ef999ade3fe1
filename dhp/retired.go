// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package dhp

import (
	"sync/atomic"
	"unsafe"
)

// retiredNode records one retired pointer. next links the retired buffer and
// liberate set chains; nextFree links same-address chains and free lists.
type retiredNode struct {
	ptr      unsafe.Pointer
	dispose  func(unsafe.Pointer)
	next     *retiredNode
	nextFree *retiredNode
}

func (n *retiredNode) free() {
	dispose := n.dispose
	p := n.ptr
	n.ptr = nil
	n.dispose = nil
	dispose(p)
}

// retiredBuffer is a Treiber stack of retired nodes with an approximate
// count. Producers push concurrently; the scanner takes everything at once.
type retiredBuffer struct {
	head  atomic.Pointer[retiredNode]
	count atomic.Int64
}

// push returns the count after adding n.
func (b *retiredBuffer) push(n *retiredNode) int64 {
	return b.pushList(n, n, 1)
}

func (b *retiredBuffer) pushList(first, last *retiredNode, size int64) int64 {
	head := b.head.Load()
	for {
		last.next = head
		if b.head.CompareAndSwap(head, first) {
			break
		}
		head = b.head.Load()
	}
	return b.count.Add(size)
}

// privatize detaches the whole buffer. The returned count may differ from the
// list length when pushes race with it, so callers count the list themselves.
func (b *retiredBuffer) privatize() (*retiredNode, int64) {
	count := b.count.Swap(0)
	return b.head.Swap(nil), count
}

func (b *retiredBuffer) size() int64 {
	return b.count.Load()
}

// nodesPerBlock sizes node blocks to roughly one kilobyte.
const nodesPerBlock = 1024/unsafe.Sizeof(retiredNode{}) - 1

// nodePool recycles retired nodes. Freed nodes go onto the free list of the
// epoch preceding the current one, so a node returns to circulation only after
// the epoch counter has wrapped around to it. Lists are only ever emptied
// whole with Swap, never popped, so no CAS can observe a recycled head; each
// Thread keeps the nodes it takes in a private cache.
type nodePool struct {
	epoch      atomic.Uint64
	mask       uint64
	epochFree  []atomic.Pointer[retiredNode]
	globalFree atomic.Pointer[retiredNode]
	stat       *stat
}

func newNodePool(epochCount int, st *stat) *nodePool {
	n := ceil2(epochCount)
	return &nodePool{
		mask:      uint64(n - 1),
		epochFree: make([]atomic.Pointer[retiredNode], n),
		stat:      st,
	}
}

func (p *nodePool) currentEpoch() uint64 {
	return p.epoch.Load() & p.mask
}

func (p *nodePool) previousEpoch() uint64 {
	return (p.epoch.Load() - 1) & p.mask
}

func (p *nodePool) incEpoch() {
	p.epoch.Add(1)
}

// grab returns a non-empty chain of free nodes linked by nextFree.
func (p *nodePool) grab() *retiredNode {
	if n := p.epochFree[p.currentEpoch()].Swap(nil); n != nil {
		return n
	}
	if n := p.globalFree.Swap(nil); n != nil {
		return n
	}
	return p.newBlock()
}

func (p *nodePool) newBlock() *retiredNode {
	block := make([]retiredNode, nodesPerBlock)
	for i := range len(block) - 1 {
		block[i].nextFree = &block[i+1]
	}
	p.stat.add(&p.stat.nodeBlocks, 1)
	return &block[0]
}

// freeRange pushes a chain linked by nextFree onto the previous epoch's list.
func (p *nodePool) freeRange(head, tail *retiredNode) {
	for {
		list := &p.epochFree[p.previousEpoch()]
		cur := list.Load()
		tail.nextFree = cur
		if list.CompareAndSwap(cur, head) {
			return
		}
	}
}

// release returns an unused chain linked by nextFree to the global list.
func (p *nodePool) release(head *retiredNode) {
	if head == nil {
		return
	}
	tail := head
	for tail.nextFree != nil {
		tail = tail.nextFree
	}
	for {
		cur := p.globalFree.Load()
		tail.nextFree = cur
		if p.globalFree.CompareAndSwap(cur, head) {
			return
		}
	}
}
