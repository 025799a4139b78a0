// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import (
	"testing"
)

func TestRegionAllocDistinctNonOverlapping(t *testing.T) {
	r := newTestRegion(t, 4096)

	a := make([]byte, 64)
	b := make([]byte, 64)

	addrA := r.Alloc(a, 0)
	addrB := r.Alloc(b, 0)

	if addrA == addrB {
		t.Fatalf("two distinct allocations returned the same address: %#x", addrA)
	}

	if addrA+64 > addrB && addrB+64 > addrA {
		t.Fatalf("allocations overlap: [%#x, %#x) and [%#x, %#x)", addrA, addrA+64, addrB, addrB+64)
	}
}

// TestRegionAllocSameReservedBufferIsNoOp confirms that calling Alloc on a
// buffer already obtained from Reserve is a double-alloc no-op: it returns
// the existing address rather than allocating (and leaking) a second block.
func TestRegionAllocSameReservedBufferIsNoOp(t *testing.T) {
	r := newTestRegion(t, 4096)

	before := r.freeBlocks.Front().Value.(*block).size

	addr, buf := r.Reserve(128, 0)

	afterReserve := r.freeBlocks.Len()
	if free := r.freeBlocks.Front().Value.(*block).size; free != before-128 {
		t.Fatalf("Reserve did not consume a free block: %d bytes free, want %d", free, before-128)
	}

	again := r.Alloc(buf, 0)
	if again != addr {
		t.Fatalf("re-Alloc of a Reserved buffer: got %#x, want original address %#x", again, addr)
	}

	afterRealloc := r.freeBlocks.Len()
	if afterRealloc != afterReserve {
		t.Fatalf("double-alloc of the same buffer changed the free list: before %d, after %d", afterReserve, afterRealloc)
	}

	if len(r.usedBlocks) != 1 {
		t.Fatalf("double-alloc of the same buffer registered %d used blocks, want 1", len(r.usedBlocks))
	}
}

// TestRegionFreeDefragmentsAdjacentBlocks confirms that freeing two
// adjacently-allocated blocks merges them back into a single free block
// spanning the same space, rather than leaving the region fragmented.
func TestRegionFreeDefragmentsAdjacentBlocks(t *testing.T) {
	const regionSize = 512

	r := newTestRegion(t, regionSize)

	addrA := r.Alloc(make([]byte, 128), 0)
	addrB := r.Alloc(make([]byte, 128), 0)

	r.Free(addrA)
	r.Free(addrB)

	if got := r.freeBlocks.Len(); got != 1 {
		t.Fatalf("after freeing two adjacent blocks: %d free blocks remain, want 1 (defrag should have merged them)", got)
	}

	merged := r.freeBlocks.Front().Value.(*block)
	if merged.size != regionSize {
		t.Fatalf("merged free block size: got %d, want %d", merged.size, regionSize)
	}
}

// TestRegionOutOfMemoryPanics confirms an allocation that cannot be
// satisfied panics rather than silently handing back an invalid block,
// matching this allocator's documented first-fit failure mode.
func TestRegionOutOfMemoryPanics(t *testing.T) {
	r := newTestRegion(t, 64)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic allocating beyond the region's capacity")
		}
	}()

	r.Alloc(make([]byte, 4096), 0)
}
