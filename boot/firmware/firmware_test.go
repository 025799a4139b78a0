// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package firmware

import (
	"errors"
	"testing"
)

type fakeBootServices struct {
	nextAddr    uint64
	mapKey      uint64
	badKeyOnce  bool
	exitCalls   int
}

func (f *fakeBootServices) AllocatePages(allocType, memType int, pageCount int) (uint64, error) {
	addr := f.nextAddr
	f.nextAddr += uint64(pageCount) * PageSize
	return addr, nil
}

func (f *fakeBootServices) GetMemoryMap() (uint64, error) {
	f.mapKey++
	return f.mapKey, nil
}

func (f *fakeBootServices) ExitBootServices(mapKey uint64) error {
	f.exitCalls++
	if f.badKeyOnce && f.exitCalls == 1 {
		return errors.New("stale map key")
	}
	return nil
}

func TestPrepareAllocatesDistinctRegions(t *testing.T) {
	bs := &fakeBootServices{}

	h, err := Prepare(bs, NICProbe{Type: 1}, BlkProbe{Type: 1}, 1_000_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.DMA.Size != DmaSize {
		t.Fatalf("unexpected DMA size: %d", h.DMA.Size)
	}

	if h.StackSize != StackSize {
		t.Fatalf("unexpected stack size: %d", h.StackSize)
	}

	if h.StackTop <= h.DMA.CPUBase {
		t.Fatalf("expected stack region to follow DMA region")
	}

	if h.HeapSize != HeapSize {
		t.Fatalf("unexpected heap size: %d", h.HeapSize)
	}

	if h.HeapBase < h.StackTop {
		t.Fatalf("expected heap region to follow stack region")
	}
}

func TestExitRetriesOnStaleMapKey(t *testing.T) {
	bs := &fakeBootServices{badKeyOnce: true}

	if err := Exit(bs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if bs.exitCalls != 2 {
		t.Fatalf("expected a retry, got %d calls", bs.exitCalls)
	}
}
