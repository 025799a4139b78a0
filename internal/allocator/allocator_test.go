// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package allocator

import (
	"runtime"
	"testing"
	"unsafe"
)

type fakeFirmware struct {
	allocated int
}

func (f *fakeFirmware) AllocatePool(size int) ([]byte, error) {
	f.allocated++
	return make([]byte, size), nil
}

func (f *fakeFirmware) FreePool(buf []byte) error {
	f.allocated--
	return nil
}

func TestPreExitDelegatesToFirmware(t *testing.T) {
	fw := &fakeFirmware{}
	a := New(fw)

	buf, err := a.Alloc(64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(buf) != 64 {
		t.Fatalf("unexpected buffer length: %d", len(buf))
	}

	if fw.allocated != 1 {
		t.Fatalf("expected firmware allocator to be used")
	}
}

func TestFlipSwitchesToStaticHeap(t *testing.T) {
	fw := &fakeFirmware{}
	a := New(fw)

	heap := make([]byte, 1<<20)
	a.Flip(uint(uintptr(unsafe.Pointer(&heap[0]))), len(heap))

	if !a.Exited() {
		t.Fatalf("expected Exited to be true after Flip")
	}

	buf, err := a.Alloc(128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(buf) != 128 {
		t.Fatalf("unexpected buffer length: %d", len(buf))
	}

	if fw.allocated != 0 {
		t.Fatalf("firmware allocator must not be used after Flip")
	}

	if err := a.Free(buf); err != nil {
		t.Fatalf("unexpected error freeing: %v", err)
	}

	runtime.KeepAlive(heap)
}

func TestFlipTwicePanics(t *testing.T) {
	a := New(&fakeFirmware{})
	a.Flip(0x9000_0000, 1<<20)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on second Flip")
		}
	}()

	a.Flip(0x9100_0000, 1<<20)
}
