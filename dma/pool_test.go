// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import (
	"testing"
	"unsafe"
)

func newTestRegion(t *testing.T, size int) *Region {
	t.Helper()

	backing := make([]byte, size)
	start := uint(uintptr(unsafe.Pointer(&backing[0])))

	r, err := NewRegion(start, size, false)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}

	return r
}

func TestBufferPoolLifecycle(t *testing.T) {
	r := newTestRegion(t, 4096)

	p, err := NewBufferPool(r, 4, 128, 0)
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}

	if p.Len() != 4 {
		t.Fatalf("Len: got %d, want 4", p.Len())
	}

	for i := 0; i < p.Len(); i++ {
		state, err := p.State(i)
		if err != nil {
			t.Fatalf("State(%d): %v", i, err)
		}
		if state != FreeBuffer {
			t.Fatalf("State(%d): got %v, want FreeBuffer", i, state)
		}
	}

	if err := p.SubmitToDevice(0); err != nil {
		t.Fatalf("SubmitToDevice: %v", err)
	}

	if state, _ := p.State(0); state != SubmittedToDevice {
		t.Fatalf("after SubmitToDevice: got %v, want SubmittedToDevice", state)
	}

	if err := p.TakeFromDevice(0); err != nil {
		t.Fatalf("TakeFromDevice: %v", err)
	}

	if state, _ := p.State(0); state != CpuOwned {
		t.Fatalf("after TakeFromDevice: got %v, want CpuOwned", state)
	}

	if err := p.Release(0); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if state, _ := p.State(0); state != FreeBuffer {
		t.Fatalf("after Release: got %v, want FreeBuffer", state)
	}
}

// TestBufferPoolRejectsOutOfOrderTransitions asserts the invariant every
// ring built on BufferPool relies on: a buffer can never skip a state, or
// move backwards, without an explicit matching transition call.
func TestBufferPoolRejectsOutOfOrderTransitions(t *testing.T) {
	r := newTestRegion(t, 4096)

	p, err := NewBufferPool(r, 2, 64, 0)
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}

	cases := []struct {
		name string
		call func() error
	}{
		{"TakeFromDevice from Free", func() error { return p.TakeFromDevice(0) }},
		{"Release from Free", func() error { return p.Release(0) }},
	}

	for _, c := range cases {
		if err := c.call(); err != ErrInvalidTransition {
			t.Fatalf("%s: got %v, want ErrInvalidTransition", c.name, err)
		}
	}

	if err := p.SubmitToDevice(0); err != nil {
		t.Fatalf("SubmitToDevice: %v", err)
	}

	// now SubmittedToDevice: a second SubmitToDevice and a premature
	// Release must both be rejected.
	if err := p.SubmitToDevice(0); err != ErrInvalidTransition {
		t.Fatalf("double SubmitToDevice: got %v, want ErrInvalidTransition", err)
	}

	if err := p.Release(0); err != ErrInvalidTransition {
		t.Fatalf("Release from SubmittedToDevice: got %v, want ErrInvalidTransition", err)
	}
}

func TestBufferPoolInvalidIndex(t *testing.T) {
	r := newTestRegion(t, 4096)

	p, err := NewBufferPool(r, 2, 64, 0)
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}

	if _, err := p.Addr(2); err != ErrInvalidIndex {
		t.Fatalf("Addr(2): got %v, want ErrInvalidIndex", err)
	}

	if _, err := p.Buf(-1); err != ErrInvalidIndex {
		t.Fatalf("Buf(-1): got %v, want ErrInvalidIndex", err)
	}

	if err := p.SubmitToDevice(5); err != ErrInvalidIndex {
		t.Fatalf("SubmitToDevice(5): got %v, want ErrInvalidIndex", err)
	}
}

// TestBufferPoolBuffersAreDistinct confirms each slot gets its own
// non-overlapping region of the backing memory, since RxRing/TxRing rely on
// writing one slot never clobbering another.
func TestBufferPoolBuffersAreDistinct(t *testing.T) {
	r := newTestRegion(t, 4096)

	p, err := NewBufferPool(r, 3, 64, 0)
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}

	for i := 0; i < p.Len(); i++ {
		buf, err := p.Buf(i)
		if err != nil {
			t.Fatalf("Buf(%d): %v", i, err)
		}
		for j := range buf {
			buf[j] = byte(i + 1)
		}
	}

	for i := 0; i < p.Len(); i++ {
		buf, _ := p.Buf(i)
		for j, b := range buf {
			if b != byte(i+1) {
				t.Fatalf("buffer %d overwritten at offset %d: got %d, want %d", i, j, b, i+1)
			}
		}
	}
}
