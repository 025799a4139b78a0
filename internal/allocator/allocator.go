// Hybrid pre/post-ExitBootServices allocator
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package allocator provides a single allocation surface that works on
// both sides of ExitBootServices: before the boundary it delegates to the
// firmware's pool allocator; the instant ExitBootServices succeeds, a
// one-way atomic flip switches every subsequent call to a locked
// first-fit heap over a static region the firmware phase reserved for
// exactly this purpose. No code above this package needs to know which
// side of the boundary it is running on.
package allocator

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/usbarmory/morpheusx/dma"
)

var ErrOutOfMemory = errors.New("allocator: out of memory")

// FirmwareAllocator is the minimal pool-allocation surface the firmware
// phase needs; boot/firmware provides the concrete implementation over
// its own BootServices interface rather than a vendor binding (see
// DESIGN.md's firmware-phase entry for why).
type FirmwareAllocator interface {
	AllocatePool(size int) ([]byte, error)
	FreePool(buf []byte) error
}

// Allocator is the hybrid allocation surface used throughout the
// bootloader. Before Flip is called it forwards to the firmware
// allocator; after, it serves from a locked heap over a static region.
type Allocator struct {
	exited atomic.Bool

	fw FirmwareAllocator

	mu     sync.Mutex
	region *dma.Region
}

// New constructs an Allocator delegating to fw until Flip is called.
func New(fw FirmwareAllocator) *Allocator {
	return &Allocator{fw: fw}
}

// Flip performs the one-way switch from firmware-pool allocation to the
// static post-exit heap. It must be called exactly once, immediately
// after ExitBootServices succeeds, with the region the firmware phase
// reserved beforehand (sized and located while BootServices were still
// available). Calling Flip twice is a programming error and panics,
// since a second flip would silently orphan whatever the heap already
// holds.
func (a *Allocator) Flip(start uint, size int) {
	if !a.exited.CompareAndSwap(false, true) {
		panic("allocator: Flip called more than once")
	}

	r, err := dma.NewRegion(start, size, true)
	if err != nil {
		panic(err)
	}

	a.mu.Lock()
	a.region = r
	a.mu.Unlock()
}

// Alloc returns a zero-initialized buffer of the requested size.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if !a.exited.Load() {
		return a.fw.AllocatePool(size)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	addr, buf := a.region.Reserve(size, 0)

	if addr == 0 && size != 0 {
		return nil, ErrOutOfMemory
	}

	for i := range buf {
		buf[i] = 0
	}

	return buf, nil
}

// Free releases a buffer previously returned by Alloc.
func (a *Allocator) Free(buf []byte) error {
	if !a.exited.Load() {
		return a.fw.FreePool(buf)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if res, addr := a.region.Reserved(buf); res {
		a.region.Release(addr)
	}

	return nil
}

// Exited reports whether the allocator has flipped to the post-exit heap.
func (a *Allocator) Exited() bool {
	return a.exited.Load()
}
