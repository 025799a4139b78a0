// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma provides primitives for direct memory allocation and
// alignment, used throughout device driver operation to avoid passing Go
// pointers for DMA purposes.
//
// This package is only meant to be used with `GOOS=tamago` as supported by
// the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/morpheusx.
package dma

import (
	"container/list"
	"errors"
	"sync"
)

var (
	regionsMu sync.Mutex
	regions   = map[uint]*Region{}
)

// Init initializes the global memory region for DMA buffer allocation, the
// application must guarantee that the passed memory range is never used by
// the Go runtime (defining runtime.ramStart and runtime.ramSize
// accordingly).
//
// The global region backs every package-level Reserve/Alloc/Read/Write call.
// Separate regions, such as fixed device register windows, are created with
// NewRegion instead.
func Init(start uint, size int) {
	dma = &Region{
		start: start,
		size:  uint(size),
	}

	dma.freeBlocks = list.New()
	dma.freeBlocks.PushFront(&block{addr: start, size: uint(size)})
	dma.usedBlocks = make(map[uint]*block)
}

// NewRegion creates a Region over a fixed memory window, such as a device's
// MMIO register range, distinct from the global DMA pool. When unique is
// true a previously created Region for the same start address is returned
// instead of a fresh one, so that repeated probes of the same device window
// (e.g. MSI-X table entries re-derived from BAR offsets on every call) share
// one allocator instance rather than double-booking its blocks.
func NewRegion(start uint, size int, unique bool) (r *Region, err error) {
	if size <= 0 {
		return nil, errors.New("dma: invalid region size")
	}

	if unique {
		regionsMu.Lock()
		defer regionsMu.Unlock()

		if existing, ok := regions[start]; ok {
			return existing, nil
		}
	}

	r = &Region{
		start: start,
		size:  uint(size),
	}

	r.freeBlocks = list.New()
	r.freeBlocks.PushFront(&block{addr: start, size: uint(size)})
	r.usedBlocks = make(map[uint]*block)

	if unique {
		regions[start] = r
	}

	return r, nil
}

// Reserve is the equivalent of Region.Reserve() on the global DMA region.
func Reserve(size int, align int) (addr uint, buf []byte) {
	return dma.Reserve(size, align)
}

// Reserved is the equivalent of Region.Reserved() on the global DMA region.
func Reserved(buf []byte) (res bool, addr uint) {
	return dma.Reserved(buf)
}

// Alloc is the equivalent of Region.Alloc() on the global DMA region.
func Alloc(buf []byte, align int) (addr uint) {
	return dma.Alloc(buf, align)
}

// Read is the equivalent of Region.Read() on the global DMA region.
func Read(addr uint, off int, buf []byte) {
	dma.Read(addr, off, buf)
}

// Write is the equivalent of Region.Write() on the global DMA region.
func Write(addr uint, off int, buf []byte) {
	dma.Write(addr, off, buf)
}

// Free is the equivalent of Region.Free() on the global DMA region.
func Free(addr uint) {
	dma.Free(addr)
}

// Release is the equivalent of Region.Release() on the global DMA region.
func Release(addr uint) {
	dma.Release(addr)
}


