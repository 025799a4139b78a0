// DMA buffer ownership tracking
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import (
	"errors"
	"sync"
)

// BufferState identifies which side of the host/device boundary a pooled
// DMA buffer currently belongs to.
type BufferState int

const (
	// FreeBuffer buffers hold no in-flight data and are available for
	// SubmitToDevice.
	FreeBuffer BufferState = iota
	// SubmittedToDevice buffers are posted to the device (as an RX
	// descriptor awaiting a fill, or a TX descriptor awaiting
	// transmission) and must not be read or written by the CPU until
	// reclaimed.
	SubmittedToDevice
	// CpuOwned buffers have been reclaimed from the device (an RX frame
	// ready to copy out, or a TX slot ready for a new frame) and are
	// not visible to the device until resubmitted.
	CpuOwned
)

var (
	ErrInvalidIndex      = errors.New("dma: buffer index out of range")
	ErrInvalidTransition = errors.New("dma: invalid buffer ownership transition")
)

// BufferPool is a fixed-size set of same-sized DMA buffers, each tracked
// through exactly one of FreeBuffer, SubmittedToDevice, or CpuOwned at every
// moment — the invariant every NIC/block ring built on it relies on to
// never hand the device a buffer the CPU is still writing, or read a
// buffer the device hasn't finished with. It exists alongside Region's
// general-purpose Alloc/Free because ring buffers reuse the same fixed
// slots for the lifetime of the device rather than allocating and freeing
// per packet — only the ownership state cycles.
type BufferPool struct {
	mu sync.Mutex

	addrs []uint
	bufs  [][]byte
	state []BufferState
}

// NewBufferPool reserves count buffers of bufSize bytes each from region,
// all starting FreeBuffer.
func NewBufferPool(region *Region, count, bufSize, align int) (*BufferPool, error) {
	if count <= 0 || bufSize <= 0 {
		return nil, errors.New("dma: invalid buffer pool dimensions")
	}

	p := &BufferPool{
		addrs: make([]uint, count),
		bufs:  make([][]byte, count),
		state: make([]BufferState, count),
	}

	for i := 0; i < count; i++ {
		addr, buf := region.Reserve(bufSize, align)
		p.addrs[i] = addr
		p.bufs[i] = buf
	}

	return p, nil
}

// Len returns the number of buffers in the pool.
func (p *BufferPool) Len() int {
	return len(p.bufs)
}

// Addr returns the DMA address of buffer i, regardless of its state.
func (p *BufferPool) Addr(i int) (uint, error) {
	if i < 0 || i >= len(p.bufs) {
		return 0, ErrInvalidIndex
	}
	return p.addrs[i], nil
}

// Buf returns the backing slice of buffer i, regardless of its state; the
// caller is responsible for only reading/writing it while holding the
// appropriate ownership (CpuOwned to inspect received/write a new frame).
func (p *BufferPool) Buf(i int) ([]byte, error) {
	if i < 0 || i >= len(p.bufs) {
		return nil, ErrInvalidIndex
	}
	return p.bufs[i], nil
}

// State returns the current ownership state of buffer i.
func (p *BufferPool) State(i int) (BufferState, error) {
	if i < 0 || i >= len(p.bufs) {
		return 0, ErrInvalidIndex
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state[i], nil
}

// SubmitToDevice transitions buffer i from FreeBuffer to SubmittedToDevice,
// called just before posting its address to a descriptor the device will
// read from or write to.
func (p *BufferPool) SubmitToDevice(i int) error {
	return p.transition(i, FreeBuffer, SubmittedToDevice)
}

// TakeFromDevice transitions buffer i from SubmittedToDevice to CpuOwned,
// called once the device has marked its descriptor done (RXD_STA_DD /
// TXD_STA_DD) and the CPU may read or overwrite the buffer.
func (p *BufferPool) TakeFromDevice(i int) error {
	return p.transition(i, SubmittedToDevice, CpuOwned)
}

// Release transitions buffer i from CpuOwned back to FreeBuffer, ready for
// reuse by a future SubmitToDevice.
func (p *BufferPool) Release(i int) error {
	return p.transition(i, CpuOwned, FreeBuffer)
}

func (p *BufferPool) transition(i int, from, to BufferState) error {
	if i < 0 || i >= len(p.bufs) {
		return ErrInvalidIndex
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state[i] != from {
		return ErrInvalidTransition
	}

	p.state[i] = to

	return nil
}
