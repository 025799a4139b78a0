// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package e1000e

import (
	"encoding/binary"
	"errors"

	"github.com/usbarmory/morpheusx/dma"
)

// legacy receive descriptor layout (82579 Datasheet §7.1.5)
//
//	0:8   buffer address
//	8:10  length
//	10:12 checksum
//	12    status
//	13    errors
//	14:16 special
const rxDescSize = 16

var ErrRingFull = errors.New("e1000e: descriptor ring full")

// RxRing manages the receive descriptor ring and its backing DMA buffers.
// Every buffer slot is tracked through dma.BufferPool: SubmittedToDevice
// while posted as a receive descriptor, CpuOwned only for the duration of
// Poll's copy-out, then immediately resubmitted.
type RxRing struct {
	regs    mmio
	base    uint32
	count   int
	bufSize int

	descAddr uint
	descBuf  []byte

	pool *dma.BufferPool

	next int
}

// NewRxRing allocates and programs a fresh receive descriptor ring.
func NewRxRing(regs mmio, mmioBase uint32, count int, bufSize int) (r *RxRing, err error) {
	r = &RxRing{
		regs:    regs,
		base:    mmioBase,
		count:   count,
		bufSize: bufSize,
	}

	descAddr, descBuf := dma.Reserve(count*rxDescSize, 16)
	r.descAddr = descAddr
	r.descBuf = descBuf

	pool, err := dma.NewBufferPool(dma.Default(), count, bufSize, 0)
	if err != nil {
		return nil, err
	}
	r.pool = pool

	for i := 0; i < count; i++ {
		addr, err := pool.Addr(i)
		if err != nil {
			return nil, err
		}

		r.writeDescAddr(i, addr)

		// every receive buffer is posted to the device up front, so
		// mark it submitted rather than leaving it Free.
		if err := pool.SubmitToDevice(i); err != nil {
			return nil, err
		}
	}

	regs.Write(mmioBase+RDBAL, uint32(descAddr))
	regs.Write(mmioBase+RDBAH, uint32(uint64(descAddr)>>32))
	regs.Write(mmioBase+RDLEN, uint32(count*rxDescSize))
	regs.Write(mmioBase+RDH, 0)
	regs.Write(mmioBase+RDT, uint32(count-1))

	rxdctl := regs.Read(mmioBase + RXDCTL)
	regs.Write(mmioBase+RXDCTL, rxdctl|XDCTL_QUEUE_ENABLE)

	return r, nil
}

func (r *RxRing) descOffset(i int) int {
	return i * rxDescSize
}

func (r *RxRing) writeDescAddr(i int, addr uint) {
	off := r.descOffset(i)
	binary.LittleEndian.PutUint64(r.descBuf[off:], uint64(addr))
	r.descBuf[off+8] = 0  // length lo
	r.descBuf[off+9] = 0  // length hi
	r.descBuf[off+12] = 0 // status
	r.descBuf[off+13] = 0 // errors
}

// Poll returns the next completed received frame, if any. It returns (nil,
// nil) when the ring head has no completed descriptor pending.
func (r *RxRing) Poll() ([]byte, error) {
	off := r.descOffset(r.next)
	status := r.descBuf[off+12]

	if status&RXD_STA_DD == 0 {
		return nil, nil
	}

	errs := r.descBuf[off+13]
	length := binary.LittleEndian.Uint16(r.descBuf[off+8:])

	i := r.next
	r.next = (r.next + 1) % r.count

	if err := r.pool.TakeFromDevice(i); err != nil {
		panic(err)
	}

	if errs&RXD_ERR_FATAL != 0 {
		r.recycle(i)
		return nil, nil
	}

	buf, err := r.pool.Buf(i)
	if err != nil {
		panic(err)
	}

	frame := make([]byte, length)
	copy(frame, buf[:length])

	r.recycle(i)

	return frame, nil
}

// recycle clears a consumed descriptor's status, returns the buffer to
// the pool and immediately reposts it, and advances the tail pointer so
// the device may reuse it.
func (r *RxRing) recycle(i int) {
	off := r.descOffset(i)
	r.descBuf[off+12] = 0
	r.descBuf[off+13] = 0

	if err := r.pool.Release(i); err != nil {
		panic(err)
	}

	if err := r.pool.SubmitToDevice(i); err != nil {
		panic(err)
	}

	r.regs.Write(r.base+RDT, uint32(i))
}
