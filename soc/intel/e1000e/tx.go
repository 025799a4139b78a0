// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package e1000e

import (
	"encoding/binary"

	"github.com/usbarmory/morpheusx/dma"
)

// legacy transmit descriptor layout (82579 Datasheet §7.2.3)
//
//	0:8   buffer address
//	8:10  length
//	10    CSO
//	11    CMD
//	12    STA
//	13    CSS
//	14:16 special
const txDescSize = 16

// TxRing manages the transmit descriptor ring and its backing DMA buffers.
// Every buffer slot is tracked through dma.BufferPool: Free until Submit
// hands it to the device, SubmittedToDevice until Reclaim observes the
// completion bit, then Free again.
type TxRing struct {
	regs    mmio
	base    uint32
	count   int
	bufSize int

	descAddr uint
	descBuf  []byte

	pool *dma.BufferPool

	head int
	tail int
}

// NewTxRing allocates and programs a fresh transmit descriptor ring.
func NewTxRing(regs mmio, mmioBase uint32, count int, bufSize int) (r *TxRing, err error) {
	r = &TxRing{
		regs:    regs,
		base:    mmioBase,
		count:   count,
		bufSize: bufSize,
	}

	descAddr, descBuf := dma.Reserve(count*txDescSize, 16)
	r.descAddr = descAddr
	r.descBuf = descBuf

	pool, err := dma.NewBufferPool(dma.Default(), count, bufSize, 0)
	if err != nil {
		return nil, err
	}
	r.pool = pool

	regs.Write(mmioBase+TDBAL, uint32(descAddr))
	regs.Write(mmioBase+TDBAH, uint32(uint64(descAddr)>>32))
	regs.Write(mmioBase+TDLEN, uint32(count*txDescSize))
	regs.Write(mmioBase+TDH, 0)
	regs.Write(mmioBase+TDT, 0)

	txdctl := regs.Read(mmioBase + TXDCTL)
	regs.Write(mmioBase+TXDCTL, txdctl|XDCTL_QUEUE_ENABLE)

	return r, nil
}

func (r *TxRing) descOffset(i int) int {
	return i * txDescSize
}

// Submit copies a frame into the next free transmit buffer and hands its
// descriptor to the device, marking it end-of-packet with a requested
// completion status write-back.
func (r *TxRing) Submit(frame []byte) error {
	if len(frame) > r.bufSize {
		return ErrFrameTooLarge
	}

	next := (r.tail + 1) % r.count
	if next == r.head {
		return ErrRingFull
	}

	i := r.tail

	buf, err := r.pool.Buf(i)
	if err != nil {
		return err
	}
	copy(buf, frame)

	addr, err := r.pool.Addr(i)
	if err != nil {
		return err
	}

	off := r.descOffset(i)
	binary.LittleEndian.PutUint64(r.descBuf[off:], uint64(addr))
	binary.LittleEndian.PutUint16(r.descBuf[off+8:], uint16(len(frame)))
	r.descBuf[off+10] = 0 // CSO
	r.descBuf[off+11] = TXD_CMD_EOP | TXD_CMD_IFCS | TXD_CMD_RS
	r.descBuf[off+12] = 0 // STA, cleared until device writes back

	if err := r.pool.SubmitToDevice(i); err != nil {
		return err
	}

	r.tail = next
	r.regs.Write(r.base+TDT, uint32(r.tail))

	return nil
}

// Reclaim advances the ring head past descriptors the device has marked
// done, returning the number reclaimed.
func (r *TxRing) Reclaim() (n int) {
	for r.head != r.tail {
		off := r.descOffset(r.head)

		if r.descBuf[off+12]&TXD_STA_DD == 0 {
			break
		}

		if err := r.pool.TakeFromDevice(r.head); err != nil {
			panic(err)
		}
		if err := r.pool.Release(r.head); err != nil {
			panic(err)
		}

		r.head = (r.head + 1) % r.count
		n++
	}

	return
}
