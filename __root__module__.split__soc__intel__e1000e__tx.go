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
	"github.com/usbarmory/morpheusx/internal/reg"
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
type TxRing struct {
	base    uint32
	count   int
	bufSize int

	descAddr uint
	descBuf  []byte

	bufAddr []uint
	buf     [][]byte

	head int
	tail int
}

// NewTxRing allocates and programs a fresh transmit descriptor ring.
func NewTxRing(mmioBase uint32, count int, bufSize int) (r *TxRing, err error) {
	r = &TxRing{
		base:    mmioBase,
		count:   count,
		bufSize: bufSize,
	}

	descAddr, descBuf := dma.Reserve(count*txDescSize, 16)
	r.descAddr = descAddr
	r.descBuf = descBuf

	r.bufAddr = make([]uint, count)
	r.buf = make([][]byte, count)

	for i := 0; i < count; i++ {
		addr, buf := dma.Reserve(bufSize, 0)
		r.bufAddr[i] = addr
		r.buf[i] = buf
	}

	reg.Write(mmioBase+TDBAL, uint32(descAddr))
	reg.Write(mmioBase+TDBAH, uint32(uint64(descAddr)>>32))
	reg.Write(mmioBase+TDLEN, uint32(count*txDescSize))
	reg.Write(mmioBase+TDH, 0)
	reg.Write(mmioBase+TDT, 0)

	txdctl := reg.Read(mmioBase + TXDCTL)
	reg.Write(mmioBase+TXDCTL, txdctl|XDCTL_QUEUE_ENABLE)

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
	copy(r.buf[i], frame)

	off := r.descOffset(i)
	binary.LittleEndian.PutUint64(r.descBuf[off:], uint64(r.bufAddr[i]))
	binary.LittleEndian.PutUint16(r.descBuf[off+8:], uint16(len(frame)))
	r.descBuf[off+10] = 0 // CSO
	r.descBuf[off+11] = TXD_CMD_EOP | TXD_CMD_IFCS | TXD_CMD_RS
	r.descBuf[off+12] = 0 // STA, cleared until device writes back

	r.tail = next
	reg.Write(r.base+TDT, uint32(r.tail))

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

		r.head = (r.head + 1) % r.count
		n++
	}

	return
}


