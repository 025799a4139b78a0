// AHCI block device driver
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ahci implements a minimal single-port AHCI driver as an
// internal/blockio.BlockDevice, following the same brutal-reset-and-poll
// idiom as soc/intel/e1000e (component F) at AHCI's much smaller register
// surface: HBA global control, a single port's command/status registers,
// its command-list and FIS-receive DMA pointers, and the command-slot
// issue bitmask. No pack driver targets AHCI; this follows the general
// shape of PCI BAR-mapped command-list hardware the teacher's PCI/MMIO
// primitives already support.
package ahci

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/usbarmory/morpheusx/dma"
	"github.com/usbarmory/morpheusx/internal/blockio"
	"github.com/usbarmory/morpheusx/internal/reg"
	"github.com/usbarmory/morpheusx/internal/tsc"
)

// HBA (host bus adapter) global registers, offsets from the ABAR (BAR5).
const (
	hbaCap    = 0x00
	hbaGhc    = 0x04
	hbaIs     = 0x08
	hbaPi     = 0x0c
	hbaVs     = 0x10
	portBase  = 0x100
	portStep  = 0x80
)

// Port registers, offsets from portBase+n*portStep.
const (
	portClb  = 0x00
	portClbu = 0x04
	portFb   = 0x08
	portFbu  = 0x0c
	portIs   = 0x10
	portIe   = 0x14
	portCmd  = 0x18
	portTfd  = 0x20
	portSig  = 0x24
	portSsts = 0x28
	portSctl = 0x2c
	portSerr = 0x30
	portCi   = 0x38
)

// HBA.GHC bits
const (
	ghcHR  = 1 << 0
	ghcIE  = 1 << 1
	ghcAE  = 1 << 31
)

// Port.CMD bits
const (
	cmdST  = 1 << 0
	cmdFRE = 1 << 4
	cmdFR  = 1 << 14
	cmdCR  = 1 << 15
)

const (
	clSlots  = 32
	clSize   = 32 // bytes per command header
	fisSize  = 256
	ctbaSize = 256 // command table per slot, no PRDT entries beyond one

	sectorSize = 512
)

var (
	ErrResetTimeout = errors.New("ahci: HBA reset timed out")
	ErrNoDevice     = errors.New("ahci: no device present on port")
	ErrTagBusy      = errors.New("ahci: command slot busy")
)

// Driver drives a single AHCI port.
type Driver struct {
	base  uint32 // ABAR MMIO base
	port  int
	clock tsc.Clock

	clAddr  uint
	clBuf   []byte
	fisAddr uint

	ctAddr []uint
	ctBuf  [][]byte

	pending map[int]int // slot -> caller tag

	blockCount uint64
}

// New constructs a driver bound to one AHCI port.
func New(abar uint32, port int, clock tsc.Clock) *Driver {
	return &Driver{base: abar, port: port, clock: clock, pending: map[int]int{}}
}

func (d *Driver) portOff(off uint32) uint32 {
	return portBase + uint32(d.port)*portStep + off
}

func (d *Driver) rd(off uint32) uint32 {
	return reg.Read(d.base + off)
}

func (d *Driver) wr(off uint32, val uint32) {
	reg.Write(d.base+off, val)
}

// Init performs HBA reset, port command engine start, and command
// list/FIS DMA setup, mirroring e1000e's reset-then-rebuild-rings
// structure at AHCI's smaller register set.
func (d *Driver) Init() error {
	d.wr(hbaGhc, d.rd(hbaGhc)|ghcAE)

	d.wr(hbaGhc, d.rd(hbaGhc)|ghcHR)

	deadline := d.clock.After(1 * time.Second)
	for d.rd(hbaGhc)&ghcHR != 0 {
		if deadline.Expired() {
			return ErrResetTimeout
		}
	}

	if d.rd(hbaPi)&(1<<uint(d.port)) == 0 {
		return ErrNoDevice
	}

	d.stopCommandEngine()

	clAddr, clBuf := dma.Reserve(clSlots*clSize, 1024)
	d.clAddr = clAddr
	d.clBuf = clBuf

	fisAddr, _ := dma.Reserve(fisSize, 256)
	d.fisAddr = fisAddr

	d.ctAddr = make([]uint, clSlots)
	d.ctBuf = make([][]byte, clSlots)

	for i := 0; i < clSlots; i++ {
		addr, buf := dma.Reserve(ctbaSize, 128)
		d.ctAddr[i] = addr
		d.ctBuf[i] = buf

		off := i * clSize
		binary.LittleEndian.PutUint64(d.clBuf[off:], uint64(addr))
	}

	d.wr(d.portOff(portClb), uint32(clAddr))
	d.wr(d.portOff(portClbu), uint32(uint64(clAddr)>>32))
	d.wr(d.portOff(portFb), uint32(fisAddr))
	d.wr(d.portOff(portFbu), uint32(uint64(fisAddr)>>32))

	d.startCommandEngine()

	return nil
}

func (d *Driver) stopCommandEngine() {
	cmd := d.rd(d.portOff(portCmd))
	cmd &^= cmdST
	d.wr(d.portOff(portCmd), cmd)

	deadline := d.clock.After(500 * time.Millisecond)
	for d.rd(d.portOff(portCmd))&cmdCR != 0 {
		if deadline.Expired() {
			break
		}
	}

	cmd = d.rd(d.portOff(portCmd))
	cmd &^= cmdFRE
	d.wr(d.portOff(portCmd), cmd)
}

func (d *Driver) startCommandEngine() {
	cmd := d.rd(d.portOff(portCmd))
	cmd |= cmdFRE
	d.wr(d.portOff(portCmd), cmd)

	cmd |= cmdST
	d.wr(d.portOff(portCmd), cmd)
}

// Info implements blockio.BlockDevice.
func (d *Driver) Info() blockio.Info {
	return blockio.Info{BlockSize: sectorSize, BlockCount: d.blockCount}
}

// CanSubmit implements blockio.BlockDevice.
func (d *Driver) CanSubmit() bool {
	ci := d.rd(d.portOff(portCi))
	return ci != 0xffffffff
}

func (d *Driver) freeSlot() (int, error) {
	ci := d.rd(d.portOff(portCi))

	for i := 0; i < clSlots; i++ {
		if ci&(1<<uint(i)) == 0 {
			if _, busy := d.pending[i]; !busy {
				return i, nil
			}
		}
	}

	return 0, ErrTagBusy
}

func (d *Driver) issue(tag int, write bool, lba uint64, buf []byte) error {
	slot, err := d.freeSlot()
	if err != nil {
		return err
	}

	ct := d.ctBuf[slot]

	cfis := ct[0:20]
	cfis[0] = 0x27 // Register FIS - host to device
	cfis[1] = 0x80 // C bit set (command)
	if write {
		cfis[2] = 0x35 // WRITE DMA EXT
	} else {
		cfis[2] = 0x25 // READ DMA EXT
	}
	binary.LittleEndian.PutUint32(cfis[4:8], uint32(lba&0xffffff))
	cfis[7] = 1 << 6 // LBA mode
	cfis[8] = byte(lba >> 24)
	binary.LittleEndian.PutUint16(cfis[12:14], uint16(len(buf)/sectorSize))

	off := slot * clSize
	binary.LittleEndian.PutUint16(d.clBuf[off:], 5) // CFIS length in dwords
	if write {
		d.clBuf[off+1] |= 1 << 6 // Write bit
	}

	d.pending[slot] = tag

	d.wr(d.portOff(portCi), d.rd(d.portOff(portCi))|(1<<uint(slot)))

	return nil
}

// SubmitRead implements blockio.BlockDevice.
func (d *Driver) SubmitRead(tag int, lba uint64, buf []byte) error {
	return d.issue(tag, false, lba, buf)
}

// SubmitWrite implements blockio.BlockDevice.
func (d *Driver) SubmitWrite(tag int, lba uint64, buf []byte) error {
	return d.issue(tag, true, lba, buf)
}

// SubmitFlush implements blockio.BlockDevice.
func (d *Driver) SubmitFlush(tag int) error {
	slot, err := d.freeSlot()
	if err != nil {
		return err
	}

	ct := d.ctBuf[slot]
	cfis := ct[0:20]
	cfis[0] = 0x27
	cfis[1] = 0x80
	cfis[2] = 0xea // FLUSH CACHE EXT

	d.pending[slot] = tag
	d.wr(d.portOff(portCi), d.rd(d.portOff(portCi))|(1<<uint(slot)))

	return nil
}

// Notify is a no-op for AHCI: writing PxCI already signals the HBA.
func (d *Driver) Notify() {}

// PollCompletion implements blockio.BlockDevice.
func (d *Driver) PollCompletion() (blockio.Completion, bool) {
	ci := d.rd(d.portOff(portCi))

	for slot, tag := range d.pending {
		if ci&(1<<uint(slot)) == 0 {
			delete(d.pending, slot)

			var err error
			if d.rd(d.portOff(portTfd))&0x01 != 0 {
				err = errors.New("ahci: task file error")
			}

			return blockio.Completion{Tag: tag, Err: err}, true
		}
	}

	return blockio.Completion{}, false
}


