// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ahci

import (
	"encoding/binary"
	"sync"
	"testing"
	"unsafe"

	"github.com/usbarmory/morpheusx/dma"
	"github.com/usbarmory/morpheusx/internal/tsc"
)

// fakeMMIO simulates just enough HBA behavior for Init to complete: a
// global host reset (GHC.HR) is modeled as self-clearing, the way real
// hardware acknowledges the reset is done, and the command engine's busy
// bits start low so stopCommandEngine's poll loop does not spin forever.
type fakeMMIO struct {
	mu   sync.Mutex
	vals map[uint32]uint32
}

func newFakeMMIO() *fakeMMIO {
	return &fakeMMIO{vals: make(map[uint32]uint32)}
}

func (f *fakeMMIO) Read(addr uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vals[addr]
}

func (f *fakeMMIO) Write(addr uint32, val uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if addr == hbaGhc && val&ghcHR != 0 {
		val &^= ghcHR
	}

	f.vals[addr] = val
}

func initTestDMA(t *testing.T) {
	t.Helper()

	backing := make([]byte, 1<<20)
	dma.Init(uint(uintptr(unsafe.Pointer(&backing[0]))), len(backing))
}

func newTestDriver(t *testing.T, port int) (*Driver, *fakeMMIO) {
	t.Helper()

	initTestDMA(t)

	regs := newFakeMMIO()
	regs.Write(hbaPi, 1<<uint(port))

	d := newDriver(0, port, tsc.Clock{FreqHz: 1_000_000_000}, regs)

	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	return d, regs
}

func TestInitNoDevicePresent(t *testing.T) {
	initTestDMA(t)

	regs := newFakeMMIO()
	// hbaPi left at zero: no port has a device attached.

	d := newDriver(0, 0, tsc.Clock{FreqHz: 1_000_000_000}, regs)

	if err := d.Init(); err != ErrNoDevice {
		t.Fatalf("Init with no device present: got %v, want ErrNoDevice", err)
	}
}

func TestInitProgramsCommandListAndFISPointers(t *testing.T) {
	d, regs := newTestDriver(t, 0)

	clLo := regs.Read(d.portOff(portClb))
	clHi := regs.Read(d.portOff(portClbu))
	fbLo := regs.Read(d.portOff(portFb))
	fbHi := regs.Read(d.portOff(portFbu))

	clAddr := uint64(clHi)<<32 | uint64(clLo)
	fbAddr := uint64(fbHi)<<32 | uint64(fbLo)

	if clAddr != uint64(d.clAddr) {
		t.Fatalf("command list base: got %#x, want %#x", clAddr, d.clAddr)
	}

	if fbAddr != uint64(d.fisAddr) {
		t.Fatalf("FIS base: got %#x, want %#x", fbAddr, d.fisAddr)
	}

	cmd := regs.Read(d.portOff(portCmd))
	if cmd&cmdFRE == 0 || cmd&cmdST == 0 {
		t.Fatalf("command engine not started after Init: PxCMD=%#x", cmd)
	}
}

func TestFreeSlotSkipsBusyAndPendingSlots(t *testing.T) {
	d, regs := newTestDriver(t, 0)

	// mark slot 0 busy at the hardware level (PxCI bit set).
	regs.Write(d.portOff(portCi), 1<<0)
	// mark slot 1 pending at the driver level, even though hardware
	// hasn't (yet) reflected it in PxCI.
	d.pending[1] = 42

	slot, err := d.freeSlot()
	if err != nil {
		t.Fatalf("freeSlot: %v", err)
	}
	if slot != 2 {
		t.Fatalf("freeSlot: got %d, want 2 (slots 0 and 1 are taken)", slot)
	}
}

func TestFreeSlotAllBusyReturnsErrTagBusy(t *testing.T) {
	d, regs := newTestDriver(t, 0)

	regs.Write(d.portOff(portCi), 0xffffffff)

	if _, err := d.freeSlot(); err != ErrTagBusy {
		t.Fatalf("freeSlot with all slots busy: got %v, want ErrTagBusy", err)
	}
}

// TestSubmitReadEncodesRegisterFIS confirms issue() builds a valid Register
// FIS (host-to-device) for a READ DMA EXT command, matching the byte layout
// PollCompletion/the HBA would expect to see on the wire.
func TestSubmitReadEncodesRegisterFIS(t *testing.T) {
	d, regs := newTestDriver(t, 0)

	const tag = 7
	const lba = 0x010203
	buf := make([]byte, sectorSize*2)

	if err := d.SubmitRead(tag, lba, buf); err != nil {
		t.Fatalf("SubmitRead: %v", err)
	}

	slot := 0
	cfis := d.ctBuf[slot][0:20]

	if cfis[0] != 0x27 {
		t.Fatalf("FIS type: got %#x, want 0x27 (Register FIS - host to device)", cfis[0])
	}
	if cfis[1]&0x80 == 0 {
		t.Fatalf("C bit not set in byte 1: %#x", cfis[1])
	}
	if cfis[2] != 0x25 {
		t.Fatalf("command: got %#x, want 0x25 (READ DMA EXT)", cfis[2])
	}

	gotLBA := binary.LittleEndian.Uint32(cfis[4:8]) & 0xffffff
	if gotLBA != lba {
		t.Fatalf("LBA low 24 bits: got %#x, want %#x", gotLBA, lba)
	}

	gotCount := binary.LittleEndian.Uint16(cfis[12:14])
	if int(gotCount) != len(buf)/sectorSize {
		t.Fatalf("sector count: got %d, want %d", gotCount, len(buf)/sectorSize)
	}

	// the command header's write bit must be clear for a read.
	clOff := slot * clSize
	if d.clBuf[clOff+1]&(1<<6) != 0 {
		t.Fatalf("command header write bit set for a read command")
	}

	ci := regs.Read(d.portOff(portCi))
	if ci&(1<<uint(slot)) == 0 {
		t.Fatalf("PxCI bit for slot %d not set after SubmitRead", slot)
	}
}

func TestSubmitWriteSetsCommandHeaderWriteBit(t *testing.T) {
	d, _ := newTestDriver(t, 0)

	if err := d.SubmitWrite(1, 0, make([]byte, sectorSize)); err != nil {
		t.Fatalf("SubmitWrite: %v", err)
	}

	cfis := d.ctBuf[0][0:20]
	if cfis[2] != 0x35 {
		t.Fatalf("command: got %#x, want 0x35 (WRITE DMA EXT)", cfis[2])
	}

	if d.clBuf[1]&(1<<6) == 0 {
		t.Fatalf("command header write bit not set for a write command")
	}
}

// TestPollCompletionReportsTaskFileError confirms a completed slot whose
// PxTFD error bit is set surfaces as a non-nil Completion.Err, rather than
// being silently reported as success.
func TestPollCompletionReportsTaskFileError(t *testing.T) {
	d, regs := newTestDriver(t, 0)

	if err := d.SubmitRead(99, 0, make([]byte, sectorSize)); err != nil {
		t.Fatalf("SubmitRead: %v", err)
	}

	// simulate completion: the HBA clears the PxCI bit for the slot.
	regs.Write(d.portOff(portCi), 0)
	regs.Write(d.portOff(portTfd), 0x01)

	completion, ok := d.PollCompletion()
	if !ok {
		t.Fatalf("PollCompletion: expected a completion to be ready")
	}
	if completion.Tag != 99 {
		t.Fatalf("completion tag: got %d, want 99", completion.Tag)
	}
	if completion.Err == nil {
		t.Fatalf("expected a task file error to be reported")
	}
}

func TestPollCompletionNoneReady(t *testing.T) {
	d, regs := newTestDriver(t, 0)

	if err := d.SubmitRead(1, 0, make([]byte, sectorSize)); err != nil {
		t.Fatalf("SubmitRead: %v", err)
	}

	// slot still marked busy in PxCI: no completion yet.
	regs.Write(d.portOff(portCi), 1<<0)

	if _, ok := d.PollCompletion(); ok {
		t.Fatalf("PollCompletion: expected no completion while PxCI bit is still set")
	}
}
