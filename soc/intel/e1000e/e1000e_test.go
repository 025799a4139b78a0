// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package e1000e

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/usbarmory/morpheusx/dma"
	"github.com/usbarmory/morpheusx/internal/tsc"
)

// fakeMMIO is a map-backed mmio used to exercise ring descriptor programming
// and backpressure/reclaim logic without real device memory.
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
	f.vals[addr] = val
}

// initTestDMA backs the global DMA region with a real host buffer, since
// RxRing/TxRing reserve their descriptor rings and buffer pools through it.
func initTestDMA(t *testing.T) {
	t.Helper()

	backing := make([]byte, 1<<20)
	dma.Init(uint(uintptr(unsafe.Pointer(&backing[0]))), len(backing))
}

func TestGenerateFallbackMac(t *testing.T) {
	mac := GenerateFallbackMac(0x1122334455667788)

	if mac[0]&0x01 != 0 {
		t.Fatalf("fallback MAC must not be multicast, got %02x", mac[0])
	}

	if mac[0]&0x02 == 0 {
		t.Fatalf("fallback MAC must be locally administered, got %02x", mac[0])
	}
}

func TestGenerateFallbackMacDeterministic(t *testing.T) {
	a := GenerateFallbackMac(42)
	b := GenerateFallbackMac(42)

	if a != b {
		t.Fatalf("expected deterministic MAC for identical seed, got %x and %x", a, b)
	}

	c := GenerateFallbackMac(43)
	if a == c {
		t.Fatalf("expected distinct MACs for distinct seeds")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(tsc.Clock{FreqHz: 1_000_000_000})

	if cfg.RxQueueSize != DEFAULT_QUEUE_SIZE {
		t.Fatalf("unexpected RX queue size: %d", cfg.RxQueueSize)
	}

	if cfg.BufferSize != DEFAULT_BUFFER_SIZE {
		t.Fatalf("unexpected buffer size: %d", cfg.BufferSize)
	}
}

// TestRegisterBitConstants pins down the datasheet bit positions the ring
// code relies on directly (not just through a named constant), since a typo
// in one of these shifts would silently misprogram real hardware.
func TestRegisterBitConstants(t *testing.T) {
	if XDCTL_QUEUE_ENABLE != 1<<25 {
		t.Fatalf("XDCTL_QUEUE_ENABLE: got %#x, want %#x", XDCTL_QUEUE_ENABLE, 1<<25)
	}

	if TXD_STA_DD != 1<<0 {
		t.Fatalf("TXD_STA_DD: got %#x, want %#x", TXD_STA_DD, 1<<0)
	}

	if RXD_STA_DD != 1<<0 {
		t.Fatalf("RXD_STA_DD: got %#x, want %#x", RXD_STA_DD, 1<<0)
	}

	wantFatal := RXD_ERR_CE | RXD_ERR_SE | RXD_ERR_SEQ | RXD_ERR_RXE
	if RXD_ERR_FATAL != wantFatal {
		t.Fatalf("RXD_ERR_FATAL: got %#x, want %#x", RXD_ERR_FATAL, wantFatal)
	}

	// RXD_ERR_IPE/TCPE/CXE are checksum-offload errors, not link-level
	// corruption, and must stay out of the fatal mask.
	if RXD_ERR_FATAL&(RXD_ERR_IPE|RXD_ERR_TCPE|RXD_ERR_CXE) != 0 {
		t.Fatalf("RXD_ERR_FATAL unexpectedly includes a checksum-offload error bit: %#x", RXD_ERR_FATAL)
	}
}

// TestTxRingSubmitReclaimBackpressure exercises the scenario where the
// device falls behind the driver: Submit must report ErrRingFull once the
// ring wraps onto its head, and Reclaim must only free slots the device has
// actually marked done, unblocking exactly that many further Submits.
func TestTxRingSubmitReclaimBackpressure(t *testing.T) {
	initTestDMA(t)

	const count = 4
	const bufSize = 64

	regs := newFakeMMIO()

	r, err := NewTxRing(regs, 0x1000, count, bufSize)
	if err != nil {
		t.Fatalf("NewTxRing: %v", err)
	}

	frame := []byte("submit me")

	// a ring of count descriptors only ever holds count-1 in flight, since
	// head==tail is reserved to mean empty.
	for i := 0; i < count-1; i++ {
		if err := r.Submit(frame); err != nil {
			t.Fatalf("Submit %d: unexpected error: %v", i, err)
		}
	}

	if err := r.Submit(frame); err != ErrRingFull {
		t.Fatalf("Submit on a full ring: got %v, want ErrRingFull", err)
	}

	if n := r.Reclaim(); n != 0 {
		t.Fatalf("Reclaim before device completion: got %d, want 0", n)
	}

	// simulate the device completing the oldest descriptor (ring head).
	off := r.descOffset(r.head)
	r.descBuf[off+12] |= TXD_STA_DD

	if n := r.Reclaim(); n != 1 {
		t.Fatalf("Reclaim after one completion: got %d, want 1", n)
	}

	if err := r.Submit(frame); err != nil {
		t.Fatalf("Submit after Reclaim freed a slot: unexpected error: %v", err)
	}
}

// TestRxRingPollRoundTrip simulates a device writing a received frame into
// the head descriptor's buffer and marking it done, then confirms Poll
// copies out exactly that frame and reposts the descriptor for reuse.
func TestRxRingPollRoundTrip(t *testing.T) {
	initTestDMA(t)

	const count = 4
	const bufSize = 64

	regs := newFakeMMIO()

	r, err := NewRxRing(regs, 0x2000, count, bufSize)
	if err != nil {
		t.Fatalf("NewRxRing: %v", err)
	}

	if got, err := r.Poll(); err != nil || got != nil {
		t.Fatalf("Poll with no completed descriptor: got (%v, %v), want (nil, nil)", got, err)
	}

	payload := []byte("received frame")

	buf, err := r.pool.Buf(r.next)
	if err != nil {
		t.Fatalf("pool.Buf: %v", err)
	}
	copy(buf, payload)

	off := r.descOffset(r.next)
	r.descBuf[off+8] = byte(len(payload))
	r.descBuf[off+9] = byte(len(payload) >> 8)
	r.descBuf[off+12] = RXD_STA_DD | RXD_STA_EOP

	got, err := r.Poll()
	if err != nil {
		t.Fatalf("Poll: unexpected error: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Poll: got %q, want %q", got, payload)
	}

	if state, _ := r.pool.State(0); state != dma.SubmittedToDevice {
		t.Fatalf("after Poll, recycled buffer state: got %v, want SubmittedToDevice", state)
	}

	if got, err := r.Poll(); err != nil || got != nil {
		t.Fatalf("Poll immediately after recycle: got (%v, %v), want (nil, nil)", got, err)
	}
}

// TestRxRingPollDropsFatalErrors confirms a descriptor marked done but with
// a fatal error bit set is recycled without handing a frame to the caller.
func TestRxRingPollDropsFatalErrors(t *testing.T) {
	initTestDMA(t)

	r, err := NewRxRing(newFakeMMIO(), 0x3000, 4, 64)
	if err != nil {
		t.Fatalf("NewRxRing: %v", err)
	}

	off := r.descOffset(r.next)
	r.descBuf[off+12] = RXD_STA_DD
	r.descBuf[off+13] = RXD_ERR_SEQ

	got, err := r.Poll()
	if err != nil {
		t.Fatalf("Poll: unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("Poll on a fatal-error descriptor: got %q, want nil", got)
	}
}
