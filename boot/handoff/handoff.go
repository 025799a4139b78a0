// Firmware-to-bare-metal boot handoff structure
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package handoff defines the structure carried across the
// ExitBootServices boundary from the firmware-phase preparation stage
// (boot/firmware) into the bare-metal phase, grounded in the re-export
// surface of the reference implementation's boot module.
package handoff

import "errors"

// HandoffMagic/HandoffVersion identify a well-formed handoff structure;
// the bare-metal entry point refuses to proceed if either mismatches,
// since a stale or corrupt handoff would otherwise be read as valid
// zero/garbage values.
const (
	HandoffMagic   = 0x4d58424f // "MXBO"
	HandoffVersion = 1
)

// NIC transport/type identifiers.
const (
	NicTypeNone = iota
	NicTypeVirtio
	NicTypeE1000e
)

// Transport identifiers, shared between NIC and block descriptors.
const (
	TransportNone = iota
	TransportLegacyMMIO
	TransportLegacyPCI
	TransportModernPCI
	TransportNative
)

// Block device type identifiers.
const (
	BlkTypeNone = iota
	BlkTypeVirtio
	BlkTypeAHCI
)

var (
	ErrBadMagic   = errors.New("handoff: bad magic")
	ErrBadVersion = errors.New("handoff: unsupported version")
	ErrNoNIC      = errors.New("handoff: no network device descriptor")
	ErrNoBlk      = errors.New("handoff: no block device descriptor")
	ErrNoDMA      = errors.New("handoff: empty DMA region")
	ErrNoStack    = errors.New("handoff: empty stack region")
	ErrNoHeap     = errors.New("handoff: empty heap region")
)

// NICDescriptor identifies the network device the firmware phase probed
// and the transport it is reachable through.
type NICDescriptor struct {
	Type      int
	Transport int
	BaseAddr  uint64
}

// BlkDescriptor identifies the block device the firmware phase probed.
type BlkDescriptor struct {
	Type      int
	Transport int
	BaseAddr  uint64
}

// DMARegion describes the preallocated DMA-capable memory range handed to
// the bare-metal phase; CPU and bus addresses are identical on this
// platform (no IOMMU translation) but kept distinct to mirror the
// reference structure and to allow a future IOMMU-aware target to diverge.
type DMARegion struct {
	CPUBase uint64
	BusBase uint64
	Size    uint64
}

// BootHandoff is the complete structure passed from the firmware phase to
// the bare-metal phase across ExitBootServices, constructed in memory the
// firmware phase allocated for exactly this purpose and located by the
// bare-metal entry point at a fixed, pre-agreed address.
type BootHandoff struct {
	Magic   uint32
	Version uint32

	NIC NICDescriptor
	Blk BlkDescriptor
	DMA DMARegion

	StackTop  uint64
	StackSize uint64

	TSCFreqHz uint64

	ESPFirstLBA uint64

	MACFallbackSeed uint64

	// HeapBase/HeapSize describe the static region the bare-metal phase's
	// allocator (internal/allocator) flips onto once ExitBootServices
	// succeeds, reserved by the firmware phase while pages were still
	// available to request.
	HeapBase uint64
	HeapSize uint64
}

// Validate checks the magic and version, that a NIC and a block device are
// described, and that the DMA, stack and heap sizes are non-zero. The
// ESPFirstLBA and MACFallbackSeed fields are not checked.
func (h *BootHandoff) Validate() error {
	if h.Magic != HandoffMagic {
		return ErrBadMagic
	}

	if h.Version != HandoffVersion {
		return ErrBadVersion
	}

	if h.NIC.Type == NicTypeNone {
		return ErrNoNIC
	}

	if h.Blk.Type == BlkTypeNone {
		return ErrNoBlk
	}

	if h.DMA.Size == 0 {
		return ErrNoDMA
	}

	if h.StackSize == 0 {
		return ErrNoStack
	}

	if h.HeapSize == 0 {
		return ErrNoHeap
	}

	return nil
}
