// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package handoff

import "testing"

func valid() BootHandoff {
	return BootHandoff{
		Magic:     HandoffMagic,
		Version:   HandoffVersion,
		NIC:       NICDescriptor{Type: NicTypeE1000e, Transport: TransportNative, BaseAddr: 0xf0000000},
		Blk:       BlkDescriptor{Type: BlkTypeAHCI, Transport: TransportNative, BaseAddr: 0xf0100000},
		DMA:       DMARegion{CPUBase: 0x10000000, BusBase: 0x10000000, Size: 8 << 20},
		StackTop:  0x20000000,
		StackSize: 256 << 10,
		TSCFreqHz: 2_000_000_000,
		HeapBase:  0x30000000,
		HeapSize:  512 << 10,
	}
}

func TestValidateOK(t *testing.T) {
	h := valid()

	if err := h.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateBadMagic(t *testing.T) {
	h := valid()
	h.Magic = 0

	if err := h.Validate(); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestValidateBadVersion(t *testing.T) {
	h := valid()
	h.Version = 99

	if err := h.Validate(); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*BootHandoff)
		want error
	}{
		{"no nic", func(h *BootHandoff) { h.NIC.Type = NicTypeNone }, ErrNoNIC},
		{"no blk", func(h *BootHandoff) { h.Blk.Type = BlkTypeNone }, ErrNoBlk},
		{"no dma", func(h *BootHandoff) { h.DMA.Size = 0 }, ErrNoDMA},
		{"no stack", func(h *BootHandoff) { h.StackSize = 0 }, ErrNoStack},
		{"no heap", func(h *BootHandoff) { h.HeapSize = 0 }, ErrNoHeap},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := valid()
			c.mod(&h)

			if err := h.Validate(); err != c.want {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}
}
