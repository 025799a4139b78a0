// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pci

import "testing"

func TestDeviceAddressEncoding(t *testing.T) {
	d := &Device{Bus: 1, Slot: 3}

	got := d.address(0, 0x10)
	want := uint32(1<<31 | 1<<16 | 3<<11 | 0<<8 | 0x10)

	if got != want {
		t.Fatalf("address: got %#x, want %#x", got, want)
	}

	// the low two bits of the offset are always masked off, since CF8/CFC
	// access is dword-granular.
	if got := d.address(0, 0x13); got != want {
		t.Fatalf("address with unaligned offset: got %#x, want %#x (low bits must be masked)", got, want)
	}
}

func TestDeviceEcamAddressEncoding(t *testing.T) {
	d := &Device{Bus: 2, Slot: 5}
	d.UseECAM(0x_e000_0000)

	got := d.ecamAddress(1, 0x40)
	want := uint64(0xe0000000) | uint64(2)<<20 | uint64(5)<<15 | uint64(1)<<12 | uint64(0x40)

	if got != want {
		t.Fatalf("ecamAddress: got %#x, want %#x", got, want)
	}
}

func TestBarType(t *testing.T) {
	cases := []struct {
		name string
		bar  uint32
		want uint32
	}{
		{"32-bit memory BAR", 0x0000_0000, barType32},
		{"64-bit memory BAR", 0x0000_0004, barType64},
		{"I/O BAR low bit set but type field still decodes", 0x0000_0001, barType32},
	}

	for _, c := range cases {
		if got := barType(c.bar); got != c.want {
			t.Fatalf("%s: barType(%#x) = %d, want %d", c.name, c.bar, got, c.want)
		}
	}
}

func TestDecodeBAR32(t *testing.T) {
	got := decodeBAR32(0xfebc_0001)
	want := uint(0xfebc_0000)

	if got != want {
		t.Fatalf("decodeBAR32: got %#x, want %#x", got, want)
	}
}

func TestDecodeBAR64(t *testing.T) {
	got := decodeBAR64(0xfebc_0004, 0x0000_0001)
	want := uint(0x1_febc_0000)

	if got != want {
		t.Fatalf("decodeBAR64: got %#x, want %#x", got, want)
	}
}

func TestDecodeBARSize32(t *testing.T) {
	// a 4KB memory BAR decodes 12 zero bits in the probe value.
	probe := uint32(0xffff_f000)

	got := decodeBARSize(probe, 0, false)
	want := uint64(4096)

	if got != want {
		t.Fatalf("decodeBARSize (32-bit): got %d, want %d", got, want)
	}
}

func TestDecodeBARSize64(t *testing.T) {
	// a 64KB 64-bit BAR: low dword all zero bits below the mask, high
	// dword fully decoded (all zero bits too, for a region entirely
	// below the 4GB boundary in this synthetic example).
	probeLo := uint32(0xffff_0000)
	probeHi := uint32(0xffff_ffff)

	got := decodeBARSize(probeLo, probeHi, true)
	want := uint64(1) << 16

	if got != want {
		t.Fatalf("decodeBARSize (64-bit): got %#x, want %#x", got, want)
	}
}

func TestBarSizeIs64(t *testing.T) {
	if barSizeIs64(0x0000_0000) {
		t.Fatalf("32-bit memory BAR misidentified as 64-bit")
	}
	if !barSizeIs64(0x0000_0004) {
		t.Fatalf("64-bit memory BAR not identified as 64-bit")
	}
	if barSizeIs64(0x0000_0001) {
		t.Fatalf("I/O BAR misidentified as 64-bit")
	}
}

func TestCapabilityMSIXTableSize(t *testing.T) {
	msix := &CapabilityMSIX{MessageControl: 7}

	// table size is the MessageControl table-size field plus one.
	if got := msix.TableSize(); got != 8 {
		t.Fatalf("TableSize: got %d, want 8", got)
	}
}
