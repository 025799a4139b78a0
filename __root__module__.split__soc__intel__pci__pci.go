// Intel Peripheral Component Interconnect (PCI) driver
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pci implements configuration space access for PCI devices over
// the legacy CF8/CFC I/O ports and, where a firmware-provided ECAM base is
// available, the flat memory-mapped mechanism introduced by PCI Express.
//
// This package is only meant to be used with `GOOS=tamago` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/morpheusx.
package pci

import (
	"github.com/usbarmory/morpheusx/internal/bits"
	"github.com/usbarmory/morpheusx/internal/reg"
)

const (
	CONFIG_ADDRESS = 0x0cf8
	CONFIG_DATA    = 0x0cfc
)

const (
	maxBuses   = 256
	maxDevices = 32
	maxFuncs   = 8
)

// Header Type 0x0 offsets
const (
	VendorID           = 0x00
	Command            = 0x04
	RevisionID         = 0x08
	Bar0               = 0x10
	CapabilitiesOffset = 0x34
)

// Capability IDs relevant to VirtIO modern devices (PCI Local Bus Spec
// r3.0 §6.7, Virtual I/O Device (VIRTIO) spec §4.1.4).
const (
	CapVendorSpecific = 0x09
	CapMSIX           = 0x11
)

// Device represents a PCI device, addressed over either the legacy CF8/CFC
// ports or, when ecamBase is non-zero, the ECAM memory-mapped window.
type Device struct {
	// Bus number
	Bus uint32
	// Vendor ID
	Vendor uint16
	// Device ID
	Device uint16

	// PCI Slot
	Slot uint32

	// ecamBase, when non-zero, is the physical base address of the
	// firmware-reported MMCONFIG/ECAM window for this device's segment.
	// When zero, legacy CF8/CFC access is used.
	ecamBase uint64
}

// UseECAM configures the device to use the memory-mapped configuration
// access mechanism at the given segment base address instead of the legacy
// CF8/CFC ports.
func (d *Device) UseECAM(base uint64) {
	d.ecamBase = base
}

func (d *Device) address(fn uint32, off uint32) uint32 {
	return 1<<31 | d.Bus<<16 | d.Slot<<11 | fn<<8 | off&0xfc
}

func (d *Device) ecamAddress(fn uint32, off uint32) uint64 {
	return d.ecamBase | uint64(d.Bus)<<20 | uint64(d.Slot)<<15 | uint64(fn)<<12 | uint64(off&0xffc)
}

// Read reads the device configuration space for a given function and
// register offset.
func (d *Device) Read(fn uint32, off uint32) uint32 {
	if d.ecamBase != 0 {
		return reg.Read(uint32(d.ecamAddress(fn, off)))
	}

	reg.Out32(CONFIG_ADDRESS, d.address(fn, off))
	return reg.In32(CONFIG_DATA) >> ((off & 2) * 8)
}

// Write writes the device configuration space for a given function and
// register offset, the offset must be 32-bit aligned.
func (d *Device) Write(fn uint32, off uint32, val uint32) {
	if (off&2)*8 != 0 {
		return
	}

	if d.ecamBase != 0 {
		reg.Write(uint32(d.ecamAddress(fn, off)), val)
		return
	}

	reg.Out32(CONFIG_ADDRESS, d.address(fn, off))
	reg.Out32(CONFIG_DATA, val)
}

// BaseAddress returns a device Base Address register (BAR) value, decoded
// for both 32-bit and 64-bit memory BARs.
func (d *Device) BaseAddress(n int) uint {
	if n > 5 {
		return 0
	}

	off := Bar0 + uint32(n)*4
	bar := d.Read(0, off)

	// decode BAR Type
	switch bits.Get(&bar, 1, 0b11) {
	case 0:
		return uint(bar) &^ 0xf
	case 2:
		return uint(d.Read(0, off+4))<<32 | uint(bar)&0xfffffff0
	}

	return 0
}

// BaseAddressSize returns the size, in bytes, of the region backing BAR n,
// determined by the standard write-all-ones/read-back probe: the BAR is
// saved, all ones are written to it, the hardware-imposed zero bits in the
// read-back value reveal the address decode width, and the original value
// is restored.
func (d *Device) BaseAddressSize(n int) uint64 {
	if n > 5 {
		return 0
	}

	off := Bar0 + uint32(n)*4
	orig := d.Read(0, off)

	d.Write(0, off, 0xffffffff)
	probe := d.Read(0, off)
	d.Write(0, off, orig)

	if probe == 0 {
		return 0
	}

	isIO := probe&1 == 1
	is64 := !isIO && (probe>>1)&0b11 == 2

	var mask uint32
	if isIO {
		mask = probe &^ 0x3
	} else {
		mask = probe &^ 0xf
	}

	size := uint64(^mask) + 1

	if is64 {
		origHi := d.Read(0, off+4)
		d.Write(0, off+4, 0xffffffff)
		probeHi := d.Read(0, off+4)
		d.Write(0, off+4, origHi)

		size = (uint64(^probeHi)<<32 | uint64(^mask)) + 1
	}

	return size
}

func (d *Device) probe() bool {
	if d.Bus > maxBuses {
		return false
	}

	val := d.Read(0, VendorID)

	if d.Vendor = uint16(val); d.Vendor == 0xffff {
		return false
	}

	d.Device = uint16(val >> 16)

	return true
}

// Probe probes a PCI device.
func Probe(bus int, vendor uint16, device uint16) *Device {
	d := &Device{
		Bus: uint32(bus),
	}

	for slot := uint32(0); slot < maxDevices; slot++ {
		d.Slot = slot

		if d.probe() && d.Vendor == vendor && d.Device == device {
			return d
		}
	}

	return nil
}

// Devices returns all found PCI devices on a given bus.
func Devices(bus int) (devices []*Device) {
	for slot := uint32(0); slot < maxDevices; slot++ {
		d := &Device{
			Bus:  uint32(bus),
			Slot: slot,
		}

		if d.probe() {
			devices = append(devices, d)
		}
	}

	return
}


