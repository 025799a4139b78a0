// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package e1000e

import "github.com/usbarmory/morpheusx/internal/reg"

// mmio abstracts the 32-bit register reads/writes the driver performs
// against its MMIO BAR, so Driver/RxRing/TxRing register programming can be
// exercised against an in-memory fake in tests instead of real device
// memory.
type mmio interface {
	Read(addr uint32) uint32
	Write(addr uint32, val uint32)
}

// hwMMIO is the production mmio, backed by the real memory-mapped registers
// through internal/reg's primitives.
type hwMMIO struct{}

func (hwMMIO) Read(addr uint32) uint32       { return reg.Read(addr) }
func (hwMMIO) Write(addr uint32, val uint32) { reg.Write(addr, val) }
