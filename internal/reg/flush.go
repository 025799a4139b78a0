// https://github.com/usbarmory/morpheusx
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

// FlushPosted forces a previously issued MMIO write to complete before any
// code that follows runs, by reading back a register on the same device.
// PCI devices may post writes (buffer them in a bridge) so that a write
// followed immediately by register-dependent logic can observe stale
// state; reading any register on the device after the write drains the
// posted write because reads are never posted.
func FlushPosted(addr uint32) {
	Read(addr)
}
