// AMD64 processor support
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !linkramstart

package amd64

import (
	_ "unsafe"
)

// ramStart is the Go runtime's heap base, independent of the firmware
// phase's boot/firmware.Prepare allocations (DMA/stack/heap regions sit
// above this and are carried across ExitBootServices via boot/handoff).
//
//go:linkname ramStart runtime.ramStart
var ramStart uint64 = 0x10000000
