// Post-download system reboot
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package reboot triggers a hardware reset once the ISO download
// completes, grounded in original_source/network/src/mainloop/states/
// done.rs's reboot(): keyboard-controller pulse first, CF9 reset as a
// fallback, halt loop if both fail to take effect.
package reboot

import (
	"time"

	"github.com/usbarmory/morpheusx/internal/reg"
)

const (
	kbdPort = 0x64
	kbdPulseReset = 0xfe

	cf9Port     = 0xcf9
	cf9FullReset = 0x06

	settleDelay = 500 * time.Millisecond
)

// Now requests a system reset. It never returns: if both reset methods
// fail to take effect it halts the processor in a spin loop.
func Now(halt func()) {
	reg.Out8(kbdPort, kbdPulseReset)
	time.Sleep(settleDelay)

	reg.Out8(cf9Port, cf9FullReset)
	time.Sleep(settleDelay)

	for {
		halt()
	}
}
