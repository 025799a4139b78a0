// KVM clock pairing driver
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package kvmclock implements the KVM_HC_CLOCK_PAIRING hypercall
// (https://docs.kernel.org/virt/kvm/x86/hypercalls.html), the one KVM
// paravirtual clocksource this bootloader exercises: amd64/timer.go calls
// Pairing twice in succession to calibrate the TSC frequency under KVM
// when the KVM TSC frequency CPUID leaf reports zero. The
// MSR_KVM_SYSTEM_TIME/pvclock struct variant is not wired up here — it
// needs a DMA-mapped host buffer this bootloader's polling timer
// calibration has no use for once Pairing has done its job once.
package kvmclock

import (
	"time"
)

// Pairing() returns the KVM host clock information.
func Pairing() (sec int64, nsec int64, tsc uint64)

// Now() returns the time corresponding to the KVM host clock.
func Now() (t time.Time) {
	sec, nsec, _ := Pairing()
	return time.Unix(sec, nsec)
}
