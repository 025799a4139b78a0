// x86-64 processor support
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package amd64 provides the single-core AMD64 bootstrap processor support
// this bootloader needs: feature detection, the LAPIC timer, exception
// vectoring, and TSC calibration. This bootloader never brings up
// Application Processors, so unlike the framework this package is adapted
// from, there is no SMP/AP bring-up path here.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=amd64` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/morpheusx.
package amd64

import (
	"math"
	"runtime"
	_ "unsafe"

	"github.com/usbarmory/morpheusx/amd64/lapic"
	"github.com/usbarmory/morpheusx/internal/reg"
)

// Peripheral registers
const (
	// Keyboard controller port
	KBD_PORT = 0x64
	// Intel Local Advanced Programmable Interrupt Controller
	LAPIC_BASE = 0xfee00000
	// End-Of-Interrupt
	EOI = LAPIC_BASE + lapic.LAPIC_EOI
)

//go:linkname ramStackOffset runtime.ramStackOffset
var ramStackOffset uint64 = 0x100000 // 1 MB

// CPU represents the Bootstrap Processor (BSP) instance.
type CPU struct {
	// Timer multiplier
	TimerMultiplier float64
	// Timer offset in nanoseconds
	TimerOffset int64

	// LAPIC represents the Local APIC instance
	LAPIC *lapic.LAPIC

	// init is kept at 0: this bootloader never brings up Application
	// Processors, so CPU.Init always runs as the sole (bootstrap)
	// processor.
	init int

	// features holds the CPUID/MSR-derived capabilities initFeatures
	// populates, consumed by amd64/timer.go and kvm/clock.
	features Features

	// core frequency in Hz
	freq uint32
}

// defined in amd64.s
func exit(int32)
func halt()

// Fault generates a triple fault.
func Fault()

// Init performs initialization of the AMD64 bootstrap processor instance
// cmd/morpheusx/main runs on.
func (cpu *CPU) Init() {
	runtime.Exit = exit
	runtime.Idle = func(pollUntil int64) {
		// we have nothing to do forever (single-core only)
		if pollUntil == math.MaxInt64 && cpu.init == 0 {
			halt()
		}
	}

	cpu.initFeatures()
	cpu.initTimers()
	cpu.EnableExceptions()

	// Local APIC
	cpu.LAPIC = &lapic.LAPIC{
		Base: LAPIC_BASE,
	}
}

// Name returns the CPU identifier.
func (cpu *CPU) Name() string {
	return runtime.CPU()
}

// Halt suspends execution until an interrupt is received.
func (cpu *CPU) Halt() {
	halt()
}

// Reset resets the CPU pin via 8042 keyboard controller pulse.
func (cpu *CPU) Reset() {
	reg.Out8(KBD_PORT, 0xfe)
}
