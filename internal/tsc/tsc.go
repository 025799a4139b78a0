// TSC-tick deadline helpers
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package tsc provides tick-based deadline arithmetic shared by every
// component that polls hardware or protocol state without an OS scheduler
// to sleep on: a deadline is simply a target time-stamp-counter value,
// computed once from the calibrated TSC frequency, and checked against
// reg.ReadTSC() on each iteration of the caller's polling loop.
package tsc

import (
	"time"

	"github.com/usbarmory/morpheusx/internal/reg"
)

// Clock carries the calibrated TSC frequency (ticks per second) used to
// convert wall-clock durations to tick counts.
type Clock struct {
	FreqHz uint64
}

// Ticks converts a duration to a TSC tick count at this clock's frequency.
func (c Clock) Ticks(d time.Duration) uint64 {
	return uint64(d.Seconds() * float64(c.FreqHz))
}

// Now returns the current TSC value.
func (c Clock) Now() uint64 {
	return reg.ReadTSC()
}

// Deadline represents an absolute TSC tick target.
type Deadline struct {
	clock  Clock
	target uint64
}

// After returns a Deadline expiring d after now.
func (c Clock) After(d time.Duration) Deadline {
	return Deadline{clock: c, target: reg.ReadTSC() + c.Ticks(d)}
}

// Expired reports whether the deadline has passed.
func (dl Deadline) Expired() bool {
	return reg.ReadTSC() >= dl.target
}

// Remaining returns the ticks left before expiry, zero if already expired.
func (dl Deadline) Remaining() uint64 {
	now := reg.ReadTSC()

	if now >= dl.target {
		return 0
	}

	return dl.target - now
}
