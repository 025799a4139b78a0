// https://github.com/usbarmory/morpheusx
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

// ReadTSC returns the current value of the time-stamp counter via the
// non-serializing RDTSC instruction.
//
// defined in tsc_amd64.s
func ReadTSC() (tsc uint64)

// ReadTSCSerialized returns the current value of the time-stamp counter via
// RDTSCP, which waits for all prior instructions to complete before reading
// and prevents later instructions from beginning execution until the read
// has completed. The returned aux value is the content of the TSC_AUX MSR
// (set by the OS/firmware, typically a logical processor id).
//
// defined in tsc_amd64.s
func ReadTSCSerialized() (tsc uint64, aux uint32)

// SFence executes an SFENCE, ordering all prior stores before it against all
// later stores.
//
// defined in fence_amd64.s
func SFence()

// LFence executes an LFENCE, ordering all prior loads before it against all
// later loads. Also used as a lightweight serializing instruction to prevent
// speculative execution of instructions following it.
//
// defined in fence_amd64.s
func LFence()

// MFence executes an MFENCE, ordering all prior loads and stores before it
// against all later loads and stores.
//
// defined in fence_amd64.s
func MFence()


