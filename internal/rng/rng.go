// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package rng wires the AMD64 RDRAND instruction (amd64/rng.go) into the
// Go runtime's entropy hook. There is no software LCG/AES-DRBG fallback
// here: unlike the ARM targets this package is adapted from, every AMD64
// core this bootloader runs on has RDRAND, so a degraded fallback source
// has no caller and would never be exercised.
package rng

import (
	_ "unsafe"
)

var GetRandomDataFn func([]byte)

//go:linkname getRandomData runtime.getRandomData
func getRandomData(b []byte) {
	GetRandomDataFn(b)
}

// Fill copies up to 4 bytes of val into b starting at index, returning the
// new index; used to spread each RDRAND draw across the output buffer.
func Fill(b []byte, index int, val uint32) int {
	shift := 0
	limit := len(b)

	for (index < limit) && (shift <= 24) {
		b[index] = byte((val >> shift) & 0xff)
		index += 1
		shift += 8
	}

	return index
}
