// https://github.com/usbarmory/morpheusx
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

import (
	"unsafe"
)

// As sync/atomic does not provide 8-bit support, note that these functions do
// not necessarily enforce memory ordering.

func Get8(addr uint32, pos int, mask int) uint8 {
	reg := (*uint8)(unsafe.Pointer(uintptr(addr)))
	return (*reg >> pos) & uint8(mask)
}

func Set8(addr uint32, pos int) {
	reg := (*uint8)(unsafe.Pointer(uintptr(addr)))
	*reg |= (1 << pos)
}

func Clear8(addr uint32, pos int) {
	reg := (*uint8)(unsafe.Pointer(uintptr(addr)))
	*reg &= ^(1 << pos)
}

func Read8(addr uint32) uint8 {
	reg := (*uint8)(unsafe.Pointer(uintptr(addr)))
	return *reg
}

func Write8(addr uint32, val uint8) {
	reg := (*uint8)(unsafe.Pointer(uintptr(addr)))
	*reg = val
}


