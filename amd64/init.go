// x86-64 processor support
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amd64

import (
	_ "unsafe"
)

// Init runs before the Go runtime starts scheduling goroutines, ahead of
// cmd/morpheusx/main's own CPU.Init call.
//
//go:linkname Init runtime.hwinit0
func Init() {}
