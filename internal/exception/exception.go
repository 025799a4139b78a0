// https://github.com/usbarmory/morpheusx
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package exception reports the program counter of an unhandled CPU
// exception before panicking, used by amd64's DefaultExceptionHandler so a
// triple fault during ExitBootServices/download never fails silently.
package exception

import "runtime"

func Throw(pc uintptr) {
	fn := runtime.FuncForPC(pc)
	file, line := fn.FileLine(pc)

	print("\t", file, ":", line, "\n")
	panic("unhandled exception")
}
