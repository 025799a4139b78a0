// Ambient leveled logging sink
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package log wraps the serial console in a small leveled Logger,
// generalizing board/qemu/microvm/console.go's runtime.printk hook
// (one byte at a time to COM1) into a reusable writer-backed type so
// both the firmware phase and the bare-metal phase can log through the
// same interface. Pre-exit, the sink is whatever UEFI's
// SimpleTextOutput wrapper the caller supplies; post-exit it is
// soc/intel/uart.UART directly.
package log

import (
	"fmt"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Sink is the minimal surface a logger needs from its destination;
// soc/intel/uart.UART and a UEFI SimpleTextOutput wrapper both satisfy
// it via their Write([]byte) method.
type Sink interface {
	Write(p []byte) (int, error)
}

// Logger serializes writes to a Sink behind a mutex, so that callers on
// different goroutines never interleave their lines.
type Logger struct {
	mu    sync.Mutex
	sink  Sink
	level Level
}

// New returns a Logger writing to sink, filtering out messages below
// minLevel.
func New(sink Sink, minLevel Level) *Logger {
	return &Logger{sink: sink, level: minLevel}
}

// SetSink swaps the underlying destination, used to hand logging off
// from the firmware-phase console to the bare-metal UART once
// ExitBootServices succeeds and the firmware's text-output protocol is
// no longer callable.
func (l *Logger) SetSink(sink Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink == nil {
		return
	}

	msg := fmt.Sprintf("["+level.String()+"] "+format+"\r\n", args...)
	l.sink.Write([]byte(msg))
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }
