// Streaming sector-aligned disk writer
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package writer buffers arbitrary-size byte slices into sector-aligned
// writes through a synchronous block device adapter, grounded in
// spec.md §4.L: "accepts byte slices of arbitrary size, buffers into a
// sector-aligned staging region, and flushes full sectors through the
// block driver's synchronous adapter."
package writer

import (
	"time"

	"github.com/usbarmory/morpheusx/internal/blockio"
)

// Writer streams bytes to consecutive LBAs starting at StartLBA,
// holding a partial trailing sector in an alignment buffer between
// Write calls.
type Writer struct {
	dev      *blockio.SyncBlockIO
	startLBA uint64
	timeout  time.Duration

	blockSize  int
	nextLBA    uint64
	stage      []byte // holds a partial sector awaiting completion
	written    uint64
}

// New creates a writer beginning at startLBA.
func New(dev *blockio.SyncBlockIO, startLBA uint64, timeout time.Duration) *Writer {
	return &Writer{
		dev:      dev,
		startLBA: startLBA,
		nextLBA:  startLBA,
		timeout:  timeout,
		blockSize: dev.Info().BlockSize,
	}
}

// Write appends p to the stream, flushing every full sector it
// completes through the block device. Invariant: the next on-device
// sector is always startLBA + (bytesWritten / blockSize).
func (w *Writer) Write(p []byte) (int, error) {
	n := len(p)

	for len(p) > 0 {
		need := w.blockSize - len(w.stage)
		take := need
		if take > len(p) {
			take = len(p)
		}

		w.stage = append(w.stage, p[:take]...)
		p = p[take:]

		if len(w.stage) == w.blockSize {
			if err := w.dev.Write(w.nextLBA, w.stage, w.timeout); err != nil {
				return n - len(p), err
			}
			w.nextLBA++
			w.stage = w.stage[:0]
		}
	}

	w.written += uint64(n)

	return n, nil
}

// Finish pads any partial trailing sector with zeros, writes it, and
// issues a flush.
func (w *Writer) Finish() error {
	if len(w.stage) > 0 {
		padded := make([]byte, w.blockSize)
		copy(padded, w.stage)

		if err := w.dev.Write(w.nextLBA, padded, w.timeout); err != nil {
			return err
		}

		w.nextLBA++
		w.stage = w.stage[:0]
	}

	return w.dev.Flush(w.timeout)
}

// BytesWritten returns the cumulative count of bytes handed to Write.
func (w *Writer) BytesWritten() uint64 { return w.written }

// EndLBA returns the first LBA not yet written.
func (w *Writer) EndLBA() uint64 { return w.nextLBA }
