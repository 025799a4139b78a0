// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gpt

import (
	"errors"
	"time"

	"github.com/usbarmory/morpheusx/internal/blockio"
)

// BlockIOAdapter exposes a synchronous block device as the io.ReaderAt/
// io.WriterAt surface github.com/diskfs/go-diskfs expects of its backing
// store, following the reference implementation's gpt_disk_io::BlockIo
// trait-adapter pattern (a narrow disk-I/O trait wrapped around the
// driver-specific synchronous adapter) translated to Go's reader/writer
// interfaces instead of a bespoke trait.
type BlockIOAdapter struct {
	dev        *blockio.SyncBlockIO
	blockSize  int
	blockCount uint64
	timeout    time.Duration
}

var ErrUnaligned = errors.New("gpt: access not sector-aligned")

// NewBlockIOAdapter wraps dev for use as a go-diskfs backing store.
func NewBlockIOAdapter(dev *blockio.SyncBlockIO, timeout time.Duration) *BlockIOAdapter {
	info := dev.Info()
	return &BlockIOAdapter{dev: dev, blockSize: info.BlockSize, blockCount: info.BlockCount, timeout: timeout}
}

// Size returns the device's total addressable byte size.
func (a *BlockIOAdapter) Size() int64 {
	return int64(a.blockCount) * int64(a.blockSize)
}

// ReadAt implements io.ReaderAt, reading whole sectors and trimming to
// the requested byte range.
func (a *BlockIOAdapter) ReadAt(p []byte, off int64) (n int, err error) {
	startLBA := uint64(off) / uint64(a.blockSize)
	startOff := int(uint64(off) % uint64(a.blockSize))

	need := startOff + len(p)
	sectors := (need + a.blockSize - 1) / a.blockSize

	buf := make([]byte, sectors*a.blockSize)

	for i := 0; i < sectors; i++ {
		sector := buf[i*a.blockSize : (i+1)*a.blockSize]
		if err = a.dev.Read(startLBA+uint64(i), sector, a.timeout); err != nil {
			return 0, err
		}
	}

	n = copy(p, buf[startOff:])

	return n, nil
}

// WriteAt implements io.WriterAt with a read-modify-write for any
// partial leading/trailing sector.
func (a *BlockIOAdapter) WriteAt(p []byte, off int64) (n int, err error) {
	startLBA := uint64(off) / uint64(a.blockSize)
	startOff := int(uint64(off) % uint64(a.blockSize))

	need := startOff + len(p)
	sectors := (need + a.blockSize - 1) / a.blockSize

	buf := make([]byte, sectors*a.blockSize)

	if startOff != 0 || len(p)%a.blockSize != 0 {
		for i := 0; i < sectors; i++ {
			sector := buf[i*a.blockSize : (i+1)*a.blockSize]
			if err = a.dev.Read(startLBA+uint64(i), sector, a.timeout); err != nil {
				return 0, err
			}
		}
	}

	copy(buf[startOff:], p)

	for i := 0; i < sectors; i++ {
		sector := buf[i*a.blockSize : (i+1)*a.blockSize]
		if err = a.dev.Write(startLBA+uint64(i), sector, a.timeout); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}


