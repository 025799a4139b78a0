// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fat

import (
	"testing"
	"time"

	"github.com/usbarmory/morpheusx/internal/blockio"
	"github.com/usbarmory/morpheusx/internal/tsc"
)

const sectorSize = 512

type memDisk struct {
	sectors map[uint64][]byte
	pending []blockio.Completion
}

func newMemDisk() *memDisk {
	return &memDisk{sectors: map[uint64][]byte{}}
}

func (d *memDisk) Info() blockio.Info { return blockio.Info{BlockSize: sectorSize, BlockCount: 4096} }
func (d *memDisk) CanSubmit() bool    { return true }

func (d *memDisk) SubmitRead(tag int, lba uint64, buf []byte) error {
	if s, ok := d.sectors[lba]; ok {
		copy(buf, s)
	}
	d.pending = append(d.pending, blockio.Completion{Tag: tag})
	return nil
}

func (d *memDisk) SubmitWrite(tag int, lba uint64, buf []byte) error {
	s := make([]byte, sectorSize)
	copy(s, buf)
	d.sectors[lba] = s
	d.pending = append(d.pending, blockio.Completion{Tag: tag})
	return nil
}

func (d *memDisk) SubmitFlush(tag int) error {
	d.pending = append(d.pending, blockio.Completion{Tag: tag})
	return nil
}

func (d *memDisk) Notify() {}

func (d *memDisk) PollCompletion() (blockio.Completion, bool) {
	if len(d.pending) == 0 {
		return blockio.Completion{}, false
	}
	c := d.pending[0]
	d.pending = d.pending[1:]
	return c, true
}

func TestBlockBackendRebasesOffsets(t *testing.T) {
	d := newMemDisk()
	sync := blockio.NewSyncBlockIO(d, tsc.Clock{FreqHz: 1_000_000_000})

	// volume starts at LBA 10 on the underlying disk
	backend, size := newBackend(sync, 10, 109, time.Second)
	if size != 100*sectorSize {
		t.Fatalf("unexpected volume size: %d", size)
	}

	payload := []byte("hello fat32")
	if _, err := backend.WriteAt(payload, 3*sectorSize); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// the write must have landed at disk LBA 13, not 3
	if string(d.sectors[13][:len(payload)]) != string(payload) {
		t.Fatalf("write did not land at rebased LBA 13")
	}

	got := make([]byte, len(payload))
	if _, err := backend.ReadAt(got, 3*sectorSize); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(got) != string(payload) {
		t.Fatalf("readback mismatch: got %q", got)
	}
}


