// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package writer

import (
	"testing"
	"time"

	"github.com/usbarmory/morpheusx/internal/blockio"
	"github.com/usbarmory/morpheusx/internal/tsc"
)

const sectorSize = 512

type fakeDevice struct {
	sectors map[uint64][]byte
	pending []blockio.Completion
}

func newFakeDevice() *fakeDevice { return &fakeDevice{sectors: map[uint64][]byte{}} }

func (d *fakeDevice) Info() blockio.Info { return blockio.Info{BlockSize: sectorSize, BlockCount: 4096} }
func (d *fakeDevice) CanSubmit() bool    { return true }

func (d *fakeDevice) SubmitWrite(tag int, lba uint64, buf []byte) error {
	s := make([]byte, sectorSize)
	copy(s, buf)
	d.sectors[lba] = s
	d.pending = append(d.pending, blockio.Completion{Tag: tag})
	return nil
}

func (d *fakeDevice) SubmitRead(tag int, lba uint64, buf []byte) error {
	d.pending = append(d.pending, blockio.Completion{Tag: tag})
	return nil
}

func (d *fakeDevice) SubmitFlush(tag int) error {
	d.pending = append(d.pending, blockio.Completion{Tag: tag})
	return nil
}

func (d *fakeDevice) Notify() {}

func (d *fakeDevice) PollCompletion() (blockio.Completion, bool) {
	if len(d.pending) == 0 {
		return blockio.Completion{}, false
	}
	c := d.pending[0]
	d.pending = d.pending[1:]
	return c, true
}

func TestWriteAcrossSectorBoundary(t *testing.T) {
	d := newFakeDevice()
	sync := blockio.NewSyncBlockIO(d, tsc.Clock{FreqHz: 1_000_000_000})

	w := New(sync, 100, time.Second)

	first := make([]byte, sectorSize+10)
	for i := range first {
		first[i] = byte(i)
	}

	if _, err := w.Write(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// one full sector should already be on disk, ten bytes staged
	if _, ok := d.sectors[100]; !ok {
		t.Fatalf("expected sector 100 to be written")
	}

	if err := w.Finish(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if w.BytesWritten() != uint64(len(first)) {
		t.Fatalf("unexpected byte count: %d", w.BytesWritten())
	}

	if w.EndLBA() != 102 {
		t.Fatalf("unexpected end LBA: %d", w.EndLBA())
	}

	tail := d.sectors[101]
	for i := 0; i < 10; i++ {
		if tail[i] != byte(sectorSize+i) {
			t.Fatalf("tail sector mismatch at %d", i)
		}
	}
	for i := 10; i < sectorSize; i++ {
		if tail[i] != 0 {
			t.Fatalf("expected zero padding at %d", i)
		}
	}
}


