// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gpt

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/usbarmory/morpheusx/internal/blockio"
	"github.com/usbarmory/morpheusx/internal/tsc"
)

type testDisk struct {
	sectors map[uint64][]byte
	pending []blockio.Completion
}

func newTestDisk() *testDisk {
	return &testDisk{sectors: map[uint64][]byte{}}
}

func (d *testDisk) Info() blockio.Info { return blockio.Info{BlockSize: sectorSize, BlockCount: 65536} }
func (d *testDisk) CanSubmit() bool    { return true }

func (d *testDisk) SubmitRead(tag int, lba uint64, buf []byte) error {
	if s, ok := d.sectors[lba]; ok {
		copy(buf, s)
	}
	d.pending = append(d.pending, blockio.Completion{Tag: tag})
	return nil
}

func (d *testDisk) SubmitWrite(tag int, lba uint64, buf []byte) error { return nil }
func (d *testDisk) SubmitFlush(tag int) error                        { return nil }
func (d *testDisk) Notify()                                          {}

func (d *testDisk) PollCompletion() (blockio.Completion, bool) {
	if len(d.pending) == 0 {
		return blockio.Completion{}, false
	}
	c := d.pending[0]
	d.pending = d.pending[1:]
	return c, true
}

func header(firstUsable, lastUsable, entryLBA uint64, numEntries, entrySize uint32) []byte {
	h := make([]byte, sectorSize)
	copy(h[0:8], gptSignature)
	binary.LittleEndian.PutUint64(h[40:48], firstUsable)
	binary.LittleEndian.PutUint64(h[48:56], lastUsable)
	binary.LittleEndian.PutUint64(h[72:80], entryLBA)
	binary.LittleEndian.PutUint32(h[80:84], numEntries)
	binary.LittleEndian.PutUint32(h[84:88], entrySize)
	return h
}

func entry(typeGUID [16]byte, start, end uint64) []byte {
	e := make([]byte, partitionEntrySize)
	copy(e[0:16], typeGUID[:])
	binary.LittleEndian.PutUint64(e[32:40], start)
	binary.LittleEndian.PutUint64(e[40:48], end)
	return e
}

func TestScanAndFindFreeSpace(t *testing.T) {
	d := newTestDisk()
	d.sectors[1] = header(100, 10000, 2, 128, partitionEntrySize)

	entBuf := make([]byte, sectorSize*32)
	copy(entBuf[0:partitionEntrySize], entry([16]byte{1}, 200, 300))
	copy(entBuf[partitionEntrySize:2*partitionEntrySize], entry([16]byte{2}, 400, 500))

	for i := 0; i < 32; i++ {
		s := make([]byte, sectorSize)
		copy(s, entBuf[i*sectorSize:(i+1)*sectorSize])
		d.sectors[2+uint64(i)] = s
	}

	sync := blockio.NewSyncBlockIO(d, tsc.Clock{FreqHz: 1_000_000_000})

	parts, err := ScanPartitions(sync, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(parts) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(parts))
	}

	start, end, err := FindFreeSpace(sync, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// largest gap is after the second partition (501..10000 = 9500) vs
	// before the first (100..199 = 100) or between (301..399 = 99).
	if start != 501 || end != 10000 {
		t.Fatalf("unexpected free space: %d-%d", start, end)
	}
}

func TestScanRejectsBadSignature(t *testing.T) {
	d := newTestDisk()
	d.sectors[1] = make([]byte, sectorSize)

	sync := blockio.NewSyncBlockIO(d, tsc.Clock{FreqHz: 1_000_000_000})

	if _, err := ScanPartitions(sync, time.Second); err != ErrInvalidGpt {
		t.Fatalf("expected ErrInvalidGpt, got %v", err)
	}
}
