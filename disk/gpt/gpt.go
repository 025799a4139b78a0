// GPT partition scanning and free-space discovery
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package gpt scans a GPT-partitioned disk for existing partitions and
// locates free space on it, operating directly against a block device
// adapter rather than through a full filesystem library, following the
// reference implementation's allocation-light scan/find-free-space split.
package gpt

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/usbarmory/morpheusx/internal/blockio"
)

const (
	sectorSize = 512

	gptSignature        = "EFI PART"
	partitionEntrySize  = 128
	maxPartitionEntries = 128
	maxTrackedPartitions = 16
)

var (
	ErrInvalidGpt = errors.New("gpt: invalid or missing GPT signature")
	ErrIO         = errors.New("gpt: block device I/O error")
	ErrNoSpace    = errors.New("gpt: no free space found")
)

// PartitionInfo describes one scanned partition entry.
type PartitionInfo struct {
	Index    uint8
	StartLBA uint64
	EndLBA   uint64
	TypeGUID [16]byte
	Name     [36]byte
}

// ScanPartitions reads the GPT header and partition entry array from dev
// and returns every entry whose type GUID is non-zero, bounded at 16
// tracked partitions regardless of how many the header declares.
func ScanPartitions(dev *blockio.SyncBlockIO, timeout time.Duration) (partitions []PartitionInfo, err error) {
	header := make([]byte, sectorSize)
	if err = dev.Read(1, header, timeout); err != nil {
		return nil, ErrIO
	}

	if string(header[0:8]) != gptSignature {
		return nil, ErrInvalidGpt
	}

	entryLBA := binary.LittleEndian.Uint64(header[72:80])
	numEntries := binary.LittleEndian.Uint32(header[80:84])
	entrySize := binary.LittleEndian.Uint32(header[84:88])

	if int(entrySize) != partitionEntrySize {
		return nil, ErrInvalidGpt
	}

	entryBuf := make([]byte, sectorSize*32)
	for i := 0; i < 32; i++ {
		sector := entryBuf[i*sectorSize : (i+1)*sectorSize]
		if err = dev.Read(entryLBA+uint64(i), sector, timeout); err != nil {
			return nil, ErrIO
		}
	}

	toCheck := int(numEntries)
	if toCheck > maxPartitionEntries {
		toCheck = maxPartitionEntries
	}

	for i := 0; i < toCheck; i++ {
		off := i * partitionEntrySize
		entry := entryBuf[off : off+partitionEntrySize]

		var typeGUID [16]byte
		copy(typeGUID[:], entry[0:16])

		if typeGUID == ([16]byte{}) {
			continue
		}

		if len(partitions) >= maxTrackedPartitions {
			break
		}

		p := PartitionInfo{
			Index:    uint8(i),
			StartLBA: binary.LittleEndian.Uint64(entry[32:40]),
			EndLBA:   binary.LittleEndian.Uint64(entry[40:48]),
			TypeGUID: typeGUID,
		}

		for j := 0; j < 36; j++ {
			utf16Off := 56 + j*2
			if utf16Off < partitionEntrySize {
				p.Name[j] = entry[utf16Off]
			}
		}

		partitions = append(partitions, p)
	}

	return partitions, nil
}

// FindFreeSpace locates the largest contiguous unused LBA range on dev,
// searching the gap before the first partition, between partitions, and
// after the last one. Partitions are sorted by start LBA with a simple
// bubble sort, matching the reference implementation's choice since the
// tracked-partition count is always small (at most 16).
func FindFreeSpace(dev *blockio.SyncBlockIO, timeout time.Duration) (startLBA, endLBA uint64, err error) {
	header := make([]byte, sectorSize)
	if err = dev.Read(1, header, timeout); err != nil {
		return 0, 0, ErrIO
	}

	if string(header[0:8]) != gptSignature {
		return 0, 0, ErrInvalidGpt
	}

	firstUsable := binary.LittleEndian.Uint64(header[40:48])
	lastUsable := binary.LittleEndian.Uint64(header[48:56])

	partitions, err := ScanPartitions(dev, timeout)
	if err != nil {
		return 0, 0, err
	}

	if len(partitions) == 0 {
		return firstUsable, lastUsable, nil
	}

	sorted := make([][2]uint64, len(partitions))
	for i, p := range partitions {
		sorted[i] = [2]uint64{p.StartLBA, p.EndLBA}
	}

	for range sorted {
		for j := 0; j < len(sorted)-1; j++ {
			if sorted[j][0] > sorted[j+1][0] {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}

	var bestStart, bestSize uint64

	if sorted[0][0] > firstUsable {
		if gap := sorted[0][0] - firstUsable; gap > bestSize {
			bestStart, bestSize = firstUsable, gap
		}
	}

	for i := 0; i < len(sorted)-1; i++ {
		gapStart := sorted[i][1] + 1
		gapEnd := sorted[i+1][0]
		if gapEnd > 0 {
			gapEnd--
		}

		if gapEnd > gapStart {
			if gap := gapEnd - gapStart + 1; gap > bestSize {
				bestStart, bestSize = gapStart, gap
			}
		}
	}

	last := len(sorted) - 1
	if sorted[last][1] < lastUsable {
		gapStart := sorted[last][1] + 1
		if gap := lastUsable - gapStart + 1; gap > bestSize {
			bestStart, bestSize = gapStart, gap
		}
	}

	if bestSize == 0 {
		return 0, 0, ErrNoSpace
	}

	return bestStart, bestStart + bestSize - 1, nil
}
