// ISO manifest binary codec
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package manifest encodes and decodes the fixed-shape descriptor of a
// written ISO image, grounded in original_source/network/src/mainloop/
// states/manifest.rs's ManifestConfig/IsoManifest shape and spec.md §3's
// manifest field list: magic, version, length-prefixed name, total size,
// chunk list, completion flag, all little-endian.
package manifest

import (
	"encoding/binary"
	"errors"
)

const (
	magic   uint32 = 0x4d584d4f // "MXMO" - MorpheusX Manifest
	version uint32 = 1

	maxNameLen   = 128
	maxChunks    = 16
	chunkEncLen  = 16 + 8 + 8 + 8 + 1 // UUID + start LBA + end LBA + data size + written
)

var (
	ErrTooManyChunks = errors.New("manifest: too many chunks")
	ErrNameTooLong   = errors.New("manifest: ISO name exceeds maximum length")
	ErrBadMagic      = errors.New("manifest: bad magic")
	ErrBadVersion    = errors.New("manifest: unsupported version")
	ErrTruncated     = errors.New("manifest: truncated data")
	ErrOverlap       = errors.New("manifest: chunks overlap or are not contiguous")
)

// Chunk describes one contiguous range of an ISO image written to disk.
type Chunk struct {
	PartitionUUID [16]byte
	StartLBA      uint64
	EndLBA        uint64
	DataSize      uint64
	Written       bool
}

// Manifest is the fixed-shape descriptor persisted after a download
// completes.
type Manifest struct {
	IsoName  string
	IsoSize  uint64
	Chunks   []Chunk
	Complete bool
}

// New creates an empty manifest for the given ISO.
func New(isoName string, isoSize uint64) *Manifest {
	return &Manifest{IsoName: isoName, IsoSize: isoSize}
}

// AddChunk appends a chunk, enforcing the fixed upper bound on tracked
// chunks per spec.
func (m *Manifest) AddChunk(partitionUUID [16]byte, startLBA, endLBA uint64) error {
	if len(m.Chunks) >= maxChunks {
		return ErrTooManyChunks
	}

	m.Chunks = append(m.Chunks, Chunk{
		PartitionUUID: partitionUUID,
		StartLBA:      startLBA,
		EndLBA:        endLBA,
	})

	return nil
}

// MarkComplete sets the completion flag. Per the non-overlapping,
// contiguous-coverage invariant, call this only once chunks span
// [0, IsoSize) with no gaps or overlaps.
func (m *Manifest) MarkComplete() {
	m.Complete = true
}

// Encode serializes the manifest to its binary on-disk form.
func (m *Manifest) Encode() ([]byte, error) {
	if len(m.IsoName) > maxNameLen {
		return nil, ErrNameTooLong
	}

	if len(m.Chunks) > maxChunks {
		return nil, ErrTooManyChunks
	}

	buf := make([]byte, 0, 4+4+4+maxNameLen+8+4+len(m.Chunks)*chunkEncLen+1)

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], version)
	buf = append(buf, hdr[:]...)

	var nameLen [4]byte
	binary.LittleEndian.PutUint32(nameLen[:], uint32(len(m.IsoName)))
	buf = append(buf, nameLen[:]...)
	buf = append(buf, []byte(m.IsoName)...)

	var sizeAndCount [12]byte
	binary.LittleEndian.PutUint64(sizeAndCount[0:8], m.IsoSize)
	binary.LittleEndian.PutUint32(sizeAndCount[8:12], uint32(len(m.Chunks)))
	buf = append(buf, sizeAndCount[:]...)

	for _, c := range m.Chunks {
		var cbuf [chunkEncLen]byte
		copy(cbuf[0:16], c.PartitionUUID[:])
		binary.LittleEndian.PutUint64(cbuf[16:24], c.StartLBA)
		binary.LittleEndian.PutUint64(cbuf[24:32], c.EndLBA)
		binary.LittleEndian.PutUint64(cbuf[32:40], c.DataSize)
		if c.Written {
			cbuf[40] = 1
		}
		buf = append(buf, cbuf[:]...)
	}

	complete := byte(0)
	if m.Complete {
		complete = 1
	}
	buf = append(buf, complete)

	return buf, nil
}

// Decode parses a manifest previously produced by Encode.
func Decode(buf []byte) (*Manifest, error) {
	if len(buf) < 8+4 {
		return nil, ErrTruncated
	}

	if binary.LittleEndian.Uint32(buf[0:4]) != magic {
		return nil, ErrBadMagic
	}

	if binary.LittleEndian.Uint32(buf[4:8]) != version {
		return nil, ErrBadVersion
	}

	off := 8
	nameLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4

	if nameLen > maxNameLen || len(buf) < off+nameLen+12 {
		return nil, ErrTruncated
	}

	name := string(buf[off : off+nameLen])
	off += nameLen

	isoSize := binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	chunkCount := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4

	if chunkCount > maxChunks {
		return nil, ErrTooManyChunks
	}

	if len(buf) < off+chunkCount*chunkEncLen+1 {
		return nil, ErrTruncated
	}

	m := &Manifest{IsoName: name, IsoSize: isoSize}

	for i := 0; i < chunkCount; i++ {
		cbuf := buf[off : off+chunkEncLen]
		off += chunkEncLen

		var c Chunk
		copy(c.PartitionUUID[:], cbuf[0:16])
		c.StartLBA = binary.LittleEndian.Uint64(cbuf[16:24])
		c.EndLBA = binary.LittleEndian.Uint64(cbuf[24:32])
		c.DataSize = binary.LittleEndian.Uint64(cbuf[32:40])
		c.Written = cbuf[40] != 0

		m.Chunks = append(m.Chunks, c)
	}

	m.Complete = buf[off] != 0

	return m, nil
}


