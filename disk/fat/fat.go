// FAT32 filesystem glue over a block device adapter
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package fat mounts and writes to a FAT32 filesystem living on the
// partition found by disk/gpt, using github.com/diskfs/go-diskfs's
// filesystem/fat32 codec over disk/gpt.BlockIOAdapter, following
// original_source/network/src/driver/block_io_adapter.rs's
// gpt_disk_io::BlockIo trait adapter pattern (§4.N).
package fat

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/fat32"

	"github.com/usbarmory/morpheusx/disk/gpt"
	"github.com/usbarmory/morpheusx/internal/blockio"
)

var (
	ErrNotMountable = errors.New("fat: partition is not a mountable FAT32 filesystem")
	ErrNoSuchFile   = errors.New("fat: file not found")
)

// Volume is a mounted FAT32 filesystem on one partition range of a block
// device.
type Volume struct {
	fs filesystem.FileSystem
}

// Mount opens the FAT32 filesystem occupying [startLBA, endLBA] on dev.
// It returns ErrNotMountable if the range does not hold a valid FAT32
// boot sector.
func Mount(dev *blockio.SyncBlockIO, startLBA, endLBA uint64, timeout time.Duration) (*Volume, error) {
	backend, size := newBackend(dev, startLBA, endLBA, timeout)

	fsys, err := fat32.Read(backend, size, 0, int64(dev.Info().BlockSize))
	if err != nil {
		return nil, ErrNotMountable
	}

	return &Volume{fs: fsys}, nil
}

// Format writes a fresh FAT32 filesystem across [startLBA, endLBA],
// sized for the free space disk/gpt.FindFreeSpace reported.
func Format(dev *blockio.SyncBlockIO, startLBA, endLBA uint64, volumeLabel string, timeout time.Duration) (*Volume, error) {
	backend, size := newBackend(dev, startLBA, endLBA, timeout)

	fsys, err := fat32.Create(backend, size, 0, int64(dev.Info().BlockSize), volumeLabel)
	if err != nil {
		return nil, err
	}

	return &Volume{fs: fsys}, nil
}

// WriteFile writes data to name, creating parent directories as needed,
// matching the manifest writer's need to place /.iso/<name>.manifest
// without a pre-existing directory tree.
func (v *Volume) WriteFile(name string, data []byte) error {
	dir := path.Dir(name)
	if dir != "." && dir != "/" {
		if err := v.fs.Mkdir(dir); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}

	f, err := v.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}

	_, err = f.Write(data)

	return err
}

// ReadFile reads the entire contents of name.
func (v *Volume) ReadFile(name string) ([]byte, error) {
	entries, err := v.fs.ReadDir(path.Dir(name))
	if err != nil {
		return nil, ErrNoSuchFile
	}

	var size int64
	base := path.Base(name)
	found := false
	for _, entry := range entries {
		if entry.Name() == base {
			size = entry.Size()
			found = true
			break
		}
	}

	if !found {
		return nil, ErrNoSuchFile
	}

	f, err := v.fs.OpenFile(name, os.O_RDONLY)
	if err != nil {
		return nil, ErrNoSuchFile
	}

	buf := make([]byte, size)
	if _, err := f.Read(buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// blockBackend implements the io.ReaderAt/io.WriterAt/io.Closer/Sync
// surface go-diskfs's backend.Storage expects, rebasing every access
// onto [startLBA, endLBA] of the wrapped block device adapter so the
// filesystem codec can address the volume starting at offset 0.
type blockBackend struct {
	adapter *gpt.BlockIOAdapter
	off     int64
}

func newBackend(dev *blockio.SyncBlockIO, startLBA, endLBA uint64, timeout time.Duration) (*blockBackend, int64) {
	info := dev.Info()
	adapter := gpt.NewBlockIOAdapter(dev, timeout)
	size := int64(endLBA-startLBA+1) * int64(info.BlockSize)

	return &blockBackend{
		adapter: adapter,
		off:     int64(startLBA) * int64(info.BlockSize),
	}, size
}

func (b *blockBackend) ReadAt(p []byte, off int64) (int, error) {
	return b.adapter.ReadAt(p, b.off+off)
}

func (b *blockBackend) WriteAt(p []byte, off int64) (int, error) {
	return b.adapter.WriteAt(p, b.off+off)
}

func (b *blockBackend) Close() error { return nil }
func (b *blockBackend) Sync() error  { return nil }
