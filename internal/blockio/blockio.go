// Asynchronous block device submit/poll surface and synchronous adapter
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package blockio defines the asynchronous capability surface shared by
// every block device driver (VirtIO-blk, AHCI) and a synchronous adapter
// over it, grounded in the reference implementation's
// VirtioBlkBlockIo-style submit/kick/poll control flow.
package blockio

import (
	"errors"
	"time"

	"github.com/usbarmory/morpheusx/internal/tsc"
)

var (
	ErrNotReady  = errors.New("blockio: device not ready")
	ErrTimeout   = errors.New("blockio: operation timed out")
	ErrIO        = errors.New("blockio: device reported an I/O error")
	ErrCantQueue = errors.New("blockio: no free request slot")
)

// Info describes a block device's addressable geometry.
type Info struct {
	BlockSize  int
	BlockCount uint64
	ReadOnly   bool
}

// Completion reports the outcome of a previously submitted request.
type Completion struct {
	Tag int
	Err error
}

// BlockDevice is the asynchronous capability surface every concrete block
// driver implements: submit requests, kick the device, and poll for
// completions by tag. Tags are caller-assigned and round-trip through
// Completion so a submitter can correlate completions without the driver
// keeping request state beyond the in-flight command slot itself.
type BlockDevice interface {
	Info() Info

	CanSubmit() bool

	SubmitRead(tag int, lba uint64, buf []byte) error
	SubmitWrite(tag int, lba uint64, buf []byte) error
	SubmitFlush(tag int) error

	Notify()

	PollCompletion() (Completion, bool)
}

// SyncBlockIO adapts a BlockDevice's async surface into ordinary blocking
// calls, following the drain-stale-completions -> submit -> kick ->
// poll-until-match-or-timeout control flow of the reference adapter.
type SyncBlockIO struct {
	dev   BlockDevice
	clock tsc.Clock

	nextTag int
}

// NewSyncBlockIO wraps dev for synchronous use.
func NewSyncBlockIO(dev BlockDevice, clock tsc.Clock) *SyncBlockIO {
	return &SyncBlockIO{dev: dev, clock: clock}
}

func (s *SyncBlockIO) tag() int {
	s.nextTag++
	return s.nextTag
}

// drainStale discards completions left over from a previous, already-
// handled request (e.g. a flush notification the caller did not wait on),
// so a fresh wait never matches a stale tag by accident.
func (s *SyncBlockIO) drainStale() {
	for {
		if _, ok := s.dev.PollCompletion(); !ok {
			return
		}
	}
}

func (s *SyncBlockIO) waitFor(tag int, timeout time.Duration) error {
	deadline := s.clock.After(timeout)

	for {
		if c, ok := s.dev.PollCompletion(); ok {
			if c.Tag == tag {
				return c.Err
			}
			continue
		}

		if deadline.Expired() {
			return ErrTimeout
		}
	}
}

// Read performs a blocking sector read.
func (s *SyncBlockIO) Read(lba uint64, buf []byte, timeout time.Duration) error {
	if !s.dev.CanSubmit() {
		return ErrCantQueue
	}

	s.drainStale()

	tag := s.tag()
	if err := s.dev.SubmitRead(tag, lba, buf); err != nil {
		return err
	}

	s.dev.Notify()

	return s.waitFor(tag, timeout)
}

// Write performs a blocking sector write.
func (s *SyncBlockIO) Write(lba uint64, buf []byte, timeout time.Duration) error {
	if !s.dev.CanSubmit() {
		return ErrCantQueue
	}

	s.drainStale()

	tag := s.tag()
	if err := s.dev.SubmitWrite(tag, lba, buf); err != nil {
		return err
	}

	s.dev.Notify()

	return s.waitFor(tag, timeout)
}

// Flush performs a blocking cache flush.
func (s *SyncBlockIO) Flush(timeout time.Duration) error {
	if !s.dev.CanSubmit() {
		return ErrCantQueue
	}

	s.drainStale()

	tag := s.tag()
	if err := s.dev.SubmitFlush(tag); err != nil {
		return err
	}

	s.dev.Notify()

	return s.waitFor(tag, timeout)
}

// Info returns the wrapped device's geometry.
func (s *SyncBlockIO) Info() Info {
	return s.dev.Info()
}
