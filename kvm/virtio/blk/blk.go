// VirtIO block device driver
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package blk implements a virtio-blk driver (VIRTIO 1.2 §5.2) as an
// internal/blockio.BlockDevice, driving any virtio.VirtIO transport.
package blk

import (
	"encoding/binary"
	"errors"

	"github.com/usbarmory/morpheusx/internal/blockio"
	"github.com/usbarmory/morpheusx/kvm/virtio"
)

const (
	requestQueue = 0

	// legacy request header (VIRTIO 1.2 §5.2.6): type, reserved, sector.
	reqHeaderLen = 16
	statusLen    = 1

	typeIn    = 0
	typeOut   = 1
	typeFlush = 4

	statusOK     = 0
	statusIOErr  = 1
	statusUnsupp = 2
)

const (
	F_RO    = 5
	F_FLUSH = 9
	F_BLK_SIZE = 6
)

var (
	ErrUnsupported = errors.New("virtio-blk: request type unsupported by device")
	ErrDeviceIO    = errors.New("virtio-blk: device reported I/O error")
)

type inflight struct {
	tag    int
	status []byte
	done   bool
	err    error
}

// Driver implements blockio.BlockDevice over a virtio-blk device.
type Driver struct {
	dev virtio.VirtIO
	q   virtio.VirtualQueue

	blockSize  int
	blockCount uint64
	readOnly   bool

	queueSize int
	ready     bool

	inflight []*inflight
}

// New constructs a virtio-blk driver over an already-probed transport.
func New(dev virtio.VirtIO, queueSize int) *Driver {
	return &Driver{dev: dev, queueSize: queueSize, blockSize: 512}
}

// Init resets the device, negotiates features, and sets up the request
// virtqueue.
func (d *Driver) Init() error {
	driverFeatures := uint64(1<<F_FLUSH) | uint64(1<<F_BLK_SIZE)

	if err := d.dev.Init(driverFeatures); err != nil {
		return err
	}

	features := d.dev.NegotiatedFeatures()
	d.readOnly = features&(1<<F_RO) != 0

	cfg := d.dev.Config(16)
	if len(cfg) >= 8 {
		d.blockCount = binary.LittleEndian.Uint64(cfg[0:8])
	}

	if len(cfg) >= 16 && features&(1<<F_BLK_SIZE) != 0 {
		if bs := binary.LittleEndian.Uint32(cfg[12:16]); bs != 0 {
			d.blockSize = int(bs)
		}
	}

	d.dev.SetQueueSize(requestQueue, d.queueSize)
	d.q.Init(d.queueSize, d.blockSize+reqHeaderLen+statusLen, virtio.Write)
	d.dev.SetQueue(requestQueue, &d.q)
	d.dev.SetReady()

	d.ready = true

	return nil
}

// Info implements blockio.BlockDevice.
func (d *Driver) Info() blockio.Info {
	return blockio.Info{BlockSize: d.blockSize, BlockCount: d.blockCount, ReadOnly: d.readOnly}
}

// CanSubmit implements blockio.BlockDevice.
func (d *Driver) CanSubmit() bool {
	return d.ready
}

func (d *Driver) submit(tag int, reqType uint32, lba uint64, data []byte) error {
	hdr := make([]byte, reqHeaderLen)
	binary.LittleEndian.PutUint32(hdr[0:4], reqType)
	binary.LittleEndian.PutUint64(hdr[8:16], lba)

	buf := make([]byte, reqHeaderLen+len(data)+statusLen)
	copy(buf, hdr)
	copy(buf[reqHeaderLen:], data)

	d.q.Push(buf)

	d.inflight = append(d.inflight, &inflight{tag: tag, status: buf[len(buf)-statusLen:]})

	return nil
}

// SubmitRead implements blockio.BlockDevice.
func (d *Driver) SubmitRead(tag int, lba uint64, buf []byte) error {
	return d.submit(tag, typeIn, lba, make([]byte, len(buf)))
}

// SubmitWrite implements blockio.BlockDevice.
func (d *Driver) SubmitWrite(tag int, lba uint64, buf []byte) error {
	if d.readOnly {
		return ErrUnsupported
	}
	return d.submit(tag, typeOut, lba, buf)
}

// SubmitFlush implements blockio.BlockDevice.
func (d *Driver) SubmitFlush(tag int) error {
	return d.submit(tag, typeFlush, 0, nil)
}

// Notify implements blockio.BlockDevice.
func (d *Driver) Notify() {
	d.dev.QueueNotify(requestQueue)
}

// PollCompletion implements blockio.BlockDevice.
func (d *Driver) PollCompletion() (blockio.Completion, bool) {
	if len(d.inflight) == 0 {
		return blockio.Completion{}, false
	}

	if buf := d.q.Pop(); buf != nil {
		req := d.inflight[0]
		d.inflight = d.inflight[1:]

		status := buf[len(buf)-statusLen]

		var err error
		switch status {
		case statusOK:
		case statusUnsupp:
			err = ErrUnsupported
		default:
			err = ErrDeviceIO
		}

		return blockio.Completion{Tag: req.tag, Err: err}, true
	}

	return blockio.Completion{}, false
}
