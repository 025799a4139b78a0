// VirtIO network device driver
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package net implements a VirtIO network device (virtio-net) driver on
// top of the virtio package's transport and virtqueue primitives,
// following the Virtual I/O Device (VIRTIO) specification version 1.2,
// §5.1 (Network Device).
//
// The driver is transport-agnostic: it drives any virtio.VirtIO
// implementation (legacy MMIO, legacy PCI, or modern PCI), matching
// whichever transport probing located the device.
//
// This package is only meant to be used with `GOOS=tamago` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/morpheusx.
package net

import (
	"encoding/binary"
	"errors"

	"github.com/usbarmory/morpheusx/kvm/virtio"
)

// Device feature bits (VIRTIO 1.2 §5.1.3)
const (
	F_CSUM       = 0
	F_MAC        = 5
	F_STATUS     = 16
	F_MRG_RXBUF  = 15
	F_MQ         = 22
)

const (
	rxQueue = 0
	txQueue = 1

	// virtio-net legacy header, used whenever VIRTIO_F_VERSION_1 /
	// mergeable-buffers are not negotiated (the case for every transport
	// this driver supports, since negotiate() clears reserved features
	// this driver does not request).
	netHeaderLen = 10

	maxFrameSize = 1514
	// RX buffers must fit the net header plus the largest supported
	// frame.
	rxBufferSize = netHeaderLen + maxFrameSize
)

var (
	ErrNotReady  = errors.New("virtio-net: device not initialized")
	ErrFrameSize = errors.New("virtio-net: frame exceeds maximum size")
	ErrRxEmpty   = errors.New("virtio-net: no received frame pending")
)

// Driver represents a virtio-net device instance.
type Driver struct {
	dev virtio.VirtIO

	rx virtio.VirtualQueue
	tx virtio.VirtualQueue

	mac      [6]byte
	features uint64

	queueSize int
	ready     bool
}

// New creates a virtio-net driver instance over the given transport. The
// transport (MMIO, LegacyPCI, or PCI modern) must already be probed; Init
// performs device reset, feature negotiation, and virtqueue setup.
func New(dev virtio.VirtIO, queueSize int) *Driver {
	return &Driver{
		dev:       dev,
		queueSize: queueSize,
	}
}

// Init resets the device, negotiates features, sets up the RX/TX
// virtqueues, and pre-fills the RX queue with empty buffers.
func (d *Driver) Init() (err error) {
	driverFeatures := uint64(1<<F_MAC) | uint64(1<<F_STATUS)

	if err = d.dev.Init(driverFeatures); err != nil {
		return
	}

	d.features = d.dev.NegotiatedFeatures()

	cfg := d.dev.Config(6 + 2)
	if len(cfg) >= 6 {
		copy(d.mac[:], cfg[0:6])
	}

	d.dev.SetQueueSize(rxQueue, d.queueSize)
	d.rx.Init(d.queueSize, rxBufferSize, virtio.Write)
	d.dev.SetQueue(rxQueue, &d.rx)

	d.dev.SetQueueSize(txQueue, d.queueSize)
	d.tx.Init(d.queueSize, rxBufferSize, 0)
	d.dev.SetQueue(txQueue, &d.tx)

	d.dev.SetReady()

	d.ready = true

	return
}

// MAC returns the device hardware address.
func (d *Driver) MAC() [6]byte {
	return d.mac
}

// MTU returns the maximum Ethernet payload size this driver supports.
func (d *Driver) MTU() int {
	return maxFrameSize
}

// Transmit submits an Ethernet frame for transmission, prefixing it with
// the virtio-net header (VIRTIO 1.2 §5.1.6.1) and notifying the device.
func (d *Driver) Transmit(frame []byte) error {
	if !d.ready {
		return ErrNotReady
	}

	if len(frame) > maxFrameSize {
		return ErrFrameSize
	}

	buf := make([]byte, netHeaderLen+len(frame))
	// flags=0, gso_type=NONE(0), hdr_len, gso_size, csum_start,
	// csum_offset, num_buffers all zero: no offloads negotiated.
	binary.LittleEndian.PutUint16(buf[8:10], 0)
	copy(buf[netHeaderLen:], frame)

	d.tx.Push(buf)
	d.dev.QueueNotify(txQueue)

	return nil
}

// PollTx drains completed transmit descriptors, returning the count
// reclaimed. The underlying ring reuses buffers on Push so no payload is
// returned.
func (d *Driver) PollTx() (completed int) {
	for {
		if buf := d.tx.Pop(); buf == nil {
			return
		}
		completed++
	}
}

// PollRx drains a single received Ethernet frame, if one is pending, with
// the virtio-net header stripped. It returns ErrRxEmpty when no frame is
// available, which is not a failure condition in the polling loop.
func (d *Driver) PollRx() (frame []byte, err error) {
	if !d.ready {
		return nil, ErrNotReady
	}

	buf := d.rx.Pop()

	if buf == nil {
		return nil, ErrRxEmpty
	}

	if len(buf) <= netHeaderLen {
		return nil, nil
	}

	frame = buf[netHeaderLen:]

	// replenish the consumed RX buffer immediately so the ring never
	// starves under sustained traffic.
	empty := make([]byte, rxBufferSize)
	d.rx.Push(empty)
	d.dev.QueueNotify(rxQueue)

	return
}

// LinkStatus reports whether the device-reported link is up, when
// VIRTIO_NET_F_STATUS was negotiated; absent that feature the link is
// assumed up once the device is ready.
func (d *Driver) LinkStatus() bool {
	if d.features&(1<<F_STATUS) == 0 {
		return d.ready
	}

	cfg := d.dev.Config(8)
	if len(cfg) < 8 {
		return d.ready
	}

	status := binary.LittleEndian.Uint16(cfg[6:8])
	return status&0x1 != 0
}


