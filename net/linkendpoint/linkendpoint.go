// gvisor channel.Endpoint pump over a polled NIC driver
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package linkendpoint wires a polled hardware NIC driver (soc/intel/
// e1000e or kvm/virtio/net) into gvisor's network stack via a
// channel.Endpoint, following the same outbound-drain/inbound-inject pump
// shape as the teacher's USB-ECM gvisor integration (example/
// usb_ethernet.go's ECMTx/ECMRx functions), generalized from a USB
// gadget's polled endpoint functions to any NIC driver with the same
// Transmit/PollRx surface.
package linkendpoint

import (
	"encoding/binary"
	"errors"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/buffer"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
)

const ethernetHeaderSize = 14

var ErrLinkDown = errors.New("linkendpoint: NIC link is down")

// NIC is the polled hardware surface this package pumps against. Both
// soc/intel/e1000e.Driver and kvm/virtio/net.Driver satisfy it.
type NIC interface {
	MAC() [6]byte
	MTU() int
	Transmit(frame []byte) error
	PollRx() ([]byte, error)
	PollTx() int
	LinkStatus() bool
}

// Endpoint bridges a NIC to a gvisor stack.LinkEndpoint.
type Endpoint struct {
	nic NIC
	ch  *channel.Endpoint
}

// New creates a channel.Endpoint sized to the NIC's MTU and hardware
// address, ready to be passed to stack.Stack.CreateNIC.
func New(nic NIC, queueDepth int) *Endpoint {
	mac := nic.MAC()
	linkAddr := tcpip.LinkAddress(mac[:])

	return &Endpoint{
		nic: nic,
		ch:  channel.New(queueDepth, uint32(nic.MTU()), linkAddr),
	}
}

// LinkEndpoint returns the gvisor stack.LinkEndpoint to attach to a NIC ID.
func (e *Endpoint) LinkEndpoint() stack.LinkEndpoint {
	return e.ch
}

// LinkUp reports the underlying NIC's PHY link status.
func (e *Endpoint) LinkUp() bool {
	return e.nic.LinkStatus()
}

// Pump drains one round of outbound packets queued by the stack onto the
// NIC, and one round of inbound frames from the NIC into the stack. It is
// called every iteration of the single-threaded polling loop, mirroring
// ECMTx/ECMRx's non-blocking per-call drain shape rather than running as
// a background goroutine.
func (e *Endpoint) Pump() error {
	e.pumpTx()
	e.nic.PollTx()

	return e.pumpRx()
}

func (e *Endpoint) pumpTx() {
	mac := e.nic.MAC()

	for {
		info, ok := e.ch.Read()
		if !ok {
			return
		}

		hdr := info.Pkt.Header.View()
		payload := info.Pkt.Data.ToView()

		proto := make([]byte, 2)
		binary.BigEndian.PutUint16(proto, uint16(info.Proto))

		frame := make([]byte, 0, ethernetHeaderSize+len(hdr)+len(payload))
		frame = append(frame, []byte(info.Route.RemoteLinkAddress)...)
		frame = append(frame, mac[:]...)
		frame = append(frame, proto...)
		frame = append(frame, hdr...)
		frame = append(frame, payload...)

		e.nic.Transmit(frame)
	}
}

func (e *Endpoint) pumpRx() error {
	for {
		frame, err := e.nic.PollRx()
		if err != nil {
			return err
		}

		if frame == nil {
			return nil
		}

		if len(frame) < ethernetHeaderSize {
			continue
		}

		proto := tcpip.NetworkProtocolNumber(binary.BigEndian.Uint16(frame[12:14]))
		payload := buffer.NewViewFromBytes(frame[ethernetHeaderSize:])

		pkt := &stack.PacketBuffer{
			Data: payload.ToVectorisedView(),
		}

		e.ch.InjectInbound(proto, pkt)
	}
}
