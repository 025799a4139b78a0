// Minimal DHCPv4 client
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import (
	"encoding/binary"
	"errors"
	"net"
	"time"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
)

// dhcpState drives a DHCPDISCOVER/OFFER/REQUEST/ACK exchange. gvisor's
// pinned fork carries no reusable DHCP client package (unlike its TCP/
// UDP/ARP/ICMP transports, which example/usb_ethernet.go already
// exercises), so this hand-rolls the wire exchange the same way
// net/dns hand-rolls the DNS query/response codec — using the same
// gonet.DialUDP path as net/dns rather than a raw stack.Endpoint, for a
// broadcast destination address instead of a unicast resolver.
type dhcpState struct {
	started   bool
	startTick uint64
}

const dhcpClientPort = 68
const dhcpServerPort = 67

var (
	magicCookie = [4]byte{99, 130, 83, 99}
)

const (
	opRequest = 1
	opReply   = 2

	msgDiscover = 1
	msgOffer    = 2
	msgRequest  = 3
	msgAck      = 5
	msgNak      = 6

	optPad          = 0
	optSubnetMask   = 1
	optRouter       = 3
	optDNS          = 6
	optRequestedIP  = 50
	optLeaseTime    = 51
	optMsgType      = 53
	optServerID     = 54
	optParamReqList = 55
	optEnd          = 255
)

var errDhcpTimeout = errors.New("download: DHCP timed out")
var errDhcpNak = errors.New("download: DHCP server NAK")

func (s *dhcpState) Name() string { return "Dhcp" }

func (s *dhcpState) Step(ctx *Context, now uint64) (State, StepResult) {
	if !s.started {
		s.started = true
		s.startTick = now
	}

	lease, err := runDhcp(ctx.Stack, ctx.NIC, ctx.Timeouts.Dhcp())
	if err != nil {
		ctx.FailReason = "DHCP failed: " + err.Error()
		return &failedState{}, Failed
	}

	ctx.LocalIP = lease.yourIP
	ctx.Netmask = lease.subnetMask
	ctx.Gateway = lease.router
	ctx.DNSServer = lease.dnsServer

	if err := applyAddress(ctx.Stack, ctx.NIC, lease.yourIP, lease.subnetMask, lease.router); err != nil {
		ctx.FailReason = "DHCP address apply failed: " + err.Error()
		return &failedState{}, Failed
	}

	return &dnsState{}, Transition
}

type dhcpLease struct {
	yourIP     [4]byte
	subnetMask [4]byte
	router     [4]byte
	dnsServer  [4]byte
}

func runDhcp(s *stack.Stack, nic tcpip.NICID, timeout time.Duration) (dhcpLease, error) {
	var lease dhcpLease

	local := tcpip.FullAddress{NIC: nic, Port: dhcpClientPort}

	conn, err := gonet.DialUDP(s, &local, nil, ipv4.ProtocolNumber)
	if err != nil {
		return lease, err
	}
	defer conn.Close()

	xid := uint32(0x1234abcd)

	broadcast := &net.UDPAddr{IP: net.IPv4bcast, Port: dhcpServerPort}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return lease, err
	}

	discover := buildDhcpPacket(opRequest, xid, msgDiscover, nil)
	if _, err := conn.WriteTo(discover, broadcast); err != nil {
		return lease, err
	}

	buf := make([]byte, 1500)

	offer, err := readDhcpReply(conn, buf, xid, msgOffer)
	if err != nil {
		return lease, err
	}

	request := buildDhcpPacket(opRequest, xid, msgRequest, map[byte][]byte{
		optRequestedIP: offer.yourIP[:],
		optServerID:    offer.serverID[:],
	})
	if _, err := conn.WriteTo(request, broadcast); err != nil {
		return lease, err
	}

	ack, err := readDhcpReply(conn, buf, xid, msgAck)
	if err != nil {
		return lease, err
	}

	lease.yourIP = ack.yourIP
	lease.subnetMask = ack.subnetMask
	lease.router = ack.router
	lease.dnsServer = ack.dnsServer

	return lease, nil
}

type dhcpParsed struct {
	yourIP     [4]byte
	serverID   [4]byte
	subnetMask [4]byte
	router     [4]byte
	dnsServer  [4]byte
	msgType    byte
}

func readDhcpReply(conn *gonet.PacketConn, buf []byte, xid uint32, want byte) (dhcpParsed, error) {
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return dhcpParsed{}, errDhcpTimeout
		}

		parsed, gotXid, ok := parseDhcpPacket(buf[:n])
		if !ok || gotXid != xid {
			continue
		}

		if parsed.msgType == msgNak {
			return dhcpParsed{}, errDhcpNak
		}

		if parsed.msgType != want {
			continue
		}

		return parsed, nil
	}
}

func buildDhcpPacket(op byte, xid uint32, msgType byte, extra map[byte][]byte) []byte {
	buf := make([]byte, 240)

	buf[0] = op
	buf[1] = 1 // htype = ethernet
	buf[2] = 6 // hlen
	binary.BigEndian.PutUint32(buf[4:8], xid)
	copy(buf[236:240], magicCookie[:])

	opts := []byte{optMsgType, 1, msgType}

	for code, val := range extra {
		opts = append(opts, code, byte(len(val)))
		opts = append(opts, val...)
	}

	opts = append(opts, optParamReqList, 3, optSubnetMask, optRouter, optDNS)
	opts = append(opts, optEnd)

	return append(buf, opts...)
}

func parseDhcpPacket(buf []byte) (dhcpParsed, uint32, bool) {
	if len(buf) < 240 {
		return dhcpParsed{}, 0, false
	}

	if buf[0] != opReply {
		return dhcpParsed{}, 0, false
	}

	xid := binary.BigEndian.Uint32(buf[4:8])

	var p dhcpParsed
	copy(p.yourIP[:], buf[16:20])

	off := 240
	for off < len(buf) {
		code := buf[off]
		if code == optEnd {
			break
		}
		if code == optPad {
			off++
			continue
		}
		if off+1 >= len(buf) {
			break
		}
		l := int(buf[off+1])
		if off+2+l > len(buf) {
			break
		}
		val := buf[off+2 : off+2+l]

		switch code {
		case optMsgType:
			if l == 1 {
				p.msgType = val[0]
			}
		case optServerID:
			if l == 4 {
				copy(p.serverID[:], val)
			}
		case optSubnetMask:
			if l == 4 {
				copy(p.subnetMask[:], val)
			}
		case optRouter:
			if l >= 4 {
				copy(p.router[:], val[:4])
			}
		case optDNS:
			if l >= 4 {
				copy(p.dnsServer[:], val[:4])
			}
		}

		off += 2 + l
	}

	return p, xid, true
}

func applyAddress(s *stack.Stack, nic tcpip.NICID, ip, mask, gw [4]byte) error {
	addr := tcpip.Address(ip[:])

	if err := s.AddAddress(nic, ipv4.ProtocolNumber, addr); err != nil {
		return errors.New("AddAddress failed")
	}

	subnet, err := tcpip.NewSubnet(tcpip.Address(netAddr(ip, mask)[:]), tcpip.AddressMask(mask[:]))
	if err != nil {
		return err
	}

	routes := []tcpip.Route{{Destination: subnet, NIC: nic}}

	if gw != ([4]byte{}) {
		defaultSubnet, err := tcpip.NewSubnet(tcpip.Address([]byte{0, 0, 0, 0}), tcpip.AddressMask([]byte{0, 0, 0, 0}))
		if err == nil {
			routes = append(routes, tcpip.Route{Destination: defaultSubnet, Gateway: tcpip.Address(gw[:]), NIC: nic})
		}
	}

	s.SetRouteTable(routes)

	return nil
}

func netAddr(ip, mask [4]byte) [4]byte {
	var n [4]byte
	for i := range n {
		n[i] = ip[i] & mask[i]
	}
	return n
}


