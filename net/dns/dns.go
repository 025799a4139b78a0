// Minimal recursive-free A-record resolver
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dns implements a minimal, recursive-free A-record resolver: one
// UDP/53 query, one response, matched by query ID, bounded by a deadline.
// original_source/network/src/mainloop/states/dns.rs never performs real
// resolution (only parse_ipv4 literal-IP detection); this package
// supplements that gap per spec.md's "Open Question — DNS", reusing the
// teacher's own gvisor UDP plumbing (example/usb_ethernet.go's
// gonet.DialUDP-based startUDPListener) instead of a raw stack.Endpoint.
package dns

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

// DefaultPort is the standard DNS service port.
const DefaultPort = 53

// DefaultTimeout is the query deadline spec.md mandates.
const DefaultTimeout = 5 * time.Second

// FallbackResolver is used when DHCP option 6 provided no resolver
// address.
var FallbackResolver = [4]byte{1, 1, 1, 1}

var (
	ErrTimeout     = errors.New("dns: query timed out")
	ErrNXDomain    = errors.New("dns: name does not exist")
	ErrNoARecord   = errors.New("dns: response contained no A record")
	ErrBadResponse = errors.New("dns: malformed response")
)

// Resolve issues a single A-record query for name against resolver,
// using s as the network stack's NIC and querying from nic, returning
// the first A record found or a Failed-worthy error.
func Resolve(s *stack.Stack, nic tcpip.NICID, resolver [4]byte, name string, timeout time.Duration) ([4]byte, error) {
	local := tcpip.FullAddress{NIC: nic, Port: 0}

	conn, err := gonet.DialUDP(s, &local, nil, ipv4.ProtocolNumber)
	if err != nil {
		return [4]byte{}, err
	}
	defer conn.Close()

	queryID := uint16(0xbeef)

	query := encodeQuery(queryID, name)

	remote := &net.UDPAddr{IP: net.IPv4(resolver[0], resolver[1], resolver[2], resolver[3]), Port: DefaultPort}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return [4]byte{}, err
	}

	if _, err := conn.WriteTo(query, remote); err != nil {
		return [4]byte{}, err
	}

	buf := make([]byte, 512)

	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return [4]byte{}, ErrTimeout
		}

		ip, respID, rerr := decodeResponse(buf[:n])
		if rerr != nil {
			return [4]byte{}, rerr
		}

		if respID != queryID {
			continue
		}

		return ip, nil
	}
}

func encodeQuery(id uint16, name string) []byte {
	buf := make([]byte, 0, 12+len(name)+2+5)

	var hdr [12]byte
	binary.BigEndian.PutUint16(hdr[0:2], id)
	hdr[2] = 0x01 // RD (recursion desired)
	binary.BigEndian.PutUint16(hdr[4:6], 1) // QDCOUNT
	buf = append(buf, hdr[:]...)

	for _, label := range splitLabels(name) {
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0x00)

	var qtail [4]byte
	binary.BigEndian.PutUint16(qtail[0:2], 1) // QTYPE A
	binary.BigEndian.PutUint16(qtail[2:4], 1) // QCLASS IN
	buf = append(buf, qtail[:]...)

	return buf
}

func splitLabels(name string) []string {
	var labels []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			if i > start {
				labels = append(labels, name[start:i])
			}
			start = i + 1
		}
	}
	return labels
}

const (
	rcodeMask    = 0x0f
	rcodeNXDOMAIN = 3
)

func decodeResponse(buf []byte) (ip [4]byte, id uint16, err error) {
	if len(buf) < 12 {
		return ip, 0, ErrBadResponse
	}

	id = binary.BigEndian.Uint16(buf[0:2])
	flags := binary.BigEndian.Uint16(buf[2:4])
	qdcount := binary.BigEndian.Uint16(buf[4:6])
	ancount := binary.BigEndian.Uint16(buf[6:8])

	rcode := int(flags) & rcodeMask
	if rcode == rcodeNXDOMAIN {
		return ip, id, ErrNXDomain
	}

	off := 12

	for i := 0; i < int(qdcount); i++ {
		off, err = skipName(buf, off)
		if err != nil {
			return ip, id, err
		}
		off += 4 // QTYPE + QCLASS
	}

	for i := 0; i < int(ancount); i++ {
		off, err = skipName(buf, off)
		if err != nil {
			return ip, id, err
		}

		if off+10 > len(buf) {
			return ip, id, ErrBadResponse
		}

		rtype := binary.BigEndian.Uint16(buf[off : off+2])
		rdlength := int(binary.BigEndian.Uint16(buf[off+8 : off+10]))
		off += 10

		if off+rdlength > len(buf) {
			return ip, id, ErrBadResponse
		}

		if rtype == 1 && rdlength == 4 { // A record
			copy(ip[:], buf[off:off+4])
			return ip, id, nil
		}

		off += rdlength
	}

	return ip, id, ErrNoARecord
}

// skipName advances past a (possibly compressed) DNS name starting at
// off, returning the offset immediately after it.
func skipName(buf []byte, off int) (int, error) {
	for {
		if off >= len(buf) {
			return 0, ErrBadResponse
		}

		l := buf[off]

		switch {
		case l == 0:
			return off + 1, nil
		case l&0xc0 == 0xc0:
			if off+2 > len(buf) {
				return 0, ErrBadResponse
			}
			return off + 2, nil
		default:
			off += 1 + int(l)
		}
	}
}
