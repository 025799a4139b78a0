// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dns

import (
	"encoding/binary"
	"testing"
)

func TestEncodeQueryEncodesLabels(t *testing.T) {
	buf := encodeQuery(0x1234, "a.example.com")

	if binary.BigEndian.Uint16(buf[0:2]) != 0x1234 {
		t.Fatalf("unexpected query ID")
	}

	if buf[2]&0x01 == 0 {
		t.Fatalf("expected RD bit set")
	}

	// first label length byte for "a"
	if buf[12] != 1 || buf[13] != 'a' {
		t.Fatalf("unexpected first label encoding: %v", buf[12:14])
	}
}

func TestDecodeResponseFindsARecord(t *testing.T) {
	resp := buildResponse(t, 0x1234, []byte{10, 0, 2, 2})

	ip, id, err := decodeResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id != 0x1234 {
		t.Fatalf("unexpected id: %x", id)
	}

	if ip != ([4]byte{10, 0, 2, 2}) {
		t.Fatalf("unexpected ip: %v", ip)
	}
}

func TestDecodeResponseNXDomain(t *testing.T) {
	hdr := make([]byte, 12)
	binary.BigEndian.PutUint16(hdr[0:2], 0x1234)
	hdr[3] = rcodeNXDOMAIN // RCODE in low nibble of second flags byte

	_, _, err := decodeResponse(hdr)
	if err != ErrNXDomain {
		t.Fatalf("expected ErrNXDomain, got %v", err)
	}
}

// buildResponse constructs a minimal DNS response with one question and
// one A-record answer, mirroring the query encodeQuery would have sent.
func buildResponse(t *testing.T, id uint16, ip []byte) []byte {
	t.Helper()

	var hdr [12]byte
	binary.BigEndian.PutUint16(hdr[0:2], id)
	hdr[2] = 0x81 // QR + RD
	hdr[3] = 0x80 // RA
	binary.BigEndian.PutUint16(hdr[4:6], 1) // QDCOUNT
	binary.BigEndian.PutUint16(hdr[6:8], 1) // ANCOUNT

	buf := append([]byte{}, hdr[:]...)

	// question section: a.example.com
	for _, label := range []string{"a", "example", "com"} {
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0x00)
	var qtail [4]byte
	binary.BigEndian.PutUint16(qtail[0:2], 1)
	binary.BigEndian.PutUint16(qtail[2:4], 1)
	buf = append(buf, qtail[:]...)

	// answer: name pointer to offset 12, type A, class IN, TTL, RDLENGTH=4, RDATA
	buf = append(buf, 0xc0, 0x0c)
	var atail [10]byte
	binary.BigEndian.PutUint16(atail[0:2], 1) // TYPE A
	binary.BigEndian.PutUint16(atail[2:4], 1) // CLASS IN
	binary.BigEndian.PutUint32(atail[4:8], 300) // TTL
	binary.BigEndian.PutUint16(atail[8:10], 4)  // RDLENGTH
	buf = append(buf, atail[:]...)
	buf = append(buf, ip...)

	return buf
}


