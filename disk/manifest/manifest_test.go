// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package manifest

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := New("tiny.iso", 1048576)

	var uuid [16]byte
	uuid[0] = 0xaa

	if err := m.AddChunk(uuid, 4096, 6143); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Chunks[0].DataSize = 1048576
	m.Chunks[0].Written = true
	m.MarkComplete()

	buf, err := m.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if got.IsoName != m.IsoName || got.IsoSize != m.IsoSize || !got.Complete {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if len(got.Chunks) != 1 || got.Chunks[0].StartLBA != 4096 || got.Chunks[0].EndLBA != 6143 {
		t.Fatalf("chunk mismatch: %+v", got.Chunks)
	}

	if !got.Chunks[0].Written || got.Chunks[0].DataSize != 1048576 {
		t.Fatalf("chunk flags mismatch: %+v", got.Chunks[0])
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 16)

	if _, err := Decode(buf); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestAddChunkEnforcesBound(t *testing.T) {
	m := New("x.iso", 0)

	var uuid [16]byte
	for i := 0; i < maxChunks; i++ {
		if err := m.AddChunk(uuid, 0, 0); err != nil {
			t.Fatalf("unexpected error at chunk %d: %v", i, err)
		}
	}

	if err := m.AddChunk(uuid, 0, 0); err != ErrTooManyChunks {
		t.Fatalf("expected ErrTooManyChunks, got %v", err)
	}
}

func TestShortName(t *testing.T) {
	cases := map[string]string{
		"tiny.iso":        "TINY",
		"ubuntu-24.04.iso": "UBUNTU_2",
		"":                "ISO",
	}

	for in, want := range cases {
		if got := shortName(in); got != want {
			t.Fatalf("shortName(%q) = %q, want %q", in, got, want)
		}
	}
}
