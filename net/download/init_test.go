// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import "testing"

func TestInitStateParsesHostPortPath(t *testing.T) {
	ctx := &Context{Config: Config{URL: "http://example.org:8080/iso/boot.iso"}}

	s := &initState{}
	next, result := s.Step(ctx, 0)

	if result != Transition {
		t.Fatalf("expected Transition, got %v", result)
	}

	if _, ok := next.(*gptPrepState); !ok {
		t.Fatalf("expected gptPrepState, got %T", next)
	}

	if ctx.URLHost != "example.org" {
		t.Fatalf("unexpected host: %q", ctx.URLHost)
	}

	if ctx.URLPath != "/iso/boot.iso" {
		t.Fatalf("unexpected path: %q", ctx.URLPath)
	}

	if ctx.Port != 8080 {
		t.Fatalf("unexpected port: %d", ctx.Port)
	}
}

func TestInitStateDefaultPortAndPath(t *testing.T) {
	ctx := &Context{Config: Config{URL: "http://example.org"}}

	s := &initState{}
	s.Step(ctx, 0)

	if ctx.Port != 80 {
		t.Fatalf("unexpected default port: %d", ctx.Port)
	}

	if ctx.URLPath != "/" {
		t.Fatalf("unexpected default path: %q", ctx.URLPath)
	}
}

func TestInitStateRejectsHttps(t *testing.T) {
	ctx := &Context{Config: Config{URL: "https://example.org/iso"}}

	s := &initState{}
	next, result := s.Step(ctx, 0)

	if result != Failed {
		t.Fatalf("expected Failed for https scheme, got %v", result)
	}

	if _, ok := next.(*failedState); !ok {
		t.Fatalf("expected failedState, got %T", next)
	}
}

func TestInitStateRejectsUnknownScheme(t *testing.T) {
	ctx := &Context{Config: Config{URL: "ftp://example.org/iso"}}

	s := &initState{}
	_, result := s.Step(ctx, 0)

	if result != Failed {
		t.Fatalf("expected Failed, got %v", result)
	}
}

func TestParsePortRejectsZeroAndOverflow(t *testing.T) {
	if _, err := parsePort("0"); err == nil {
		t.Fatalf("expected error for port 0")
	}

	if _, err := parsePort("99999"); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}

	port, err := parsePort("443")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if port != 443 {
		t.Fatalf("unexpected port: %d", port)
	}
}
