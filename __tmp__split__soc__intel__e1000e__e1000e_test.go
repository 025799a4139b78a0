// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package e1000e

import (
	"testing"

	"github.com/usbarmory/morpheusx/internal/tsc"
)

func TestGenerateFallbackMac(t *testing.T) {
	mac := GenerateFallbackMac(0x1122334455667788)

	if mac[0]&0x01 != 0 {
		t.Fatalf("fallback MAC must not be multicast, got %02x", mac[0])
	}

	if mac[0]&0x02 == 0 {
		t.Fatalf("fallback MAC must be locally administered, got %02x", mac[0])
	}
}

func TestGenerateFallbackMacDeterministic(t *testing.T) {
	a := GenerateFallbackMac(42)
	b := GenerateFallbackMac(42)

	if a != b {
		t.Fatalf("expected deterministic MAC for identical seed, got %x and %x", a, b)
	}

	c := GenerateFallbackMac(43)
	if a == c {
		t.Fatalf("expected distinct MACs for distinct seeds")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(tsc.Clock{FreqHz: 1_000_000_000})

	if cfg.RxQueueSize != DEFAULT_QUEUE_SIZE {
		t.Fatalf("unexpected RX queue size: %d", cfg.RxQueueSize)
	}

	if cfg.BufferSize != DEFAULT_BUFFER_SIZE {
		t.Fatalf("unexpected buffer size: %d", cfg.BufferSize)
	}
}


