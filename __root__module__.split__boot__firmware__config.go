// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package firmware

import (
	"time"

	"github.com/usbarmory/morpheusx/disk/manifest"
)

// Config covers every compiled-in default the firmware-phase entry point
// needs, mirroring original_source/bootloader/src/tui/distro_downloader/
// commit/resources/*.rs's constants plus the network-phase timeouts
// spec.md §4.K documents per state.
type Config struct {
	// Queue sizes for the NIC driver rings ([E]/[F]).
	RxQueueSize int
	TxQueueSize int

	// BufferSize is the per-descriptor DMA buffer size.
	BufferSize int

	DMARegionSize int
	StackSize     int

	TSCCalibrationTimeout time.Duration

	DhcpTimeout   time.Duration
	DnsTimeout    time.Duration
	ConnectTimeout time.Duration
	HttpIdleTimeout time.Duration

	// URL is the target ISO's download location.
	URL string
	// IsoName is the filename recorded in the manifest.
	IsoName string
	// ManifestMode selects how the manifest is persisted.
	ManifestMode manifest.Mode
}

// DefaultConfig returns the compiled-in defaults used when no EFI
// variable override is present.
func DefaultConfig() Config {
	return Config{
		RxQueueSize:   256,
		TxQueueSize:   256,
		BufferSize:    2048,
		DMARegionSize: DmaSize,
		StackSize:     StackSize,

		TSCCalibrationTimeout: 2 * time.Second,

		DhcpTimeout:    10 * time.Second,
		DnsTimeout:     5 * time.Second,
		ConnectTimeout: 10 * time.Second,
		HttpIdleTimeout: 30 * time.Second,

		IsoName:      "morpheusx.iso",
		ManifestMode: manifest.ModeFat32,
	}
}


