// Download state machine shared context
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package download drives the network boot's ISO download as a state
// machine: Init → GptPrep → LinkWait → Dhcp → Dns → Connect → Http →
// Manifest → Done/Failed, grounded in original_source/network/src/
// mainloop/{state.rs,context.rs,states/*.rs} and generalized from
// smoltcp's state-per-type design to gvisor's stack.
package download

import (
	"time"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/stack"

	"github.com/usbarmory/morpheusx/disk/manifest"
	"github.com/usbarmory/morpheusx/internal/allocator"
	"github.com/usbarmory/morpheusx/internal/blockio"
	"github.com/usbarmory/morpheusx/internal/tsc"
	"github.com/usbarmory/morpheusx/net/linkendpoint"
)

// Timeouts holds the TSC-tick deadlines for each network phase, matching
// original_source/network/src/mainloop/context.rs's Timeouts methods.
type Timeouts struct {
	clock tsc.Clock
}

func NewTimeouts(clock tsc.Clock) Timeouts { return Timeouts{clock: clock} }

func (t Timeouts) Dhcp() time.Duration       { return 10 * time.Second }
func (t Timeouts) Dns() time.Duration        { return 5 * time.Second }
func (t Timeouts) TcpConnect() time.Duration { return 10 * time.Second }
func (t Timeouts) HttpIdle() time.Duration   { return 30 * time.Second }
func (t Timeouts) freqHz() uint64            { return t.clock.FreqHz }

// Config configures one download/write operation.
type Config struct {
	URL string

	WriteToDisk   bool
	WriteManifest bool
	ManifestMode  manifest.Mode

	// Raw-sector manifest destination, used when ManifestMode is
	// ModeRawSector.
	ManifestSector uint64

	// ESP location, used for GPT/FAT32-backed manifest placement and
	// when WriteToDisk targets the ESP's free space.
	EspStartLBA uint64
	EspEndLBA   uint64

	IsoName        string
	PartitionUUID  [16]byte
	DNSResolver    [4]byte
}

// Context is threaded through every state's Step call, mirroring the
// reference Context struct's fields.
type Context struct {
	Config   Config
	Timeouts Timeouts

	Stack *stack.Stack
	NIC   tcpip.NICID
	Link  *linkendpoint.Endpoint

	BlockDevice *blockio.SyncBlockIO

	// Allocator serves the HTTP read buffer from the post-exit static
	// heap instead of the Go heap; nil falls back to a plain make(),
	// which keeps every state constructible in host-side unit tests
	// without a firmware-phase handoff to flip onto.
	Allocator *allocator.Allocator

	URLHost string
	URLPath string
	Port    uint16

	ResolvedIP [4]byte

	LocalIP   [4]byte
	Netmask   [4]byte
	Gateway   [4]byte
	DNSServer [4]byte

	ActualStartSector uint64
	ContentLength     *uint64
	BytesDownloaded   uint64
	BytesWritten      uint64

	FailReason string
}

func (ctx *Context) linkFreqHz() uint64 { return ctx.Timeouts.freqHz() }
