// MorpheusX bare-metal entry point
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command morpheusx is the bare-metal phase entry point: it reads the
// handoff structure the firmware phase (boot/firmware) left behind,
// brings up whichever NIC/block devices were probed, and drives the
// download state machine (net/download) to completion, rebooting into
// the freshly written ISO. Grounded in example/usb_ethernet.go's
// init-chain shape (configure device, build gvisor stack, poll) and
// amd64.CPU's Init/SMP-free single-core entry.
package main

import (
	"unsafe"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/network/arp"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/icmp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"

	"github.com/usbarmory/morpheusx/amd64"
	"github.com/usbarmory/morpheusx/boot/firmware"
	"github.com/usbarmory/morpheusx/boot/handoff"
	"github.com/usbarmory/morpheusx/boot/reboot"
	"github.com/usbarmory/morpheusx/dma"
	"github.com/usbarmory/morpheusx/internal/allocator"
	"github.com/usbarmory/morpheusx/internal/blockio"
	"github.com/usbarmory/morpheusx/internal/log"
	"github.com/usbarmory/morpheusx/internal/tsc"
	"github.com/usbarmory/morpheusx/kvm/virtio"
	virtioblk "github.com/usbarmory/morpheusx/kvm/virtio/blk"
	virtionet "github.com/usbarmory/morpheusx/kvm/virtio/net"
	"github.com/usbarmory/morpheusx/net/download"
	"github.com/usbarmory/morpheusx/net/linkendpoint"
	"github.com/usbarmory/morpheusx/soc/intel/ahci"
	"github.com/usbarmory/morpheusx/soc/intel/e1000e"
	"github.com/usbarmory/morpheusx/soc/intel/uart"
)

const nic tcpip.NICID = 1

// handoffAddr is the fixed address the firmware phase agreed to leave
// the BootHandoff structure at before calling ExitBootServices. The two
// phases are separate binaries that only share this address convention,
// the same way original_source's two crates (bootloader, network) only
// share struct layout across the boundary.
const handoffAddr = 0x0010_0000

var logger *log.Logger

func main() {
	cpu := &amd64.CPU{}
	cpu.Init()

	logger = log.New(&uart.UART{Index: 0, Base: 0x3f8}, log.LevelInfo)
	logger.Infof("morpheusx: bare-metal phase starting")

	h := (*handoff.BootHandoff)(unsafe.Pointer(uintptr(handoffAddr)))

	if err := h.Validate(); err != nil {
		logger.Errorf("invalid handoff: %v", err)
		haltForever(cpu)
	}

	freqHz := h.TSCFreqHz
	if freqHz == 0 {
		// The firmware phase failed to calibrate the TSC before
		// ExitBootServices; fall back to this phase's own CPUID/MSR-based
		// detection rather than polling against a zero frequency forever.
		freqHz = uint64(cpu.Freq())
	}
	clock := tsc.Clock{FreqHz: freqHz}

	dma.Init(uint(h.DMA.CPUBase), int(h.DMA.Size))

	heap := allocator.New(firmware.NoPool{})
	heap.Flip(uint(h.HeapBase), int(h.HeapSize))

	nicDriver, err := bringUpNIC(h, clock)
	if err != nil {
		logger.Errorf("NIC init failed: %v", err)
		haltForever(cpu)
	}

	blkDriver, err := bringUpBlk(h, clock)
	if err != nil {
		logger.Errorf("block device init failed: %v", err)
		haltForever(cpu)
	}

	s := stack.New(stack.Options{
		NetworkProtocols: []stack.NetworkProtocol{
			ipv4.NewProtocol(),
			arp.NewProtocol(),
		},
		TransportProtocols: []stack.TransportProtocol{
			tcp.NewProtocol(),
			udp.NewProtocol(),
			icmp.NewProtocol4(),
		},
	})

	link := linkendpoint.New(nicDriver, 256)

	if err := s.CreateNIC(nic, link.LinkEndpoint()); err != nil {
		logger.Errorf("CreateNIC failed: %v", err)
		haltForever(cpu)
	}

	if err := s.AddAddress(nic, arp.ProtocolNumber, arp.ProtocolAddress); err != nil {
		logger.Errorf("AddAddress(arp) failed: %v", err)
		haltForever(cpu)
	}

	cfg := firmware.DefaultConfig()
	if err := firmware.ApplyVariableOverride(&cfg); err != nil {
		logger.Warnf("EFI variable override failed: %v", err)
	}

	syncBlk := blockio.NewSyncBlockIO(blkDriver, clock)

	ctx := &download.Context{
		Config: download.Config{
			URL:           cfg.URL,
			WriteToDisk:   true,
			WriteManifest: true,
			ManifestMode:  cfg.ManifestMode,
			EspStartLBA:   h.ESPFirstLBA,
			IsoName:       cfg.IsoName,
		},
		Timeouts:    download.NewTimeouts(clock),
		Stack:       s,
		NIC:         nic,
		Link:        link,
		BlockDevice: syncBlk,
		Allocator:   heap,
	}

	final, reason := download.Run(ctx, clock, link.Pump)

	if final.Name() == "Done" {
		logger.Infof("download complete, rebooting")
		reboot.Now(cpu.Halt)
	}

	logger.Errorf("download failed: %s", reason)
	haltForever(cpu)
}

func bringUpNIC(h *handoff.BootHandoff, clock tsc.Clock) (linkendpoint.NIC, error) {
	switch h.NIC.Type {
	case handoff.NicTypeE1000e:
		d := e1000e.New(uint32(h.NIC.BaseAddr), e1000e.DefaultConfig(clock))
		if err := d.Init(); err != nil {
			return nil, err
		}
		return d, nil
	default:
		dev := &virtio.MMIO{Base: uint32(h.NIC.BaseAddr)}
		d := virtionet.New(dev, 256)
		if err := d.Init(); err != nil {
			return nil, err
		}
		return d, nil
	}
}

func bringUpBlk(h *handoff.BootHandoff, clock tsc.Clock) (blockio.BlockDevice, error) {
	switch h.Blk.Type {
	case handoff.BlkTypeAHCI:
		d := ahci.New(uint32(h.Blk.BaseAddr), 0, clock)
		if err := d.Init(); err != nil {
			return nil, err
		}
		return d, nil
	default:
		dev := &virtio.MMIO{Base: uint32(h.Blk.BaseAddr)}
		d := virtioblk.New(dev, 256)
		if err := d.Init(); err != nil {
			return nil, err
		}
		return d, nil
	}
}

func haltForever(cpu *amd64.CPU) {
	for {
		cpu.Halt()
	}
}
