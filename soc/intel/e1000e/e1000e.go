// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package e1000e

import (
	"errors"
	"time"

	"github.com/usbarmory/morpheusx/internal/reg"
	"github.com/usbarmory/morpheusx/internal/tsc"
)

var (
	ErrResetTimeout  = errors.New("e1000e: device reset timed out")
	ErrInvalidMac    = errors.New("e1000e: invalid MAC address")
	ErrMmio          = errors.New("e1000e: MMIO access failed")
	ErrLinkTimeout   = errors.New("e1000e: link did not come up")
	ErrFrameTooLarge = errors.New("e1000e: frame exceeds buffer size")
)

// Config carries the tunables for a single device instance.
type Config struct {
	RxQueueSize uint16
	TxQueueSize uint16
	BufferSize  int
	Clock       tsc.Clock

	// PCH family devices (I217/I218/I219) require the ULP-disable and
	// PHY power-cycle recovery sequence; 82574L/82579 on QEMU/KVM do
	// not implement the FWSM/H2ME registers and skip it.
	PCHFamily bool
}

// DefaultConfig returns the spec-mandated defaults (DEFAULT_QUEUE_SIZE=32,
// DEFAULT_BUFFER_SIZE=2048), grounded in regs.go's constants.
func DefaultConfig(clock tsc.Clock) Config {
	return Config{
		RxQueueSize: DEFAULT_QUEUE_SIZE,
		TxQueueSize: DEFAULT_QUEUE_SIZE,
		BufferSize:  DEFAULT_BUFFER_SIZE,
		Clock:       clock,
	}
}

// Driver represents an Intel e1000e family network device instance.
type Driver struct {
	base uint32
	cfg  Config
	regs mmio

	mac [6]byte

	rx *RxRing
	tx *TxRing

	phy *Phy
}

// New constructs a driver bound to a probed device's MMIO base address.
// Init must be called before use.
func New(mmioBase uint32, cfg Config) *Driver {
	return newDriver(mmioBase, cfg, hwMMIO{})
}

// newDriver is the production constructor's test seam: it accepts an mmio
// implementation directly so Init's register program can be exercised
// against an in-memory fake instead of real device memory.
func newDriver(mmioBase uint32, cfg Config, regs mmio) *Driver {
	return &Driver{base: mmioBase, cfg: cfg, regs: regs}
}

func (d *Driver) rd(off uint32) uint32 {
	return d.regs.Read(d.base + off)
}

func (d *Driver) wr(off uint32, val uint32) {
	d.regs.Write(d.base+off, val)
}

// Init brings the device up from an arbitrary prior-owner state via the
// following sequence (Intel 82579 Datasheet §10; I218/I219 ULP recovery
// per Linux e1000e's ich8lan.c):
//
//  1. Mask and clear all interrupts (device may be mid-interrupt-storm
//     from a prior owner).
//  2. Disable RX and TX, then wait for in-flight DMA to quiesce.
//  3. Disable bus mastering (GIO master disable) and wait for the
//     GIO Master Enable status bit to clear.
//  4. Issue a mandatory device reset (CTRL.RST) and wait for it to
//     self-clear.
//  5. Wait for the EEPROM auto-read to complete (EECD.AUTO_RD).
//  6. Post-reset register cleanup: mask+clear interrupts again (reset
//     re-enables them), clear the multicast table.
//  7. On PCH-family parts, run the ULP-disable + PHY-wake recovery
//     with escalating retries.
//  8. Validate the EEPROM-provided MAC address, falling back to a
//     generated locally-administered address if it is all-zero or
//     all-one.
//  9. Rebuild the RX/TX descriptor rings.
//  10. Bring up the data path (enable RX, enable TX, force link up)
//      with interrupts permanently masked: this driver is polled-only.
func (d *Driver) Init() error {
	d.maskAndClearInterrupts()

	d.quiesce()

	if err := d.disableBusMastering(); err != nil {
		return err
	}

	if err := d.globalReset(); err != nil {
		return err
	}

	d.maskAndClearInterrupts()

	d.waitEepromAutoRead()

	if d.cfg.PCHFamily {
		if err := d.recoverPCHPhy(); err != nil {
			return err
		}
	}

	mac := d.readMac()

	if mac == ([6]byte{}) || mac == ([6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}) {
		mac = GenerateFallbackMac(reg.ReadTSC())
	}

	d.mac = mac
	d.writeMac(mac)

	d.clearMTA()

	rx, err := NewRxRing(d.regs, d.base, int(d.cfg.RxQueueSize), d.cfg.BufferSize)
	if err != nil {
		return err
	}
	d.rx = rx

	tx, err := NewTxRing(d.regs, d.base, int(d.cfg.TxQueueSize), d.cfg.BufferSize)
	if err != nil {
		return err
	}
	d.tx = tx

	d.phy = &Phy{dev: d}

	d.enableRx()
	d.enableTx()
	d.setLinkUp()

	return nil
}

func (d *Driver) maskAndClearInterrupts() {
	d.wr(IMC, INT_MASK_ALL)
	d.rd(ICR) // clear-on-read
}

// quiesce disables RX/TX and waits for the RXDCTL/TXDCTL queue-enable
// bits to clear before a reset is issued, avoiding descriptor corruption
// from a reset racing a prior owner's in-progress transfer. A device
// that never clears QENABLE within the deadline is logged and reset
// anyway, since a hung engine on a controller left behind by a prior
// owner is exactly the scenario Init's "brutal reset" exists to recover
// from.
func (d *Driver) quiesce() {
	rctl := d.rd(RCTL)
	rctl &^= RCTL_EN
	d.wr(RCTL, rctl)

	tctl := d.rd(TCTL)
	tctl &^= TCTL_EN
	d.wr(TCTL, tctl)

	deadline := d.cfg.Clock.After(10 * time.Millisecond)

	rxDone := false
	txDone := false

	for !deadline.Expired() {
		if !rxDone && d.rd(RXDCTL)&XDCTL_QUEUE_ENABLE == 0 {
			rxDone = true
		}

		if !txDone && d.rd(TXDCTL)&XDCTL_QUEUE_ENABLE == 0 {
			txDone = true
		}

		if rxDone && txDone {
			return
		}
	}

	if !rxDone {
		print("e1000e: WARNING: RXDCTL.QENABLE did not clear within 10ms, proceeding with reset\n")
	}

	if !txDone {
		print("e1000e: WARNING: TXDCTL.QENABLE did not clear within 10ms, proceeding with reset\n")
	}
}

func (d *Driver) disableBusMastering() error {
	ctrl := d.rd(CTRL)
	ctrl |= CTRL_GIO_MASTER_DISABLE
	d.wr(CTRL, ctrl)

	deadline := d.cfg.Clock.After(1 * time.Second)
	for d.rd(STATUS)&STATUS_GIO_MASTER_EN != 0 {
		if deadline.Expired() {
			return ErrResetTimeout
		}
	}

	return nil
}

func (d *Driver) globalReset() error {
	ctrl := d.rd(CTRL)
	d.wr(CTRL, ctrl|CTRL_RST)

	deadline := d.cfg.Clock.After(1 * time.Second)
	for d.rd(CTRL)&CTRL_RST != 0 {
		if deadline.Expired() {
			return ErrResetTimeout
		}
	}

	d.regs.Read(d.base + STATUS) // drain the posted reset write

	return nil
}

func (d *Driver) waitEepromAutoRead() {
	deadline := d.cfg.Clock.After(1 * time.Second)
	for d.rd(EECD)&EECD_AUTO_RD == 0 {
		if deadline.Expired() {
			return
		}
	}
}

func (d *Driver) readMac() (mac [6]byte) {
	ral := d.rd(RAL0)
	rah := d.rd(RAH0)

	mac[0] = byte(ral)
	mac[1] = byte(ral >> 8)
	mac[2] = byte(ral >> 16)
	mac[3] = byte(ral >> 24)
	mac[4] = byte(rah)
	mac[5] = byte(rah >> 8)

	return
}

func (d *Driver) writeMac(mac [6]byte) {
	ral := uint32(mac[0]) | uint32(mac[1])<<8 | uint32(mac[2])<<16 | uint32(mac[3])<<24
	rah := uint32(mac[4]) | uint32(mac[5])<<8 | RAH_AV

	d.wr(RAL0, ral)
	d.wr(RAH0, rah)
}

func (d *Driver) clearMTA() {
	for i := uint32(0); i < 128; i++ {
		d.wr(MTA+i*4, 0)
	}
}

func (d *Driver) enableRx() {
	rctl := uint32(RCTL_EN | RCTL_BAM | RCTL_SECRC | RCTL_BSIZE_2048)
	d.wr(RCTL, rctl)
}

func (d *Driver) enableTx() {
	tctl := uint32(TCTL_EN | TCTL_PSP | TCTL_CT_DEFAULT | TCTL_COLD_FD | TCTL_RTLC)
	d.wr(TCTL, tctl)
}

func (d *Driver) setLinkUp() {
	ctrl := d.rd(CTRL)
	ctrl |= CTRL_SLU | CTRL_ASDE
	d.wr(CTRL, ctrl)
}

// MAC returns the device hardware address in effect after Init.
func (d *Driver) MAC() [6]byte {
	return d.mac
}

// LinkUp reports the device-observed link state.
func (d *Driver) LinkUp() bool {
	return d.rd(STATUS)&STATUS_LU != 0
}

// LinkStatus reports the device-observed link state, satisfying
// net/linkendpoint.NIC alongside kvm/virtio/net.Driver.
func (d *Driver) LinkStatus() bool {
	return d.LinkUp()
}

// MTU returns the standard Ethernet MTU; this driver does not
// negotiate jumbo frames.
func (d *Driver) MTU() int {
	return 1500
}

// PollRx drains a single received frame, if any, with the fixed-size DMA
// buffer copied out before the descriptor is recycled.
func (d *Driver) PollRx() ([]byte, error) {
	return d.rx.Poll()
}

// Transmit submits a single Ethernet frame for transmission.
func (d *Driver) Transmit(frame []byte) error {
	return d.tx.Submit(frame)
}

// PollTx reclaims completed transmit descriptors, returning the count
// reclaimed.
func (d *Driver) PollTx() int {
	return d.tx.Reclaim()
}

// recoverPCHPhy runs the I218/I219 ULP-disable and PHY power-cycle
// sequence with a three-step escalating recovery: a plain ULP-disable
// request, then a LANPHYPC toggle if the PHY still does not respond, then
// a full PHY power-down/power-up cycle as the last resort. Each step is
// bounded by the datasheet-derived timeout constants in regs.go.
func (d *Driver) recoverPCHPhy() error {
	if d.rd(FWSM)&FWSM_FW_VALID == 0 {
		// no ME firmware present (bare QEMU/KVM e1000e emulation) —
		// the ULP/H2ME registers are PCH-only and this step is a
		// no-op.
		return nil
	}

	if err := d.disableUlp(); err == nil {
		return nil
	}

	if err := d.toggleLanPhyPC(); err == nil {
		return nil
	}

	return d.powerCyclePhy()
}

func (d *Driver) disableUlp() error {
	h2me := d.rd(H2ME)
	h2me |= H2ME_ULP_DISABLE
	d.wr(H2ME, h2me)

	deadline := d.cfg.Clock.After(ULP_DISABLE_TIMEOUT_US * time.Microsecond)
	for d.rd(FWSM)&FWSM_ULP_CFG_DONE == 0 {
		if deadline.Expired() {
			return ErrResetTimeout
		}
	}

	return nil
}

func (d *Driver) toggleLanPhyPC() error {
	ctrl := d.rd(CTRL)
	ctrl |= CTRL_LANPHYPC_OVERRIDE
	ctrl &^= CTRL_LANPHYPC_VALUE
	d.wr(CTRL, ctrl)

	deadline := d.cfg.Clock.After(LANPHYPC_TIMEOUT_US * time.Microsecond)
	for !deadline.Expired() {
		// toggle low-to-high per datasheet sequence
	}

	ctrl |= CTRL_LANPHYPC_VALUE
	d.wr(CTRL, ctrl)

	deadline = d.cfg.Clock.After(LANPHYPC_TIMEOUT_US * time.Microsecond)
	for d.rd(CTRL_EXT)&CTRL_EXT_LPCD == 0 {
		if deadline.Expired() {
			return ErrResetTimeout
		}
	}

	ctrl &^= CTRL_LANPHYPC_OVERRIDE
	d.wr(CTRL, ctrl)

	return nil
}

func (d *Driver) powerCyclePhy() error {
	ext := d.rd(CTRL_EXT)
	ext |= CTRL_EXT_PHYPDEN
	d.wr(CTRL_EXT, ext)

	deadline := d.cfg.Clock.After(PHY_POWER_ON_DELAY_US * time.Microsecond)
	for !deadline.Expired() {
	}

	ext &^= CTRL_EXT_PHYPDEN
	d.wr(CTRL_EXT, ext)

	deadline = d.cfg.Clock.After(PHY_POWER_ON_DELAY_US * time.Microsecond)
	for !deadline.Expired() {
	}

	return nil
}

// GenerateFallbackMac derives a locally-administered MAC address from a
// seed (typically the current TSC value), used when the EEPROM-provided
// address fails validation.
func GenerateFallbackMac(seed uint64) (mac [6]byte) {
	var b [8]byte
	for i := range b {
		b[i] = byte(seed >> (8 * i))
	}

	mac[0] = (b[5] &^ 0x01) | 0x02
	mac[1] = b[4]
	mac[2] = b[3]
	mac[3] = b[2]
	mac[4] = b[1]
	mac[5] = b[0]

	return
}
