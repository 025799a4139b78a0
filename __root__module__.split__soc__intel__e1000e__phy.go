// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package e1000e

import "time"

// Phy provides MDIC-based MDIO access to the PHY attached to a Driver's
// MAC, following the 82579 Datasheet §10.2.4.
type Phy struct {
	dev *Driver
}

// Read performs an MDIC-mediated PHY register read.
func (p *Phy) Read(reg uint32) (val uint16, err error) {
	mdic := (reg << MDIC_REG_SHIFT) | (PHY_ADDR << MDIC_PHY_SHIFT) | MDIC_OP_READ
	p.dev.wr(MDIC, mdic)

	deadline := p.dev.cfg.Clock.After(MDIC_TIMEOUT_US * time.Microsecond)

	for {
		mdic = p.dev.rd(MDIC)

		if mdic&MDIC_READY != 0 {
			break
		}

		if deadline.Expired() {
			return 0, ErrResetTimeout
		}
	}

	if mdic&MDIC_ERROR != 0 {
		return 0, ErrMmio
	}

	return uint16(mdic & MDIC_DATA_MASK), nil
}

// Write performs an MDIC-mediated PHY register write.
func (p *Phy) Write(reg uint32, val uint16) error {
	mdic := (reg << MDIC_REG_SHIFT) | (PHY_ADDR << MDIC_PHY_SHIFT) | MDIC_OP_WRITE | uint32(val)
	p.dev.wr(MDIC, mdic)

	deadline := p.dev.cfg.Clock.After(MDIC_TIMEOUT_US * time.Microsecond)

	for {
		mdic = p.dev.rd(MDIC)

		if mdic&MDIC_READY != 0 {
			break
		}

		if deadline.Expired() {
			return ErrResetTimeout
		}
	}

	if mdic&MDIC_ERROR != 0 {
		return ErrMmio
	}

	return nil
}

// LinkUp reports whether the PHY reports an active link via BMSR, a
// second, PHY-local confirmation independent of the MAC's own STATUS.LU.
func (p *Phy) LinkUp() (bool, error) {
	bmsr, err := p.Read(PHY_BMSR)
	if err != nil {
		return false, err
	}

	// BMSR.LSTATUS is latched low; two reads clear a stale latch.
	bmsr, err = p.Read(PHY_BMSR)
	if err != nil {
		return false, err
	}

	return bmsr&BMSR_LSTATUS != 0, nil
}

// Reset issues a PHY-local software reset via BMCR.RESET and waits for it
// to self-clear.
func (p *Phy) Reset() error {
	if err := p.Write(PHY_BMCR, BMCR_RESET); err != nil {
		return err
	}

	deadline := p.dev.cfg.Clock.After(500 * time.Millisecond)

	for {
		bmcr, err := p.Read(PHY_BMCR)
		if err != nil {
			return err
		}

		if bmcr&BMCR_RESET == 0 {
			return nil
		}

		if deadline.Expired() {
			return ErrResetTimeout
		}
	}
}


