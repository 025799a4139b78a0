// Intel e1000e family register definitions
// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package e1000e implements a driver for the Intel 82574L/82579/I217/I218/
// I219 Gigabit Ethernet controller family, following:
//   - Intel 82579 LAN Controller Datasheet, Section 10 (Programming Interface)
//   - Intel I218/I219 LAN on Motherboard errata and ICH8LAN-family PCH
//     power-management behavior, as implemented by the Linux e1000e driver
//     (drivers/net/ethernet/intel/e1000e/ich8lan.c)
//
// The controller is assumed to arrive in an arbitrary prior-owner state
// (firmware, a previous OS, or a previous boot stage's driver): every
// register this package relies on is explicitly reprogrammed from Init
// rather than assumed to hold a sane reset value, following the "brutal
// reset" discipline documented in the driver's Init method.
//
// This package is only meant to be used with `GOOS=tamago` as supported by
// the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/morpheusx.
package e1000e

// Device Control & Status
const (
	CTRL     = 0x0000
	STATUS   = 0x0008
	EECD     = 0x0010
	EERD     = 0x0014
	CTRL_EXT = 0x0018
	MDIC     = 0x0020
)

// Interrupt registers
const (
	ICR = 0x00c0
	ICS = 0x00c8
	IMS = 0x00d0
	IMC = 0x00d8
)

// Receive registers
const (
	RCTL   = 0x0100
	RDBAL  = 0x2800
	RDBAH  = 0x2804
	RDLEN  = 0x2808
	RDH    = 0x2810
	RDT    = 0x2818
	RXDCTL = 0x2828
)

// Transmit registers
const (
	TCTL   = 0x0400
	TDBAL  = 0x3800
	TDBAH  = 0x3804
	TDLEN  = 0x3808
	TDH    = 0x3810
	TDT    = 0x3818
	TXDCTL = 0x3828
)

// Receive address registers
const (
	RAL0 = 0x5400
	RAH0 = 0x5404
	MTA  = 0x5200
)

// CTRL bits
const (
	CTRL_FD                = 1 << 0
	CTRL_GIO_MASTER_DISABLE = 1 << 2
	CTRL_LRST              = 1 << 3
	CTRL_ASDE              = 1 << 5
	CTRL_SLU               = 1 << 6
	CTRL_ILOS              = 1 << 7
	CTRL_SPEED_MASK        = 3 << 8
	CTRL_SPEED_10          = 0 << 8
	CTRL_SPEED_100         = 1 << 8
	CTRL_SPEED_1000        = 2 << 8
	CTRL_FRCSPD            = 1 << 11
	CTRL_FRCDPLX           = 1 << 12
	CTRL_RST               = 1 << 26
	CTRL_PHY_RST           = 1 << 31
)

// STATUS bits (read-only)
const (
	STATUS_FD             = 1 << 0
	STATUS_LU             = 1 << 1
	STATUS_FUNC_MASK      = 3 << 2
	STATUS_TXOFF          = 1 << 4
	STATUS_SPEED_MASK     = 3 << 6
	STATUS_SPEED_10       = 0 << 6
	STATUS_SPEED_100      = 1 << 6
	STATUS_SPEED_1000     = 2 << 6
	STATUS_GIO_MASTER_EN  = 1 << 19
)

// RCTL bits
const (
	RCTL_EN          = 1 << 1
	RCTL_SBP         = 1 << 2
	RCTL_UPE         = 1 << 3
	RCTL_MPE         = 1 << 4
	RCTL_LPE         = 1 << 5
	RCTL_LBM_MASK    = 3 << 6
	RCTL_RDMTS_MASK  = 3 << 8
	RCTL_MO_MASK     = 3 << 12
	RCTL_BAM         = 1 << 15
	RCTL_BSIZE_MASK  = 3 << 16
	RCTL_BSIZE_2048  = 0 << 16
	RCTL_BSIZE_1024  = 1 << 16
	RCTL_BSIZE_512   = 2 << 16
	RCTL_BSIZE_256   = 3 << 16
	RCTL_VFE         = 1 << 18
	RCTL_CFIEN       = 1 << 19
	RCTL_CFI         = 1 << 20
	RCTL_DPF         = 1 << 22
	RCTL_PMCF        = 1 << 23
	RCTL_BSEX        = 1 << 25
	RCTL_SECRC       = 1 << 26
)

// TCTL bits
const (
	TCTL_EN        = 1 << 1
	TCTL_PSP       = 1 << 3
	TCTL_CT_MASK   = 0xff << 4
	TCTL_CT_SHIFT  = 4
	TCTL_COLD_MASK = 0x3ff << 12
	TCTL_COLD_SHIFT = 12
	TCTL_RTLC      = 1 << 24

	TCTL_CT_DEFAULT = 15 << TCTL_CT_SHIFT
	TCTL_COLD_FD    = 64 << TCTL_COLD_SHIFT
	TCTL_COLD_HD    = 512 << TCTL_COLD_SHIFT
)

// RXDCTL / TXDCTL bits
const (
	XDCTL_QUEUE_ENABLE = 1 << 25
)

// EECD bits
const (
	EECD_AUTO_RD = 1 << 9
)

const (
	INT_MASK_ALL = 0xffffffff
)

// RAH bits
const (
	RAH_AV        = 1 << 31
	RAH_ASEL_MASK = 3 << 16
)

// MDIC bits
const (
	MDIC_DATA_MASK = 0xffff
	MDIC_REG_SHIFT = 16
	MDIC_PHY_SHIFT = 21
	MDIC_OP_WRITE  = 1 << 26
	MDIC_OP_READ   = 2 << 26
	MDIC_READY     = 1 << 28
	MDIC_IE        = 1 << 29
	MDIC_ERROR     = 1 << 30

	PHY_ADDR = 1
)

// PHY registers (MII standard)
const (
	PHY_BMCR        = 0x00
	PHY_BMSR        = 0x01
	PHY_PHYID1      = 0x02
	PHY_PHYID2      = 0x03
	PHY_ANAR        = 0x04
	PHY_ANLPAR      = 0x05
	PHY_ANER        = 0x06
	PHY_1000T_CTRL  = 0x09
	PHY_1000T_STATUS = 0x0a
)

// PHY BMCR bits
const (
	BMCR_CTST      = 1 << 7
	BMCR_FULLDPLX  = 1 << 8
	BMCR_ANRESTART = 1 << 9
	BMCR_ISOLATE   = 1 << 10
	BMCR_PDOWN     = 1 << 11
	BMCR_ANENABLE  = 1 << 12
	BMCR_SPEED100  = 1 << 13
	BMCR_LOOPBACK  = 1 << 14
	BMCR_RESET     = 1 << 15
)

// PHY BMSR bits
const (
	BMSR_ERCAP       = 1 << 0
	BMSR_JCD         = 1 << 1
	BMSR_LSTATUS     = 1 << 2
	BMSR_ANEGCAPABLE = 1 << 3
	BMSR_RFAULT      = 1 << 4
	BMSR_ANEGCOMPLETE = 1 << 5
	BMSR_10HALF      = 1 << 11
	BMSR_10FULL      = 1 << 12
	BMSR_100HALF     = 1 << 13
	BMSR_100FULL     = 1 << 14
	BMSR_100BASE4    = 1 << 15
)

// Interrupt bits
const (
	ICR_TXDW   = 1 << 0
	ICR_TXQE   = 1 << 1
	ICR_LSC    = 1 << 2
	ICR_RXDMT0 = 1 << 4
	ICR_RXO    = 1 << 6
	ICR_RXT0   = 1 << 7
	ICR_ALL    = 0xffffffff
)

// Descriptor constants
const (
	DESC_SIZE          = 16
	DEFAULT_QUEUE_SIZE = 32
	DEFAULT_BUFFER_SIZE = 2048
	MAX_FRAME_SIZE     = 1514
)

// TX descriptor bits
const (
	TXD_CMD_EOP  = 1 << 0
	TXD_CMD_IFCS = 1 << 1
	TXD_CMD_IC   = 1 << 2
	TXD_CMD_RS   = 1 << 3
	TXD_CMD_RPS  = 1 << 4
	TXD_CMD_DEXT = 1 << 5
	TXD_CMD_VLE  = 1 << 6
	TXD_CMD_IDE  = 1 << 7

	TXD_STA_DD = 1 << 0
)

// RX descriptor bits
const (
	RXD_STA_DD   = 1 << 0
	RXD_STA_EOP  = 1 << 1
	RXD_STA_IXSM = 1 << 2
	RXD_STA_VP   = 1 << 3

	RXD_ERR_CE  = 1 << 0
	RXD_ERR_SE  = 1 << 1
	RXD_ERR_SEQ = 1 << 2
	RXD_ERR_CXE = 1 << 4
	RXD_ERR_RXE = 1 << 5
	RXD_ERR_IPE = 1 << 6
	RXD_ERR_TCPE = 1 << 7

	RXD_ERR_FATAL = RXD_ERR_CE | RXD_ERR_SE | RXD_ERR_SEQ | RXD_ERR_RXE
)

// I218/PCH LPT-specific registers (Linux e1000e ich8lan.c)
const (
	FWSM        = 0x5b54
	H2ME        = 0x5b50
	EXTCNF_CTRL = 0x0f00
	FEXTNVM3    = 0x003c
	FEXTNVM4    = 0x0024
	FEXTNVM6    = 0x0010
	PHPM        = 0x0e14
)

// CTRL bits — I218 specific
const (
	CTRL_LANPHYPC_OVERRIDE = 1 << 16
	CTRL_LANPHYPC_VALUE    = 1 << 17
)

// CTRL_EXT bits — I218 specific
const (
	CTRL_EXT_FORCE_SMBUS = 1 << 11
	CTRL_EXT_LPCD        = 1 << 14
	CTRL_EXT_PHYPDEN     = 1 << 20
)

// FWSM bits
const (
	FWSM_FW_VALID     = 1 << 15
	FWSM_ULP_CFG_DONE = 1 << 18
)

// H2ME bits
const (
	H2ME_ULP_DISABLE = 1 << 1
	H2ME_START_VME   = 1 << 0
)

// EXTCNF_CTRL bits
const (
	EXTCNF_CTRL_SWFLAG       = 1 << 5
	EXTCNF_CTRL_GATE_PHY_CFG = 1 << 7
)

// FEXTNVM3 bits
const (
	FEXTNVM3_PHY_CFG_COUNTER_MASK  = 0x3 << 12
	FEXTNVM3_PHY_CFG_COUNTER_50MS = 0x1 << 12
)

// FEXTNVM4 bits
const (
	FEXTNVM4_BEACON_DURATION_MASK = 0x7 << 3
	FEXTNVM4_BEACON_DURATION_16US = 0x3 << 3
)

// FEXTNVM6 bits
const (
	FEXTNVM6_REQ_PLL_CLK = 1 << 6
)

// PHPM bits
const (
	PHPM_SPD_EN    = 1 << 4
	PHPM_D0A_LPLU  = 1 << 1
)

// I218-specific PHY registers (HV/82577/82579 PHY page access)
const (
	PHY_ID1          = 0x02
	PHY_ID2          = 0x03
	I217_PHY_ID_MASK = 0x0150

	HV_OEM_BITS           = 0x1f
	HV_OEM_BITS_RESTART_AN = 1 << 0
	HV_OEM_BITS_LPLU       = 1 << 2

	HV_KMRN_MODE_CTRL = 0x1ea
)

// Timeouts, expressed as TSC ticks are derived at runtime from these
// microsecond constants multiplied by the calibrated TSC frequency.
const (
	MDIC_TIMEOUT_US         = 10_000
	SWFLAG_TIMEOUT_US       = 1_000_000
	ULP_DISABLE_TIMEOUT_US  = 2_500_000
	LANPHYPC_TIMEOUT_US     = 50_000
	PHY_POWER_ON_DELAY_US   = 30_000
)


