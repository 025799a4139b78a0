// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package manifest

import (
	"strings"
	"time"

	"github.com/usbarmory/morpheusx/disk/fat"
	"github.com/usbarmory/morpheusx/internal/blockio"
)

// Mode selects where a manifest is persisted, mirroring
// ManifestMode::{Fat32,RawSector,Skip}.
type Mode int

const (
	ModeSkip Mode = iota
	ModeFat32
	ModeRawSector
)

// WriteConfig carries the destination parameters for Write.
type WriteConfig struct {
	Mode Mode

	// ESP FAT32 destination.
	EspStartLBA uint64
	EspEndLBA   uint64

	// Raw sector destination.
	Sector uint64
}

// Write persists m according to cfg. FAT32 mode derives an 8.3-safe
// filename from the ISO name and writes /.iso/<name>.manifest; raw
// sector mode writes the encoded manifest, zero-padded to one sector,
// directly to cfg.Sector via dev.
func Write(dev *blockio.SyncBlockIO, cfg WriteConfig, m *Manifest, timeout time.Duration) error {
	switch cfg.Mode {
	case ModeSkip:
		return nil
	case ModeFat32:
		return writeFat32(dev, cfg, m, timeout)
	case ModeRawSector:
		return writeRawSector(dev, cfg, m, timeout)
	default:
		return nil
	}
}

func writeFat32(dev *blockio.SyncBlockIO, cfg WriteConfig, m *Manifest, timeout time.Duration) error {
	buf, err := m.Encode()
	if err != nil {
		return err
	}

	vol, err := fat.Mount(dev, cfg.EspStartLBA, cfg.EspEndLBA, timeout)
	if err != nil {
		return err
	}

	name := shortName(m.IsoName)

	return vol.WriteFile("/.iso/"+name+".manifest", buf)
}

func writeRawSector(dev *blockio.SyncBlockIO, cfg WriteConfig, m *Manifest, timeout time.Duration) error {
	buf, err := m.Encode()
	if err != nil {
		return err
	}

	info := dev.Info()
	sector := make([]byte, info.BlockSize)
	copy(sector, buf)

	return dev.Write(cfg.Sector, sector, timeout)
}

// shortName derives an 8.3-compatible base name from an ISO name. The
// FAT32 library's own short-name collision rule (trailing ~N suffix)
// applies once the file is actually created; this only truncates and
// sanitizes the stem the reference implementation passes to its 8.3
// name generator.
func shortName(isoName string) string {
	base := isoName
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}

	base = strings.ToUpper(base)

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := b.String()
	if len(name) > 8 {
		name = name[:8]
	}

	if name == "" {
		name = "ISO"
	}

	return name
}
