// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package firmware

import (
	efi "github.com/canonical/go-efilib"
)

// configVariableName is read under efi.GlobalVariable rather than a
// dedicated vendor GUID: go-efilib's variable-access surface, as used
// throughout the pack (canonical-snapd's boot package), is exercised
// against well-known GUID constants like efi.GlobalVariable and
// efi.ImageSecurityDatabaseGuid — nothing in the pack constructs a
// fresh vendor GUID, so this avoids guessing that constructor's shape.
const configVariableName = "MorpheusXURL"

// ApplyVariableOverride reads configVariableName, if present, and uses
// its UTF-8 contents as the download URL override, matching spec.md's
// "compiled-in defaults and (when present) a firmware-phase command
// line / EFI variable" requirement. Absence of the variable (the common
// case) is not an error.
func ApplyVariableOverride(cfg *Config) error {
	data, _, err := efi.ReadVariable(configVariableName, efi.GlobalVariable)
	if err != nil {
		if err == efi.ErrVarNotExist {
			return nil
		}
		return err
	}

	if len(data) > 0 {
		cfg.URL = string(data)
	}

	return nil
}


