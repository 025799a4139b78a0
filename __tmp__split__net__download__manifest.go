// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import (
	"time"

	"github.com/usbarmory/morpheusx/disk/manifest"
)

// manifestState records where the downloaded ISO landed on disk,
// grounded in original_source/network/src/mainloop/states/manifest.rs
// and spec.md §4.O.
type manifestState struct{}

func (s *manifestState) Name() string { return "Manifest" }

func (s *manifestState) Step(ctx *Context, now uint64) (State, StepResult) {
	if !ctx.Config.WriteManifest || ctx.Config.ManifestMode == manifest.ModeSkip {
		return &doneState{}, Transition
	}

	m := manifest.New(ctx.Config.IsoName, ctx.BytesDownloaded)

	blockSize := uint64(512)
	if ctx.BlockDevice != nil {
		blockSize = uint64(ctx.BlockDevice.Info().BlockSize)
	}

	sectors := (ctx.BytesWritten + blockSize - 1) / blockSize
	endLBA := ctx.ActualStartSector + sectors

	if err := m.AddChunk(ctx.Config.PartitionUUID, ctx.ActualStartSector, endLBA); err != nil {
		ctx.FailReason = "manifest chunk failed: " + err.Error()
		return &failedState{}, Failed
	}

	m.MarkComplete()

	cfg := manifest.WriteConfig{
		Mode:        ctx.Config.ManifestMode,
		EspStartLBA: ctx.Config.EspStartLBA,
		EspEndLBA:   ctx.Config.EspEndLBA,
		Sector:      ctx.Config.ManifestSector,
	}

	if err := manifest.Write(ctx.BlockDevice, cfg, m, 5*time.Second); err != nil {
		ctx.FailReason = "manifest write failed: " + err.Error()
		return &failedState{}, Failed
	}

	return &doneState{}, Transition
}


