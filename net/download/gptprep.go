// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import (
	"time"

	"github.com/usbarmory/morpheusx/disk/gpt"
)

// gptPrepState locates or reserves free space for the ISO write,
// recording the actual start sector in the context. Inserted between
// Init and LinkWait per spec.md's explicit state list (the reference
// implementation's init.rs goes straight to Dhcp).
type gptPrepState struct{}

func (s *gptPrepState) Name() string { return "GptPrep" }

func (s *gptPrepState) Step(ctx *Context, now uint64) (State, StepResult) {
	if !ctx.Config.WriteToDisk || ctx.BlockDevice == nil {
		return &linkWaitState{}, Transition
	}

	start, end, err := gpt.FindFreeSpace(ctx.BlockDevice, 2*time.Second)
	if err != nil {
		ctx.FailReason = "no free space for ISO"
		return &failedState{}, Failed
	}

	ctx.ActualStartSector = start
	_ = end

	return &linkWaitState{}, Transition
}
