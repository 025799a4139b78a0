// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

// linkWaitState polls for PHY link-up at ~1 Hz for up to 15 s, then
// waits 500 ms for stabilization, grounded in original_source/network/
// src/mainloop/states/link.rs's timing constants.
type linkWaitState struct {
	started          bool
	startTick        uint64
	linkEstablished  bool
	stableStartTick  uint64
	freqHz           uint64
}

const (
	linkTimeoutSecs = 15
	stabilizeMillis = 500
)

func (s *linkWaitState) Name() string { return "LinkWait" }

func (s *linkWaitState) Step(ctx *Context, now uint64) (State, StepResult) {
	freq := ctx.linkFreqHz()

	if !s.started {
		s.started = true
		s.startTick = now
		s.freqHz = freq
	}

	if s.linkEstablished {
		stabilizeTicks := (freq * stabilizeMillis) / 1000
		if now-s.stableStartTick >= stabilizeTicks {
			return &dhcpState{}, Transition
		}
		return s, Continue
	}

	if ctx.Link != nil && ctx.Link.LinkUp() {
		s.linkEstablished = true
		s.stableStartTick = now
		return s, Continue
	}

	timeoutTicks := freq * linkTimeoutSecs
	if now-s.startTick >= timeoutTicks {
		// Link never came up; proceed anyway and let later states
		// fail cleanly, matching the reference's "continue anyway".
		return &dhcpState{}, Transition
	}

	return s, Continue
}


