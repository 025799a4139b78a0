// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

// StepResult is the outcome of a single state Step call, mirroring
// original_source/network/src/mainloop/state.rs's StepResult enum.
type StepResult int

const (
	Continue StepResult = iota
	Transition
	Done
	Failed
)

// State is one phase of the download state machine. Step consumes the
// current phase's private timing/accumulator state (held by the
// concrete type) and returns the next state to run; StepResult
// distinguishes "stay" from "advance" from the two terminal outcomes.
type State interface {
	Step(ctx *Context, now uint64) (State, StepResult)
	Name() string
}

// Run drives states to completion, calling poll once per iteration to
// service the network stack's link endpoint, matching the reference
// driver loop's "poll the interface, call step" structure.
func Run(ctx *Context, clock interface{ Now() uint64 }, poll func() error) (State, string) {
	var s State = &initState{}

	for {
		if err := poll(); err != nil {
			return s, err.Error()
		}

		next, result := s.Step(ctx, clock.Now())

		switch result {
		case Done:
			return next, ""
		case Failed:
			return next, ctx.FailReason
		default:
			s = next
		}
	}
}
