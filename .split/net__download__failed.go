// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

// failedState is the failure terminal state. ctx.FailReason carries the
// diagnostic set by whichever state transitioned here.
type failedState struct{}

func (s *failedState) Name() string { return "Failed" }

func (s *failedState) Step(ctx *Context, now uint64) (State, StepResult) {
	return s, Failed
}


