// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

// doneState is the success terminal state, grounded in original_source/
// network/src/mainloop/states/done.rs's DoneState. Reboot is dispatched
// by the caller once Run returns this state's Name, since the reboot
// hook (boot/reboot.Now) never returns and would otherwise make this
// state machine untestable.
type doneState struct{}

func (s *doneState) Name() string { return "Done" }

func (s *doneState) Step(ctx *Context, now uint64) (State, StepResult) {
	return s, Done
}


