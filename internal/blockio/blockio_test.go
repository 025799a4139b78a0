// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package blockio

import (
	"testing"
	"time"

	"github.com/usbarmory/morpheusx/internal/tsc"
)

type fakeDevice struct {
	pending         []Completion
	submitErr       error
	dropCompletions bool
}

func (f *fakeDevice) Info() Info { return Info{BlockSize: 512, BlockCount: 2048} }
func (f *fakeDevice) CanSubmit() bool { return true }

func (f *fakeDevice) SubmitRead(tag int, lba uint64, buf []byte) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	if !f.dropCompletions {
		f.pending = append(f.pending, Completion{Tag: tag})
	}
	return nil
}

func (f *fakeDevice) SubmitWrite(tag int, lba uint64, buf []byte) error {
	return f.SubmitRead(tag, lba, buf)
}

func (f *fakeDevice) SubmitFlush(tag int) error {
	return f.SubmitRead(tag, 0, nil)
}

func (f *fakeDevice) Notify() {}

func (f *fakeDevice) PollCompletion() (Completion, bool) {
	if len(f.pending) == 0 {
		return Completion{}, false
	}

	c := f.pending[0]
	f.pending = f.pending[1:]

	return c, true
}

func TestSyncReadSucceeds(t *testing.T) {
	dev := &fakeDevice{}
	s := NewSyncBlockIO(dev, tsc.Clock{FreqHz: 1_000_000_000})

	buf := make([]byte, 512)
	if err := s.Read(0, buf, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSyncReadTimesOutWhenNoCompletion(t *testing.T) {
	dev := &fakeDevice{dropCompletions: true}
	s := NewSyncBlockIO(dev, tsc.Clock{FreqHz: 1_000_000_000})

	buf := make([]byte, 512)
	err := s.Read(0, buf, time.Nanosecond)

	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
