// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import (
	"testing"

	"github.com/usbarmory/morpheusx/disk/manifest"
)

func TestGptPrepSkipsWhenDiskWritingDisabled(t *testing.T) {
	ctx := &Context{Config: Config{WriteToDisk: false}}

	s := &gptPrepState{}
	next, result := s.Step(ctx, 0)

	if result != Transition {
		t.Fatalf("expected Transition, got %v", result)
	}

	if _, ok := next.(*linkWaitState); !ok {
		t.Fatalf("expected linkWaitState, got %T", next)
	}
}

func TestManifestSkipsWhenWriteManifestDisabled(t *testing.T) {
	ctx := &Context{Config: Config{WriteManifest: false}}

	s := &manifestState{}
	next, result := s.Step(ctx, 0)

	if result != Transition {
		t.Fatalf("expected Transition, got %v", result)
	}

	if _, ok := next.(*doneState); !ok {
		t.Fatalf("expected doneState, got %T", next)
	}
}

func TestManifestSkipsOnModeSkip(t *testing.T) {
	ctx := &Context{Config: Config{WriteManifest: true, ManifestMode: manifest.ModeSkip}}

	s := &manifestState{}
	_, result := s.Step(ctx, 0)

	if result != Transition {
		t.Fatalf("expected Transition, got %v", result)
	}
}

func TestDoneAndFailedAreTerminal(t *testing.T) {
	d := &doneState{}
	if _, result := d.Step(&Context{}, 0); result != Done {
		t.Fatalf("expected Done, got %v", result)
	}

	f := &failedState{}
	if _, result := f.Step(&Context{}, 0); result != Failed {
		t.Fatalf("expected Failed, got %v", result)
	}
}


