// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Infof("should be dropped")
	l.Warnf("should appear")

	out := buf.String()

	if strings.Contains(out, "dropped") {
		t.Fatalf("expected info message to be filtered: %q", out)
	}

	if !strings.Contains(out, "should appear") {
		t.Fatalf("expected warn message to appear: %q", out)
	}
}

func TestSetSinkRedirectsOutput(t *testing.T) {
	var first, second bytes.Buffer
	l := New(&first, LevelInfo)

	l.Infof("to first")
	l.SetSink(&second)
	l.Infof("to second")

	if !strings.Contains(first.String(), "to first") {
		t.Fatalf("expected first sink to receive its message")
	}

	if strings.Contains(first.String(), "to second") {
		t.Fatalf("first sink should not see post-redirect messages")
	}

	if !strings.Contains(second.String(), "to second") {
		t.Fatalf("expected second sink to receive its message")
	}
}
