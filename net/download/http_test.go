// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import (
	"net"
	"testing"

	"github.com/usbarmory/morpheusx/internal/blockio"
	"github.com/usbarmory/morpheusx/internal/tsc"
)

type fakeBlockDevice struct {
	blockSize int
	written   map[uint64][]byte
}

func newFakeBlockDevice() *fakeBlockDevice {
	return &fakeBlockDevice{blockSize: 512, written: map[uint64][]byte{}}
}

func (f *fakeBlockDevice) Info() blockio.Info { return blockio.Info{BlockSize: f.blockSize, BlockCount: 2048} }
func (f *fakeBlockDevice) CanSubmit() bool    { return true }

func (f *fakeBlockDevice) SubmitRead(tag int, lba uint64, buf []byte) error { return nil }

func (f *fakeBlockDevice) SubmitWrite(tag int, lba uint64, buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.written[lba] = cp
	return nil
}

func (f *fakeBlockDevice) SubmitFlush(tag int) error { return nil }
func (f *fakeBlockDevice) Notify()                   {}

func (f *fakeBlockDevice) PollCompletion() (blockio.Completion, bool) {
	return blockio.Completion{}, false
}

// syncPollDevice wraps fakeBlockDevice so completions are reported
// immediately, since SyncBlockIO's waitFor loop expects a completion to
// eventually show up on PollCompletion.
type syncPollDevice struct {
	*fakeBlockDevice
	pending []blockio.Completion
}

func (f *syncPollDevice) SubmitWrite(tag int, lba uint64, buf []byte) error {
	f.fakeBlockDevice.SubmitWrite(tag, lba, buf)
	f.pending = append(f.pending, blockio.Completion{Tag: tag})
	return nil
}

func (f *syncPollDevice) SubmitFlush(tag int) error {
	f.pending = append(f.pending, blockio.Completion{Tag: tag})
	return nil
}

func (f *syncPollDevice) PollCompletion() (blockio.Completion, bool) {
	if len(f.pending) == 0 {
		return blockio.Completion{}, false
	}
	c := f.pending[0]
	f.pending = f.pending[1:]
	return c, true
}

func TestHttpStateStreamsBodyToDisk(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		buf := make([]byte, 4096)
		server.Read(buf) // drain the GET request

		server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nConnection: close\r\n\r\nhello"))
		server.Close()
	}()

	dev := &syncPollDevice{fakeBlockDevice: newFakeBlockDevice()}
	syncDev := blockio.NewSyncBlockIO(dev, tsc.Clock{FreqHz: 1_000_000_000})

	ctx := &Context{
		Config:      Config{WriteToDisk: true},
		Timeouts:    NewTimeouts(tsc.Clock{FreqHz: 1_000_000_000}),
		BlockDevice: syncDev,
		URLHost:     "example.org",
		URLPath:     "/iso",
	}

	s := &httpState{conn: client}

	var next State = s
	var result StepResult

	for i := 0; i < 10; i++ {
		next, result = next.(*httpState).Step(ctx, 0)
		if result == Transition {
			break
		}
		if _, ok := next.(*httpState); !ok {
			break
		}
	}

	if result != Transition {
		t.Fatalf("expected Transition, got %v", result)
	}

	if _, ok := next.(*manifestState); !ok {
		t.Fatalf("expected manifestState, got %T", next)
	}

	if ctx.BytesDownloaded != 5 {
		t.Fatalf("unexpected bytes downloaded: %d", ctx.BytesDownloaded)
	}

	if string(dev.written[0][:5]) != "hello" {
		t.Fatalf("unexpected sector 0 contents: %q", dev.written[0][:5])
	}
}

// TestHttpStateStreamsChunkedBodyToDisk confirms a chunked response body is
// dechunked before it reaches disk, not passed through with its chunk-size
// framing intact.
func TestHttpStateStreamsChunkedBodyToDisk(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		buf := make([]byte, 4096)
		server.Read(buf) // drain the GET request

		server.Write([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nConnection: close\r\n\r\n" +
			"5\r\nhello\r\n0\r\n\r\n"))
		server.Close()
	}()

	dev := &syncPollDevice{fakeBlockDevice: newFakeBlockDevice()}
	syncDev := blockio.NewSyncBlockIO(dev, tsc.Clock{FreqHz: 1_000_000_000})

	ctx := &Context{
		Config:      Config{WriteToDisk: true},
		Timeouts:    NewTimeouts(tsc.Clock{FreqHz: 1_000_000_000}),
		BlockDevice: syncDev,
		URLHost:     "example.org",
		URLPath:     "/iso",
	}

	s := &httpState{conn: client}

	var next State = s
	var result StepResult

	for i := 0; i < 10; i++ {
		next, result = next.(*httpState).Step(ctx, 0)
		if result == Transition {
			break
		}
		if _, ok := next.(*httpState); !ok {
			break
		}
	}

	if result != Transition {
		t.Fatalf("expected Transition, got %v", result)
	}

	if ctx.BytesDownloaded != 5 {
		t.Fatalf("unexpected bytes downloaded: %d", ctx.BytesDownloaded)
	}

	if string(dev.written[0][:5]) != "hello" {
		t.Fatalf("unexpected sector 0 contents: %q (chunk framing leaked into disk image)", dev.written[0][:5])
	}
}

func TestHttpStateFailsOnNon200(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		buf := make([]byte, 4096)
		server.Read(buf)
		server.Write([]byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
		server.Close()
	}()

	ctx := &Context{
		Timeouts: NewTimeouts(tsc.Clock{FreqHz: 1_000_000_000}),
		URLHost:  "example.org",
		URLPath:  "/iso",
	}

	s := &httpState{conn: client}
	_, result := s.Step(ctx, 0)

	if result != Failed {
		t.Fatalf("expected Failed, got %v", result)
	}

	if ctx.FailReason == "" {
		t.Fatalf("expected a fail reason to be set")
	}
}
