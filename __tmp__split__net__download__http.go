// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/usbarmory/morpheusx/disk/writer"
)

// httpState writes the GET request, parses the response headers, and
// streams the body to the disk writer (if enabled), grounded in
// spec.md §4.K's Http description. No pack library performs bare-metal
// HTTP client parsing, but stdlib's net/http response parser
// (http.ReadResponse) operates on any bufio.Reader and needs no
// sockets of its own, so it is reused here rather than hand-rolling a
// header parser.
type httpState struct {
	conn net.Conn

	reader      *bufio.Reader
	writer      *writer.Writer
	started     bool
	lastReportN uint64
	readBuf     []byte
}

const httpReadBufSize = 64 * 1024

func (s *httpState) Name() string { return "Http" }

func (s *httpState) Step(ctx *Context, now uint64) (State, StepResult) {
	if !s.started {
		s.started = true

		req := "GET " + ctx.URLPath + " HTTP/1.1\r\nHost: " + ctx.URLHost + "\r\nConnection: close\r\n\r\n"
		if _, err := s.conn.Write([]byte(req)); err != nil {
			ctx.FailReason = "HTTP request failed: " + err.Error()
			return &failedState{}, Failed
		}

		s.reader = bufio.NewReader(s.conn)

		resp, err := http.ReadResponse(s.reader, nil)
		if err != nil {
			ctx.FailReason = "HTTP response parse failed: " + err.Error()
			return &failedState{}, Failed
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			ctx.FailReason = "HTTP " + strconv.Itoa(resp.StatusCode)
			return &failedState{}, Failed
		}

		if cl := resp.ContentLength; cl >= 0 {
			v := uint64(cl)
			ctx.ContentLength = &v
		}

		if ctx.Config.WriteToDisk && ctx.BlockDevice != nil {
			s.writer = writer.New(ctx.BlockDevice, ctx.ActualStartSector, ctx.Timeouts.HttpIdle())
		}

		if ctx.Allocator != nil {
			buf, err := ctx.Allocator.Alloc(httpReadBufSize)
			if err != nil {
				ctx.FailReason = "HTTP read buffer allocation failed: " + err.Error()
				return &failedState{}, Failed
			}
			s.readBuf = buf
		} else {
			s.readBuf = make([]byte, httpReadBufSize)
		}
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(ctx.Timeouts.HttpIdle())); err != nil {
		ctx.FailReason = "HTTP idle timeout setup failed"
		return &failedState{}, Failed
	}

	n, err := s.reader.Read(s.readBuf)

	if n > 0 {
		if s.writer != nil {
			if _, werr := s.writer.Write(s.readBuf[:n]); werr != nil {
				ctx.FailReason = "disk write failed: " + werr.Error()
				return &failedState{}, Failed
			}
		}

		ctx.BytesDownloaded += uint64(n)

		if ctx.BytesDownloaded-s.lastReportN >= 1<<20 {
			s.lastReportN = ctx.BytesDownloaded
		}
	}

	if err != nil {
		if !isEOF(err) {
			ctx.FailReason = "HTTP idle timeout"
			return &failedState{}, Failed
		}

		if ctx.ContentLength != nil && ctx.BytesDownloaded != *ctx.ContentLength {
			ctx.FailReason = "HTTP body truncated"
			return &failedState{}, Failed
		}

		if s.writer != nil {
			if werr := s.writer.Finish(); werr != nil {
				ctx.FailReason = "disk finish failed: " + werr.Error()
				return &failedState{}, Failed
			}
			ctx.BytesWritten = s.writer.BytesWritten()
		}

		return &manifestState{}, Transition
	}

	if ctx.ContentLength != nil && ctx.BytesDownloaded >= *ctx.ContentLength {
		if s.writer != nil {
			if werr := s.writer.Finish(); werr != nil {
				ctx.FailReason = "disk finish failed: " + werr.Error()
				return &failedState{}, Failed
			}
			ctx.BytesWritten = s.writer.BytesWritten()
		}

		return &manifestState{}, Transition
	}

	return s, Continue
}

func isEOF(err error) bool {
	return strings.Contains(err.Error(), "EOF")
}


