// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import "strings"

// initState parses the configured URL, grounded in
// original_source/network/src/mainloop/states/init.rs.
type initState struct{}

func (s *initState) Name() string { return "Init" }

func (s *initState) Step(ctx *Context, now uint64) (State, StepResult) {
	url := ctx.Config.URL

	var rest string
	switch {
	case strings.HasPrefix(url, "https://"):
		// TLS is unimplemented: no TLS library is present in the
		// teacher's or pack's dependency surface, and this download
		// path has no use for one beyond fetching an ISO the platform
		// will itself verify after boot.
		ctx.FailReason = "https unsupported: no TLS stack available"
		return &failedState{}, Failed
	case strings.HasPrefix(url, "http://"):
		ctx.Port = 80
		rest = url[len("http://"):]
	default:
		ctx.FailReason = "invalid URL scheme"
		return &failedState{}, Failed
	}

	hostPort, path := rest, "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostPort, path = rest[:i], rest[i:]
	}

	host := hostPort
	if i := strings.IndexByte(hostPort, ':'); i >= 0 {
		host = hostPort[:i]
		if port, err := parsePort(hostPort[i+1:]); err == nil {
			ctx.Port = port
		}
	}

	ctx.URLHost = host
	ctx.URLPath = path

	return &gptPrepState{}, Transition
}

func parsePort(s string) (uint16, error) {
	var n uint32
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + uint32(c-'0')
		if n > 65535 {
			return 0, errInvalidPort
		}
	}
	if n == 0 {
		return 0, errInvalidPort
	}
	return uint16(n), nil
}

var errInvalidPort = &portError{}

type portError struct{}

func (*portError) Error() string { return "download: invalid port" }
