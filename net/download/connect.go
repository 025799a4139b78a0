// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import (
	"time"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
)

// connectState opens the TCP connection used for the HTTP GET, grounded
// in spec.md §4.K's Connect description (10 s deadline).
type connectState struct{}

func (s *connectState) Name() string { return "Connect" }

func (s *connectState) Step(ctx *Context, now uint64) (State, StepResult) {
	remote := tcpip.FullAddress{
		NIC:  ctx.NIC,
		Addr: tcpip.Address(ctx.ResolvedIP[:]),
		Port: ctx.Port,
	}

	conn, err := gonet.DialTCP(ctx.Stack, remote, ipv4.ProtocolNumber)
	if err != nil {
		ctx.FailReason = "TCP connect failed: " + err.Error()
		return &failedState{}, Failed
	}

	if err := conn.SetDeadline(time.Now().Add(ctx.Timeouts.TcpConnect())); err != nil {
		ctx.FailReason = "TCP connect failed: " + err.Error()
		return &failedState{}, Failed
	}

	return &httpState{conn: conn}, Transition
}
