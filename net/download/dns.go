// https://github.com/usbarmory/morpheusx
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package download

import (
	"net"

	"github.com/usbarmory/morpheusx/net/dns"
)

// dnsState resolves ctx.URLHost to an IPv4 address, skipping resolution
// for literal dotted-decimal hosts, grounded in original_source/
// network/src/mainloop/states/dns.rs's parse_ipv4 plus the supplemented
// real resolver (net/dns) per spec.md's "Open Question — DNS".
type dnsState struct{}

func (s *dnsState) Name() string { return "Dns" }

func (s *dnsState) Step(ctx *Context, now uint64) (State, StepResult) {
	if ip := net.ParseIP(ctx.URLHost).To4(); ip != nil {
		copy(ctx.ResolvedIP[:], ip)
		return &connectState{}, Transition
	}

	resolver := ctx.DNSServer
	if resolver == ([4]byte{}) {
		resolver = dns.FallbackResolver
	}

	ip, err := dns.Resolve(ctx.Stack, ctx.NIC, resolver, ctx.URLHost, ctx.Timeouts.Dns())
	if err != nil {
		ctx.FailReason = "DNS resolution failed: " + err.Error()
		return &failedState{}, Failed
	}

	ctx.ResolvedIP = ip

	return &connectState{}, Transition
}
