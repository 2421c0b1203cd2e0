// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"fmt"
	"slices"

	"github.com/ZhuChongjing/NetLabX/topo"
	"github.com/rbmk-project/common/runtimex"
)

// Query simulates a DNS lookup of domain, sent from the device owning
// src to the server address. The result carries the query path, the
// reversed response path when the server answered, and the resolved
// address on success.
func (e *Engine) Query(s *topo.Snapshot, src, server, domain string) *Result {
	e.emitStart("dns", src, server)
	res := e.query(s, src, server, domain)
	res.Protocol = "dns"
	e.emitDone(res)
	return res
}

func (e *Engine) query(s *topo.Snapshot, src, server, domain string) *Result {
	req := e.resolvePath(s, src, server)
	if !req.Success {
		// Malformed input and a missing source device are the
		// caller's mistakes, not transport outcomes; pass them
		// through unwrapped.
		if req.Kind == FailBadAddress || req.Kind == FailSourceNotFound {
			return req
		}
		return &Result{
			Path:     req.Path,
			Steps:    req.Steps,
			Kind:     FailDNSUnreachable,
			ErrClass: req.ErrClass,
			Message:  fmt.Sprintf("DNS server %s is unreachable: %s", server, req.Message),
		}
	}

	landed := s.DeviceByName(req.Path[len(req.Path)-1])
	runtimex.Assert(landed != nil, "resolved path names a device missing from the snapshot")

	// The packet went to whichever device owns the address, which is
	// not necessarily a DNS server: students sometimes point clients
	// at the wrong box, or give two boxes the same address.
	if landed.Kind != topo.KindDNSServer {
		msg := fmt.Sprintf("%s owns %s but is a %s, not a DNS server; the query was refused",
			landed.Name, server, landed.Kind)
		return &Result{
			Path:         req.Path,
			Steps:        req.Steps,
			Kind:         FailDNSWrongKind,
			ErrClass:     classify(FailDNSWrongKind, msg),
			Message:      msg,
			RequestPath:  req.Path,
			ResponsePath: reversePath(req.Path),
		}
	}

	addr, ok := landed.Lookup(domain)
	if !ok {
		steps := append(req.Steps, Step{
			Device: landed.Name,
			Action: fmt.Sprintf("no record for %s", domain),
		})
		msg := fmt.Sprintf("%s answered: lookup %s: no such host", landed.Name, domain)
		return &Result{
			Path:         req.Path,
			Steps:        steps,
			Kind:         FailDNSNoRecord,
			ErrClass:     classify(FailDNSNoRecord, msg),
			Message:      msg,
			RequestPath:  req.Path,
			ResponsePath: reversePath(req.Path),
		}
	}

	steps := append(req.Steps, Step{
		Device: landed.Name,
		Action: fmt.Sprintf("answer %s -> %s", domain, addr),
	})
	return &Result{
		Success:      true,
		Path:         req.Path,
		Steps:        steps,
		Message:      fmt.Sprintf("%s resolved %s to %s", landed.Name, domain, addr),
		RequestPath:  req.Path,
		ResponsePath: reversePath(req.Path),
		ResolvedAddr: addr,
	}
}

// reversePath returns the response path corresponding to a request
// path.
func reversePath(path []string) []string {
	out := slices.Clone(path)
	slices.Reverse(out)
	return out
}
