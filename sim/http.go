// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"fmt"
	"net/http"

	"github.com/ZhuChongjing/NetLabX/ipv4"
	"github.com/ZhuChongjing/NetLabX/topo"
	"github.com/rbmk-project/common/runtimex"
)

// Fetch simulates an HTTP GET from the device owning src to target,
// which is either an IPv4 address or a domain name. A domain resolves
// through the first DNS server in the topology before the connection
// is attempted; the nested lookup outcome stays available in
// [Result.DNS]. A port of zero or less means 80.
func (e *Engine) Fetch(s *topo.Snapshot, src, target string, port int) *Result {
	e.emitStart("http", src, target)
	res := e.fetch(s, src, target, port)
	res.Protocol = "http"
	e.emitDone(res)
	return res
}

func (e *Engine) fetch(s *topo.Snapshot, src, target string, port int) *Result {
	if port <= 0 {
		port = 80
	}

	addr := target
	var lookup *Result
	if ipv4.ValidateHost(target) != nil {
		server := s.FirstOfKind(topo.KindDNSServer)
		if server == nil {
			return fail(FailDNSNoServer, fmt.Sprintf(
				"cannot resolve %q: the topology has no DNS server", target), nil, nil)
		}
		lookup = e.query(s, src, server.Address, target)
		lookup.Protocol = "dns"
		if !lookup.Success {
			return lookup
		}
		addr = lookup.ResolvedAddr
	}

	req := e.resolvePath(s, src, addr)
	req.DNS = lookup
	if lookup != nil {
		req.ResolvedAddr = addr
	}
	if !req.Success {
		return req
	}

	landed := s.DeviceByName(req.Path[len(req.Path)-1])
	runtimex.Assert(landed != nil, "resolved path names a device missing from the snapshot")

	res := &Result{
		Path:         req.Path,
		Steps:        req.Steps,
		RequestPath:  req.Path,
		ResponsePath: reversePath(req.Path),
		DNS:          lookup,
	}
	if lookup != nil {
		res.ResolvedAddr = addr
	}

	if landed.Kind != topo.KindWebServer {
		res.Kind = FailHTTPWrongKind
		res.Message = fmt.Sprintf(
			"%s owns %s but is a %s, not a web server; check which device should be serving the site",
			landed.Name, addr, landed.Kind)
		res.ErrClass = classify(res.Kind, res.Message)
		return res
	}
	if landed.ListenPort() != port {
		res.Kind = FailPortMismatch
		res.Message = fmt.Sprintf("connection to %s:%d refused: %s listens on port %d",
			addr, port, landed.Name, landed.ListenPort())
		res.ErrClass = classify(res.Kind, res.Message)
		return res
	}

	res.Success = true
	if landed.Web == nil || landed.Web.Content == "" {
		res.HTTPStatus = http.StatusNoContent
		res.Steps = append(res.Steps, Step{
			Device: landed.Name,
			Action: fmt.Sprintf("serve HTTP %d (no content configured)", http.StatusNoContent),
		})
		res.Message = fmt.Sprintf("%s answered on port %d with HTTP %d: no content configured",
			landed.Name, port, http.StatusNoContent)
		return res
	}

	res.HTTPStatus = http.StatusOK
	res.Body = landed.Web.Content
	res.Steps = append(res.Steps, Step{
		Device: landed.Name,
		Action: fmt.Sprintf("serve HTTP %d (%d bytes)", http.StatusOK, len(landed.Web.Content)),
	})
	res.Message = fmt.Sprintf("GET %s:%d -> HTTP %d (%d bytes)",
		addr, port, http.StatusOK, len(landed.Web.Content))
	return res
}
