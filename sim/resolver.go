// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ZhuChongjing/NetLabX/ipv4"
	"github.com/ZhuChongjing/NetLabX/topo"
)

// resolvePath walks a packet from the device owning src toward dst,
// one device at a time, and returns the outcome. This is the common
// transport underneath ping, DNS, and HTTP.
func (e *Engine) resolvePath(s *topo.Snapshot, src, dst string) *Result {
	if err := ipv4.ValidateHost(src); err != nil {
		return fail(FailBadAddress, fmt.Sprintf("source %s", err), nil, nil)
	}
	if err := ipv4.ValidateHost(dst); err != nil {
		return fail(FailBadAddress, fmt.Sprintf("destination %s", err), nil, nil)
	}

	source := s.DeviceByAddress(src)
	if source == nil {
		return fail(FailSourceNotFound,
			fmt.Sprintf("no device owns the source address %s", src), nil, nil)
	}

	w := &walk{
		s:       s,
		dst:     dst,
		dstNet:  destinationNetwork(s, dst),
		path:    []string{source.Name},
		visited: map[string]bool{source.ID: true},
	}

	if src == dst {
		return &Result{
			Success: true,
			Path:    w.path,
			Message: fmt.Sprintf("%s already owns %s; nothing to forward", source.Name, dst),
		}
	}

	current := source
	for hop := 0; ; hop++ {
		if current.Address == dst {
			return &Result{
				Success: true,
				Path:    w.path,
				Steps:   w.steps,
				Message: fmt.Sprintf("packet delivered: %s -> %s in %d hops",
					source.Name, current.Name, len(w.path)-1),
			}
		}
		if hop >= e.maxHops() {
			return w.fail(FailHopBudget, fmt.Sprintf(
				"gave up after %d hops without reaching %s; the topology almost certainly loops",
				e.maxHops(), dst))
		}

		var next *topo.Device
		var res *Result
		if current.Kind.IsRouter() {
			next, res = w.routerStep(current)
		} else {
			next, res = w.endpointStep(current)
		}
		if res != nil {
			return res
		}

		w.path = append(w.path, next.Name)
		if w.visited[next.ID] {
			return w.fail(FailRoutingLoop, fmt.Sprintf(
				"routing loop: the packet came back to %s", next.Name))
		}
		w.visited[next.ID] = true
		e.emitHop(current.Name, next.Name)
		current = next
	}
}

// emitHop emits one forwarding decision.
func (e *Engine) emitHop(from, to string) {
	if e.Logger != nil {
		e.Logger.Debug(
			"hop",
			slog.String("from", from),
			slog.String("to", to),
		)
	}
}

// walk carries the evolving state of one path resolution.
type walk struct {
	s       *topo.Snapshot
	dst     string
	dstNet  string
	path    []string
	steps   []Step
	visited map[string]bool
}

// step records one trace entry. The route, when given, is copied so
// the trace never aliases a live routing table.
func (w *walk) step(device, action string, rt *topo.Route) {
	entry := Step{Device: device, Action: action}
	if rt != nil {
		dup := *rt
		entry.Route = &dup
	}
	w.steps = append(w.steps, entry)
}

// fail builds a failed result carrying the walk's path and trace.
func (w *walk) fail(kind FailureKind, msg string) *Result {
	return fail(kind, msg, w.path, w.steps)
}

// endpointStep decides what a non-router does with a packet for
// another subnet: hand it to the default gateway, which is the first
// router owning an interface in the endpoint's subnet. Failing to
// find a gateway and finding one without a physical link to it are
// distinct outcomes, because the student fixes them differently.
func (w *walk) endpointStep(host *topo.Device) (*topo.Device, *Result) {
	subnet := ipv4.Subnet(host.Address, host.EffectiveMask())
	if ifc := host.PrimaryInterface(); ifc != nil {
		subnet = ifc.Subnet()
	}

	gateway := findGateway(w.s, subnet)
	if gateway == nil {
		w.step(host.Name, fmt.Sprintf("no gateway: no router has an interface in %s", subnet), nil)
		return nil, w.fail(FailNoGateway, fmt.Sprintf(
			"%s cannot leave its subnet: no router has an interface in %s", host.Name, subnet))
	}
	if !w.s.Connected(host.ID, gateway.ID) {
		w.step(host.Name, fmt.Sprintf("gateway %s found but no cable runs to it", gateway.Name), nil)
		return nil, w.fail(FailNoLink, fmt.Sprintf(
			"%s found gateway %s for subnet %s but has no physical link to it",
			host.Name, gateway.Name, subnet))
	}
	w.step(host.Name, fmt.Sprintf("send to default gateway %s (subnet %s)", gateway.Name, subnet), nil)
	return gateway, nil
}

// routerStep walks the router's candidate routes in preference order
// and returns the next device to visit, or a failed result once no
// candidate can carry the packet. Every skipped candidate leaves a
// trace entry saying why.
func (w *walk) routerStep(router *topo.Device) (*topo.Device, *Result) {
	if len(router.Routes) == 0 {
		w.step(router.Name, "routing table is empty", nil)
		return nil, w.fail(FailEmptyTable,
			fmt.Sprintf("router %s has an empty routing table", router.Name))
	}

	candidates := candidateRoutes(router.Routes, w.dst, w.dstNet)
	if len(candidates) == 0 {
		w.step(router.Name, fmt.Sprintf("no routing-table entry for %s", w.dstNet), nil)
		return nil, w.fail(FailNoRoute, fmt.Sprintf(
			"router %s has no routing-table entry for %s (network of %s); table: %s",
			router.Name, w.dstNet, w.dst, routesSummary(router.Routes)))
	}

	var skipped []string
	for _, rt := range candidates {
		var next *topo.Device
		var reason string
		if rt.IsDirect() {
			next, reason = w.directTarget(router)
			if next != nil {
				w.step(router.Name, fmt.Sprintf("deliver directly to %s (%s)", next.Name, w.dst), &rt)
				return next, nil
			}
		} else {
			next, reason = w.forwardTarget(router, rt)
			if next != nil {
				w.step(router.Name, fmt.Sprintf("forward to %s (route to %s, metric %d)",
					next.Name, rt.Destination, rt.Metric), &rt)
				return next, nil
			}
		}
		w.step(router.Name, "skip route: "+reason, &rt)
		skipped = append(skipped, fmt.Sprintf("%s via %s (metric %d): %s",
			rt.Destination, nextHopLabel(rt), rt.Metric, reason))
	}

	return nil, w.fail(FailRoutesExhausted, fmt.Sprintf(
		"router %s tried every matching route for %s without success: %s",
		router.Name, w.dst, strings.Join(skipped, "; ")))
}

// directTarget checks whether the router can deliver the packet
// itself, returning the destination device or the reason it cannot.
func (w *walk) directTarget(router *topo.Device) (*topo.Device, string) {
	target := w.s.DeviceByAddress(w.dst)
	if target == nil {
		return nil, fmt.Sprintf("no device owns %s", w.dst)
	}
	if router.InterfaceInSubnet(w.dstNet) == nil {
		return nil, fmt.Sprintf("%s has no interface in %s", router.Name, w.dstNet)
	}
	if !w.s.Connected(router.ID, target.ID) {
		return nil, fmt.Sprintf("no physical link between %s and %s", router.Name, target.Name)
	}
	return target, ""
}

// forwardTarget checks whether the route's next hop can take the
// packet, returning the neighbor router or the reason it cannot.
func (w *walk) forwardTarget(router *topo.Device, rt topo.Route) (*topo.Device, string) {
	next := findNextHop(w.s, rt.NextHop)
	if next == nil {
		return nil, fmt.Sprintf("next hop %q not found by name or address", rt.NextHop)
	}
	if !next.Kind.IsRouter() {
		return nil, fmt.Sprintf("next hop %s is a %s, not a router", next.Name, next.Kind)
	}
	if !w.s.Connected(router.ID, next.ID) {
		return nil, fmt.Sprintf("no physical link between %s and %s", router.Name, next.Name)
	}
	if sharedSubnet(router, next) == "" {
		return nil, fmt.Sprintf("%s and %s share no subnet; the route does not match the wiring",
			router.Name, next.Name)
	}
	return next, ""
}

// candidateRoutes selects and orders the routes able to carry a
// packet for dst: entries naming the exact host address beat entries
// naming its network, and within each group lower metrics go first.
// Both sorts are stable, so entries that tie keep their table order
// and resolution stays deterministic.
func candidateRoutes(routes []topo.Route, dst, dstNet string) []topo.Route {
	var hosts, nets []topo.Route
	for _, rt := range routes {
		switch rt.Destination {
		case dst:
			hosts = append(hosts, rt)
		case dstNet:
			nets = append(nets, rt)
		}
	}
	byMetric := func(routes []topo.Route) func(i, j int) bool {
		return func(i, j int) bool { return routes[i].Metric < routes[j].Metric }
	}
	sort.SliceStable(hosts, byMetric(hosts))
	sort.SliceStable(nets, byMetric(nets))
	return append(hosts, nets...)
}

// destinationNetwork derives the network address dst belongs to:
// under the owning device's own mask when some device owns the
// address, under the default /24 otherwise.
func destinationNetwork(s *topo.Snapshot, dst string) string {
	if d := s.DeviceByAddress(dst); d != nil {
		if ifc := d.PrimaryInterface(); ifc != nil {
			return ipv4.Subnet(dst, ifc.EffectiveMask())
		}
		return ipv4.Subnet(dst, d.EffectiveMask())
	}
	return ipv4.Subnet(dst, ipv4.DefaultMask)
}

// findGateway returns the first router (in device order) owning an
// interface in the given subnet, or nil.
func findGateway(s *topo.Snapshot, subnet string) *topo.Device {
	for _, d := range s.Devices {
		if d.Kind.IsRouter() && d.InterfaceInSubnet(subnet) != nil {
			return d
		}
	}
	return nil
}

// findNextHop resolves a route's next-hop field, which students fill
// with either a device name or an interface address.
func findNextHop(s *topo.Snapshot, nexthop string) *topo.Device {
	if d := s.DeviceByName(nexthop); d != nil {
		return d
	}
	if d := s.DeviceByAddress(nexthop); d != nil {
		return d
	}
	return s.DeviceByInterfaceAddress(nexthop)
}

// sharedSubnet returns a network address both devices own an
// interface in, or an empty string.
func sharedSubnet(a, b *topo.Device) string {
	for _, ifc := range a.Interfaces {
		subnet := ifc.Subnet()
		if b.InterfaceInSubnet(subnet) != nil {
			return subnet
		}
	}
	return ""
}

// nextHopLabel renders a route's next hop for messages.
func nextHopLabel(rt topo.Route) string {
	if rt.IsDirect() {
		return topo.NextHopDirect
	}
	return rt.NextHop
}

// routesSummary renders a routing table for failure messages, in
// table order.
func routesSummary(routes []topo.Route) string {
	parts := make([]string, 0, len(routes))
	for _, rt := range routes {
		parts = append(parts, fmt.Sprintf("%s via %s (metric %d)",
			rt.Destination, nextHopLabel(rt), rt.Metric))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
