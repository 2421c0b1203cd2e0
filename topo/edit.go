// SPDX-License-Identifier: GPL-3.0-or-later

package topo

import (
	"errors"
	"fmt"

	"github.com/ZhuChongjing/NetLabX/ipv4"
)

// Errors returned by the mutation functions. They are wrapped with
// context, so match with [errors.Is].
var (
	ErrUnknownKind      = errors.New("unknown device kind")
	ErrBadAddress       = errors.New("invalid address")
	ErrEmptyName        = errors.New("empty device name")
	ErrDuplicateName    = errors.New("duplicate device name")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrSelfLink         = errors.New("cannot connect a device to itself")
	ErrAlreadyConnected = errors.New("devices are already connected")
	ErrNotConnected     = errors.New("devices are not connected")
	ErrEndpointLink     = errors.New("endpoints connect only to routers")
	ErrDuplicateAddress = errors.New("duplicate address")
	ErrOutsideSubnet    = errors.New("address outside the router's LAN subnet")
	ErrSameSubnet       = errors.New("routers share the same LAN subnet")
	ErrNotRouter        = errors.New("device is not a router")
	ErrWrongKind        = errors.New("operation does not apply to this device kind")
	ErrAmbiguousRoute   = errors.New("ambiguous routing table")
)

// idPrefixes maps each kind to the prefix used when minting IDs.
var idPrefixes = map[DeviceKind]string{
	KindRouter:        "router",
	KindPC:            "pc",
	KindDNSServer:     "dns",
	KindWebServer:     "web",
	KindGenericServer: "srv",
}

// AddDevice returns a new snapshot with a freshly-created device
// appended, plus the created device (pointing into the new snapshot).
//
// The device gets the lowest free ID for its kind and the interfaces
// its kind requires. A duplicate primary address is deliberately NOT
// rejected here: ambiguous topologies must stay representable so that
// students can build them and observe the failure. The collision is
// checked when a connection makes it reachable, see [Connect].
func AddDevice(s *Snapshot, name string, kind DeviceKind, address string) (*Snapshot, *Device, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if name == "" {
		return nil, nil, ErrEmptyName
	}
	if s.DeviceByName(name) != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if err := ipv4.ValidateHost(address); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrBadAddress, err)
	}

	next := s.Clone()
	d := &Device{
		ID:      freshDeviceID(next, kind),
		Name:    name,
		Kind:    kind,
		Address: address,
	}
	if kind.IsRouter() {
		d.Interfaces = []*Interface{{
			ID:      interfaceID(d.ID, LANInterfaceName),
			Name:    LANInterfaceName,
			Address: address,
			Mask:    ipv4.DefaultMask,
		}}
	} else {
		d.Interfaces = []*Interface{{
			ID:      interfaceID(d.ID, "eth0"),
			Name:    "eth0",
			Address: address,
			Mask:    ipv4.DefaultMask,
		}}
	}
	if kind == KindWebServer {
		d.Web = &WebConfig{Port: 80}
	}
	next.Devices = append(next.Devices, d)
	return next, d, nil
}

// freshDeviceID mints the lowest free ID for the kind, reusing IDs
// freed by earlier removals.
func freshDeviceID(s *Snapshot, kind DeviceKind) string {
	prefix := idPrefixes[kind]
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s%d", prefix, n)
		if s.DeviceByID(id) == nil {
			return id
		}
	}
}

// RemoveDevice returns a new snapshot with the device and every
// connection touching it removed. Backbone interfaces that existed
// only for links to the removed device are dropped from the surviving
// routers, freeing their subnets for reuse.
//
// Routing-table entries on other routers that still mention the
// removed device are intentionally left in place: they become routes
// that fail at resolution time, which is exactly what the exercise
// should show.
func RemoveDevice(s *Snapshot, deviceID string) (*Snapshot, error) {
	if s.DeviceByID(deviceID) == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}

	next := s.Clone()
	victim := next.DeviceByID(deviceID)
	kept := next.Connections[:0]
	for _, conn := range next.Connections {
		if !conn.Involves(deviceID) {
			kept = append(kept, conn)
			continue
		}
		other := next.DeviceByID(conn.OtherEnd(deviceID))
		if other != nil && other.Kind.IsRouter() && victim.Kind.IsRouter() {
			removeBackbonePair(conn, victim, other)
		}
	}
	next.Connections = kept

	for i, d := range next.Devices {
		if d.ID == deviceID {
			next.Devices = append(next.Devices[:i], next.Devices[i+1:]...)
			break
		}
	}
	return next, nil
}

// Connect returns a new snapshot with a physical link added between
// the two devices.
//
// For two routers it allocates the lowest free backbone subnet
// 10.0.N.0/24 and gives each router a dedicated ethN interface in it
// (.1 on the first device, .2 on the second); routers serving the
// same LAN subnet cannot be linked. For an endpoint and a router it
// requires the endpoint's address to sit inside the router's LAN
// subnet and to differ from the router's own address. Two endpoints
// cannot be linked directly.
//
// Before any link is added the whole topology is checked for two
// non-router devices sharing a primary address; such a topology is
// representable but must not gain new links until the collision is
// fixed.
func Connect(s *Snapshot, aID, bID string) (*Snapshot, error) {
	a, b := s.DeviceByID(aID), s.DeviceByID(bID)
	if a == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, aID)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, bID)
	}
	if aID == bID {
		return nil, fmt.Errorf("%w: %s", ErrSelfLink, a.Name)
	}
	if s.Connected(aID, bID) {
		return nil, fmt.Errorf("%w: %s and %s", ErrAlreadyConnected, a.Name, b.Name)
	}
	if !a.Kind.IsRouter() && !b.Kind.IsRouter() {
		return nil, fmt.Errorf("%w: %s (%s) and %s (%s)",
			ErrEndpointLink, a.Name, a.Kind, b.Name, b.Kind)
	}
	if d1, d2 := duplicateEndpointAddress(s); d1 != nil {
		return nil, fmt.Errorf("%w: %s is used by both %s and %s",
			ErrDuplicateAddress, d1.Address, d1.Name, d2.Name)
	}

	next := s.Clone()
	a, b = next.DeviceByID(aID), next.DeviceByID(bID)
	conn := &Connection{A: aID, B: bID}

	switch {
	case a.Kind.IsRouter() && b.Kind.IsRouter():
		if aLAN, bLAN := a.LAN(), b.LAN(); aLAN != nil && bLAN != nil && aLAN.Subnet() == bLAN.Subnet() {
			return nil, fmt.Errorf("%w: %s and %s both serve %s",
				ErrSameSubnet, a.Name, b.Name, aLAN.Subnet())
		}
		n := nextBackboneSubnet(next)
		aIfc, bIfc := allocateBackbone(a, b, n)
		conn.AIface, conn.BIface = aIfc.ID, bIfc.ID

	default:
		router, endpoint := a, b
		if !router.Kind.IsRouter() {
			router, endpoint = b, a
		}
		lan := router.LAN()
		if lan == nil {
			return nil, fmt.Errorf("router %s has no LAN interface", router.Name)
		}
		if endpoint.Address == lan.Address {
			return nil, fmt.Errorf("%w: %s uses %s's own address %s",
				ErrDuplicateAddress, endpoint.Name, router.Name, lan.Address)
		}
		subnet, mask := lan.Subnet(), lan.EffectiveMask()
		if !ipv4.InSubnet(endpoint.Address, subnet, mask) {
			return nil, fmt.Errorf(
				"%w: %s's address %s is outside %s's LAN subnet %s (mask %s)",
				ErrOutsideSubnet, endpoint.Name, endpoint.Address, router.Name, subnet, mask)
		}
	}

	next.Connections = append(next.Connections, conn)
	return next, nil
}

// duplicateEndpointAddress returns the first pair of non-router
// devices sharing a primary address, in device order, or nils.
func duplicateEndpointAddress(s *Snapshot) (*Device, *Device) {
	seen := make(map[string]*Device)
	for _, d := range s.Devices {
		if d.Kind.IsRouter() {
			continue
		}
		if prev, ok := seen[d.Address]; ok {
			return prev, d
		}
		seen[d.Address] = d
	}
	return nil, nil
}

// Disconnect returns a new snapshot with the link between the two
// devices removed. For a router-to-router link the matching backbone
// interface pair is removed from both sides, freeing the subnet for
// the next [Connect].
func Disconnect(s *Snapshot, aID, bID string) (*Snapshot, error) {
	if s.ConnectionBetween(aID, bID) == nil {
		return nil, fmt.Errorf("%w: %s and %s", ErrNotConnected, aID, bID)
	}

	next := s.Clone()
	a, b := next.DeviceByID(aID), next.DeviceByID(bID)
	for i, conn := range next.Connections {
		if !conn.Joins(aID, bID) {
			continue
		}
		if a != nil && b != nil && a.Kind.IsRouter() && b.Kind.IsRouter() {
			removeBackbonePair(conn, a, b)
		}
		next.Connections = append(next.Connections[:i], next.Connections[i+1:]...)
		break
	}
	return next, nil
}

// SetRoutes returns a new snapshot with the router's routing table
// replaced wholesale.
//
// The table is rejected when two entries share both destination and
// metric: the resolver's tie-break is input order, and letting two
// otherwise-equal routes coexist would make outcomes depend on
// accidental ordering. Distinct metrics for the same destination are
// the supported way to express fallbacks.
func SetRoutes(s *Snapshot, routerID string, routes []Route) (*Snapshot, error) {
	d := s.DeviceByID(routerID)
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, routerID)
	}
	if !d.Kind.IsRouter() {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotRouter, d.Name, d.Kind)
	}
	seen := make(map[string]bool)
	for _, rt := range routes {
		if !ipv4.Valid(rt.Destination) {
			return nil, fmt.Errorf("%w: malformed destination %q", ErrBadAddress, rt.Destination)
		}
		if rt.Metric < 0 {
			return nil, fmt.Errorf("%w: route to %s has negative metric %d",
				ErrAmbiguousRoute, rt.Destination, rt.Metric)
		}
		key := fmt.Sprintf("%s|%d", rt.Destination, rt.Metric)
		if seen[key] {
			return nil, fmt.Errorf("%w: two routes to %s share metric %d",
				ErrAmbiguousRoute, rt.Destination, rt.Metric)
		}
		seen[key] = true
	}

	next := s.Clone()
	router := next.DeviceByID(routerID)
	router.Routes = append([]Route(nil), routes...)
	return next, nil
}

// SetDNSRecords returns a new snapshot with the DNS server's record
// set replaced wholesale. Record values must be usable host
// addresses; domains are stored as given and matched
// case-insensitively at lookup time.
func SetDNSRecords(s *Snapshot, serverID string, records DNSRecords) (*Snapshot, error) {
	d := s.DeviceByID(serverID)
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, serverID)
	}
	if d.Kind != KindDNSServer {
		return nil, fmt.Errorf("%w: %s is a %s, not a DNS server", ErrWrongKind, d.Name, d.Kind)
	}
	for name, addr := range records {
		if name == "" {
			return nil, fmt.Errorf("%w: record with empty domain", ErrBadAddress)
		}
		if err := ipv4.ValidateHost(addr); err != nil {
			return nil, fmt.Errorf("%w: record %s: %w", ErrBadAddress, name, err)
		}
	}

	next := s.Clone()
	server := next.DeviceByID(serverID)
	server.DNS = make(DNSRecords, len(records))
	for name, addr := range records {
		server.DNS[name] = addr
	}
	return next, nil
}

// SetWebConfig returns a new snapshot with the web server's serving
// configuration replaced. A zero port means 80.
func SetWebConfig(s *Snapshot, serverID string, cfg WebConfig) (*Snapshot, error) {
	d := s.DeviceByID(serverID)
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, serverID)
	}
	if d.Kind != KindWebServer {
		return nil, fmt.Errorf("%w: %s is a %s, not a web server", ErrWrongKind, d.Name, d.Kind)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("listen port %d out of range", cfg.Port)
	}
	if cfg.Port == 0 {
		cfg.Port = 80
	}

	next := s.Clone()
	server := next.DeviceByID(serverID)
	server.Web = &cfg
	return next, nil
}
