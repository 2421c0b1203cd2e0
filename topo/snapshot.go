// SPDX-License-Identifier: GPL-3.0-or-later

package topo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZhuChongjing/NetLabX/ipv4"
)

// Connection is an undirected physical link between two devices.
type Connection struct {
	// A and B are the device IDs of the two ends. The order carries
	// no meaning.
	A string `json:"a" yaml:"a"`
	B string `json:"b" yaml:"b"`

	// AIface and BIface optionally record the interface IDs the link
	// occupies on each side; they are set for router-to-router links,
	// where each end got a dedicated backbone interface.
	AIface string `json:"aIface,omitempty" yaml:"aIface,omitempty"`
	BIface string `json:"bIface,omitempty" yaml:"bIface,omitempty"`
}

// Involves reports whether the connection touches the given device.
func (c *Connection) Involves(deviceID string) bool {
	return c.A == deviceID || c.B == deviceID
}

// OtherEnd returns the device ID at the opposite end from deviceID,
// or an empty string when the connection does not involve it.
func (c *Connection) OtherEnd(deviceID string) string {
	switch deviceID {
	case c.A:
		return c.B
	case c.B:
		return c.A
	default:
		return ""
	}
}

// Joins reports whether the connection links exactly the two given
// devices, in either order.
func (c *Connection) Joins(aID, bID string) bool {
	return (c.A == aID && c.B == bID) || (c.A == bID && c.B == aID)
}

// Snapshot is a complete picture of the lab topology at one moment.
//
// Snapshots are immutable by convention: the mutation functions in
// this package copy before writing, and simulation code only reads.
// The zero value is an empty, usable topology.
type Snapshot struct {
	// Devices lists every device. Slice order is the authoritative
	// tie-break order everywhere a lookup could match more than one
	// device.
	Devices []*Device `json:"devices" yaml:"devices"`

	// Connections lists every physical link.
	Connections []*Connection `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// Clone returns a deep copy sharing no memory with the original.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{}
	for _, d := range s.Devices {
		c.Devices = append(c.Devices, d.clone())
	}
	for _, conn := range s.Connections {
		dup := *conn
		c.Connections = append(c.Connections, &dup)
	}
	return c
}

// DeviceByID returns the device with the given ID, or nil.
func (s *Snapshot) DeviceByID(id string) *Device {
	for _, d := range s.Devices {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// DeviceByName returns the device with the given name, or nil. Names
// are compared case-sensitively.
func (s *Snapshot) DeviceByName(name string) *Device {
	for _, d := range s.Devices {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// DeviceByAddress returns the first device (in [Snapshot.Devices]
// order) whose primary address equals addr, or nil. When students
// misconfigure duplicate addresses the first match wins, which keeps
// resolution deterministic.
func (s *Snapshot) DeviceByAddress(addr string) *Device {
	for _, d := range s.Devices {
		if d.Address == addr {
			return d
		}
	}
	return nil
}

// DeviceByInterfaceAddress returns the first device owning an
// interface with the given address, or nil.
func (s *Snapshot) DeviceByInterfaceAddress(addr string) *Device {
	for _, d := range s.Devices {
		for _, ifc := range d.Interfaces {
			if ifc.Address == addr {
				return d
			}
		}
	}
	return nil
}

// FirstOfKind returns the first device of the given kind in
// [Snapshot.Devices] order, or nil.
func (s *Snapshot) FirstOfKind(kind DeviceKind) *Device {
	for _, d := range s.Devices {
		if d.Kind == kind {
			return d
		}
	}
	return nil
}

// ConnectionBetween returns the connection linking the two devices,
// or nil.
func (s *Snapshot) ConnectionBetween(aID, bID string) *Connection {
	for _, conn := range s.Connections {
		if conn.Joins(aID, bID) {
			return conn
		}
	}
	return nil
}

// Connected reports whether a physical link exists between the two
// devices.
func (s *Snapshot) Connected(aID, bID string) bool {
	return s.ConnectionBetween(aID, bID) != nil
}

// Normalize fills in the structural guarantees the simulation relies
// on, in place. It is idempotent and safe on malformed input: it adds
// what is missing and never rejects.
//
// After normalization every router has a LAN interface carrying the
// device address, every endpoint has at least an eth0 interface,
// interface IDs and masks are populated, and web-server devices have
// a listen port.
func (s *Snapshot) Normalize() {
	for _, d := range s.Devices {
		if d.ID == "" {
			d.ID = strings.ToLower(strings.ReplaceAll(d.Name, " ", "-"))
		}
		if d.Kind.IsRouter() {
			if d.LAN() == nil {
				lan := &Interface{
					Name:    LANInterfaceName,
					Address: d.Address,
					Mask:    d.EffectiveMask(),
				}
				d.Interfaces = append([]*Interface{lan}, d.Interfaces...)
			}
		} else if len(d.Interfaces) == 0 {
			d.Interfaces = append(d.Interfaces, &Interface{
				Name:    "eth0",
				Address: d.Address,
				Mask:    d.EffectiveMask(),
			})
		}
		for _, ifc := range d.Interfaces {
			if ifc.ID == "" {
				ifc.ID = interfaceID(d.ID, ifc.Name)
			}
			if ifc.Mask == "" {
				ifc.Mask = ipv4.DefaultMask
			}
			if ifc.Address == "" {
				ifc.Address = d.Address
			}
		}
		if d.Kind == KindWebServer {
			if d.Web == nil {
				d.Web = &WebConfig{Port: 80}
			} else if d.Web.Port == 0 {
				d.Web.Port = 80
			}
		}
	}
}

// interfaceID derives the deterministic interface ID used when none
// was provided. Interface names are unique per device, so the result
// is unique per snapshot.
func interfaceID(deviceID, name string) string {
	return deviceID + "-" + strings.ToLower(name)
}

// Validate reports every problem an instructor would want flagged
// before handing the topology to students. The returned error joins
// one entry per finding (see [errors.Join]); nil means clean.
//
// Validation never prevents a snapshot from being used: a topology
// with duplicate addresses or a broken routing table is still fully
// simulatable, and watching it fail is the point of the exercise.
func (s *Snapshot) Validate() error {
	var errs []error
	seenID := make(map[string]string)
	seenName := make(map[string]string)

	for _, d := range s.Devices {
		label := d.Name
		if label == "" {
			label = d.ID
		}
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("device %s: empty name", d.ID))
		}
		if prev, dup := seenID[d.ID]; dup {
			errs = append(errs, fmt.Errorf("device %s: ID already used by %s", label, prev))
		} else {
			seenID[d.ID] = label
		}
		if prev, dup := seenName[d.Name]; dup && d.Name != "" {
			errs = append(errs, fmt.Errorf("device %s: name already used by device ID %s", label, prev))
		} else {
			seenName[d.Name] = d.ID
		}
		if !d.Kind.Valid() {
			errs = append(errs, fmt.Errorf("device %s: unknown kind %q", label, d.Kind))
		}
		if err := ipv4.ValidateHost(d.Address); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", label, err))
		}
		errs = append(errs, d.validateInterfaces(label)...)
		errs = append(errs, d.validateRoutes(label)...)
		errs = append(errs, d.validateServices(label)...)
	}

	errs = append(errs, s.validateConnections()...)
	return errors.Join(errs...)
}

func (d *Device) validateInterfaces(label string) []error {
	var errs []error
	seen := make(map[string]bool)
	for _, ifc := range d.Interfaces {
		key := strings.ToLower(ifc.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("device %s: duplicate interface name %q", label, ifc.Name))
		}
		seen[key] = true
		if !ipv4.ValidMask(ifc.EffectiveMask()) {
			errs = append(errs, fmt.Errorf(
				"device %s: interface %s: mask %q is not a supported subnet mask",
				label, ifc.Name, ifc.EffectiveMask()))
		}
		if !ipv4.Valid(ifc.Address) {
			errs = append(errs, fmt.Errorf(
				"device %s: interface %s: malformed address %q", label, ifc.Name, ifc.Address))
		}
	}
	if d.Kind.IsRouter() {
		lan := d.LAN()
		switch {
		case lan == nil:
			errs = append(errs, fmt.Errorf("device %s: router has no LAN interface", label))
		case lan.Address != d.Address:
			errs = append(errs, fmt.Errorf(
				"device %s: LAN interface address %s differs from device address %s",
				label, lan.Address, d.Address))
		}
	} else if len(d.Interfaces) != 1 {
		errs = append(errs, fmt.Errorf(
			"device %s: %s devices must have exactly one interface, found %d",
			label, d.Kind, len(d.Interfaces)))
	}
	return errs
}

func (d *Device) validateRoutes(label string) []error {
	var errs []error
	if len(d.Routes) > 0 && !d.Kind.IsRouter() {
		errs = append(errs, fmt.Errorf("device %s: %s devices cannot carry a routing table", label, d.Kind))
	}
	seen := make(map[string]bool)
	for _, rt := range d.Routes {
		if !ipv4.Valid(rt.Destination) {
			errs = append(errs, fmt.Errorf(
				"device %s: route to %q: malformed destination", label, rt.Destination))
		}
		if rt.Metric < 0 {
			errs = append(errs, fmt.Errorf(
				"device %s: route to %s: negative metric %d", label, rt.Destination, rt.Metric))
		}
		key := fmt.Sprintf("%s|%d", rt.Destination, rt.Metric)
		if seen[key] {
			errs = append(errs, fmt.Errorf(
				"device %s: two routes to %s share metric %d", label, rt.Destination, rt.Metric))
		}
		seen[key] = true
		if rt.Interface != "" && d.InterfaceByName(rt.Interface) == nil {
			errs = append(errs, fmt.Errorf(
				"device %s: route to %s names unknown interface %q",
				label, rt.Destination, rt.Interface))
		}
	}
	return errs
}

func (d *Device) validateServices(label string) []error {
	var errs []error
	if d.Web != nil {
		if d.Kind != KindWebServer {
			errs = append(errs, fmt.Errorf("device %s: web configuration on a %s device", label, d.Kind))
		}
		if d.Web.Port < 0 || d.Web.Port > 65535 {
			errs = append(errs, fmt.Errorf("device %s: listen port %d out of range", label, d.Web.Port))
		}
	}
	if len(d.DNS) > 0 && d.Kind != KindDNSServer {
		errs = append(errs, fmt.Errorf("device %s: DNS records on a %s device", label, d.Kind))
	}
	for name, addr := range d.DNS {
		if name == "" {
			errs = append(errs, fmt.Errorf("device %s: DNS record with empty domain", label))
		}
		if err := ipv4.ValidateHost(addr); err != nil {
			errs = append(errs, fmt.Errorf("device %s: DNS record %s: %w", label, name, err))
		}
	}
	return errs
}

func (s *Snapshot) validateConnections() []error {
	var errs []error
	seen := make(map[string]bool)
	for _, conn := range s.Connections {
		a, b := s.DeviceByID(conn.A), s.DeviceByID(conn.B)
		if a == nil {
			errs = append(errs, fmt.Errorf("connection %s--%s: unknown device %s", conn.A, conn.B, conn.A))
		}
		if b == nil {
			errs = append(errs, fmt.Errorf("connection %s--%s: unknown device %s", conn.A, conn.B, conn.B))
		}
		if conn.A == conn.B {
			errs = append(errs, fmt.Errorf("connection %s--%s: device linked to itself", conn.A, conn.B))
		}
		key := pairKey(conn.A, conn.B)
		if seen[key] {
			errs = append(errs, fmt.Errorf("connection %s--%s: duplicate link", conn.A, conn.B))
		}
		seen[key] = true
		if a != nil && b != nil && !a.Kind.IsRouter() && !b.Kind.IsRouter() {
			errs = append(errs, fmt.Errorf(
				"connection %s--%s: two endpoints linked directly, at least one side must be a router",
				a.Name, b.Name))
		}
	}
	return errs
}

// pairKey builds an order-independent key for a device pair.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "--" + b
}
