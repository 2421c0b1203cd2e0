// SPDX-License-Identifier: GPL-3.0-or-later

package topo

import (
	"strings"

	"github.com/ZhuChongjing/NetLabX/ipv4"
	"github.com/miekg/dns"
)

// DeviceKind is the behavioral class of a device.
type DeviceKind string

// All the device kinds understood by the lab.
const (
	// KindRouter forwards packets between subnets.
	KindRouter = DeviceKind("router")

	// KindPC is a plain end host.
	KindPC = DeviceKind("pc")

	// KindDNSServer answers name lookups from its record set.
	KindDNSServer = DeviceKind("dns-server")

	// KindWebServer serves content on a configured port.
	KindWebServer = DeviceKind("web-server")

	// KindGenericServer is an end host that provides no protocol
	// behavior of its own; useful as a ping target.
	KindGenericServer = DeviceKind("generic-server")
)

// Valid reports whether k is one of the known device kinds.
func (k DeviceKind) Valid() bool {
	switch k {
	case KindRouter, KindPC, KindDNSServer, KindWebServer, KindGenericServer:
		return true
	default:
		return false
	}
}

// IsRouter reports whether k forwards packets. Every other kind is an
// endpoint: it originates and receives traffic but never forwards.
func (k DeviceKind) IsRouter() bool {
	return k == KindRouter
}

// String implements [fmt.Stringer].
func (k DeviceKind) String() string {
	return string(k)
}

// LANInterfaceName is the name reserved for a router's LAN-side
// interface. [Snapshot.Normalize] guarantees every router has exactly
// one interface with this name.
const LANInterfaceName = "LAN"

// Interface is a single attachment point of a device to a subnet.
type Interface struct {
	// ID uniquely identifies the interface within the snapshot.
	ID string `json:"id" yaml:"id"`

	// Name is the interface name, unique within its device
	// (e.g. "LAN", "eth0").
	Name string `json:"name" yaml:"name"`

	// Address is the interface's IPv4 address.
	Address string `json:"address" yaml:"address"`

	// Mask is the dotted subnet mask; empty means [ipv4.DefaultMask].
	Mask string `json:"mask,omitempty" yaml:"mask,omitempty"`
}

// EffectiveMask returns the interface mask, falling back to
// [ipv4.DefaultMask] when unset.
func (ifc *Interface) EffectiveMask() string {
	if ifc.Mask == "" {
		return ipv4.DefaultMask
	}
	return ifc.Mask
}

// Subnet returns the network address of the interface's subnet.
func (ifc *Interface) Subnet() string {
	return ipv4.Subnet(ifc.Address, ifc.EffectiveMask())
}

// NextHopDirect is the sentinel next-hop marking a route whose
// destination is directly attached rather than behind another router.
const NextHopDirect = "direct"

// Route is one entry in a router's routing table.
type Route struct {
	// Destination is the target host or network address.
	Destination string `json:"destination" yaml:"destination"`

	// NextHop names the neighbor router to forward through; it may
	// be a device name or an interface address. The sentinel
	// [NextHopDirect] (or an empty string) marks direct delivery.
	NextHop string `json:"nexthop" yaml:"nexthop"`

	// Metric breaks ties between routes for the same destination;
	// lower is preferred.
	Metric int `json:"metric" yaml:"metric"`

	// Interface optionally names the egress interface. It is
	// informational: forwarding feasibility is always derived from
	// the topology itself.
	Interface string `json:"interface,omitempty" yaml:"interface,omitempty"`
}

// IsDirect reports whether the route delivers directly instead of
// forwarding to a next hop.
func (r Route) IsDirect() bool {
	return r.NextHop == NextHopDirect || r.NextHop == ""
}

// DNSRecords maps fully-qualified or bare domain names to IPv4
// addresses. Lookups are case-insensitive and ignore a trailing dot.
type DNSRecords map[string]string

// WebConfig is the serving configuration of a web-server device.
type WebConfig struct {
	// Port is the TCP port the server listens on; 0 means 80.
	Port int `json:"port" yaml:"port"`

	// Content is the page body returned on a successful request.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

// Device is a single virtual machine in the lab.
type Device struct {
	// ID uniquely identifies the device within the snapshot.
	ID string `json:"id" yaml:"id"`

	// Name is the display name, unique within the snapshot. Routing
	// tables and results refer to devices by name.
	Name string `json:"name" yaml:"name"`

	// Kind is the behavioral class.
	Kind DeviceKind `json:"kind" yaml:"kind"`

	// Address is the primary IPv4 address. For routers this equals
	// the LAN interface address.
	Address string `json:"address" yaml:"address"`

	// Mask optionally overrides [ipv4.DefaultMask] when interfaces
	// are synthesized for this device.
	Mask string `json:"mask,omitempty" yaml:"mask,omitempty"`

	// Interfaces lists the device's attachment points. Routers have
	// one LAN interface plus one backbone interface per
	// router-to-router link; every other kind has exactly one.
	Interfaces []*Interface `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`

	// Routes is the routing table; meaningful for routers only.
	Routes []Route `json:"routes,omitempty" yaml:"routes,omitempty"`

	// DNS is the record set; meaningful for dns-server devices only.
	DNS DNSRecords `json:"dns,omitempty" yaml:"dns,omitempty"`

	// Web is the serving configuration; meaningful for web-server
	// devices only.
	Web *WebConfig `json:"web,omitempty" yaml:"web,omitempty"`
}

// LAN returns the router's LAN interface, or nil when absent.
func (d *Device) LAN() *Interface {
	for _, ifc := range d.Interfaces {
		if strings.EqualFold(ifc.Name, LANInterfaceName) {
			return ifc
		}
	}
	return nil
}

// PrimaryInterface returns the interface carrying the device's
// primary address: the LAN interface for routers, the first (and
// typically only) interface otherwise. It returns nil only for a
// device that has not been normalized.
func (d *Device) PrimaryInterface() *Interface {
	if d.Kind.IsRouter() {
		if lan := d.LAN(); lan != nil {
			return lan
		}
	}
	if len(d.Interfaces) > 0 {
		return d.Interfaces[0]
	}
	return nil
}

// InterfaceInSubnet returns the first interface attached to the given
// network address, or nil.
func (d *Device) InterfaceInSubnet(subnet string) *Interface {
	for _, ifc := range d.Interfaces {
		if ifc.Subnet() == subnet {
			return ifc
		}
	}
	return nil
}

// InterfaceByName returns the interface with the given name, or nil.
func (d *Device) InterfaceByName(name string) *Interface {
	for _, ifc := range d.Interfaces {
		if strings.EqualFold(ifc.Name, name) {
			return ifc
		}
	}
	return nil
}

// Lookup resolves domain against the device's DNS records. The match
// is case-insensitive and tolerates a missing or extra trailing dot
// on either side.
func (d *Device) Lookup(domain string) (string, bool) {
	want := dns.CanonicalName(domain)
	for name, addr := range d.DNS {
		if dns.CanonicalName(name) == want {
			return addr, true
		}
	}
	return "", false
}

// ListenPort returns the TCP port a web-server device accepts
// requests on, defaulting to 80.
func (d *Device) ListenPort() int {
	if d.Web != nil && d.Web.Port > 0 {
		return d.Web.Port
	}
	return 80
}

// EffectiveMask returns the device-level mask, falling back to
// [ipv4.DefaultMask] when unset.
func (d *Device) EffectiveMask() string {
	if d.Mask == "" {
		return ipv4.DefaultMask
	}
	return d.Mask
}

// clone returns a deep copy of the device.
func (d *Device) clone() *Device {
	c := &Device{
		ID:      d.ID,
		Name:    d.Name,
		Kind:    d.Kind,
		Address: d.Address,
		Mask:    d.Mask,
	}
	for _, ifc := range d.Interfaces {
		dup := *ifc
		c.Interfaces = append(c.Interfaces, &dup)
	}
	c.Routes = append(c.Routes, d.Routes...)
	if d.DNS != nil {
		c.DNS = make(DNSRecords, len(d.DNS))
		for name, addr := range d.DNS {
			c.DNS[name] = addr
		}
	}
	if d.Web != nil {
		dup := *d.Web
		c.Web = &dup
	}
	return c
}
