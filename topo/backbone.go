// SPDX-License-Identifier: GPL-3.0-or-later

package topo

import (
	"fmt"
	"strings"
)

// Backbone subnets link routers to each other. Subnet N is
// 10.0.N.0/24, each side gets a dedicated ethN interface, the first
// device takes 10.0.N.1 and the second 10.0.N.2.

// backboneMask is the fixed mask of every backbone subnet.
const backboneMask = "255.255.255.0"

// backboneSubnet reports whether the interface sits in a backbone
// subnet and, if so, which one. Router LAN interfaces are excluded by
// name, so a LAN deliberately numbered inside 10.0.0.0/16 does not
// shadow a backbone slot.
func backboneSubnet(ifc *Interface) (int, bool) {
	if strings.EqualFold(ifc.Name, LANInterfaceName) {
		return 0, false
	}
	var a, b, c, d int
	if _, err := fmt.Sscanf(ifc.Address, "%d.%d.%d.%d", &a, &b, &c, &d); err != nil {
		return 0, false
	}
	if a != 10 || b != 0 || c < 0 || c > 255 {
		return 0, false
	}
	return c, true
}

// nextBackboneSubnet returns the lowest backbone subnet number not
// used by any router interface. Numbers freed by [Disconnect] or
// [RemoveDevice] are reused first.
func nextBackboneSubnet(s *Snapshot) int {
	used := make(map[int]bool)
	for _, d := range s.Devices {
		if !d.Kind.IsRouter() {
			continue
		}
		for _, ifc := range d.Interfaces {
			if n, ok := backboneSubnet(ifc); ok {
				used[n] = true
			}
		}
	}
	for n := 0; ; n++ {
		if !used[n] {
			return n
		}
	}
}

// allocateBackbone appends the ethN interface pair for backbone
// subnet n to the two routers and returns both interfaces.
func allocateBackbone(a, b *Device, n int) (*Interface, *Interface) {
	name := fmt.Sprintf("eth%d", n)
	aIfc := &Interface{
		ID:      interfaceID(a.ID, name),
		Name:    name,
		Address: fmt.Sprintf("10.0.%d.1", n),
		Mask:    backboneMask,
	}
	bIfc := &Interface{
		ID:      interfaceID(b.ID, name),
		Name:    name,
		Address: fmt.Sprintf("10.0.%d.2", n),
		Mask:    backboneMask,
	}
	a.Interfaces = append(a.Interfaces, aIfc)
	b.Interfaces = append(b.Interfaces, bIfc)
	return aIfc, bIfc
}

// removeBackbonePair removes the backbone interface pair carrying the
// given router-to-router connection from both devices. It prefers the
// interface IDs recorded on the connection and falls back to matching
// network addresses on both sides, which covers hand-written topology
// files that never recorded interface IDs.
func removeBackbonePair(conn *Connection, a, b *Device) {
	aIfc, bIfc := conn.AIface, conn.BIface
	if conn.A == b.ID {
		aIfc, bIfc = bIfc, aIfc
	}
	if aIfc != "" && bIfc != "" {
		if a.removeInterfaceByID(aIfc) && b.removeInterfaceByID(bIfc) {
			return
		}
	}
	for _, ifc := range a.Interfaces {
		n, ok := backboneSubnet(ifc)
		if !ok {
			continue
		}
		subnet := ifc.Subnet()
		other := b.InterfaceInSubnet(subnet)
		if other == nil {
			continue
		}
		if m, ok := backboneSubnet(other); !ok || m != n {
			continue
		}
		a.removeInterfaceByID(ifc.ID)
		b.removeInterfaceByID(other.ID)
		return
	}
}

// removeInterfaceByID drops the interface with the given ID and
// reports whether it was present.
func (d *Device) removeInterfaceByID(id string) bool {
	for i, ifc := range d.Interfaces {
		if ifc.ID == id {
			d.Interfaces = append(d.Interfaces[:i], d.Interfaces[i+1:]...)
			return true
		}
	}
	return false
}
