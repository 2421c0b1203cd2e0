// SPDX-License-Identifier: GPL-3.0-or-later

// Package ipv4 contains strict dotted-quad IPv4 helpers.
//
// The rules implemented here are deliberately stricter than real IPv4
// semantics: the lab only deals with unicast host addresses and a small
// set of canonical subnet masks, and every helper degrades to a
// well-defined value instead of failing, so that callers can always
// render something sensible to the student.
package ipv4

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMask is the subnet mask assumed when a device does not
// specify one.
const DefaultMask = "255.255.255.0"

// canonicalMasks enumerates the masks the lab accepts (/8, /16, /24,
// and /25 through /30). Anything else, including syntactically valid
// but uncommon masks, is rejected to keep subnetting exercises
// predictable.
var canonicalMasks = map[string]struct{}{
	"255.0.0.0":       {},
	"255.255.0.0":     {},
	"255.255.255.0":   {},
	"255.255.255.128": {},
	"255.255.255.192": {},
	"255.255.255.224": {},
	"255.255.255.240": {},
	"255.255.255.248": {},
	"255.255.255.252": {},
}

// ValidMask reports whether mask is one of the canonical dotted masks
// supported by the lab.
func ValidMask(mask string) bool {
	_, ok := canonicalMasks[mask]
	return ok
}

// Valid reports whether address is a well-formed dotted quad with all
// four octets in the 0-255 range. It does not apply the stricter host
// rules enforced by [ValidateHost].
func Valid(address string) bool {
	_, ok := parseQuad(address)
	return ok
}

// parseQuad parses a dotted quad into its four octets.
func parseQuad(s string) ([4]int, bool) {
	var quad [4]int
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return quad, false
	}
	for idx, part := range parts {
		if part == "" || len(part) > 3 {
			return quad, false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return quad, false
			}
		}
		value, err := strconv.Atoi(part)
		if err != nil || value < 0 || value > 255 {
			return quad, false
		}
		quad[idx] = value
	}
	return quad, true
}

// Subnet derives the network address of address under mask by ANDing
// the two octet-wise.
//
// The function fails closed rather than failing: a malformed mask
// degrades to assuming a /24 (first three octets of the address plus
// a zero), and a malformed address degrades to "0.0.0.0". Callers must
// treat these as degraded, not absent, output.
func Subnet(address, mask string) string {
	addr, ok := parseQuad(address)
	if !ok {
		return "0.0.0.0"
	}
	m, ok := parseQuad(mask)
	if !ok {
		return fmt.Sprintf("%d.%d.%d.0", addr[0], addr[1], addr[2])
	}
	return fmt.Sprintf("%d.%d.%d.%d",
		addr[0]&m[0], addr[1]&m[1], addr[2]&m[2], addr[3]&m[3])
}

// InSubnet reports whether address belongs to the given network
// address under mask.
func InSubnet(address, subnet, mask string) bool {
	return Subnet(address, mask) == subnet
}

// ValidateHost checks that address is a usable unicast host address.
//
// Beyond requiring four dot-separated octets in 0-255, it rejects
// first-octet 0, 127, and 255 and last-octet 0 and 255. This is
// stricter than real IPv4 on purpose: reserved, loopback, network,
// and broadcast addresses never name a host in the lab.
func ValidateHost(address string) error {
	quad, ok := parseQuad(address)
	if !ok {
		return fmt.Errorf("address %q is not four dot-separated octets in 0-255", address)
	}
	switch quad[0] {
	case 0:
		return fmt.Errorf("address %q: first octet 0 is reserved", address)
	case 127:
		return fmt.Errorf("address %q: 127.x.x.x is the loopback range", address)
	case 255:
		return fmt.Errorf("address %q: first octet 255 is reserved for broadcast", address)
	}
	switch quad[3] {
	case 0:
		return fmt.Errorf("address %q: last octet 0 names the network itself", address)
	case 255:
		return fmt.Errorf("address %q: last octet 255 is the subnet broadcast", address)
	}
	return nil
}
