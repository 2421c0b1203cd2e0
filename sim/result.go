// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"errors"
	"fmt"

	"github.com/ZhuChongjing/NetLabX/topo"
	"github.com/rbmk-project/common/errclass"
)

// FailureKind labels why a simulated operation did not get through.
// The value is stable and machine-readable; [Result.Message] carries
// the human explanation.
type FailureKind string

// All the ways a simulation can fail.
const (
	// FailBadAddress: the source or destination address is not a
	// usable unicast host address.
	FailBadAddress = FailureKind("bad-address")

	// FailSourceNotFound: no device owns the source address.
	FailSourceNotFound = FailureKind("source-not-found")

	// FailNoGateway: no router owns an interface in the source
	// endpoint's subnet.
	FailNoGateway = FailureKind("no-gateway")

	// FailNoLink: a gateway exists for the subnet but no physical
	// link connects the endpoint to it.
	FailNoLink = FailureKind("no-link")

	// FailEmptyTable: a router on the path has no routes at all.
	FailEmptyTable = FailureKind("empty-routing-table")

	// FailNoRoute: a router on the path has no entry matching the
	// destination host or its network.
	FailNoRoute = FailureKind("no-route")

	// FailRoutesExhausted: every matching route was tried and none
	// could carry the packet.
	FailRoutesExhausted = FailureKind("routes-exhausted")

	// FailRoutingLoop: forwarding revisited a device already on the
	// path.
	FailRoutingLoop = FailureKind("routing-loop")

	// FailHopBudget: the packet traversed the maximum number of hops
	// without arriving, which almost always means a loop.
	FailHopBudget = FailureKind("hop-budget")

	// FailDNSNoServer: a domain needs resolving but the topology has
	// no DNS server.
	FailDNSNoServer = FailureKind("dns-no-server")

	// FailDNSUnreachable: the packet could not reach the DNS server.
	FailDNSUnreachable = FailureKind("dns-unreachable")

	// FailDNSWrongKind: the queried address belongs to a device that
	// is not a DNS server.
	FailDNSWrongKind = FailureKind("dns-wrong-kind")

	// FailDNSNoRecord: the DNS server has no record for the domain.
	FailDNSNoRecord = FailureKind("dns-no-record")

	// FailHTTPWrongKind: the target address belongs to a device that
	// is not a web server.
	FailHTTPWrongKind = FailureKind("http-wrong-kind")

	// FailPortMismatch: the web server listens on a different port
	// than the one requested.
	FailPortMismatch = FailureKind("port-mismatch")
)

// String implements [fmt.Stringer].
func (k FailureKind) String() string {
	return string(k)
}

// errno maps the failure kind to the errno a real stack would have
// surfaced, or nil when the kind classifies by message instead.
func (k FailureKind) errno() error {
	switch k {
	case FailBadAddress:
		return EINVAL
	case FailSourceNotFound:
		return EADDRNOTAVAIL
	case FailNoGateway, FailEmptyTable, FailNoRoute, FailDNSNoServer:
		return ENETUNREACH
	case FailNoLink:
		return ENETDOWN
	case FailRoutesExhausted:
		return EHOSTUNREACH
	case FailRoutingLoop, FailHopBudget:
		return ETIMEDOUT
	case FailDNSWrongKind, FailHTTPWrongKind, FailPortMismatch:
		return ECONNREFUSED
	default:
		return nil
	}
}

// classify derives the POSIX-style error class for a failure. Kinds
// backed by an errno classify through it; the rest classify by the
// message text, which is how DNS record misses become EDNS_NONAME.
func classify(kind FailureKind, msg string) string {
	if errno := kind.errno(); errno != nil {
		return string(errclass.New(fmt.Errorf("%s: %w", msg, errno)))
	}
	return string(errclass.New(errors.New(msg)))
}

// Step is one entry in the decision trace of a simulation: what a
// device did with the packet, or why a particular route could not be
// used.
type Step struct {
	// Device is the name of the device acting.
	Device string `json:"device"`

	// Action says what happened at this device.
	Action string `json:"action"`

	// Route is the routing-table entry involved, when one was.
	Route *topo.Route `json:"route,omitempty"`
}

// Result is the outcome of one simulated operation.
//
// A Result with Success false is still a perfectly good answer: it
// tells the student where the packet died ([Result.Path]), why
// ([Result.Message] and [Result.Kind]), and what a real machine
// would have printed ([Result.ErrClass]).
type Result struct {
	// Success reports whether the operation got through.
	Success bool `json:"success"`

	// Protocol is the simulated protocol: "ping", "dns", or "http".
	Protocol string `json:"protocol,omitempty"`

	// Path lists device names from the source up to, on success, the
	// destination, or up to the device where resolution stopped.
	Path []string `json:"path"`

	// Message is the human-readable explanation of the outcome.
	Message string `json:"message"`

	// Kind labels the failure; empty on success.
	Kind FailureKind `json:"kind,omitempty"`

	// ErrClass is the POSIX-style error class a real network stack
	// would have reported (e.g. "EHOSTUNREACH"); empty on success.
	ErrClass string `json:"errClass,omitempty"`

	// Steps is the hop-by-hop decision trace, including routes that
	// were tried and skipped.
	Steps []Step `json:"steps,omitempty"`

	// RequestPath and ResponsePath carry the round trip for
	// request/response protocols: ResponsePath is the reverse of
	// RequestPath whenever the request arrived.
	RequestPath  []string `json:"requestPath,omitempty"`
	ResponsePath []string `json:"responsePath,omitempty"`

	// ResolvedAddr is the address a DNS query answered with, also
	// set on HTTP results that resolved a domain first.
	ResolvedAddr string `json:"resolvedAddr,omitempty"`

	// HTTPStatus and Body carry the simulated HTTP exchange: 200
	// with the configured content, or 204 when the server has none.
	HTTPStatus int    `json:"httpStatus,omitempty"`
	Body       string `json:"body,omitempty"`

	// DNS holds the nested lookup result when an HTTP fetch had to
	// resolve a domain first.
	DNS *Result `json:"dns,omitempty"`
}

// fail builds a failed result, deriving the error class from the
// kind and message.
func fail(kind FailureKind, msg string, path []string, steps []Step) *Result {
	return &Result{
		Path:     path,
		Message:  msg,
		Kind:     kind,
		ErrClass: classify(kind, msg),
		Steps:    steps,
	}
}
