// SPDX-License-Identifier: GPL-3.0-or-later

// Package sim simulates protocol operations over a lab topology.
//
// The engine answers the three questions a student keeps asking while
// wiring a virtual network: can this device ping that one, what does
// a DNS lookup return, and what does the browser show. Every answer
// is a [Result] carrying the hop-by-hop path, a trace of the routing
// decisions taken along the way, and, on failure, a [FailureKind]
// plus the POSIX-style error class a real network stack would have
// reported.
//
// Failures are data. A topology where the packet cannot get through
// is not an error condition: the simulation succeeds at showing
// exactly where and why the packet died. Methods return an
// unsuccessful [Result], never a Go error.
//
// The zero value of [Engine] is ready to use:
//
//	res := sim.Ping(snapshot, "192.168.1.10", "192.168.2.10")
//	if !res.Success {
//		fmt.Println(res.Kind, res.Message)
//	}
//
// Engines are stateless and safe for concurrent use. Each call reads
// the snapshot it was given and never writes it, so callers that edit
// topologies concurrently just hand every simulation the snapshot it
// should see.
package sim
