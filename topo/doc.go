// SPDX-License-Identifier: GPL-3.0-or-later

// Package topo models the virtual lab topology: devices, their
// interfaces and routing tables, and the physical connections
// between them.
//
// The central type is the [Snapshot], an immutable-by-convention
// value holding every device and connection. Mutations never edit a
// snapshot in place: [AddDevice], [RemoveDevice], [Connect],
// [Disconnect], and [SetRoutes] deep-copy the input, apply the
// change, and return the new snapshot, so a simulation started on an
// older snapshot keeps seeing consistent state.
//
// A snapshot loaded from external data should pass through
// [Snapshot.Normalize] first, which fills in the structural
// guarantees the rest of the code relies on (router LAN interfaces,
// endpoint eth0 interfaces, default masks and ports).
// [Snapshot.Validate] then reports everything a careful instructor
// would want flagged, without refusing to represent a broken
// topology: students are supposed to build wrong networks and watch
// them fail.
package topo
