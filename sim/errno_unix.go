// SPDX-License-Identifier: GPL-3.0-or-later

//go:build unix

package sim

import "golang.org/x/sys/unix"

// Errno values used to classify simulated failures on Unix.
const (
	EINVAL        = unix.EINVAL
	EADDRNOTAVAIL = unix.EADDRNOTAVAIL
	ENETUNREACH   = unix.ENETUNREACH
	ENETDOWN      = unix.ENETDOWN
	EHOSTUNREACH  = unix.EHOSTUNREACH
	ECONNREFUSED  = unix.ECONNREFUSED
	ETIMEDOUT     = unix.ETIMEDOUT
)
