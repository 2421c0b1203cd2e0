// SPDX-License-Identifier: GPL-3.0-or-later

//go:build windows

package sim

import "golang.org/x/sys/windows"

// Errno values used to classify simulated failures on Windows.
const (
	EINVAL        = windows.WSAEINVAL
	EADDRNOTAVAIL = windows.WSAEADDRNOTAVAIL
	ENETUNREACH   = windows.WSAENETUNREACH
	ENETDOWN      = windows.WSAENETDOWN
	EHOSTUNREACH  = windows.WSAEHOSTUNREACH
	ECONNREFUSED  = windows.WSAECONNREFUSED
	ETIMEDOUT     = windows.WSAETIMEDOUT
)
