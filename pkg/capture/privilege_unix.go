//go:build !windows

package capture

import "golang.org/x/sys/unix"

// IsPrivileged reports whether the process may open raw sockets and capture
// devices
func IsPrivileged() bool {
	return unix.Geteuid() == 0
}
