//go:build !linux

package ifacebind

import "net"

// setBroadcast has no portable equivalent outside Linux's SO_BROADCAST
// sockopt; on these platforms broadcast sending is left to the kernel's
// default behavior.
func setBroadcast(pc net.PacketConn) error { return nil }
