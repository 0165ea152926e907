//go:build linux

package ifacebind

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

type syscallConner interface {
	SyscallConn() (syscall.RawConn, error)
}

func withRawConn(pc net.PacketConn, fn func(fd uintptr) error) error {
	sc, ok := pc.(syscallConner)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := raw.Control(func(fd uintptr) {
		opErr = fn(fd)
	}); err != nil {
		return err
	}
	return opErr
}

// setBroadcast enables SO_BROADCAST on the underlying file descriptor.
func setBroadcast(pc net.PacketConn) error {
	return withRawConn(pc, func(fd uintptr) error {
		return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
}
