package server

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenReusePort opens a TCP listener on address with SO_REUSEPORT set,
// allowing every worker goroutine group to bind the same port independently.
// The kernel load-balances accepted connections across the listeners sharing
// the port; workers never hand connections to each other.
func listenReusePort(ctx context.Context, address string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	return lc.Listen(ctx, "tcp", address)
}
