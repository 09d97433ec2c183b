//go:build linux

package eventloop

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// newListener returns n independently-bound listeners on addr, each with
// SO_REUSEPORT set so the kernel load-balances inbound connections across
// them. This is the "sane" SO_REUSEPORT behavior the original's net.rs
// comment contrasts with macOS.
func newListener(addr string, n int) ([]net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("eventloop: resolving %s: %w", addr, err)
	}

	out := make([]net.Listener, 0, n)
	for i := 0; i < n; i++ {
		lis, err := newReusePortListener(tcpAddr)
		if err != nil {
			for _, l := range out {
				_ = l.Close()
			}
			return nil, err
		}
		out = append(out, lis)
	}
	return out, nil
}

func newReusePortListener(addr *net.TCPAddr) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				if sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	lis, err := lc.Listen(context.Background(), "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("eventloop: SO_REUSEPORT listen on %s: %w", addr, err)
	}
	return lis, nil
}
