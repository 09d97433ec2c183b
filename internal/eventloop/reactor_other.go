//go:build !linux

package eventloop

import (
	"fmt"
	"net"
)

// newListener binds addr once and returns n net.Listeners sharing that
// same underlying file descriptor via dup(2). All n readers race Accept
// on the shared descriptor; this mirrors the original's macOS workaround
// in net.rs, since non-Linux SO_REUSEPORT does not load-balance evenly.
func newListener(addr string, n int) ([]net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("eventloop: listening on %s: %w", addr, err)
	}

	tcpLis, ok := lis.(*net.TCPListener)
	if !ok {
		return nil, fmt.Errorf("eventloop: %s did not produce a TCP listener", addr)
	}

	out := make([]net.Listener, 0, n)
	for i := 0; i < n; i++ {
		dup, err := dupListener(tcpLis)
		if err != nil {
			for _, l := range out {
				_ = l.Close()
			}
			_ = tcpLis.Close()
			return nil, err
		}
		out = append(out, dup)
	}
	_ = tcpLis.Close()
	return out, nil
}

func dupListener(tcpLis *net.TCPListener) (net.Listener, error) {
	f, err := tcpLis.File()
	if err != nil {
		return nil, fmt.Errorf("eventloop: duplicating listener fd: %w", err)
	}
	defer f.Close()

	dup, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("eventloop: wrapping duplicated fd: %w", err)
	}
	return dup, nil
}
