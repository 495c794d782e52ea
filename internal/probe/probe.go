package probe

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// Outcome is the result of a single timed connection attempt. Elapsed is
// only meaningful when Succeeded is true.
type Outcome struct {
	Succeeded bool
	Elapsed   time.Duration
}

// DialFunc opens a transport connection to the given address within the
// timeout. Tests substitute it to simulate latency and failure.
type DialFunc func(ctx context.Context, addr netip.AddrPort, timeout time.Duration) (net.Conn, error)

func defaultDial(ctx context.Context, addr netip.AddrPort, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "tcp", addr.String())
}

// attempt opens one connection, measures wall-clock time until it is
// established, and closes it immediately. The connection is only a probe,
// never reused for forwarding.
func attempt(ctx context.Context, dial DialFunc, addr netip.AddrPort, timeout time.Duration) Outcome {
	start := time.Now()

	conn, err := dial(ctx, addr, timeout)
	if err != nil {
		return Outcome{}
	}

	elapsed := time.Since(start)
	conn.Close()

	return Outcome{Succeeded: true, Elapsed: elapsed}
}
