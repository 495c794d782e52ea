package target

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// Spec describes one candidate upstream as configured: a display name and an
// unresolved host:port address. Specs are immutable after load.
type Spec struct {
	Name string
	Addr string
}

// Best is the winner of a probing round: a resolved address and the score
// that earned it. It is a plain value and is copied on every read.
type Best struct {
	Name  string
	Addr  netip.AddrPort
	Score time.Duration
}

// Resolve turns a host:port string into a concrete address, deterministically
// picking the first result returned by the resolver. It is called fresh every
// probing round, never cached, so DNS changes take effect on the next round.
func Resolve(ctx context.Context, addr string) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid target address %q: %w", addr, err)
	}

	port, err := net.DefaultResolver.LookupPort(ctx, "tcp", portStr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid port in %q: %w", addr, err)
	}

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolving %q: %w", host, err)
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("resolving %q: no addresses", host)
	}

	return netip.AddrPortFrom(ips[0].Unmap(), uint16(port)), nil
}
