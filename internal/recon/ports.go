package recon

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"time"
)

// PortProber reports whether a TCP port accepts connections.
type PortProber interface {
	ProbePort(ctx context.Context, ip netip.Addr, port int) bool
}

// TCPPortProber performs a plain TCP connect and closes the connection
// without exchanging data.
type TCPPortProber struct {
	timeout time.Duration
	dialer  net.Dialer
}

// NewTCPPortProber creates a prober with the given per-port connect timeout.
func NewTCPPortProber(timeout time.Duration) *TCPPortProber {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &TCPPortProber{timeout: timeout, dialer: net.Dialer{Timeout: timeout}}
}

// ProbePort returns true if the connect succeeded. Refusals, timeouts and
// other dial errors all count as closed.
func (p *TCPPortProber) ProbePort(ctx context.Context, ip netip.Addr, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
