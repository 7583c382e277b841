package recon

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Pinger answers whether a host replies to a liveness probe. A false result
// with a nil error is the normal "host down" outcome.
type Pinger interface {
	Ping(ctx context.Context, ip netip.Addr) (bool, error)
}

// ICMPPinger sends a single ICMP echo per call using pro-bing.
type ICMPPinger struct {
	timeout    time.Duration
	privileged bool
}

// NewICMPPinger creates an ICMPPinger. Privileged mode uses raw sockets and
// requires CAP_NET_RAW; unprivileged mode uses UDP ping sockets on Linux and
// macOS. Windows always runs privileged.
func NewICMPPinger(timeout time.Duration, privileged bool) *ICMPPinger {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ICMPPinger{
		timeout:    timeout,
		privileged: privileged || runtime.GOOS == "windows",
	}
}

// Ping sends one echo request and waits up to the configured timeout.
func (p *ICMPPinger) Ping(ctx context.Context, ip netip.Addr) (bool, error) {
	pinger, err := probing.NewPinger(ip.String())
	if err != nil {
		return false, fmt.Errorf("create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("ping %s: %w", ip, err)
	}
	return pinger.Statistics().PacketsRecv > 0, nil
}
