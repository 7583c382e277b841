//go:build linux

package recon

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/mdlayher/arp"
)

// ActiveResolver sends ARP requests on a single interface. Calls are
// serialized because the underlying socket delivers replies in order.
type ActiveResolver struct {
	mu      sync.Mutex
	client  *arp.Client
	timeout time.Duration
}

// NewActiveResolver opens an ARP client on the named interface. Requires
// CAP_NET_RAW.
func NewActiveResolver(ifaceName string, timeout time.Duration) (*ActiveResolver, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %q: %w", ifaceName, err)
	}
	client, err := arp.Dial(iface)
	if err != nil {
		return nil, fmt.Errorf("open arp socket on %s: %w", ifaceName, err)
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ActiveResolver{client: client, timeout: timeout}, nil
}

// ResolveMAC sends a request for ip and waits for the matching reply.
func (r *ActiveResolver) ResolveMAC(ctx context.Context, ip netip.Addr) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := time.Now().Add(r.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := r.client.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("set arp deadline: %w", err)
	}
	hw, err := r.client.Resolve(ip)
	if err != nil {
		return "", fmt.Errorf("arp resolve %s: %w", ip, err)
	}
	return CanonicalMAC(hw.String()), nil
}

// Close releases the raw socket.
func (r *ActiveResolver) Close() error {
	return r.client.Close()
}
