package recon

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/HerbHall/edgescan/pkg/models"
)

// DefaultMinPrefix is the widest prefix a single subnet may expand to.
const DefaultMinPrefix = 24

// Expansion errors. Both cause the subnet to be skipped.
var (
	ErrInvalidSubnet = errors.New("invalid subnet")
	ErrIPv6Subnet    = errors.New("ipv6 subnets are not scanned")
)

// ExpandSubnet enumerates the host addresses of subnet. Prefixes wider than
// minPrefix are truncated to the minPrefix network containing the given
// address and the returned note says so. Network and broadcast addresses are
// excluded except for /31 (both addresses) and /32 or a bare address (the
// address itself).
func ExpandSubnet(subnet string, minPrefix int) (hosts []netip.Addr, note string, err error) {
	if minPrefix <= 0 || minPrefix > 32 {
		minPrefix = DefaultMinPrefix
	}
	subnet = strings.TrimSpace(subnet)

	var prefix netip.Prefix
	if strings.Contains(subnet, "/") {
		prefix, err = netip.ParsePrefix(subnet)
	} else {
		var addr netip.Addr
		addr, err = netip.ParseAddr(subnet)
		if err == nil {
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w %q: %v", ErrInvalidSubnet, subnet, err)
	}
	if !prefix.Addr().Is4() {
		return nil, "", fmt.Errorf("%w: %q", ErrIPv6Subnet, subnet)
	}

	if prefix.Bits() < minPrefix {
		note = fmt.Sprintf("prefix /%d wider than /%d, scanning %s only",
			prefix.Bits(), minPrefix, netip.PrefixFrom(prefix.Addr(), minPrefix).Masked())
		prefix = netip.PrefixFrom(prefix.Addr(), minPrefix)
	}
	prefix = prefix.Masked()

	switch prefix.Bits() {
	case 32:
		return []netip.Addr{prefix.Addr()}, note, nil
	case 31:
		return []netip.Addr{prefix.Addr(), prefix.Addr().Next()}, note, nil
	}

	size := 1 << (32 - prefix.Bits())
	hosts = make([]netip.Addr, 0, size-2)
	addr := prefix.Addr().Next()
	for i := 1; i < size-1; i++ {
		hosts = append(hosts, addr)
		addr = addr.Next()
	}
	return hosts, note, nil
}

// LocalSubnets returns the /24 network of every up IPv4 interface, sorted
// and deduplicated.
func LocalSubnets(ifaces []models.NetworkInterface) []string {
	seen := make(map[string]struct{})
	for _, iface := range ifaces {
		if iface.Status != "up" {
			continue
		}
		addr, err := netip.ParseAddr(iface.IPAddress)
		if err != nil || !addr.Is4() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
			continue
		}
		seen[netip.PrefixFrom(addr, DefaultMinPrefix).Masked().String()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
