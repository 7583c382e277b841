package recon

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"runtime"
	"strings"
)

// ARPTable maps dotted-quad IPv4 addresses to canonical MAC addresses.
type ARPTable map[string]string

// Lookup returns the MAC recorded for ip.
func (t ARPTable) Lookup(ip netip.Addr) (string, bool) {
	mac, ok := t[ip.String()]
	return mac, ok
}

// ARPSource captures the host's address-resolution table.
type ARPSource interface {
	Table(ctx context.Context) (ARPTable, error)
}

// MACResolver resolves a single address on demand, typically by sending an
// ARP request on the wire.
type MACResolver interface {
	ResolveMAC(ctx context.Context, ip netip.Addr) (string, error)
}

// ErrARPUnsupported is returned when no ARP backend exists for the platform.
var ErrARPUnsupported = errors.New("arp table not available on this platform")

// ProcARPSource reads the kernel neighbour table from /proc/net/arp.
type ProcARPSource struct {
	Path string
}

// NewProcARPSource returns a source reading the default /proc/net/arp path.
func NewProcARPSource() *ProcARPSource {
	return &ProcARPSource{Path: "/proc/net/arp"}
}

// Table reads and parses the neighbour table.
func (s *ProcARPSource) Table(_ context.Context) (ARPTable, error) {
	if runtime.GOOS != "linux" && s.Path == "/proc/net/arp" {
		return ARPTable{}, ErrARPUnsupported
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return ARPTable{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return ParseProcARP(string(data)), nil
}

// ParseProcARP parses the /proc/net/arp format. Incomplete, all-zero and
// broadcast entries are skipped.
func ParseProcARP(output string) ARPTable {
	table := ARPTable{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] == "IP" {
			continue
		}
		// Flags 0x0 marks an incomplete entry.
		if fields[2] == "0x0" {
			continue
		}
		addEntry(table, fields[0], fields[3])
	}
	return table
}

func addEntry(table ARPTable, ipStr, macStr string) {
	ip, err := netip.ParseAddr(ipStr)
	if err != nil || !ip.Is4() {
		return
	}
	mac := CanonicalMAC(macStr)
	if mac == "" || mac == "00:00:00:00:00:00" || mac == "FF:FF:FF:FF:FF:FF" {
		return
	}
	table[ip.String()] = mac
}
