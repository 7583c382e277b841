package recon

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/pkg/models"
)

// gaugePinger tracks the peak number of concurrent pings.
type gaugePinger struct {
	alive    func(netip.Addr) bool
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (p *gaugePinger) Ping(_ context.Context, ip netip.Addr) (bool, error) {
	p.calls.Add(1)
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(p.delay)
	return p.alive(ip), nil
}

// sequenceARP returns successive tables on each call, repeating the last.
type sequenceARP struct {
	mu     sync.Mutex
	tables []ARPTable
}

func (s *sequenceARP) Table(context.Context) (ARPTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[0]
	if len(s.tables) > 1 {
		s.tables = s.tables[1:]
	}
	return t, nil
}

type staticHostnames map[string]string

func (h staticHostnames) Hostnames(context.Context) map[string]string { return h }

func lastOctetIn(octets ...byte) func(netip.Addr) bool {
	return func(ip netip.Addr) bool {
		b := ip.As4()
		for _, o := range octets {
			if b[3] == o {
				return true
			}
		}
		return false
	}
}

func TestScan_BoundedConcurrency(t *testing.T) {
	pinger := &gaugePinger{alive: lastOctetIn(1, 100, 254), delay: 2 * time.Millisecond}
	prober := NewHostProber(pinger, stubPorts{}, NewClassifier(), zap.NewNop())
	s := NewScanner(prober, zap.NewNop(), WithConcurrency(8))

	out := s.Scan(context.Background(), []string{"10.1.0.0/24", "10.2.0.0/24"})

	assert.Equal(t, 508, out.Probed)
	assert.Equal(t, int32(508), pinger.calls.Load(), "scan waits for every probe")
	assert.LessOrEqual(t, pinger.peak.Load(), int32(8))
	require.Len(t, out.Devices, 6)
	assert.Equal(t, "10.1.0.1", out.Devices[0].IP)
	assert.Equal(t, "10.2.0.254", out.Devices[5].IP)
	assert.Empty(t, out.Warnings)
}

func TestScan_BadSubnetDoesNotAbortOthers(t *testing.T) {
	pinger := &gaugePinger{alive: lastOctetIn(1)}
	s := NewScanner(NewHostProber(pinger, stubPorts{}, NewClassifier(), zap.NewNop()), zap.NewNop())

	out := s.Scan(context.Background(), []string{"garbage", "192.168.1.0/30", "192.168.1.0/30", "10.9.0.0/16"})

	require.Len(t, out.Warnings, 2)
	assert.Equal(t, "garbage", out.Warnings[0].Subnet)
	assert.Equal(t, "10.9.0.0/16", out.Warnings[1].Subnet, "wide prefix is truncated with a warning")
	assert.Equal(t, 2+254, out.Probed, "duplicate subnets are probed once")
	ips := make([]string, len(out.Devices))
	for i, d := range out.Devices {
		ips[i] = d.IP
	}
	assert.Equal(t, []string{"10.9.0.1", "192.168.1.1"}, ips)
}

func TestScan_SecondARPReadFillsMissingMACs(t *testing.T) {
	pinger := &gaugePinger{alive: lastOctetIn(1, 2)}
	arp := &sequenceARP{tables: []ARPTable{
		{"192.168.1.2": "00:00:0C:00:00:02"},
		{"192.168.1.1": "3C:EF:8C:AA:BB:CC", "192.168.1.2": "00:00:0C:00:00:02"},
	}}
	s := NewScanner(NewHostProber(pinger, stubPorts{}, NewClassifier(), zap.NewNop()), zap.NewNop(),
		WithARPSource(arp),
		WithHostnameSource(staticHostnames{"192.168.1.1": "cam-lobby.local"}))

	out := s.Scan(context.Background(), []string{"192.168.1.0/30"})
	require.Len(t, out.Devices, 2)

	cam := out.Devices[0]
	assert.Equal(t, "3C:EF:8C:AA:BB:CC", cam.MAC)
	assert.Equal(t, "Dahua", cam.Manufacturer)
	assert.Equal(t, models.DeviceTypeCamera, cam.DeviceType)
	assert.Equal(t, "cam-lobby.local", cam.Hostname)

	assert.Equal(t, "Cisco", out.Devices[1].Manufacturer)
}

func TestScan_CancelledContextDispatchesNothing(t *testing.T) {
	pinger := &gaugePinger{alive: lastOctetIn(1)}
	s := NewScanner(NewHostProber(pinger, stubPorts{}, NewClassifier(), zap.NewNop()), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := s.Scan(ctx, []string{"192.168.1.0/24"})
	assert.Empty(t, out.Devices)
	assert.Zero(t, pinger.calls.Load())
}
