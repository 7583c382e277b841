package recon

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/pkg/models"
)

// HostProber inspects a single address: liveness, MAC, open ports and
// classification. Every failure inside a probe counts as negative evidence.
type HostProber struct {
	pinger     Pinger
	ports      PortProber
	classifier *Classifier
	resolver   MACResolver
	portList   []int
	logger     *zap.Logger
	now        func() time.Time
}

// ProberOption configures a HostProber.
type ProberOption func(*HostProber)

// WithMACResolver sets a resolver consulted when the ARP snapshot has no
// entry for a live host.
func WithMACResolver(r MACResolver) ProberOption {
	return func(p *HostProber) { p.resolver = r }
}

// WithPorts overrides the probed port list.
func WithPorts(ports []int) ProberOption {
	return func(p *HostProber) {
		if len(ports) > 0 {
			p.portList = append([]int(nil), ports...)
		}
	}
}

// WithClock overrides the time source used for LastSeen.
func WithClock(now func() time.Time) ProberOption {
	return func(p *HostProber) { p.now = now }
}

// NewHostProber creates a prober over the given liveness and port checkers.
func NewHostProber(pinger Pinger, ports PortProber, classifier *Classifier, logger *zap.Logger, opts ...ProberOption) *HostProber {
	p := &HostProber{
		pinger:     pinger,
		ports:      ports,
		classifier: classifier,
		portList:   models.DefaultPorts,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns a Device for ip if it answers the liveness probe, or
// (nil, false) otherwise. arp may be nil.
func (p *HostProber) Probe(ctx context.Context, ip netip.Addr, arp ARPTable) (*models.Device, bool) {
	alive, err := p.pinger.Ping(ctx, ip)
	if err != nil {
		p.logger.Debug("ping failed", zap.String("ip", ip.String()), zap.Error(err))
		return nil, false
	}
	if !alive {
		return nil, false
	}

	now := p.now().UTC()
	d := &models.Device{
		IP:        ip.String(),
		FirstSeen: now,
		LastSeen:  now,
	}

	d.MAC, _ = arp.Lookup(ip)
	if d.MAC == "" && p.resolver != nil {
		mac, err := p.resolver.ResolveMAC(ctx, ip)
		if err != nil {
			p.logger.Debug("mac resolution failed", zap.String("ip", ip.String()), zap.Error(err))
		} else {
			d.MAC = mac
		}
	}

	d.OpenPorts = p.probePorts(ctx, ip)
	p.Classify(d)
	return d, true
}

// Classify fills Manufacturer and DeviceType from the MAC, falling back to
// the RTSP heuristic when the vendor is unknown.
func (p *HostProber) Classify(d *models.Device) {
	d.Manufacturer = ""
	if v, ok := p.classifier.Classify(d.MAC); ok {
		d.Manufacturer = v.Manufacturer
		d.DeviceType = v.Category
		return
	}
	if d.PortOpen(models.PortRTSP) {
		d.DeviceType = models.DeviceTypeCamera
	} else {
		d.DeviceType = models.DeviceTypeUnknown
	}
}

func (p *HostProber) probePorts(ctx context.Context, ip netip.Addr) []models.PortStatus {
	results := make([]models.PortStatus, len(p.portList))
	var wg sync.WaitGroup
	for i, port := range p.portList {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = models.PortStatus{
				Port:      port,
				Name:      models.PortName(port),
				Reachable: p.ports.ProbePort(ctx, ip, port),
			}
		}()
	}
	wg.Wait()
	return results
}
