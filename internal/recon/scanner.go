package recon

import (
	"context"
	"net/netip"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/edgescan/pkg/models"
)

// DefaultConcurrency bounds in-flight host probes across one scan.
const DefaultConcurrency = 50

// HostnameSource discovers hostnames for addresses on the local segment.
type HostnameSource interface {
	Hostnames(ctx context.Context) map[string]string
}

// ScanOutput is the result of one sweep. Devices holds only hosts that
// answered the liveness probe, ordered by address.
type ScanOutput struct {
	Devices  []models.Device
	Warnings []models.SubnetWarning
	Probed   int
}

// Scanner expands subnets and fans host probes out over a bounded pool.
type Scanner struct {
	prober      *HostProber
	arp         ARPSource
	hostnames   HostnameSource
	concurrency int
	minPrefix   int
	logger      *zap.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithARPSource sets the table captured before and after each sweep.
func WithARPSource(src ARPSource) ScannerOption {
	return func(s *Scanner) { s.arp = src }
}

// WithHostnameSource enables hostname enrichment of discovered devices.
func WithHostnameSource(src HostnameSource) ScannerOption {
	return func(s *Scanner) { s.hostnames = src }
}

// WithConcurrency sets the worker pool ceiling.
func WithConcurrency(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMinPrefix sets the widest prefix a subnet may expand to.
func WithMinPrefix(bits int) ScannerOption {
	return func(s *Scanner) {
		if bits > 0 && bits <= 32 {
			s.minPrefix = bits
		}
	}
}

// NewScanner creates a Scanner driving prober.
func NewScanner(prober *HostProber, logger *zap.Logger, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		prober:      prober,
		concurrency: DefaultConcurrency,
		minPrefix:   DefaultMinPrefix,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan sweeps every subnet and returns once all dispatched probes have
// finished. Malformed subnets are skipped and reported in Warnings; a
// cancelled ctx stops dispatching further probes.
func (s *Scanner) Scan(ctx context.Context, subnets []string) ScanOutput {
	var out ScanOutput

	seen := make(map[netip.Addr]struct{})
	var targets []netip.Addr
	for _, subnet := range subnets {
		hosts, note, err := ExpandSubnet(subnet, s.minPrefix)
		if err != nil {
			s.logger.Warn("skipping subnet", zap.String("subnet", subnet), zap.Error(err))
			out.Warnings = append(out.Warnings, models.SubnetWarning{Subnet: subnet, Message: err.Error()})
			continue
		}
		if note != "" {
			s.logger.Warn("subnet truncated", zap.String("subnet", subnet), zap.String("note", note))
			out.Warnings = append(out.Warnings, models.SubnetWarning{Subnet: subnet, Message: note})
		}
		for _, h := range hosts {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			targets = append(targets, h)
		}
	}
	out.Probed = len(targets)

	table := s.captureARP(ctx)

	var (
		mu      sync.Mutex
		devices []models.Device
	)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, ip := range targets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d, ok := s.prober.Probe(ctx, ip, table)
			if !ok {
				return nil
			}
			mu.Lock()
			devices = append(devices, *d)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.fillMissingMACs(ctx, devices)
	s.enrichHostnames(ctx, devices)

	sort.Slice(devices, func(i, j int) bool {
		return models.IPLess(devices[i].IP, devices[j].IP)
	})
	out.Devices = devices

	s.logger.Info("scan sweep complete",
		zap.Int("subnets", len(subnets)),
		zap.Int("probed", out.Probed),
		zap.Int("alive", len(devices)),
		zap.Int("warnings", len(out.Warnings)),
	)
	return out
}

func (s *Scanner) captureARP(ctx context.Context) ARPTable {
	if s.arp == nil {
		return nil
	}
	table, err := s.arp.Table(ctx)
	if err != nil {
		s.logger.Debug("arp table unavailable", zap.Error(err))
		return nil
	}
	return table
}

// fillMissingMACs re-reads the neighbour table after the sweep, since the
// pings themselves populate it, and reclassifies devices that gained a MAC.
func (s *Scanner) fillMissingMACs(ctx context.Context, devices []models.Device) {
	var missing bool
	for i := range devices {
		if devices[i].MAC == "" {
			missing = true
			break
		}
	}
	if !missing {
		return
	}
	table := s.captureARP(ctx)
	if len(table) == 0 {
		return
	}
	for i := range devices {
		d := &devices[i]
		if d.MAC != "" {
			continue
		}
		if mac, ok := table[d.IP]; ok {
			d.MAC = mac
			s.prober.Classify(d)
		}
	}
}

func (s *Scanner) enrichHostnames(ctx context.Context, devices []models.Device) {
	if s.hostnames == nil || len(devices) == 0 {
		return
	}
	names := s.hostnames.Hostnames(ctx)
	for i := range devices {
		if name, ok := names[devices[i].IP]; ok && devices[i].Hostname == "" {
			devices[i].Hostname = name
		}
	}
}
