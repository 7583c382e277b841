//go:build !windows

package recon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// mdnsCameraServices lists mDNS service types commonly announced by IP
// cameras, NVRs and their web consoles.
var mdnsCameraServices = []string{
	"_rtsp._tcp",
	"_onvif._tcp",
	"_http._tcp",
	"_https._tcp",
	"_axis-video._tcp",
	"_hap._tcp",
}

// MDNSResolver collects hostnames from mDNS service announcements. Results
// are cached for ttl so back-to-back scans do not re-query the segment.
type MDNSResolver struct {
	logger       *zap.Logger
	ttl          time.Duration
	queryTimeout time.Duration

	mu        sync.Mutex
	names     map[string]cachedName
	lastQuery time.Time
}

type cachedName struct {
	name string
	seen time.Time
}

// NewMDNSResolver creates a resolver caching answers for ttl.
func NewMDNSResolver(logger *zap.Logger, ttl time.Duration) *MDNSResolver {
	return &MDNSResolver{
		logger:       logger,
		ttl:          ttl,
		queryTimeout: 2 * time.Second,
		names:        make(map[string]cachedName),
	}
}

// Hostnames returns the current IP to hostname map, querying the network
// when the cache is older than ttl.
func (r *MDNSResolver) Hostnames(ctx context.Context) map[string]string {
	if r.stale() {
		r.queryAllServices(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.names))
	for ip, c := range r.names {
		out[ip] = c.name
	}
	return out
}

func (r *MDNSResolver) stale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastQuery) >= r.ttl
}

func (r *MDNSResolver) queryAllServices(ctx context.Context) {
	var found int
	for _, svc := range mdnsCameraServices {
		if ctx.Err() != nil {
			return
		}
		found += r.queryService(svc)
	}

	r.mu.Lock()
	r.lastQuery = time.Now()
	r.mu.Unlock()
	r.cleanNames()

	r.logger.Debug("mDNS query complete", zap.Int("answers", found))
}

func (r *MDNSResolver) queryService(service string) int {
	entries := make(chan *mdns.ServiceEntry, 16)

	var found int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			if r.record(entry) {
				found++
			}
		}
	}()

	params := mdns.DefaultParams(service)
	params.Timeout = r.queryTimeout
	params.Entries = entries
	params.DisableIPv6 = true

	if err := mdns.Query(params); err != nil {
		r.logger.Debug("mDNS query failed", zap.String("service", service), zap.Error(err))
	}
	close(entries)
	wg.Wait()
	return found
}

// record stores the hostname announced by entry. Returns false if the entry
// carries no usable IPv4 address.
func (r *MDNSResolver) record(entry *mdns.ServiceEntry) bool {
	if entry == nil {
		return false
	}
	ip := extractIP(entry)
	if ip == "" {
		return false
	}
	name := strings.TrimSuffix(entry.Host, ".")
	if name == "" {
		name = entry.Name
	}
	if name == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[ip] = cachedName{name: name, seen: time.Now()}
	return true
}

func extractIP(entry *mdns.ServiceEntry) string {
	if entry.AddrV4 != nil && !entry.AddrV4.IsUnspecified() {
		return entry.AddrV4.String()
	}
	if entry.Addr != nil && !entry.Addr.IsUnspecified() && entry.Addr.To4() != nil {
		return entry.Addr.String()
	}
	return ""
}

// cleanNames drops answers not refreshed within 2x ttl.
func (r *MDNSResolver) cleanNames() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-2 * r.ttl)
	for ip, c := range r.names {
		if c.seen.Before(cutoff) {
			delete(r.names, ip)
		}
	}
}
