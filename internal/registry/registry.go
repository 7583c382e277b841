// Package registry owns the durable set of known devices and the operator's
// monitoring selection.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/pkg/models"
)

// ErrDeviceNotFound is returned when a key matches no known device.
var ErrDeviceNotFound = errors.New("device not found")

// MergeSummary describes what a Merge did.
type MergeSummary struct {
	Added   []models.Device
	Updated []models.Device
	Seen    int
	// Changed is true when the device list or any field other than
	// LastSeen differs from before the merge.
	Changed bool
}

// Selection carries optional operator overrides applied with SetMonitored.
// Nil fields are left untouched.
type Selection struct {
	Name     *string
	Location *string
}

// Registry holds devices keyed by MAC, or by IP when the MAC is unknown.
//
// mu guards the in-memory map only; persistence runs under saveMu so a slow
// disk never blocks readers or a concurrent selection change.
type Registry struct {
	store  Store
	logger *zap.Logger

	mu      sync.RWMutex
	devices map[string]*models.Device
	dirty   bool

	saveMu sync.Mutex
}

// New loads the persisted device set from store.
func New(ctx context.Context, store Store, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		store:   store,
		logger:  logger,
		devices: make(map[string]*models.Device),
	}
	devices, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	for i := range devices {
		d := devices[i].Clone()
		r.devices[d.Key()] = &d
	}
	logger.Info("device registry loaded", zap.Int("devices", len(r.devices)))
	return r, nil
}

// Merge reconciles fresh scan results into the registry. Matching devices
// get their scan-derived fields refreshed; operator fields (Monitored, Name,
// Location) are never touched. Devices absent from fresh are kept as-is.
//
// A persistence failure is returned but the in-memory merge stands; the
// registry is marked dirty and the next Flush or Merge retries the write.
func (r *Registry) Merge(ctx context.Context, fresh []models.Device) (MergeSummary, error) {
	ordered := orderFresh(fresh)

	r.mu.Lock()
	summary := MergeSummary{Seen: len(ordered)}
	for i := range ordered {
		f := ordered[i].Clone()
		existing, rekey := r.match(&f)
		if existing == nil {
			f.Monitored = false
			f.Name = ""
			f.Location = ""
			if f.FirstSeen.IsZero() {
				f.FirstSeen = f.LastSeen
			}
			r.devices[f.Key()] = &f
			summary.Added = append(summary.Added, f.Clone())
			summary.Changed = true
			continue
		}
		if rekey != "" {
			delete(r.devices, rekey)
		}
		if refresh(existing, &f) || rekey != "" {
			summary.Updated = append(summary.Updated, existing.Clone())
			summary.Changed = true
		}
		r.devices[existing.Key()] = existing
	}
	if len(fresh) > 0 {
		r.dirty = true
	}
	r.mu.Unlock()

	if len(fresh) == 0 {
		return summary, r.Flush(ctx)
	}
	return summary, r.persist(ctx)
}

// orderFresh puts results with a MAC ahead of those without and keeps only
// the last result per MAC. MAC-less results may match a MAC-keyed device by
// its current IP, which must already reflect this batch.
func orderFresh(fresh []models.Device) []models.Device {
	lastByMAC := make(map[string]int)
	for i := range fresh {
		if fresh[i].MAC != "" {
			lastByMAC[fresh[i].MAC] = i
		}
	}
	out := make([]models.Device, 0, len(fresh))
	for i := range fresh {
		if fresh[i].MAC != "" && lastByMAC[fresh[i].MAC] == i {
			out = append(out, fresh[i])
		}
	}
	for i := range fresh {
		if fresh[i].MAC == "" {
			out = append(out, fresh[i])
		}
	}
	return out
}

// match finds the existing entry for f. rekey is the old map key when the
// entry must move to a new key (an IP-keyed device whose MAC is now known).
func (r *Registry) match(f *models.Device) (existing *models.Device, rekey string) {
	if f.MAC != "" {
		if e, ok := r.devices[f.MAC]; ok {
			return e, ""
		}
		if e, ok := r.devices[f.IP]; ok && e.MAC == "" {
			return e, f.IP
		}
		return nil, ""
	}
	if e, ok := r.devices[f.IP]; ok {
		return e, ""
	}
	// No MAC this time; fall back to the most recently seen MAC-keyed
	// device last known at this address.
	var best *models.Device
	for _, e := range r.devices {
		if e.MAC != "" && e.IP == f.IP && (best == nil || e.LastSeen.After(best.LastSeen)) {
			best = e
		}
	}
	return best, ""
}

// refresh copies scan-derived fields from f into e and reports whether any
// of them other than LastSeen changed.
func refresh(e, f *models.Device) bool {
	if f.MAC == "" && e.MAC != "" {
		// ARP missed this round; keep the vendor derived from the known MAC.
		f.MAC = e.MAC
		if e.Manufacturer != "" {
			f.Manufacturer = e.Manufacturer
			f.DeviceType = e.DeviceType
		}
	}
	if f.Hostname == "" {
		f.Hostname = e.Hostname
	}

	changed := e.IP != f.IP ||
		e.MAC != f.MAC ||
		e.Manufacturer != f.Manufacturer ||
		e.Hostname != f.Hostname ||
		e.DeviceType != f.DeviceType ||
		!slices.Equal(e.OpenPorts, f.OpenPorts)

	e.IP = f.IP
	e.MAC = f.MAC
	e.Manufacturer = f.Manufacturer
	e.Hostname = f.Hostname
	e.DeviceType = f.DeviceType
	e.OpenPorts = f.OpenPorts
	if f.LastSeen.After(e.LastSeen) {
		e.LastSeen = f.LastSeen
	}
	if e.FirstSeen.IsZero() {
		e.FirstSeen = f.FirstSeen
	}
	return changed
}

// SetMonitored sets the monitored flag and optional overrides for the
// device identified by key (its MAC or IP). It is idempotent. If the change
// cannot be persisted it is rolled back and the error returned.
func (r *Registry) SetMonitored(ctx context.Context, key string, monitored bool, sel Selection) (models.Device, bool, error) {
	r.mu.Lock()
	d := r.lookup(key)
	if d == nil {
		r.mu.Unlock()
		return models.Device{}, false, ErrDeviceNotFound
	}
	before := d.Clone()
	d.Monitored = monitored
	if sel.Name != nil {
		d.Name = *sel.Name
	}
	if sel.Location != nil {
		d.Location = *sel.Location
	}
	changed := before.Monitored != d.Monitored || before.Name != d.Name || before.Location != d.Location
	after := d.Clone()
	if changed {
		r.dirty = true
	}
	r.mu.Unlock()

	if !changed {
		return after, false, nil
	}

	if err := r.persist(ctx); err != nil {
		r.mu.Lock()
		if cur := r.devices[after.Key()]; cur != nil &&
			cur.Monitored == after.Monitored && cur.Name == after.Name && cur.Location == after.Location {
			cur.Monitored = before.Monitored
			cur.Name = before.Name
			cur.Location = before.Location
		}
		r.mu.Unlock()
		return before, false, err
	}

	r.logger.Info("monitoring selection changed",
		zap.String("key", after.Key()),
		zap.String("ip", after.IP),
		zap.Bool("monitored", after.Monitored),
	)
	return after, true, nil
}

// lookup resolves key as a map key first and then as an IP. Caller holds mu.
func (r *Registry) lookup(key string) *models.Device {
	if d, ok := r.devices[key]; ok {
		return d
	}
	var best *models.Device
	for _, d := range r.devices {
		if d.IP == key && (best == nil || d.LastSeen.After(best.LastSeen)) {
			best = d
		}
	}
	return best
}

// Get returns a copy of the device identified by key (MAC or IP).
func (r *Registry) Get(key string) (models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d := r.lookup(key)
	if d == nil {
		return models.Device{}, ErrDeviceNotFound
	}
	return d.Clone(), nil
}

// Devices returns copies of all devices ordered by IP.
func (r *Registry) Devices() []models.Device {
	return r.filter(func(*models.Device) bool { return true })
}

// Monitored returns copies of the monitored devices ordered by IP.
func (r *Registry) Monitored() []models.Device {
	return r.filter(func(d *models.Device) bool { return d.Monitored })
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Dirty reports whether in-memory state has not yet been persisted.
func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirty
}

// Flush persists the registry if a previous write failed.
func (r *Registry) Flush(ctx context.Context) error {
	if !r.Dirty() {
		return nil
	}
	return r.persist(ctx)
}

func (r *Registry) filter(keep func(*models.Device) bool) []models.Device {
	r.mu.RLock()
	out := make([]models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	r.mu.RUnlock()
	sortDevices(out)
	return out
}

// persist writes a snapshot of the current state. Saves are serialized and
// each takes its snapshot after acquiring saveMu, so a later save never
// writes older state than an earlier one.
func (r *Registry) persist(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	snapshot := make([]models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		snapshot = append(snapshot, d.Clone())
	}
	r.dirty = false
	r.mu.Unlock()
	sortDevices(snapshot)

	if err := r.store.Save(ctx, snapshot); err != nil {
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
		r.logger.Error("persist device registry", zap.Error(err))
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}

func sortDevices(devices []models.Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].IP != devices[j].IP {
			return models.IPLess(devices[i].IP, devices[j].IP)
		}
		return devices[i].Key() < devices[j].Key()
	})
}
