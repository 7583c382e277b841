// Package orchestrator schedules subnet sweeps, merges their results into
// the device registry and republishes the health-check config when the
// registry changes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/internal/event"
	"github.com/HerbHall/edgescan/internal/healthcheck"
	"github.com/HerbHall/edgescan/internal/recon"
	"github.com/HerbHall/edgescan/internal/registry"
	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/pkg/models"
)

// State is the orchestrator's scan state.
type State int32

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	if s == StateScanning {
		return "scanning"
	}
	return "idle"
}

// Scanner sweeps subnets.
type Scanner interface {
	Scan(ctx context.Context, subnets []string) recon.ScanOutput
}

// Registry is the subset of the device registry the orchestrator drives.
type Registry interface {
	Merge(ctx context.Context, fresh []models.Device) (registry.MergeSummary, error)
	SetMonitored(ctx context.Context, key string, monitored bool, sel registry.Selection) (models.Device, bool, error)
	Devices() []models.Device
	Flush(ctx context.Context) error
}

// ConfigPublisher renders and writes the health-check config.
type ConfigPublisher interface {
	Publish(ctx context.Context, devices []models.Device) (healthcheck.PublishResult, error)
}

// Config holds orchestrator dependencies. Scanner, Registry and Publisher
// are required.
type Config struct {
	Scanner   Scanner
	Registry  Registry
	Publisher ConfigPublisher
	History   services.ScanRepository
	Bus       event.Publisher
	Metrics   *Metrics
	Logger    *zap.Logger

	// Subnets returns the default sweep targets.
	Subnets func() []string
	// Schedule drives periodic scans. Nil means run once at startup.
	Schedule cron.Schedule
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State      string             `json:"state"`
	InProgress bool               `json:"in_progress"`
	LastScan   *models.ScanResult `json:"last_scan,omitempty"`
	NextRun    *time.Time         `json:"next_run,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
}

// Orchestrator runs at most one sweep at a time. Manual triggers that
// arrive while a sweep is running are dropped, not queued.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger

	state atomic.Int32
	wg    sync.WaitGroup

	// publishMu spans the registry snapshot and the write, so a slower
	// publish can never land an older snapshot over a newer one.
	publishMu sync.Mutex

	mu             sync.Mutex
	baseCtx        context.Context
	lastScan       *models.ScanResult
	nextRun        time.Time
	lastErr        string
	publishPending bool
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Subnets == nil {
		cfg.Subnets = func() []string { return nil }
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  cfg.Logger,
		baseCtx: context.Background(),
	}
}

// ParseSchedule builds a schedule from a cron expression or, when expr is
// empty, a fixed interval. Both empty yields nil (one-shot mode).
func ParseSchedule(expr string, interval time.Duration) (cron.Schedule, error) {
	if expr != "" {
		s, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("parse scan schedule %q: %w", expr, err)
		}
		return s, nil
	}
	if interval > 0 {
		return cron.Every(interval), nil
	}
	return nil, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run performs the startup scan and then, if a schedule is configured,
// scans on every tick until ctx is cancelled. Without a schedule Run returns
// after the first scan. In-flight manual scans finish before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.baseCtx = ctx
	o.mu.Unlock()
	defer o.wg.Wait()

	o.runIfIdle(ctx, models.TriggerStartup, nil)

	if o.cfg.Schedule == nil {
		o.logger.Info("no scan schedule configured, one-shot mode")
		return nil
	}

	for {
		next := o.cfg.Schedule.Next(o.cfg.Now())
		o.mu.Lock()
		o.nextRun = next
		o.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			o.mu.Lock()
			o.nextRun = time.Time{}
			o.mu.Unlock()
			return nil
		case <-timer.C:
			o.runIfIdle(ctx, models.TriggerSchedule, nil)
		}
	}
}

// TriggerScan requests an immediate sweep of subnets (or the defaults when
// empty). It returns false without error if a sweep is already running;
// the running sweep will surface fresh results.
func (o *Orchestrator) TriggerScan(subnets []string) bool {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
		o.coalesced(models.TriggerManual)
		return false
	}

	o.mu.Lock()
	ctx := o.baseCtx
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(ctx, models.TriggerManual, subnets)
	}()
	return true
}

// Wait blocks until manually triggered sweeps have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// runIfIdle runs a sweep synchronously if none is in progress.
func (o *Orchestrator) runIfIdle(ctx context.Context, trigger string, subnets []string) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
		o.coalesced(trigger)
		return
	}
	o.execute(ctx, trigger, subnets)
}

func (o *Orchestrator) coalesced(trigger string) {
	o.logger.Info("scan already in progress, request coalesced", zap.String("trigger", trigger))
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ScansCoalesced.Inc()
	}
	o.publish(context.Background(), event.TopicScanCoalesced, map[string]string{"trigger": trigger})
}

// execute performs one sweep. The caller has already moved state to
// scanning; execute returns it to idle.
func (o *Orchestrator) execute(ctx context.Context, trigger string, subnets []string) {
	defer o.state.Store(int32(StateIdle))

	if len(subnets) == 0 {
		subnets = o.cfg.Subnets()
	}
	started := o.cfg.Now().UTC()
	rec := &models.ScanResult{
		Subnets:   subnets,
		Trigger:   trigger,
		StartedAt: started.Format(time.RFC3339),
		Status:    models.ScanStatusRunning,
	}
	if o.cfg.History != nil {
		if err := o.cfg.History.Create(ctx, rec); err != nil {
			o.logger.Warn("record scan start", zap.Error(err))
		}
	}

	log := o.logger.With(zap.String("scan_id", rec.ID), zap.String("trigger", trigger))
	log.Info("scan started", zap.Strings("subnets", subnets))
	o.publish(ctx, event.TopicScanStarted, *rec)

	// Retry a registry write that failed last cycle.
	if err := o.cfg.Registry.Flush(ctx); err != nil {
		log.Error("flush device registry", zap.Error(err))
	}

	out := o.cfg.Scanner.Scan(ctx, subnets)
	rec.Warnings = out.Warnings
	rec.Total = out.Probed
	rec.Online = len(out.Devices)
	rec.Devices = out.Devices

	var errs []string
	summary, err := o.cfg.Registry.Merge(ctx, out.Devices)
	if err != nil {
		log.Error("merge scan results", zap.Error(err))
		errs = append(errs, err.Error())
		o.persistFailed()
	}
	for i := range summary.Added {
		o.publish(ctx, event.TopicDeviceDiscovered, summary.Added[i])
	}
	for i := range summary.Updated {
		o.publish(ctx, event.TopicDeviceUpdated, summary.Updated[i])
	}

	o.mu.Lock()
	pending := o.publishPending
	o.mu.Unlock()
	if summary.Changed || pending {
		if err := o.publishConfig(ctx); err != nil {
			errs = append(errs, err.Error())
		}
	}

	rec.EndedAt = o.cfg.Now().UTC().Format(time.RFC3339)
	rec.Status = models.ScanStatusCompleted
	if ctx.Err() != nil {
		rec.Status = models.ScanStatusFailed
	}
	if o.cfg.History != nil && rec.ID != "" {
		if err := o.cfg.History.Complete(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn("record scan completion", zap.Error(err))
		}
	}

	o.observe(rec, started, out)

	o.mu.Lock()
	o.lastScan = rec
	o.lastErr = ""
	if len(errs) > 0 {
		o.lastErr = errs[0]
	}
	o.mu.Unlock()

	log.Info("scan completed",
		zap.Int("probed", rec.Total),
		zap.Int("online", rec.Online),
		zap.Int("added", len(summary.Added)),
		zap.Int("updated", len(summary.Updated)),
		zap.Bool("changed", summary.Changed),
		zap.Duration("duration", o.cfg.Now().Sub(started)),
	)
	o.publish(ctx, event.TopicScanCompleted, *rec)
}

func (o *Orchestrator) observe(rec *models.ScanResult, started time.Time, out recon.ScanOutput) {
	m := o.cfg.Metrics
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(rec.Trigger, rec.Status).Inc()
	m.ScanDuration.Observe(o.cfg.Now().Sub(started).Seconds())
	m.SubnetWarnings.Add(float64(len(out.Warnings)))
	m.DevicesAlive.Set(float64(len(out.Devices)))
}

// SetMonitored applies an operator selection and republishes the config
// when it changed. Registry errors are returned to the caller.
func (o *Orchestrator) SetMonitored(ctx context.Context, key string, monitored bool, sel registry.Selection) (models.Device, error) {
	d, changed, err := o.cfg.Registry.SetMonitored(ctx, key, monitored, sel)
	if err != nil {
		if !errors.Is(err, registry.ErrDeviceNotFound) {
			o.persistFailed()
		}
		return d, err
	}
	if !changed {
		return d, nil
	}
	o.publish(ctx, event.TopicSelectionChanged, d)
	if err := o.publishConfig(ctx); err != nil {
		return d, err
	}
	return d, nil
}

// PublishConfig regenerates the health-check config from the current
// registry. Used at startup.
func (o *Orchestrator) PublishConfig(ctx context.Context) error {
	return o.publishConfig(ctx)
}

func (o *Orchestrator) publishConfig(ctx context.Context) error {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()

	devices := o.cfg.Registry.Devices()
	res, err := o.cfg.Publisher.Publish(ctx, devices)

	o.mu.Lock()
	o.publishPending = err != nil
	o.mu.Unlock()

	if m := o.cfg.Metrics; m != nil {
		var monitored int
		for i := range devices {
			if devices[i].Monitored {
				monitored++
			}
		}
		m.DevicesKnown.Set(float64(len(devices)))
		m.DevicesMonitored.Set(float64(monitored))
		if res.Written {
			m.ConfigWrites.Inc()
		}
	}
	if err != nil {
		o.persistFailed()
		return fmt.Errorf("publish health-check config: %w", err)
	}
	return nil
}

func (o *Orchestrator) persistFailed() {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.PersistFailures.Inc()
	}
}

// Status returns the current scheduling state and the last scan record.
func (o *Orchestrator) Status() Status {
	st := o.State()
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{
		State:      st.String(),
		InProgress: st == StateScanning,
		LastError:  o.lastErr,
	}
	if o.lastScan != nil {
		last := *o.lastScan
		s.LastScan = &last
	}
	if !o.nextRun.IsZero() {
		next := o.nextRun
		s.NextRun = &next
	}
	return s
}

func (o *Orchestrator) publish(ctx context.Context, topic string, payload any) {
	if o.cfg.Bus == nil {
		return
	}
	o.cfg.Bus.PublishAsync(ctx, event.Event{
		Topic:     topic,
		Source:    "orchestrator",
		Timestamp: o.cfg.Now().UTC(),
		Payload:   payload,
	})
}
