package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the orchestrator's Prometheus instruments.
type Metrics struct {
	ScansTotal       *prometheus.CounterVec
	ScanDuration     prometheus.Histogram
	ScansCoalesced   prometheus.Counter
	SubnetWarnings   prometheus.Counter
	DevicesAlive     prometheus.Gauge
	DevicesKnown     prometheus.Gauge
	DevicesMonitored prometheus.Gauge
	ConfigWrites     prometheus.Counter
	PersistFailures  prometheus.Counter
}

// NewMetrics registers the instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgescan",
			Name:      "scans_total",
			Help:      "Completed scans by trigger and status.",
		}, []string{"trigger", "status"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edgescan",
			Name:      "scan_duration_seconds",
			Help:      "Wall-clock duration of a subnet sweep.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ScansCoalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescan",
			Name:      "scans_coalesced_total",
			Help:      "Scan requests dropped because a scan was already running.",
		}),
		SubnetWarnings: f.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescan",
			Name:      "subnet_warnings_total",
			Help:      "Subnets skipped or truncated during expansion.",
		}),
		DevicesAlive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgescan",
			Name:      "devices_alive",
			Help:      "Hosts that answered the liveness probe in the last scan.",
		}),
		DevicesKnown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgescan",
			Name:      "devices_known",
			Help:      "Devices in the registry.",
		}),
		DevicesMonitored: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgescan",
			Name:      "devices_monitored",
			Help:      "Devices selected for monitoring.",
		}),
		ConfigWrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescan",
			Name:      "healthcheck_config_writes_total",
			Help:      "Times the health-check config file was replaced.",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "edgescan",
			Name:      "persist_failures_total",
			Help:      "Failed registry or config writes.",
		}),
	}
}
