package testutil

import (
	"time"

	"github.com/HerbHall/edgescan/pkg/models"
)

// FixedTime is the timestamp used by fixtures unless overridden.
var FixedTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// NewDevice returns a reachable camera-like Device suitable for test fixtures.
// Override individual fields with options or after creation as needed.
func NewDevice(opts ...func(*models.Device)) models.Device {
	d := models.Device{
		IP:           "192.168.1.100",
		MAC:          "3C:EF:8C:00:11:22",
		Manufacturer: "Dahua",
		DeviceType:   models.DeviceTypeCamera,
		OpenPorts: []models.PortStatus{
			{Port: models.PortRTSP, Name: "rtsp", Reachable: true},
			{Port: models.PortHTTP, Name: "http", Reachable: true},
		},
		FirstSeen: FixedTime,
		LastSeen:  FixedTime,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithHostname sets the device hostname.
func WithHostname(name string) func(*models.Device) {
	return func(d *models.Device) { d.Hostname = name }
}

// WithIP sets the device's IPv4 address.
func WithIP(ip string) func(*models.Device) {
	return func(d *models.Device) { d.IP = ip }
}

// WithMAC sets the device's MAC address. An empty string yields an
// IP-keyed device.
func WithMAC(mac string) func(*models.Device) {
	return func(d *models.Device) { d.MAC = mac }
}

// WithManufacturer sets the manufacturer label.
func WithManufacturer(m string) func(*models.Device) {
	return func(d *models.Device) { d.Manufacturer = m }
}

// WithLastSeen sets the device's last_seen timestamp.
func WithLastSeen(t time.Time) func(*models.Device) {
	return func(d *models.Device) { d.LastSeen = t }
}

// WithDeviceType sets the device type.
func WithDeviceType(dt models.DeviceType) func(*models.Device) {
	return func(d *models.Device) { d.DeviceType = dt }
}

// WithPorts replaces the open port list with the given reachable ports.
func WithPorts(ports ...int) func(*models.Device) {
	return func(d *models.Device) {
		d.OpenPorts = make([]models.PortStatus, 0, len(ports))
		for _, p := range ports {
			d.OpenPorts = append(d.OpenPorts, models.PortStatus{Port: p, Name: models.PortName(p), Reachable: true})
		}
	}
}

// WithMonitored marks the device as selected for monitoring.
func WithMonitored(m bool) func(*models.Device) {
	return func(d *models.Device) { d.Monitored = m }
}
