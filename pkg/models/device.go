package models

import (
	"net/netip"
	"time"
)

// DeviceType categorizes a discovered device.
type DeviceType string

const (
	DeviceTypeCamera         DeviceType = "camera"
	DeviceTypeInfrastructure DeviceType = "infrastructure"
	DeviceTypeUnknown        DeviceType = "unknown"
)

// Valid reports whether t is one of the known device types.
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeCamera, DeviceTypeInfrastructure, DeviceTypeUnknown:
		return true
	}
	return false
}

// Well-known probe ports.
const (
	PortHTTP    = 80
	PortRTSP    = 554
	PortHTTPS   = 443
	PortHTTPAlt = 8080
)

// DefaultPorts is the probe set used when none is configured.
var DefaultPorts = []int{PortRTSP, PortHTTP, PortHTTPS, PortHTTPAlt}

var portNames = map[int]string{
	PortHTTP:    "http",
	PortRTSP:    "rtsp",
	PortHTTPS:   "https",
	PortHTTPAlt: "http_alt",
}

// PortName returns the service label for a well-known port, or "" if unknown.
func PortName(port int) string {
	return portNames[port]
}

// PortStatus records the reachability of a single probed TCP port.
type PortStatus struct {
	Port      int    `json:"port"`
	Name      string `json:"name,omitempty"`
	Reachable bool   `json:"reachable"`
}

// Device represents a host that answered a liveness probe at least once.
//
// Monitored, Name and Location are operator-owned; everything else is
// refreshed by scans.
type Device struct {
	IP           string       `json:"ip"`
	MAC          string       `json:"mac,omitempty"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	Hostname     string       `json:"hostname,omitempty"`
	DeviceType   DeviceType   `json:"device_type"`
	OpenPorts    []PortStatus `json:"open_ports"`
	Monitored    bool         `json:"monitored"`
	Name         string       `json:"name,omitempty"`
	Location     string       `json:"location,omitempty"`
	FirstSeen    time.Time    `json:"first_seen"`
	LastSeen     time.Time    `json:"last_seen"`
}

// Key returns the device's identity key: the MAC address when known,
// otherwise the IP address.
func (d *Device) Key() string {
	if d.MAC != "" {
		return d.MAC
	}
	return d.IP
}

// PortOpen reports whether the given port was reachable on the last probe.
func (d *Device) PortOpen(port int) bool {
	for _, p := range d.OpenPorts {
		if p.Port == port {
			return p.Reachable
		}
	}
	return false
}

// DisplayName returns the operator-assigned name, falling back to the
// manufacturer and finally to a generic label.
func (d *Device) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Manufacturer != "":
		return d.Manufacturer
	default:
		return "Camera"
	}
}

// Clone returns a deep copy of the device.
func (d Device) Clone() Device {
	if d.OpenPorts != nil {
		ports := make([]PortStatus, len(d.OpenPorts))
		copy(ports, d.OpenPorts)
		d.OpenPorts = ports
	}
	return d
}

// IPLess orders dotted-quad strings numerically. Unparsable input sorts by
// plain string comparison.
func IPLess(a, b string) bool {
	ia, errA := netip.ParseAddr(a)
	ib, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return ia.Less(ib)
}
