package registry

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/edgescan/pkg/models"
)

// csvHeaders returns the CSV column headers.
func csvHeaders() []string {
	return []string{
		"key", "ip", "mac", "manufacturer", "hostname", "device_type",
		"open_ports", "monitored", "name", "location", "first_seen", "last_seen",
	}
}

// deviceToCSVRow converts a device to a CSV row (matching csvHeaders order).
func deviceToCSVRow(d models.Device) []string {
	var open []string
	for _, p := range d.OpenPorts {
		if p.Reachable {
			open = append(open, strconv.Itoa(p.Port))
		}
	}
	return []string{
		d.Key(),
		d.IP,
		d.MAC,
		d.Manufacturer,
		d.Hostname,
		string(d.DeviceType),
		strings.Join(open, ";"),
		strconv.FormatBool(d.Monitored),
		d.Name,
		d.Location,
		formatTime(d.FirstSeen),
		formatTime(d.LastSeen),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteCSV writes devices as CSV with a header row.
func WriteCSV(w io.Writer, devices []models.Device) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders()); err != nil {
		return err
	}
	for i := range devices {
		if err := cw.Write(deviceToCSVRow(devices[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
