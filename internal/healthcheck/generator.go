package healthcheck

import (
	"fmt"
	"sort"
	"time"

	"github.com/HerbHall/edgescan/pkg/models"
)

// ConditionConnected passes when the probe connected.
const ConditionConnected = "[CONNECTED] == true"

// Options controls document rendering.
type Options struct {
	Location            string
	Interval            time.Duration
	PlaceholderInterval time.Duration
	WebPort             int
	Metrics             bool
}

// DefaultOptions returns the standard rendering options for a site label.
func DefaultOptions(location string) Options {
	return Options{
		Location:            location,
		Interval:            30 * time.Second,
		PlaceholderInterval: 60 * time.Second,
		WebPort:             8080,
		Metrics:             true,
	}
}

// Generate renders the monitored devices into a Document. It is a pure
// function: equal inputs always produce equal documents regardless of the
// order of devices. Each monitored device gets an ICMP check, plus a TCP
// check on the RTSP port when that port was last seen open. An empty
// monitored set yields a single placeholder endpoint.
func Generate(devices []models.Device, opts Options) Document {
	monitored := make([]models.Device, 0, len(devices))
	for i := range devices {
		if devices[i].Monitored {
			monitored = append(monitored, devices[i])
		}
	}
	sort.SliceStable(monitored, func(i, j int) bool {
		if monitored[i].IP != monitored[j].IP {
			return models.IPLess(monitored[i].IP, monitored[j].IP)
		}
		return monitored[i].Key() < monitored[j].Key()
	})

	doc := Document{
		Web:       Web{Port: opts.WebPort},
		Metrics:   opts.Metrics,
		Storage:   Storage{Type: "memory"},
		Endpoints: []Endpoint{},
	}

	interval := formatInterval(opts.Interval)
	for i := range monitored {
		d := &monitored[i]
		name := fmt.Sprintf("%s (%s)", d.DisplayName(), d.IP)
		group := groupFor(d.Location, opts.Location) + "/cameras"

		doc.Endpoints = append(doc.Endpoints, Endpoint{
			Name:       name,
			Group:      group,
			URL:        "icmp://" + d.IP,
			Interval:   interval,
			Conditions: []string{ConditionConnected},
		})
		if d.PortOpen(models.PortRTSP) {
			doc.Endpoints = append(doc.Endpoints, Endpoint{
				Name:       name,
				Group:      group,
				URL:        fmt.Sprintf("tcp://%s:%d", d.IP, models.PortRTSP),
				Interval:   interval,
				Conditions: []string{ConditionConnected},
			})
		}
	}

	if len(doc.Endpoints) == 0 {
		doc.Endpoints = append(doc.Endpoints, Placeholder(opts))
	}
	return doc
}

// Placeholder is the endpoint emitted when nothing is monitored, so the
// engine always has at least one valid target.
func Placeholder(opts Options) Endpoint {
	return Endpoint{
		Name:       "No devices monitored",
		Group:      groupFor("", opts.Location) + "/status",
		URL:        "icmp://127.0.0.1",
		Interval:   formatInterval(opts.PlaceholderInterval),
		Conditions: []string{ConditionConnected},
	}
}

func groupFor(deviceLocation, fallback string) string {
	if deviceLocation != "" {
		return deviceLocation
	}
	if fallback != "" {
		return fallback
	}
	return "default"
}

// formatInterval renders whole seconds the way the engine documents them
// ("30s", "60s") rather than time.Duration's "1m0s".
func formatInterval(d time.Duration) string {
	if d <= 0 {
		d = 30 * time.Second
	}
	return fmt.Sprintf("%ds", int64(d/time.Second))
}
