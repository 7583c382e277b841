// Package healthcheck renders the monitored subset of the device registry
// into the endpoint configuration consumed by the external health-check
// engine (Gatus).
package healthcheck

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the full engine configuration. Field order is the emitted
// key order.
type Document struct {
	Web       Web        `yaml:"web"`
	Metrics   bool       `yaml:"metrics"`
	Storage   Storage    `yaml:"storage"`
	Endpoints []Endpoint `yaml:"endpoints"`
}

// Web configures the engine's own HTTP listener.
type Web struct {
	Port int `yaml:"port"`
}

// Storage selects the engine's result store.
type Storage struct {
	Type string `yaml:"type"`
}

// Endpoint is a single health check.
type Endpoint struct {
	Name       string   `yaml:"name"`
	Group      string   `yaml:"group"`
	URL        string   `yaml:"url"`
	Interval   string   `yaml:"interval"`
	Conditions []string `yaml:"conditions"`
}

// Marshal encodes d as YAML with two-space indentation.
func (d Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode health-check config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode health-check config: %w", err)
	}
	return buf.Bytes(), nil
}
