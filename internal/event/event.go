// Package event provides an in-process publish/subscribe bus used to fan out
// scan and registry notifications to the HTTP event stream and metrics.
package event

import (
	"context"
	"time"
)

// Event is a single notification published on the bus.
type Event struct {
	Topic     string    `json:"topic"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Handler processes an event. Handlers must not block for long; slow work
// belongs in PublishAsync subscribers.
type Handler func(ctx context.Context, e Event)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	PublishAsync(ctx context.Context, e Event)
}

// Subscriber is the read side of the bus.
type Subscriber interface {
	Subscribe(topic string, h Handler) (unsubscribe func())
	SubscribeAll(h Handler) (unsubscribe func())
}

// Bus combines both sides.
type Bus interface {
	Publisher
	Subscriber
}

// Topics published by edgescan components.
const (
	TopicScanStarted          = "scan.started"
	TopicScanCompleted        = "scan.completed"
	TopicScanCoalesced        = "scan.coalesced"
	TopicDeviceDiscovered     = "device.discovered"
	TopicDeviceUpdated        = "device.updated"
	TopicSelectionChanged     = "registry.selection_changed"
	TopicHealthcheckPublished = "healthcheck.published"
)
