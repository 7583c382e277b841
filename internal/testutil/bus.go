package testutil

import (
	"context"
	"sync"

	"github.com/HerbHall/edgescan/internal/event"
)

var _ event.Bus = (*RecordingBus)(nil)

// RecordingBus keeps every published event and delivers it synchronously
// to subscribers, so tests see handler side effects before Publish returns.
type RecordingBus struct {
	mu       sync.Mutex
	events   []event.Event
	handlers map[string][]event.Handler
	all      []event.Handler
}

// NewRecordingBus returns an empty RecordingBus.
func NewRecordingBus() *RecordingBus {
	return &RecordingBus{handlers: make(map[string][]event.Handler)}
}

func (b *RecordingBus) Publish(ctx context.Context, e event.Event) error {
	b.mu.Lock()
	b.events = append(b.events, e)
	targets := append(append([]event.Handler(nil), b.handlers[e.Topic]...), b.all...)
	b.mu.Unlock()

	for _, h := range targets {
		h(ctx, e)
	}
	return nil
}

// PublishAsync behaves like Publish.
func (b *RecordingBus) PublishAsync(ctx context.Context, e event.Event) {
	_ = b.Publish(ctx, e)
}

// Subscribe registers h for topic. The returned func is a no-op: tests
// build a fresh bus instead of unsubscribing.
func (b *RecordingBus) Subscribe(topic string, h event.Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
	return func() {}
}

func (b *RecordingBus) SubscribeAll(h event.Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
	return func() {}
}

// Events returns a copy of everything published so far.
func (b *RecordingBus) Events() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.Event(nil), b.events...)
}

// Topics lists the published topics in order.
func (b *RecordingBus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.Topic
	}
	return out
}

// Payloads returns the payloads published on topic, in order.
func (b *RecordingBus) Payloads(topic string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, e := range b.events {
		if e.Topic == topic {
			out = append(out, e.Payload)
		}
	}
	return out
}
