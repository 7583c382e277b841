package healthcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/internal/event"
	"github.com/HerbHall/edgescan/internal/fsutil"
	"github.com/HerbHall/edgescan/pkg/models"
)

// PublishResult reports what a Publish call did.
type PublishResult struct {
	Path      string `json:"path"`
	Written   bool   `json:"written"`
	Endpoints int    `json:"endpoints"`
	Monitored int    `json:"monitored"`
}

// Publisher renders and atomically writes the health-check document. The
// engine watches the file, so a write is the reload signal; identical
// content is never rewritten.
type Publisher struct {
	path   string
	opts   Options
	bus    event.Publisher
	logger *zap.Logger

	mu   sync.Mutex
	last []byte
}

// NewPublisher creates a Publisher writing to path. bus may be nil.
func NewPublisher(path string, opts Options, bus event.Publisher, logger *zap.Logger) *Publisher {
	return &Publisher{path: path, opts: opts, bus: bus, logger: logger}
}

// Path returns the output file path.
func (p *Publisher) Path() string { return p.path }

// Publish regenerates the document from devices and replaces the output
// file if its content differs.
func (p *Publisher) Publish(ctx context.Context, devices []models.Device) (PublishResult, error) {
	doc := Generate(devices, p.opts)
	data, err := doc.Marshal()
	if err != nil {
		return PublishResult{}, err
	}

	res := PublishResult{Path: p.path, Endpoints: len(doc.Endpoints)}
	for i := range devices {
		if devices[i].Monitored {
			res.Monitored++
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last == nil {
		existing, err := os.ReadFile(p.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("read existing health-check config", zap.String("path", p.path), zap.Error(err))
		}
		p.last = existing
	}
	if p.last != nil && bytes.Equal(p.last, data) {
		p.logger.Debug("health-check config unchanged", zap.String("path", p.path))
		return res, nil
	}

	if err := fsutil.WriteFileAtomic(p.path, data, 0o644); err != nil {
		p.logger.Error("write health-check config", zap.String("path", p.path), zap.Error(err))
		return res, fmt.Errorf("write health-check config: %w", err)
	}
	p.last = data
	res.Written = true

	p.logger.Info("health-check config published",
		zap.String("path", p.path),
		zap.Int("endpoints", res.Endpoints),
		zap.Int("monitored", res.Monitored),
	)
	if p.bus != nil {
		p.bus.PublishAsync(ctx, event.Event{
			Topic:     event.TopicHealthcheckPublished,
			Source:    "healthcheck",
			Timestamp: time.Now().UTC(),
			Payload:   res,
		})
	}
	return res, nil
}
