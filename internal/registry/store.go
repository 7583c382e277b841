package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/HerbHall/edgescan/internal/fsutil"
	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/pkg/models"
)

// Store persists the full device set. Save replaces the stored state
// wholesale.
type Store interface {
	Load(ctx context.Context) ([]models.Device, error)
	Save(ctx context.Context, devices []models.Device) error
}

// SQLStore adapts a services.DeviceRepository to Store.
type SQLStore struct {
	repo services.DeviceRepository
}

// NewSQLStore wraps repo.
func NewSQLStore(repo services.DeviceRepository) *SQLStore {
	return &SQLStore{repo: repo}
}

func (s *SQLStore) Load(ctx context.Context) ([]models.Device, error) {
	return s.repo.All(ctx)
}

func (s *SQLStore) Save(ctx context.Context, devices []models.Device) error {
	return s.repo.ReplaceAll(ctx, devices)
}

// JSONFileStore keeps the registry as a single JSON document on disk.
type JSONFileStore struct {
	path string
}

// NewJSONFileStore returns a store backed by path. The file is created on
// first Save.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

type registryDocument struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Devices   []models.Device `json:"devices"`
}

func (s *JSONFileStore) Load(_ context.Context) ([]models.Device, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Device{}, nil
		}
		return nil, fmt.Errorf("read registry %s: %w", s.path, err)
	}
	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", s.path, err)
	}
	if doc.Devices == nil {
		doc.Devices = []models.Device{}
	}
	return doc.Devices, nil
}

func (s *JSONFileStore) Save(_ context.Context, devices []models.Device) error {
	doc := registryDocument{UpdatedAt: time.Now().UTC(), Devices: devices}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	return fsutil.WriteFileAtomic(s.path, data, 0o644)
}
