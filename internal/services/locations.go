package services

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// locationsKey is the settings key holding the JSON-encoded location list.
const locationsKey = "locations"

// ErrInvalidLocation is returned when a location name is empty.
var ErrInvalidLocation = errors.New("location name is required")

// LocationService manages the operator-defined list of site labels.
// Locations are stored as a JSON array under a single settings key.
type LocationService struct {
	settings SettingsRepository
	mu       sync.Mutex
}

// NewLocationService creates a LocationService backed by settings.
func NewLocationService(settings SettingsRepository) *LocationService {
	return &LocationService{settings: settings}
}

// List returns all locations in insertion order.
func (s *LocationService) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Add appends a location. Returns ErrInvalidLocation for blank names and
// ErrAlreadyExists for duplicates.
func (s *LocationService) Add(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidLocation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locations, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range locations {
		if l == name {
			return nil, ErrAlreadyExists
		}
	}
	locations = append(locations, name)
	if err := s.save(ctx, locations); err != nil {
		return nil, err
	}
	return locations, nil
}

// Remove deletes a location. Returns ErrNotFound if it does not exist.
func (s *LocationService) Remove(ctx context.Context, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locations, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, l := range locations {
		if l == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound
	}
	locations = append(locations[:idx], locations[idx+1:]...)
	if err := s.save(ctx, locations); err != nil {
		return nil, err
	}
	return locations, nil
}

func (s *LocationService) load(ctx context.Context) ([]string, error) {
	locations := []string{}
	if err := loadJSON(ctx, s.settings, locationsKey, &locations); err != nil {
		return nil, err
	}
	if locations == nil {
		locations = []string{}
	}
	return locations, nil
}

func (s *LocationService) save(ctx context.Context, locations []string) error {
	return saveJSON(ctx, s.settings, locationsKey, locations)
}
