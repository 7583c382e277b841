package services_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/internal/testutil"
	"github.com/HerbHall/edgescan/pkg/models"
)

func newScanRepo(t *testing.T) *services.SQLiteScanRepository {
	t.Helper()
	repo, err := services.NewSQLiteScanRepository(context.Background(), testutil.NewStore(t))
	if err != nil {
		t.Fatalf("NewSQLiteScanRepository: %v", err)
	}
	return repo
}

func TestScanHistory_CreateFillsDefaults(t *testing.T) {
	repo := newScanRepo(t)
	ctx := context.Background()

	rec := &models.ScanResult{Subnets: []string{"192.168.1.0/24"}, Trigger: models.TriggerManual}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" || rec.StartedAt == "" {
		t.Errorf("Create left ID=%q StartedAt=%q", rec.ID, rec.StartedAt)
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !slices.Equal(got.Subnets, []string{"192.168.1.0/24"}) {
		t.Errorf("Subnets = %v", got.Subnets)
	}
	if got.Status != models.ScanStatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, models.ScanStatusRunning)
	}
	if got.Trigger != models.TriggerManual {
		t.Errorf("Trigger = %q, want manual", got.Trigger)
	}
	if got.EndedAt != "" {
		t.Errorf("EndedAt = %q, want empty while running", got.EndedAt)
	}
}

func TestScanHistory_Complete(t *testing.T) {
	repo := newScanRepo(t)
	ctx := context.Background()

	rec := &models.ScanResult{Subnets: []string{"10.1.0.0/24", "bogus"}}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec.Status = models.ScanStatusCompleted
	rec.Total, rec.Online = 254, 3
	rec.Warnings = []models.SubnetWarning{{Subnet: "bogus", Message: "invalid CIDR"}}
	if err := repo.Complete(ctx, rec); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.ScanStatusCompleted || got.EndedAt == "" {
		t.Errorf("Status/EndedAt = %q/%q", got.Status, got.EndedAt)
	}
	if got.Total != 254 || got.Online != 3 {
		t.Errorf("Total/Online = %d/%d, want 254/3", got.Total, got.Online)
	}
	if !slices.Equal(got.Warnings, rec.Warnings) {
		t.Errorf("Warnings = %+v, want %+v", got.Warnings, rec.Warnings)
	}
}

func TestScanHistory_UnknownID(t *testing.T) {
	repo := newScanRepo(t)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "no-such-scan"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	err := repo.Complete(ctx, &models.ScanResult{ID: "no-such-scan", Status: models.ScanStatusFailed})
	if !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Complete = %v, want ErrNotFound", err)
	}
}

func TestScanHistory_List(t *testing.T) {
	repo := newScanRepo(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		err := repo.Create(ctx, &models.ScanResult{
			ID:        fmt.Sprintf("scan-%d", i),
			Subnets:   []string{"10.0.0.0/24"},
			StartedAt: fmt.Sprintf("2026-01-15T10:0%d:00Z", i),
		})
		if err != nil {
			t.Fatalf("Create scan-%d: %v", i, err)
		}
	}

	tests := []struct {
		name string
		opts services.ListOptions
		want []string
	}{
		{"newest first by default", services.ListOptions{Limit: 2}, []string{"scan-5", "scan-4"}},
		{"ascending", services.ListOptions{Limit: 2, SortOrder: "asc"}, []string{"scan-1", "scan-2"}},
		{"offset", services.ListOptions{Limit: 2, Offset: 3}, []string{"scan-2", "scan-1"}},
		{"beyond end", services.ListOptions{Limit: 10, Offset: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if res.Total != 5 {
				t.Errorf("Total = %d, want 5", res.Total)
			}
			ids := []string{}
			for _, s := range res.Items {
				ids = append(ids, s.ID)
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestScanHistory_ListEmpty(t *testing.T) {
	res, err := newScanRepo(t).List(context.Background(), services.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 0 {
		t.Errorf("Total = %d, want 0", res.Total)
	}
	if res.Items == nil || len(res.Items) != 0 {
		t.Errorf("Items = %#v, want empty non-nil slice", res.Items)
	}
}
