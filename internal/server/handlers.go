package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/internal/recon"
	"github.com/HerbHall/edgescan/internal/registry"
	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/pkg/models"
)

// ScanRequest is the body of POST /scan. Empty Subnets scans the defaults.
type ScanRequest struct {
	Subnets []string `json:"subnets"`
}

// ScanResponse acknowledges POST /scan. Warnings lists requested subnets
// that were dropped as invalid.
type ScanResponse struct {
	Status   string                 `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Warnings []models.SubnetWarning `json:"warnings,omitempty"`
}

// ScanStatusResponse reports the orchestrator state and the last results.
type ScanStatusResponse struct {
	State      string             `json:"state"`
	InProgress bool               `json:"in_progress"`
	LastScan   *models.ScanResult `json:"last_scan,omitempty"`
	NextRun    *time.Time         `json:"next_run,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	Results    []models.Device    `json:"results"`
	Count      int                `json:"count"`
}

// MonitoredRequest is the body of PUT /devices/{key}/monitored. Absent
// name or location leave the current override untouched.
type MonitoredRequest struct {
	Monitored *bool   `json:"monitored"`
	Name      *string `json:"name,omitempty"`
	Location  *string `json:"location,omitempty"`
}

// AddMonitoredRequest is the body of POST /monitored.
type AddMonitoredRequest struct {
	Keys     []string `json:"keys"`
	Location string   `json:"location,omitempty"`
}

// AddMonitoredResponse lists the devices selected and the keys that
// matched nothing.
type AddMonitoredResponse struct {
	Monitored []models.Device `json:"monitored"`
	NotFound  []string        `json:"not_found,omitempty"`
}

func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body", r.URL.Path)
			return
		}
	}
	var (
		valid    []string
		warnings []models.SubnetWarning
	)
	for _, subnet := range req.Subnets {
		if _, _, err := recon.ExpandSubnet(subnet, recon.DefaultMinPrefix); err != nil {
			warnings = append(warnings, models.SubnetWarning{Subnet: subnet, Message: err.Error()})
			continue
		}
		valid = append(valid, subnet)
	}
	if len(req.Subnets) > 0 && len(valid) == 0 {
		BadRequest(w, "no valid subnets: "+warnings[0].Message, r.URL.Path)
		return
	}

	if !s.deps.Scans.TriggerScan(valid) {
		WriteJSON(w, http.StatusOK, ScanResponse{
			Status:   "coalesced",
			Message:  "scan already in progress",
			Warnings: warnings,
		})
		return
	}
	WriteJSON(w, http.StatusAccepted, ScanResponse{Status: "started", Warnings: warnings})
}

func (s *Server) handleScanStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Scans.Status()
	resp := ScanStatusResponse{
		State:      st.State,
		InProgress: st.InProgress,
		LastScan:   st.LastScan,
		NextRun:    st.NextRun,
		LastError:  st.LastError,
		Results:    []models.Device{},
	}
	if st.LastScan != nil && st.LastScan.Devices != nil {
		resp.Results = st.LastScan.Devices
	}
	resp.Count = len(resp.Results)
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		WriteJSON(w, http.StatusOK, services.ListResult[models.ScanResult]{Items: []models.ScanResult{}})
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	res, err := s.deps.History.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("list scans", zap.Error(err))
		InternalError(w, "failed to list scans", r.URL.Path)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func parseListOptions(r *http.Request) (services.ListOptions, error) {
	var opts services.ListOptions
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid limit %q", v)
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid offset %q", v)
		}
		opts.Offset = n
	}
	switch v := q.Get("order"); v {
	case "", "asc", "desc":
		opts.SortOrder = v
	default:
		return opts, fmt.Errorf("invalid order %q", v)
	}
	return opts, nil
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.deps.Devices.Devices())
}

func (s *Server) handleListMonitored(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.deps.Devices.Monitored())
}

func (s *Server) handleExportDevices(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("edgescan-devices-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := registry.WriteCSV(w, s.deps.Devices.Devices()); err != nil {
		s.logger.Error("export devices", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func (s *Server) handleSetMonitored(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req MonitoredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	if req.Monitored == nil {
		BadRequest(w, "monitored is required", r.URL.Path)
		return
	}

	sel := registry.Selection{Name: trimmed(req.Name), Location: trimmed(req.Location)}
	d, err := s.deps.Scans.SetMonitored(r.Context(), key, *req.Monitored, sel)
	if err != nil {
		s.selectionError(w, r, key, err)
		return
	}
	WriteJSON(w, http.StatusOK, d)
}

func (s *Server) handleAddMonitored(w http.ResponseWriter, r *http.Request) {
	var req AddMonitoredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	if len(req.Keys) == 0 {
		BadRequest(w, "keys must not be empty", r.URL.Path)
		return
	}

	var sel registry.Selection
	if loc := strings.TrimSpace(req.Location); loc != "" {
		sel.Location = &loc
	}

	resp := AddMonitoredResponse{Monitored: []models.Device{}}
	for _, key := range req.Keys {
		d, err := s.deps.Scans.SetMonitored(r.Context(), key, true, sel)
		switch {
		case errors.Is(err, registry.ErrDeviceNotFound):
			resp.NotFound = append(resp.NotFound, key)
		case err != nil:
			s.selectionError(w, r, key, err)
			return
		default:
			resp.Monitored = append(resp.Monitored, d)
		}
	}
	if len(resp.Monitored) == 0 {
		NotFound(w, "no matching devices", r.URL.Path)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveMonitored(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	d, err := s.deps.Scans.SetMonitored(r.Context(), key, false, registry.Selection{})
	if err != nil {
		s.selectionError(w, r, key, err)
		return
	}
	WriteJSON(w, http.StatusOK, d)
}

func (s *Server) selectionError(w http.ResponseWriter, r *http.Request, key string, err error) {
	if errors.Is(err, registry.ErrDeviceNotFound) {
		NotFound(w, fmt.Sprintf("device %s not found", key), r.URL.Path)
		return
	}
	s.logger.Error("apply monitoring selection", zap.String("key", key), zap.Error(err))
	InternalError(w, "failed to apply selection", r.URL.Path)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
