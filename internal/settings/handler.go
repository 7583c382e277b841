// Package settings provides HTTP handlers for operator settings: site
// locations, the scan interface and the host's networks.
package settings

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/internal/recon"
	"github.com/HerbHall/edgescan/internal/server"
	"github.com/HerbHall/edgescan/internal/services"
)

// ScanInterfaceKey is the settings key holding the preferred scan interface.
const ScanInterfaceKey = "scan_interface"

// LocationRequest is the body of POST /locations.
type LocationRequest struct {
	Name string `json:"name"`
}

// LocationsResponse lists the configured site labels.
type LocationsResponse struct {
	Locations []string `json:"locations"`
}

// ScanInterfaceRequest represents a request to set the scan interface.
type ScanInterfaceRequest struct {
	InterfaceName string `json:"interface_name"`
}

// SubnetsResponse lists the /24 networks of the host's up interfaces.
type SubnetsResponse struct {
	Subnets []string `json:"subnets"`
}

// InterfaceLister enumerates host interfaces.
type InterfaceLister interface {
	ListNetworkInterfaces() ([]services.NetworkInterface, error)
}

// Handler provides HTTP handlers for settings endpoints.
type Handler struct {
	interfaces InterfaceLister
	settings   services.SettingsRepository
	locations  *services.LocationService
	logger     *zap.Logger
}

// NewHandler creates a settings Handler.
func NewHandler(settings services.SettingsRepository, interfaces InterfaceLister, logger *zap.Logger) *Handler {
	return &Handler{
		interfaces: interfaces,
		settings:   settings,
		locations:  services.NewLocationService(settings),
		logger:     logger,
	}
}

// RegisterRoutes registers settings-related routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/interfaces", h.handleListInterfaces)
	mux.HandleFunc("GET /api/v1/subnets", h.handleListSubnets)

	mux.HandleFunc("GET /api/v1/locations", h.handleListLocations)
	mux.HandleFunc("POST /api/v1/locations", h.handleAddLocation)
	mux.HandleFunc("DELETE /api/v1/locations/{name}", h.handleRemoveLocation)

	mux.HandleFunc("GET /api/v1/settings/scan-interface", h.handleGetScanInterface)
	mux.HandleFunc("POST /api/v1/settings/scan-interface", h.handleSetScanInterface)
}

// handleListInterfaces returns all available network interfaces.
func (h *Handler) handleListInterfaces(w http.ResponseWriter, r *http.Request) {
	interfaces, err := h.interfaces.ListNetworkInterfaces()
	if err != nil {
		h.logger.Error("failed to list interfaces", zap.Error(err))
		server.InternalError(w, "failed to list network interfaces", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, interfaces)
}

// handleListSubnets returns the scan targets used when none are configured.
func (h *Handler) handleListSubnets(w http.ResponseWriter, r *http.Request) {
	interfaces, err := h.interfaces.ListNetworkInterfaces()
	if err != nil {
		h.logger.Error("failed to list interfaces", zap.Error(err))
		server.InternalError(w, "failed to detect local subnets", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, SubnetsResponse{Subnets: recon.LocalSubnets(interfaces)})
}

func (h *Handler) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.locations.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list locations", zap.Error(err))
		server.InternalError(w, "failed to list locations", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, LocationsResponse{Locations: locations})
}

func (h *Handler) handleAddLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	locations, err := h.locations.Add(r.Context(), req.Name)
	switch {
	case errors.Is(err, services.ErrInvalidLocation):
		server.BadRequest(w, err.Error(), r.URL.Path)
		return
	case errors.Is(err, services.ErrAlreadyExists):
		server.Conflict(w, "location already exists: "+strings.TrimSpace(req.Name), r.URL.Path)
		return
	case err != nil:
		h.logger.Error("failed to add location", zap.Error(err))
		server.InternalError(w, "failed to add location", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusCreated, LocationsResponse{Locations: locations})
}

func (h *Handler) handleRemoveLocation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	locations, err := h.locations.Remove(r.Context(), name)
	switch {
	case errors.Is(err, services.ErrNotFound):
		server.NotFound(w, "location not found: "+name, r.URL.Path)
		return
	case err != nil:
		h.logger.Error("failed to remove location", zap.Error(err))
		server.InternalError(w, "failed to remove location", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, LocationsResponse{Locations: locations})
}

// handleGetScanInterface returns the currently configured scan interface.
func (h *Handler) handleGetScanInterface(w http.ResponseWriter, r *http.Request) {
	name, err := services.StringSetting(r.Context(), h.settings, ScanInterfaceKey, "")
	if err != nil {
		h.logger.Error("failed to get scan interface setting", zap.Error(err))
		server.InternalError(w, "failed to get scan interface", r.URL.Path)
		return
	}
	// Empty means unset: active ARP uses scan.interface from the config file.
	server.WriteJSON(w, http.StatusOK, ScanInterfaceRequest{InterfaceName: name})
}

// handleSetScanInterface saves the interface used for active ARP.
func (h *Handler) handleSetScanInterface(w http.ResponseWriter, r *http.Request) {
	var req ScanInterfaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body", r.URL.Path)
		return
	}

	if req.InterfaceName != "" {
		interfaces, err := h.interfaces.ListNetworkInterfaces()
		if err != nil {
			h.logger.Error("failed to list interfaces for validation", zap.Error(err))
			server.InternalError(w, "failed to validate interface", r.URL.Path)
			return
		}
		found := false
		for i := range interfaces {
			if interfaces[i].Name == req.InterfaceName {
				found = true
				break
			}
		}
		if !found {
			server.BadRequest(w, "interface not found: "+req.InterfaceName, r.URL.Path)
			return
		}
	}

	if err := h.settings.Set(r.Context(), ScanInterfaceKey, req.InterfaceName); err != nil {
		h.logger.Error("failed to set scan interface", zap.Error(err))
		server.InternalError(w, "failed to save scan interface", r.URL.Path)
		return
	}
	server.WriteJSON(w, http.StatusOK, req)
}
