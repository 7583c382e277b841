package settings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/internal/settings"
	"github.com/HerbHall/edgescan/internal/testutil"
)

type staticInterfaces struct {
	ifaces []services.NetworkInterface
	err    error
}

func (s staticInterfaces) ListNetworkInterfaces() ([]services.NetworkInterface, error) {
	return s.ifaces, s.err
}

var labInterfaces = staticInterfaces{ifaces: []services.NetworkInterface{
	{Name: "eth0", IPAddress: "192.168.1.50", Subnet: "192.168.1.0/24", Status: "up"},
	{Name: "eth1", IPAddress: "10.20.30.40", Subnet: "10.20.0.0/16", Status: "up"},
	{Name: "wlan0", IPAddress: "172.16.0.9", Subnet: "172.16.0.0/24", Status: "down"},
}}

func newMux(t *testing.T, ifaces settings.InterfaceLister) *http.ServeMux {
	t.Helper()
	repo, err := services.NewSQLiteSettingsRepository(context.Background(), testutil.NewStore(t))
	if err != nil {
		t.Fatalf("NewSQLiteSettingsRepository: %v", err)
	}
	mux := http.NewServeMux()
	settings.NewHandler(repo, ifaces, testutil.Logger(t)).RegisterRoutes(mux)
	return mux
}

// call sends body as JSON, or verbatim when it is a string.
func call(mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHandleListInterfaces(t *testing.T) {
	w := call(newMux(t, labInterfaces), "GET", "/api/v1/interfaces", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decode[[]services.NetworkInterface](t, w); !slices.Equal(got, labInterfaces.ifaces) {
		t.Errorf("interfaces = %+v, want %+v", got, labInterfaces.ifaces)
	}
}

func TestHandleListInterfaces_Error(t *testing.T) {
	w := call(newMux(t, staticInterfaces{err: errors.New("netlink down")}), "GET", "/api/v1/interfaces", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content-type = %q, want problem+json", ct)
	}
}

func TestHandleListSubnets(t *testing.T) {
	w := call(newMux(t, labInterfaces), "GET", "/api/v1/subnets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	// wlan0 is down and excluded.
	want := []string{"10.20.30.0/24", "192.168.1.0/24"}
	if got := decode[settings.SubnetsResponse](t, w).Subnets; !slices.Equal(got, want) {
		t.Errorf("Subnets = %v, want %v", got, want)
	}
}

func TestHandleLocations(t *testing.T) {
	mux := newMux(t, labInterfaces)

	steps := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantList   []string
	}{
		{"empty list", "GET", "/api/v1/locations", nil, http.StatusOK, []string{}},
		{"add lab", "POST", "/api/v1/locations", settings.LocationRequest{Name: "lab"}, http.StatusCreated, []string{"lab"}},
		{"add trimmed", "POST", "/api/v1/locations", settings.LocationRequest{Name: " warehouse "}, http.StatusCreated, []string{"lab", "warehouse"}},
		{"duplicate", "POST", "/api/v1/locations", settings.LocationRequest{Name: "lab"}, http.StatusConflict, nil},
		{"blank", "POST", "/api/v1/locations", settings.LocationRequest{Name: "  "}, http.StatusBadRequest, nil},
		{"not json", "POST", "/api/v1/locations", "not json", http.StatusBadRequest, nil},
		{"remove", "DELETE", "/api/v1/locations/lab", nil, http.StatusOK, []string{"warehouse"}},
		{"remove missing", "DELETE", "/api/v1/locations/lab", nil, http.StatusNotFound, nil},
		{"list after", "GET", "/api/v1/locations", nil, http.StatusOK, []string{"warehouse"}},
	}
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			w := call(mux, st.method, st.path, st.body)
			if w.Code != st.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, st.wantStatus, w.Body.String())
			}
			if st.wantList == nil {
				return
			}
			if got := decode[settings.LocationsResponse](t, w).Locations; !slices.Equal(got, st.wantList) {
				t.Errorf("Locations = %v, want %v", got, st.wantList)
			}
		})
	}
}

func TestHandleScanInterface(t *testing.T) {
	mux := newMux(t, labInterfaces)
	const path = "/api/v1/settings/scan-interface"

	current := func(t *testing.T) string {
		t.Helper()
		w := call(mux, "GET", path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET status = %d, want %d", w.Code, http.StatusOK)
		}
		return decode[settings.ScanInterfaceRequest](t, w).InterfaceName
	}

	if got := current(t); got != "" {
		t.Fatalf("initial interface = %q, want unset", got)
	}

	steps := []struct {
		name       string
		body       any
		wantStatus int
		wantIface  string
	}{
		{"known interface", settings.ScanInterfaceRequest{InterfaceName: "eth0"}, http.StatusOK, "eth0"},
		{"unknown interface rejected", settings.ScanInterfaceRequest{InterfaceName: "nonexistent0"}, http.StatusBadRequest, "eth0"},
		{"not json", "not json", http.StatusBadRequest, "eth0"},
		{"empty resets", settings.ScanInterfaceRequest{}, http.StatusOK, ""},
	}
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			w := call(mux, "POST", path, st.body)
			if w.Code != st.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, st.wantStatus, w.Body.String())
			}
			if st.wantStatus != http.StatusOK && !strings.HasPrefix(w.Header().Get("Content-Type"), "application/problem+json") {
				t.Errorf("content-type = %q, want problem+json", w.Header().Get("Content-Type"))
			}
			if got := current(t); got != st.wantIface {
				t.Errorf("interface = %q, want %q", got, st.wantIface)
			}
		})
	}
}
