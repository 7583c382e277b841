package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/edgescan/internal/event"
	"github.com/HerbHall/edgescan/internal/orchestrator"
	"github.com/HerbHall/edgescan/internal/registry"
	"github.com/HerbHall/edgescan/internal/services"
	"github.com/HerbHall/edgescan/internal/testutil"
	"github.com/HerbHall/edgescan/pkg/models"
)

// fakeScans forwards selections to a real registry and lets tests control
// the busy flag.
type fakeScans struct {
	reg      *registry.Registry
	busy     bool
	triggers [][]string
	status   orchestrator.Status
}

func (f *fakeScans) TriggerScan(subnets []string) bool {
	if f.busy {
		return false
	}
	f.triggers = append(f.triggers, subnets)
	return true
}

func (f *fakeScans) Status() orchestrator.Status { return f.status }

func (f *fakeScans) SetMonitored(ctx context.Context, key string, monitored bool, sel registry.Selection) (models.Device, error) {
	d, _, err := f.reg.SetMonitored(ctx, key, monitored, sel)
	return d, err
}

type testEnv struct {
	srv   *Server
	scans *fakeScans
	reg   *registry.Registry
	bus   *event.MemoryBus
}

func setupServer(t *testing.T, opts Options, seed ...models.Device) *testEnv {
	t.Helper()
	ctx := context.Background()
	st := registry.NewJSONFileStore(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, st.Save(ctx, seed))
	logger := testutil.Logger(t)
	reg, err := registry.New(ctx, st, logger)
	require.NoError(t, err)

	db := testutil.NewStore(t)
	history, err := services.NewSQLiteScanRepository(ctx, db)
	require.NoError(t, err)
	require.NoError(t, history.Create(ctx, &models.ScanResult{Subnets: []string{"192.168.1.0/24"}, Trigger: models.TriggerStartup}))

	scans := &fakeScans{reg: reg, status: orchestrator.Status{State: "idle"}}
	bus := event.NewBus(logger)
	promReg := prometheus.NewRegistry()
	orchestrator.NewMetrics(promReg)

	srv := New(opts, Deps{
		Scans:    scans,
		Devices:  reg,
		History:  history,
		Events:   bus,
		Gatherer: promReg,
	}, logger)
	return &testEnv{srv: srv, scans: scans, reg: reg, bus: bus}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func labDevices() []models.Device {
	return []models.Device{
		testutil.NewDevice(testutil.WithIP("192.168.1.10"), testutil.WithMAC("3C:EF:8C:AA:BB:CC")),
		testutil.NewDevice(testutil.WithIP("192.168.1.2"), testutil.WithMAC(""),
			testutil.WithManufacturer(""), testutil.WithDeviceType(models.DeviceTypeUnknown), testutil.WithPorts()),
	}
}

func TestHandleHealth(t *testing.T) {
	env := setupServer(t, Options{})
	w := env.do("GET", "/api/v1/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Edgescan-Version"))
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "edgescan", body["service"])
}

func TestHandleMetrics(t *testing.T) {
	env := setupServer(t, Options{})
	w := env.do("GET", "/api/v1/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "edgescan_scans_coalesced_total")
}

func TestHandleTriggerScan(t *testing.T) {
	tests := []struct {
		name         string
		busy         bool
		body         any
		wantStatus   int
		wantBody     string
		wantTrigger  []string
		wantWarnings []string
	}{
		{"started with defaults", false, nil, http.StatusAccepted, "started", nil, nil},
		{"started with subnets", false, ScanRequest{Subnets: []string{"10.0.0.0/24"}}, http.StatusAccepted, "started", []string{"10.0.0.0/24"}, nil},
		{"coalesced while busy", true, nil, http.StatusOK, "coalesced", nil, nil},
		{
			"invalid entries dropped with warnings", false,
			ScanRequest{Subnets: []string{"192.168.1.0/24", "bogus", "fd00::/64"}},
			http.StatusAccepted, "started", []string{"192.168.1.0/24"}, []string{"bogus", "fd00::/64"},
		},
		{"only invalid subnets", false, ScanRequest{Subnets: []string{"nonsense"}}, http.StatusBadRequest, "", nil, nil},
		{"ipv6 only", false, ScanRequest{Subnets: []string{"fd00::/64"}}, http.StatusBadRequest, "", nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := setupServer(t, Options{})
			env.scans.busy = tc.busy

			w := env.do("POST", "/api/v1/scan", tc.body)
			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			if tc.wantBody == "" {
				assert.Empty(t, env.scans.triggers)
				return
			}
			var resp ScanResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tc.wantBody, resp.Status)

			var warned []string
			for _, sw := range resp.Warnings {
				warned = append(warned, sw.Subnet)
			}
			assert.Equal(t, tc.wantWarnings, warned)
			if !tc.busy {
				require.Len(t, env.scans.triggers, 1)
				assert.Equal(t, tc.wantTrigger, env.scans.triggers[0])
			}
		})
	}
}

func TestHandleScanStatus(t *testing.T) {
	env := setupServer(t, Options{})
	next := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	env.scans.status = orchestrator.Status{
		State:      "scanning",
		InProgress: true,
		NextRun:    &next,
		LastScan:   &models.ScanResult{ID: "abc", Devices: labDevices()},
	}

	w := env.do("GET", "/api/v1/scan/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ScanStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.InProgress)
	assert.Equal(t, "scanning", resp.State)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Results, 2)
	require.NotNil(t, resp.NextRun)
	assert.True(t, next.Equal(*resp.NextRun))
}

func TestHandleScanStatus_NoScanYet(t *testing.T) {
	env := setupServer(t, Options{})
	w := env.do("GET", "/api/v1/scan/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"results":[]`)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestHandleListScans(t *testing.T) {
	env := setupServer(t, Options{})

	w := env.do("GET", "/api/v1/scans?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res services.ListResult[models.ScanResult]
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, models.TriggerStartup, res.Items[0].Trigger)

	w = env.do("GET", "/api/v1/scans?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListDevices(t *testing.T) {
	env := setupServer(t, Options{}, labDevices()...)

	w := env.do("GET", "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var devices []models.Device
	require.NoError(t, json.NewDecoder(w.Body).Decode(&devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "192.168.1.2", devices[0].IP, "sorted numerically")
	assert.Equal(t, "192.168.1.10", devices[1].IP)
}

func TestHandleExportDevices(t *testing.T) {
	env := setupServer(t, Options{}, labDevices()...)

	w := env.do("GET", "/api/v1/devices/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "edgescan-devices-")

	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "key", rows[0][0])
}

func TestHandleSetMonitored(t *testing.T) {
	env := setupServer(t, Options{}, labDevices()...)

	t.Run("select with overrides", func(t *testing.T) {
		w := env.do("PUT", "/api/v1/devices/3C:EF:8C:AA:BB:CC/monitored",
			map[string]any{"monitored": true, "name": " Gate ", "location": "lab"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var d models.Device
		require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
		assert.True(t, d.Monitored)
		assert.Equal(t, "Gate", d.Name)
		assert.Equal(t, "lab", d.Location)
	})

	t.Run("by ip", func(t *testing.T) {
		w := env.do("PUT", "/api/v1/devices/192.168.1.2/monitored", map[string]any{"monitored": true})
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing monitored field", func(t *testing.T) {
		w := env.do("PUT", "/api/v1/devices/192.168.1.2/monitored", map[string]any{"name": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown device", func(t *testing.T) {
		w := env.do("PUT", "/api/v1/devices/10.9.9.9/monitored", map[string]any{"monitored": true})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	})

	w := env.do("GET", "/api/v1/monitored", nil)
	var monitored []models.Device
	require.NoError(t, json.NewDecoder(w.Body).Decode(&monitored))
	assert.Len(t, monitored, 2)
}

func TestHandleAddAndRemoveMonitored(t *testing.T) {
	env := setupServer(t, Options{}, labDevices()...)

	w := env.do("POST", "/api/v1/monitored", AddMonitoredRequest{
		Keys:     []string{"192.168.1.10", "10.0.0.1"},
		Location: "warehouse",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp AddMonitoredResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Monitored, 1)
	assert.Equal(t, "warehouse", resp.Monitored[0].Location)
	assert.Equal(t, []string{"10.0.0.1"}, resp.NotFound)

	w = env.do("POST", "/api/v1/monitored", AddMonitoredRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/api/v1/monitored", AddMonitoredRequest{Keys: []string{"10.0.0.1"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("DELETE", "/api/v1/monitored/192.168.1.10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.reg.Monitored())

	w = env.do("DELETE", "/api/v1/monitored/10.0.0.1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	env := setupServer(t, Options{RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		w := env.do("POST", "/api/v1/scan", nil)
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	w := env.do("POST", "/api/v1/scan", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var p Problem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, ProblemTypeRateLimited, p.Type)

	// Reads are never limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, env.do("GET", "/api/v1/devices", nil).Code)
	}
}

func TestHandleEvents(t *testing.T) {
	env := setupServer(t, Options{})
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// The subscription is registered after the handshake; publish until the
	// client sees an event.
	received := make(chan event.Event, 1)
	go func() {
		var e event.Event
		if err := wsjson.Read(ctx, conn, &e); err == nil {
			received <- e
		}
	}()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case e := <-received:
			assert.Equal(t, event.TopicScanStarted, e.Topic)
			assert.Equal(t, "test", e.Source)
			return
		case <-tick.C:
			_ = env.bus.Publish(ctx, event.Event{Topic: event.TopicScanStarted, Source: "test"})
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
}
