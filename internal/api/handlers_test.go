package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/equipment-monitor/internal/config"
	"github.com/miradorstack/equipment-monitor/internal/models"
	"github.com/miradorstack/equipment-monitor/internal/monitor"
)

type fakeController struct {
	mu         sync.Mutex
	snap       models.Snapshot
	state      monitor.State
	selected   string
	window     models.QueryWindow
	windowErr  error
	refreshErr error

	refreshCtxErr error
}

func (f *fakeController) Snapshot() (models.Snapshot, monitor.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.state
}

func (f *fakeController) Select(deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = deviceID
}

func (f *fakeController) SetWindow(w models.QueryWindow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.windowErr != nil {
		return f.windowErr
	}
	f.window = w
	return nil
}

func (f *fakeController) Refresh(ctx context.Context) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCtxErr = ctx.Err()
	return f.snap, f.refreshErr
}

type fakeRoster struct {
	roster models.Roster
	err    error
}

func (f *fakeRoster) FetchDevices(context.Context) (models.Roster, error) {
	return f.roster, f.err
}

func sampleSnapshot() models.Snapshot {
	snap := models.EmptySnapshot()
	snap.Generation = 4
	snap.DeviceID = "2"
	snap.Parameters = []string{"電流"}
	snap.Analysis.HealthScore = 72
	snap.Analysis.Anomalies = []models.Anomaly{
		{Time: "08:01:00", Type: "電流_critical_high", Severity: models.SeverityHigh, Value: 45, Param: "電流"},
		{Time: "08:02:00", Type: "電流_spike", Severity: models.SeverityMedium, Value: 25, Param: "電流"},
		{Time: "08:03:00", Type: "電流_trend", Severity: models.SeverityLow, Value: 3, Param: "電流"},
	}
	return snap
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterSnapshotAndAnomalies(t *testing.T) {
	ctrl := &fakeController{snap: sampleSnapshot(), state: monitor.StateIdle}
	router := NewRouter(ctrl, nil, nil, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var resp SnapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "idle", resp.State)
	assert.Equal(t, uint64(4), resp.Snapshot.Generation)
	assert.Equal(t, 72, resp.Snapshot.Analysis.HealthScore)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/anomalies?severity=high,medium", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var anomalies struct {
		Anomalies []models.Anomaly `json:"anomalies"`
		Count     int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &anomalies))
	assert.Equal(t, 2, anomalies.Count)
	assert.Equal(t, "電流_critical_high", anomalies.Anomalies[0].Type)
}

func TestRouterKeepsIncomingRequestID(t *testing.T) {
	router := NewRouter(&fakeController{snap: models.EmptySnapshot()}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestRouterSelection(t *testing.T) {
	ctrl := &fakeController{snap: models.EmptySnapshot()}
	router := NewRouter(ctrl, nil, nil, nil)

	rec := doRequest(t, router, http.MethodPut, "/api/v1/selection", SelectionRequest{DeviceID: "7"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "7", ctrl.selected)

	rec = doRequest(t, router, http.MethodPut, "/api/v1/selection", SelectionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterWindow(t *testing.T) {
	ctrl := &fakeController{snap: models.EmptySnapshot()}
	router := NewRouter(ctrl, nil, nil, nil)

	window := models.QueryWindow{StartDate: "2025-06-13", StartTime: "08:00", EndDate: "2025-06-13", EndTime: "09:00"}
	rec := doRequest(t, router, http.MethodPut, "/api/v1/window", window)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, window, ctrl.window)

	ctrl.windowErr = errors.New("invalid window start")
	rec = doRequest(t, router, http.MethodPut, "/api/v1/window", window)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid window start")
}

func TestRouterRefreshOutcomes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "committed", code: http.StatusOK},
		{name: "no device", err: monitor.ErrNoDevice, code: http.StatusConflict},
		{name: "superseded", err: monitor.ErrStale, code: http.StatusAccepted},
		{name: "abandoned", err: monitor.ErrAbandoned, code: http.StatusServiceUnavailable},
		{name: "backend failure", err: errors.New("boom"), code: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := &fakeController{snap: sampleSnapshot(), refreshErr: tc.err}
			router := NewRouter(ctrl, nil, nil, nil)
			rec := doRequest(t, router, http.MethodPost, "/api/v1/refresh", nil)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestRouterRefreshSurvivesClientDisconnect(t *testing.T) {
	ctrl := &fakeController{snap: sampleSnapshot()}
	router := NewRouter(ctrl, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, ctrl.refreshCtxErr)
}

func TestRouterDevices(t *testing.T) {
	ctrl := &fakeController{snap: models.EmptySnapshot()}
	roster := models.Roster{
		Devices: []models.Device{{ID: "1", Name: "CNC-1", Status: models.StatusRunning}},
		Summary: models.RosterSummary{Running: 1, AverageEfficiency: "0.5000"},
	}

	rec := doRequest(t, NewRouter(ctrl, &fakeRoster{roster: roster}, nil, nil), http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Roster
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, roster, got)

	rec = doRequest(t, NewRouter(ctrl, &fakeRoster{err: errors.New("down")}, nil, nil), http.MethodGet, "/api/v1/devices", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = doRequest(t, NewRouter(ctrl, nil, nil, nil), http.MethodGet, "/api/v1/devices", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFilterAnomalies(t *testing.T) {
	anomalies := sampleSnapshot().Analysis.Anomalies

	assert.Len(t, FilterAnomalies(anomalies, ""), 3)
	assert.Len(t, FilterAnomalies(anomalies, " HIGH "), 1)
	assert.Empty(t, FilterAnomalies(anomalies, "unknown"))
}

func TestStructHelpers(t *testing.T) {
	s, err := ToStruct(models.QueryWindow{StartDate: "2025-06-13", StartTime: "08:00"})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-13", s.GetFields()["startDate"].GetStringValue())

	w, err := WindowFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, "08:00", w.StartTime)

	_, err = ToStruct([]int{1, 2})
	assert.Error(t, err)

	_, err = DeviceIDFromStruct(mustNewStruct(t, map[string]any{"deviceId": "  "}))
	assert.Error(t, err)

	id, err := DeviceIDFromStruct(mustNewStruct(t, map[string]any{"deviceId": " 5 "}))
	require.NoError(t, err)
	assert.Equal(t, "5", id)

	assert.Error(t, FromStruct(nil, &w))
}

func mustNewStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

type echoMonitor struct {
	selected string
}

func (e *echoMonitor) GetSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return ToStruct(SnapshotResponse{State: "idle", Snapshot: sampleSnapshot()})
}

func (e *echoMonitor) SelectDevice(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := DeviceIDFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	e.selected = id
	return structpb.NewStruct(map[string]any{"deviceId": id})
}

func (e *echoMonitor) SetWindow(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"accepted": true})
}

func (e *echoMonitor) ListDevices(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unavailable, "failed to list devices")
}

func TestGRPCRoundTrip(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	service := &echoMonitor{}
	srv := NewServerWithListener(lis, config.ServerConfig{GracefulTimeout: time.Second}, service)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewMonitorClient(conn)
	snap, err := client.GetSnapshot(ctx, &structpb.Struct{})
	require.NoError(t, err)
	inner := snap.GetFields()["snapshot"].GetStructValue()
	assert.Equal(t, float64(4), inner.GetFields()["generation"].GetNumberValue())

	resp, err := client.SelectDevice(ctx, mustNewStruct(t, map[string]any{"deviceId": "9"}))
	require.NoError(t, err)
	assert.Equal(t, "9", resp.GetFields()["deviceId"].GetStringValue())
	assert.Equal(t, "9", service.selected)

	_, err = client.SelectDevice(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.ListDevices(ctx, &structpb.Struct{})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: MonitorServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, health.GetStatus())
}

func TestHubPushesSnapshots(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	router := NewRouter(&fakeController{snap: models.EmptySnapshot()}, nil, hub, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.OnSnapshot(context.Background(), sampleSnapshot())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame struct {
		Type string          `json:"type"`
		Data models.Snapshot `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "snapshot", frame.Type)
	assert.Equal(t, uint64(4), frame.Data.Generation)

	cancel()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
