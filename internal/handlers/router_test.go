package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/iotfleet/internal/auth"
	"github.com/ukydev/iotfleet/internal/models"
	"github.com/ukydev/iotfleet/internal/simulation"
)

type routerFixture struct {
	auth     *auth.Service
	ctrl     *MockController
	readings *MockReadingService
	vehicles *MockVehicleLookup
	ws       *MockWSServer
	handler  http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	authService, err := auth.NewService("router-test-secret", time.Hour)
	require.NoError(t, err)

	f := &routerFixture{
		auth:     authService,
		ctrl:     new(MockController),
		readings: new(MockReadingService),
		vehicles: new(MockVehicleLookup),
		ws:       new(MockWSServer),
	}
	f.handler = NewRouter(Deps{
		Auth:             authService,
		Simulation:       f.ctrl,
		Readings:         f.readings,
		Vehicles:         f.vehicles,
		WS:               f.ws,
		IngestRateLimit:  2,
		IngestRateWindow: time.Minute,
	})
	return f
}

func (f *routerFixture) do(t *testing.T, method, url string, role models.Role) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	if role != "" {
		token, err := f.auth.GenerateToken("tester", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)
	f.ctrl.On("IsRunning").Return(true)
	f.ws.On("ClientCount").Return(4)
	f.ws.On("Dropped").Return(int64(7))

	w := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.SimulationRunning)
	assert.Equal(t, 4, resp.WebsocketClients)
	assert.Equal(t, int64(7), resp.DroppedMessages)
}

func TestRouter_Permissions(t *testing.T) {
	f := newRouterFixture(t)
	f.ctrl.On("Start", mock.Anything).Return(nil)
	f.ctrl.On("Status").Return(simulation.Status{})

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/simulation/start", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/simulation/start", models.RoleViewer).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/simulation/start", models.RoleDevice).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/simulation/start", models.RoleOperator).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/simulation/status", models.RoleViewer).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/simulation/diagnostics", models.RoleOperator).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/sensor-data", models.RoleViewer).Code)
}

func TestRouter_ReadingHistory(t *testing.T) {
	f := newRouterFixture(t)
	f.readings.On("ReadingsByVehicle", mock.Anything, "v1", mock.Anything).
		Return(models.ReadingPage{Items: []models.SensorReading{}, Page: 1, PageSize: 50}, nil)
	f.readings.On("ReadingsByFleet", mock.Anything, "f1", mock.Anything).
		Return(models.ReadingPage{Items: []models.SensorReading{}, Page: 1, PageSize: 100}, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/sensor-data/vehicle/v1", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/sensor-data/vehicle/v1", models.RoleDevice).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sensor-data/vehicle/v1", models.RoleViewer).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sensor-data/fleet/f1?page=1", models.RoleViewer).Code)
	f.readings.AssertExpectations(t)
}

func TestRouter_IngestRateLimited(t *testing.T) {
	f := newRouterFixture(t)

	// Empty bodies fail JSON decoding, which still counts against the limit.
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/sensor-data", models.RoleDevice).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/sensor-data", models.RoleDevice).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/api/sensor-data", models.RoleDevice).Code)
}

func TestRouter_WebsocketAuth(t *testing.T) {
	f := newRouterFixture(t)
	f.ws.On("ServeWS", mock.Anything, mock.Anything, mock.MatchedBy(func(c *models.Claims) bool {
		return c.Role == models.RoleViewer
	})).Return()

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/ws", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/ws", models.RoleDevice).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/ws?access_token=garbage", "").Code)

	token, err := f.auth.GenerateToken("browser", models.RoleViewer)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil))
	assert.Equal(t, http.StatusSwitchingProtocols, w.Code)
	f.ws.AssertNumberOfCalls(t, "ServeWS", 1)
}

func TestRoutes_AllRegistered(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Routes {
		assert.False(t, seen[r.Pattern], "duplicate route %s", r.Pattern)
		seen[r.Pattern] = true
	}
	assert.True(t, seen["/api/sensor-data/fuel-alerts"])
	assert.True(t, seen["/health"])
	assert.True(t, seen["/api/sensor-data/vehicle/{vehicleID}"])
	assert.True(t, seen["/api/sensor-data/fleet/{fleetID}"])
}
