package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/iotfleet/internal/db"
	"github.com/ukydev/iotfleet/internal/fuel"
	"github.com/ukydev/iotfleet/internal/ingest"
	"github.com/ukydev/iotfleet/internal/models"
)

func sensorMux(h *SensorHandler) *http.ServeMux {
	m := http.NewServeMux()
	m.HandleFunc("/api/sensor-data", h.Ingest)
	m.HandleFunc("/api/sensor-data/latest/{vehicleID}", h.Latest)
	m.HandleFunc("/api/sensor-data/fuel-alerts", h.FuelAlerts)
	m.HandleFunc("/api/sensor-data/fuel-stats/{vehicleID}", h.FuelStats)
	m.HandleFunc("/api/sensor-data/vehicle/{vehicleID}", h.ByVehicle)
	m.HandleFunc("/api/sensor-data/fleet/{fleetID}", h.ByFleet)
	return m
}

func TestSensorHandler_Ingest(t *testing.T) {
	body := `{"vehicle_id":"v1","latitude":4.6,"longitude":-74.1,"fuel_level":20}`

	tests := []struct {
		name string
		body string
		res  ingest.Result
		err  error
		want int
	}{
		{"accepted", body, ingest.Result{ReadingID: "r1"}, nil, http.StatusCreated},
		{"invalid reading", body, ingest.Result{}, fmt.Errorf("%w: fuel", ingest.ErrInvalidReading), http.StatusBadRequest},
		{"unknown vehicle", body, ingest.Result{}, db.ErrVehicleNotFound, http.StatusNotFound},
		{"store failure", body, ingest.Result{}, errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings := new(MockReadingService)
			readings.On("Ingest", mock.Anything, mock.MatchedBy(func(r models.SensorReading) bool {
				return r.VehicleID == "v1" && r.FuelLevel == 20
			})).Return(tt.res, tt.err)

			w := httptest.NewRecorder()
			sensorMux(NewSensorHandler(readings)).ServeHTTP(w,
				httptest.NewRequest(http.MethodPost, "/api/sensor-data", bytes.NewBufferString(tt.body)))
			assert.Equal(t, tt.want, w.Code)
			readings.AssertExpectations(t)
		})
	}

	t.Run("invalid JSON", func(t *testing.T) {
		readings := new(MockReadingService)
		w := httptest.NewRecorder()
		sensorMux(NewSensorHandler(readings)).ServeHTTP(w,
			httptest.NewRequest(http.MethodPost, "/api/sensor-data", bytes.NewBufferString("{")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		readings.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
	})

	t.Run("alert is returned", func(t *testing.T) {
		readings := new(MockReadingService)
		readings.On("Ingest", mock.Anything, mock.Anything).Return(ingest.Result{
			ReadingID: "r1",
			Alert:     &models.FuelAlert{VehicleID: "v1", Severity: models.SeverityHigh},
		}, nil)

		w := httptest.NewRecorder()
		sensorMux(NewSensorHandler(readings)).ServeHTTP(w,
			httptest.NewRequest(http.MethodPost, "/api/sensor-data", bytes.NewBufferString(body)))
		require.Equal(t, http.StatusCreated, w.Code)

		var res ingest.Result
		require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
		require.NotNil(t, res.Alert)
		assert.Equal(t, models.SeverityHigh, res.Alert.Severity)
	})
}

func TestSensorHandler_Latest(t *testing.T) {
	readings := new(MockReadingService)
	readings.On("LatestReading", mock.Anything, "v1").Return(&models.SensorReading{ID: "r9", VehicleID: "v1"}, nil)
	readings.On("LatestReading", mock.Anything, "v2").Return(nil, db.ErrNoReadings)
	m := sensorMux(NewSensorHandler(readings))

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sensor-data/latest/v1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var r models.SensorReading
	require.NoError(t, json.NewDecoder(w.Body).Decode(&r))
	assert.Equal(t, "r9", r.ID)

	w = httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sensor-data/latest/v2", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSensorHandler_FuelAlerts(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	readings := new(MockReadingService)
	readings.On("FuelAlerts", mock.Anything, mock.MatchedBy(func(f ingest.AlertFilter) bool {
		return f.FleetID == "f1" && f.Severity == models.SeverityCritical &&
			f.From != nil && f.From.Equal(from) && f.To == nil
	})).Return([]models.FuelAlert{{VehicleID: "v1", Severity: models.SeverityCritical}}, nil)
	m := sensorMux(NewSensorHandler(readings))

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/sensor-data/fuel-alerts?fleet_id=f1&severity=critical&from=2025-03-01T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var alerts []models.FuelAlert
	require.NoError(t, json.NewDecoder(w.Body).Decode(&alerts))
	require.Len(t, alerts, 1)
	readings.AssertExpectations(t)

	for _, q := range []string{"severity=urgent", "from=yesterday", "to=2025-13-01"} {
		w = httptest.NewRecorder()
		m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sensor-data/fuel-alerts?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSensorHandler_FuelStats(t *testing.T) {
	now := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)

	t.Run("default window", func(t *testing.T) {
		readings := new(MockReadingService)
		readings.On("FuelStatistics", mock.Anything, "v1", now.Add(-DefaultStatsWindow), now).
			Return(models.FuelStatistics{VehicleID: "v1", DataPointsCount: 5}, nil)
		h := NewSensorHandler(readings)
		h.now = func() time.Time { return now }

		w := httptest.NewRecorder()
		sensorMux(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sensor-data/fuel-stats/v1", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var stats models.FuelStatistics
		require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
		assert.Equal(t, 5, stats.DataPointsCount)
	})

	t.Run("errors", func(t *testing.T) {
		readings := new(MockReadingService)
		readings.On("FuelStatistics", mock.Anything, "ghost", mock.Anything, mock.Anything).
			Return(models.FuelStatistics{}, db.ErrVehicleNotFound)
		readings.On("FuelStatistics", mock.Anything, "empty", mock.Anything, mock.Anything).
			Return(models.FuelStatistics{}, fuel.ErrNoData)
		m := sensorMux(NewSensorHandler(readings))

		cases := []struct {
			url  string
			want int
		}{
			{"/api/sensor-data/fuel-stats/ghost", http.StatusNotFound},
			{"/api/sensor-data/fuel-stats/empty", http.StatusNotFound},
			{"/api/sensor-data/fuel-stats/v1?from=2025-03-02T00:00:00Z&to=2025-03-01T00:00:00Z", http.StatusBadRequest},
			{"/api/sensor-data/fuel-stats/v1?from=bad", http.StatusBadRequest},
		}
		for _, c := range cases {
			w := httptest.NewRecorder()
			m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, c.url, nil))
			assert.Equal(t, c.want, w.Code, c.url)
		}
	})
}

func TestSensorHandler_ByVehicle(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	t.Run("paging and window", func(t *testing.T) {
		readings := new(MockReadingService)
		readings.On("ReadingsByVehicle", mock.Anything, "v1", mock.MatchedBy(func(q ingest.HistoryQuery) bool {
			return q.Page == 2 && q.PageSize == 10 &&
				q.From != nil && q.From.Equal(from) &&
				q.To != nil && q.To.Equal(to)
		})).Return(models.ReadingPage{
			Items:      []models.SensorReading{{ID: "r11", VehicleID: "v1"}},
			Page:       2,
			PageSize:   10,
			TotalCount: 11,
			TotalPages: 2,
		}, nil)

		w := httptest.NewRecorder()
		sensorMux(NewSensorHandler(readings)).ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/api/sensor-data/vehicle/v1?from=2025-03-01T00:00:00Z&to=2025-03-02T00:00:00Z&page=2&page_size=10", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var page models.ReadingPage
		require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
		assert.Equal(t, 11, page.TotalCount)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "r11", page.Items[0].ID)
		readings.AssertExpectations(t)
	})

	t.Run("defaults left to the service", func(t *testing.T) {
		readings := new(MockReadingService)
		readings.On("ReadingsByVehicle", mock.Anything, "v1", ingest.HistoryQuery{}).
			Return(models.ReadingPage{Items: []models.SensorReading{}, Page: 1, PageSize: 50}, nil)

		w := httptest.NewRecorder()
		sensorMux(NewSensorHandler(readings)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sensor-data/vehicle/v1", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		readings.AssertExpectations(t)
	})

	t.Run("errors", func(t *testing.T) {
		readings := new(MockReadingService)
		readings.On("ReadingsByVehicle", mock.Anything, "ghost", mock.Anything).
			Return(models.ReadingPage{}, db.ErrVehicleNotFound)
		readings.On("ReadingsByVehicle", mock.Anything, "v1", mock.Anything).
			Return(models.ReadingPage{}, fmt.Errorf("%w: page_size must be between 1 and 1000", ingest.ErrInvalidQuery))
		readings.On("ReadingsByVehicle", mock.Anything, "broken", mock.Anything).
			Return(models.ReadingPage{}, errors.New("db down"))
		m := sensorMux(NewSensorHandler(readings))

		cases := []struct {
			url  string
			want int
		}{
			{"/api/sensor-data/vehicle/ghost", http.StatusNotFound},
			{"/api/sensor-data/vehicle/v1?page_size=5000", http.StatusBadRequest},
			{"/api/sensor-data/vehicle/broken", http.StatusInternalServerError},
			{"/api/sensor-data/vehicle/v1?page=two", http.StatusBadRequest},
			{"/api/sensor-data/vehicle/v1?to=yesterday", http.StatusBadRequest},
		}
		for _, c := range cases {
			w := httptest.NewRecorder()
			m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, c.url, nil))
			assert.Equal(t, c.want, w.Code, c.url)
		}
	})
}

func TestSensorHandler_ByFleet(t *testing.T) {
	readings := new(MockReadingService)
	readings.On("ReadingsByFleet", mock.Anything, "fleet-1", ingest.HistoryQuery{Page: 1, PageSize: 3}).
		Return(models.ReadingPage{
			Items:       []models.SensorReading{{ID: "a"}, {ID: "b"}, {ID: "c"}},
			Page:        1,
			PageSize:    3,
			TotalCount:  5,
			TotalPages:  2,
			HasNextPage: true,
		}, nil)
	readings.On("ReadingsByFleet", mock.Anything, "fleet-2", mock.Anything).
		Return(models.ReadingPage{}, fmt.Errorf("%w: page must be greater than 0", ingest.ErrInvalidQuery))
	m := sensorMux(NewSensorHandler(readings))

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sensor-data/fleet/fleet-1?page=1&page_size=3", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var page models.ReadingPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	assert.Len(t, page.Items, 3)
	assert.True(t, page.HasNextPage)

	w = httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sensor-data/fleet/fleet-2?page=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	readings.AssertExpectations(t)
}
