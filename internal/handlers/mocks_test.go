package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ukydev/iotfleet/internal/ingest"
	"github.com/ukydev/iotfleet/internal/models"
	"github.com/ukydev/iotfleet/internal/simulation"
)

// MockController is a mock implementation of SimulationController
type MockController struct {
	mock.Mock
}

func (m *MockController) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockController) Stop() {
	m.Called()
}

func (m *MockController) IsRunning() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockController) Status() simulation.Status {
	args := m.Called()
	return args.Get(0).(simulation.Status)
}

func (m *MockController) ListSimulatedVehicles() []models.Vehicle {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]models.Vehicle)
}

func (m *MockController) LatestReadings(ctx context.Context) ([]models.SensorReading, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SensorReading), args.Error(1)
}

func (m *MockController) Diagnostics(ctx context.Context) (simulation.Diagnostics, error) {
	args := m.Called(ctx)
	return args.Get(0).(simulation.Diagnostics), args.Error(1)
}

// MockReadingService is a mock implementation of ReadingService
type MockReadingService struct {
	mock.Mock
}

func (m *MockReadingService) Ingest(ctx context.Context, r models.SensorReading) (ingest.Result, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(ingest.Result), args.Error(1)
}

func (m *MockReadingService) LatestReading(ctx context.Context, vehicleID string) (*models.SensorReading, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SensorReading), args.Error(1)
}

func (m *MockReadingService) FuelAlerts(ctx context.Context, f ingest.AlertFilter) ([]models.FuelAlert, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FuelAlert), args.Error(1)
}

func (m *MockReadingService) FuelStatistics(ctx context.Context, vehicleID string, from, to time.Time) (models.FuelStatistics, error) {
	args := m.Called(ctx, vehicleID, from, to)
	return args.Get(0).(models.FuelStatistics), args.Error(1)
}

func (m *MockReadingService) ReadingsByVehicle(ctx context.Context, vehicleID string, q ingest.HistoryQuery) (models.ReadingPage, error) {
	args := m.Called(ctx, vehicleID, q)
	return args.Get(0).(models.ReadingPage), args.Error(1)
}

func (m *MockReadingService) ReadingsByFleet(ctx context.Context, fleetID string, q ingest.HistoryQuery) (models.ReadingPage, error) {
	args := m.Called(ctx, fleetID, q)
	return args.Get(0).(models.ReadingPage), args.Error(1)
}

// MockVehicleLookup is a mock implementation of VehicleLookup
type MockVehicleLookup struct {
	mock.Mock
}

func (m *MockVehicleLookup) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Vehicle), args.Error(1)
}

func (m *MockVehicleLookup) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

// MockWSServer is a mock implementation of WSServer
type MockWSServer struct {
	mock.Mock
}

func (m *MockWSServer) ServeWS(w http.ResponseWriter, r *http.Request, claims *models.Claims) {
	m.Called(w, r, claims)
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (m *MockWSServer) ClientCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockWSServer) Dropped() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}
