// Package handlers exposes the simulation control surface, the ingestion
// endpoint and the websocket feed over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/ingest"
	"github.com/ukydev/iotfleet/internal/models"
	"github.com/ukydev/iotfleet/internal/simulation"
)

// SimulationController is the scheduler surface the handlers drive.
type SimulationController interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	Status() simulation.Status
	ListSimulatedVehicles() []models.Vehicle
	LatestReadings(ctx context.Context) ([]models.SensorReading, error)
	Diagnostics(ctx context.Context) (simulation.Diagnostics, error)
}

// ReadingService is the ingestion and query surface.
type ReadingService interface {
	Ingest(ctx context.Context, r models.SensorReading) (ingest.Result, error)
	LatestReading(ctx context.Context, vehicleID string) (*models.SensorReading, error)
	FuelAlerts(ctx context.Context, f ingest.AlertFilter) ([]models.FuelAlert, error)
	FuelStatistics(ctx context.Context, vehicleID string, from, to time.Time) (models.FuelStatistics, error)
	ReadingsByVehicle(ctx context.Context, vehicleID string, q ingest.HistoryQuery) (models.ReadingPage, error)
	ReadingsByFleet(ctx context.Context, fleetID string, q ingest.HistoryQuery) (models.ReadingPage, error)
}

// VehicleLookup resolves vehicle metadata for realtime responses.
type VehicleLookup interface {
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
}

// maxBodyBytes bounds request bodies on the ingestion endpoint.
const maxBodyBytes = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}
