package db

import (
	"context"
	"errors"

	"github.com/ukydev/iotfleet/internal/models"
)

var (
	// ErrVehicleNotFound is returned when a vehicle id is unknown.
	ErrVehicleNotFound = errors.New("vehicle not found")
	// ErrNoReadings is returned when a lookup matches no stored reading.
	ErrNoReadings = errors.New("no readings found")
)

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	// InsertVehicle stores vehicle, replacing any vehicle with the same id.
	InsertVehicle(ctx context.Context, vehicle models.Vehicle) error
}

// ReadingCollection defines the interface for sensor reading operations.
//
// AppendReading only buffers; nothing is visible to readers until CommitBatch
// flushes every pending reading in one write. InsertReading writes one
// reading directly and never touches the pending batch.
//
// Readings with equal timestamps are ordered by insertion, so newest-first
// listings put the last inserted reading first.
type ReadingCollection interface {
	AppendReading(ctx context.Context, reading models.SensorReading) error
	CommitBatch(ctx context.Context) error
	InsertReading(ctx context.Context, reading models.SensorReading) error
	ListReadingsForVehicle(ctx context.Context, vehicleID string, newestFirst bool) ([]models.SensorReading, error)
	DeleteReadings(ctx context.Context, ids []string) error
	CountReadings(ctx context.Context) (int64, error)
	LatestReading(ctx context.Context, vehicleID string) (*models.SensorReading, error)
	NewestReading(ctx context.Context) (*models.SensorReading, error)
}

// Store is a complete storage backend.
type Store interface {
	VehicleCollection
	ReadingCollection
	Close(ctx context.Context) error
}
