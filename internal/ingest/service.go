// Package ingest accepts readings from real devices and runs them through the
// same fuel model and notifications as simulated ones.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/db"
	"github.com/ukydev/iotfleet/internal/fuel"
	"github.com/ukydev/iotfleet/internal/models"
	"github.com/ukydev/iotfleet/internal/notify"
)

// ErrInvalidReading wraps every validation failure.
var ErrInvalidReading = errors.New("invalid sensor reading")

// Store is the storage the ingestion path needs.
type Store interface {
	db.VehicleCollection
	db.ReadingCollection
}

// Result is returned for an accepted reading.
type Result struct {
	ReadingID string            `json:"reading_id"`
	Alert     *models.FuelAlert `json:"alert,omitempty"`
}

// AlertFilter narrows FuelAlerts. Empty fields match everything.
type AlertFilter struct {
	FleetID   string
	VehicleID string
	Severity  models.Severity
	From      *time.Time
	To        *time.Time
}

// Service is the ingestion path.
type Service struct {
	store    Store
	notifier notify.Notifier
	model    *fuel.Model
	clock    func() time.Time
	log      log.FieldLogger
}

// NewService creates an ingestion service. A nil model uses the defaults.
func NewService(store Store, notifier notify.Notifier, model *fuel.Model, logger log.FieldLogger) *Service {
	if model == nil {
		model = fuel.NewModel(0)
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		model:    model,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      logger.WithField("component", "ingest"),
	}
}

// Validate checks a device reading before it is stored.
func Validate(r models.SensorReading) error {
	if r.VehicleID == "" {
		return fmt.Errorf("%w: vehicle_id is required", ErrInvalidReading)
	}
	if math.IsNaN(r.FuelLevel) || r.FuelLevel < 0 || r.FuelLevel > 100 {
		return fmt.Errorf("%w: fuel_level %v outside [0,100]", ErrInvalidReading, r.FuelLevel)
	}
	if !r.Location().Valid() || math.IsNaN(r.Latitude) || math.IsNaN(r.Longitude) {
		return fmt.Errorf("%w: coordinates (%v, %v) out of range", ErrInvalidReading, r.Latitude, r.Longitude)
	}
	if r.Speed != nil && (math.IsNaN(*r.Speed) || *r.Speed < 0) {
		return fmt.Errorf("%w: speed must be non-negative", ErrInvalidReading)
	}
	if r.FuelConsumption != nil && math.IsNaN(*r.FuelConsumption) {
		return fmt.Errorf("%w: fuel_consumption is not a number", ErrInvalidReading)
	}
	return nil
}

// Ingest validates, stores and evaluates one reading, then broadcasts it and
// any resulting alert. Notification failures are logged, never returned.
func (s *Service) Ingest(ctx context.Context, r models.SensorReading) (Result, error) {
	if err := Validate(r); err != nil {
		return Result{}, err
	}

	vehicle, err := s.store.FindVehicleByID(ctx, r.VehicleID)
	if err != nil {
		if errors.Is(err, db.ErrVehicleNotFound) {
			s.log.WithField("vehicle_id", r.VehicleID).Warn("Reading for unknown vehicle")
		}
		return Result{}, err
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.clock()
	}

	// the simulator owns the pending batch
	if err := s.store.InsertReading(ctx, r); err != nil {
		return Result{}, fmt.Errorf("insert reading: %w", err)
	}

	logger := s.log.WithField("vehicle_id", r.VehicleID)
	res := Result{ReadingID: r.ID}

	if err := s.notifier.SendToAll(ctx, notify.EventSensorData, r); err != nil {
		logger.WithError(err).Error("Failed to broadcast sensor data")
	}

	if alert, ok := s.model.Evaluate(*vehicle, r); ok {
		res.Alert = &alert
		logger.WithFields(log.Fields{
			"severity":       alert.Severity,
			"autonomy_hours": alert.EstimatedAutonomyHours,
		}).Warn("Fuel alert")
		for _, group := range []string{notify.GroupAdmin, notify.VehicleGroup(r.VehicleID)} {
			if err := s.notifier.SendToGroup(ctx, group, notify.EventFuelAlert, alert); err != nil {
				logger.WithError(err).WithField("group", group).Error("Failed to send fuel alert")
			}
		}
	}

	logger.WithField("reading_id", r.ID).Debug("Sensor reading stored")
	return res, nil
}

// FuelAlerts evaluates the latest reading of every matching vehicle and
// returns the resulting alerts, newest first.
func (s *Service) FuelAlerts(ctx context.Context, f AlertFilter) ([]models.FuelAlert, error) {
	vehicles, err := s.store.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}

	alerts := []models.FuelAlert{}
	for _, v := range vehicles {
		if f.FleetID != "" && !v.InFleet(f.FleetID) {
			continue
		}
		if f.VehicleID != "" && v.ID != f.VehicleID {
			continue
		}

		latest, err := s.store.LatestReading(ctx, v.ID)
		if errors.Is(err, db.ErrNoReadings) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.From != nil && latest.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && latest.Timestamp.After(*f.To) {
			continue
		}

		alert, ok := s.model.Evaluate(v, *latest)
		if !ok {
			continue
		}
		if f.Severity != "" && alert.Severity != f.Severity {
			continue
		}
		alerts = append(alerts, alert)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
	return alerts, nil
}

// FuelStatistics aggregates a vehicle's readings between from and to.
func (s *Service) FuelStatistics(ctx context.Context, vehicleID string, from, to time.Time) (models.FuelStatistics, error) {
	if _, err := s.store.FindVehicleByID(ctx, vehicleID); err != nil {
		return models.FuelStatistics{}, err
	}
	readings, err := s.store.ListReadingsForVehicle(ctx, vehicleID, false)
	if err != nil {
		return models.FuelStatistics{}, err
	}
	return fuel.Statistics(vehicleID, readings, from, to)
}

// LatestReading returns the newest stored reading of a vehicle.
func (s *Service) LatestReading(ctx context.Context, vehicleID string) (*models.SensorReading, error) {
	return s.store.LatestReading(ctx, vehicleID)
}
