// Package simulation advances simulated vehicles along built-in routes,
// synthesizes their sensor readings and runs them through the fuel model.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/iotfleet/internal/db"
	"github.com/ukydev/iotfleet/internal/fuel"
	"github.com/ukydev/iotfleet/internal/models"
	"github.com/ukydev/iotfleet/internal/notify"
)

// ErrNoVehicles is returned by StartRun when the roster is empty.
var ErrNoVehicles = errors.New("no vehicles to simulate")

// Defaults applied by NewEngine for zero Options fields.
const (
	DefaultTickInterval = 5 * time.Second
	DefaultRetention    = 1000
	DefaultWorkers      = 4
)

// Store is the storage the engine reads its roster from and writes readings to.
type Store interface {
	db.VehicleCollection
	db.ReadingCollection
}

// Options tunes an Engine. Zero values pick defaults.
type Options struct {
	TickInterval time.Duration
	// Retention caps stored readings per vehicle.
	Retention int
	// Workers bounds how many cursors are processed concurrently.
	Workers int
	Rand    *rand.Rand
	Clock   func() time.Time
	Logger  log.FieldLogger
	Model   *fuel.Model
}

// LocationUpdate is broadcast for every simulated reading.
type LocationUpdate struct {
	VehicleID string    `json:"vehicle_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	FuelLevel float64   `json:"fuel_level"`
	Route     string    `json:"route"`
	Timestamp time.Time `json:"timestamp"`
}

// TickResult summarizes one tick.
type TickResult struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Alerts    int           `json:"alerts"`
	Pruned    int           `json:"pruned"`
	Duration  time.Duration `json:"duration"`
}

type stepResult struct {
	vehicle models.Vehicle
	cursor  Cursor
	reading models.SensorReading
	alert   models.FuelAlert
	alerted bool
	ok      bool
}

// Engine owns one Cursor per simulated vehicle.
type Engine struct {
	store    Store
	notifier notify.Notifier
	model    *fuel.Model

	interval  time.Duration
	retention int
	workers   int
	clock     func() time.Time
	log       log.FieldLogger

	// tickMu serializes Tick and StopRun so the roster never changes mid-tick.
	tickMu sync.Mutex

	mu      sync.RWMutex
	rng     *rand.Rand
	running bool
	roster  map[string]models.Vehicle
	cursors map[string]*Cursor
}

// NewEngine creates an idle engine.
func NewEngine(store Store, notifier notify.Notifier, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Model == nil {
		opts.Model = fuel.NewModel(0)
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Engine{
		store:     store,
		notifier:  notifier,
		model:     opts.Model,
		interval:  opts.TickInterval,
		retention: opts.Retention,
		workers:   opts.Workers,
		clock:     opts.Clock,
		log:       opts.Logger.WithField("component", "simulation"),
		rng:       opts.Rand,
	}
}

// TickInterval returns the simulated time covered by one tick.
func (e *Engine) TickInterval() time.Duration {
	return e.interval
}

// StartRun loads the roster and creates a cursor per vehicle. It is a no-op
// while a run is active.
func (e *Engine) StartRun(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	vehicles, err := e.store.ListVehicles(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	if len(vehicles) == 0 {
		e.log.Warn("No vehicles found, simulation not started")
		return ErrNoVehicles
	}

	e.roster = make(map[string]models.Vehicle, len(vehicles))
	e.cursors = make(map[string]*Cursor, len(vehicles))
	for _, v := range vehicles {
		// each cursor owns its source so concurrent steps never share one
		cursorRng := rand.New(rand.NewSource(e.rng.Int63()))
		c := newCursor(v.ID, cursorRng)
		e.roster[v.ID] = v
		e.cursors[v.ID] = c

		e.log.WithFields(log.Fields{
			"vehicle_id": v.ID,
			"plate":      v.LicensePlate,
			"route":      c.Route.Name,
			"behavior":   c.Behavior.Name,
			"fuel":       c.Fuel,
		}).Debug("Vehicle placed on route")
	}
	e.running = true

	e.log.WithField("vehicles", len(vehicles)).Info("Simulation run started")
	return nil
}

// StopRun discards all cursors. It waits for an in-flight Tick and is a no-op
// when no run is active.
func (e *Engine) StopRun() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	e.roster = nil
	e.cursors = nil
	e.log.Info("Simulation run stopped")
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Roster returns the simulated vehicles sorted by license plate.
func (e *Engine) Roster() []models.Vehicle {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Vehicle, 0, len(e.roster))
	for _, v := range e.roster {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LicensePlate != out[j].LicensePlate {
			return out[i].LicensePlate < out[j].LicensePlate
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cursors returns snapshots of every cursor sorted by vehicle id.
func (e *Engine) Cursors() []Cursor {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Cursor, 0, len(e.cursors))
	for _, c := range e.cursors {
		out = append(out, c.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// Cursor returns a snapshot of one vehicle's cursor.
func (e *Engine) Cursor(vehicleID string) (Cursor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c, ok := e.cursors[vehicleID]
	if !ok {
		return Cursor{}, false
	}
	return c.snapshot(), true
}

// Tick advances every cursor once, commits the readings as one batch, pushes
// notifications and prunes old readings. Per-cursor failures are logged and
// counted; the returned error only reports a failed batch commit.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := time.Now()

	e.mu.RLock()
	if !e.running {
		e.mu.RUnlock()
		return TickResult{}, nil
	}
	work := make([]stepResult, 0, len(e.cursors))
	for id, c := range e.cursors {
		cp := *c
		work = append(work, stepResult{vehicle: e.roster[id], cursor: cp})
	}
	e.mu.RUnlock()

	now := e.clock()
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range work {
		w := &work[i]
		g.Go(func() error {
			if err := e.step(ctx, w, now); err != nil {
				e.log.WithError(err).WithField("vehicle_id", w.vehicle.ID).Error("Failed to simulate vehicle")
			}
			return nil
		})
	}
	_ = g.Wait()

	var res TickResult
	for _, w := range work {
		if w.ok {
			res.Processed++
		} else {
			res.Failed++
		}
	}

	commitErr := e.store.CommitBatch(ctx)
	if commitErr != nil {
		e.log.WithError(commitErr).Error("Failed to commit readings")
	}

	for i := range work {
		w := &work[i]
		if !w.ok {
			continue
		}
		e.publish(ctx, w)
		if w.alerted {
			res.Alerts++
		}
	}

	if commitErr == nil {
		for _, w := range work {
			if w.ok {
				res.Pruned += e.enforceRetention(ctx, w.vehicle.ID)
			}
		}
	}

	e.mu.Lock()
	for _, w := range work {
		if c, ok := e.cursors[w.cursor.VehicleID]; ok {
			*c = w.cursor
		}
	}
	e.mu.Unlock()

	res.Duration = time.Since(start)
	e.log.WithFields(log.Fields{
		"processed": res.Processed,
		"failed":    res.Failed,
		"alerts":    res.Alerts,
		"pruned":    res.Pruned,
		"duration":  res.Duration,
	}).Debug("Simulation tick completed")

	if commitErr != nil {
		return res, fmt.Errorf("commit readings: %w", commitErr)
	}
	return res, nil
}

// step advances one cursor copy and buffers its reading.
func (e *Engine) step(ctx context.Context, w *stepResult, now time.Time) error {
	if w.vehicle.ID == "" {
		return fmt.Errorf("cursor %s has no roster entry", w.cursor.VehicleID)
	}
	w.reading = w.cursor.step(e.interval, now)
	if err := e.store.AppendReading(ctx, w.reading); err != nil {
		return fmt.Errorf("append reading: %w", err)
	}
	w.alert, w.alerted = e.model.Evaluate(w.vehicle, w.reading)
	w.ok = true
	return nil
}

// publish sends the reading broadcasts and any alert. Failures are logged.
func (e *Engine) publish(ctx context.Context, w *stepResult) {
	logger := e.log.WithField("vehicle_id", w.vehicle.ID)

	update := LocationUpdate{
		VehicleID: w.vehicle.ID,
		Latitude:  w.reading.Latitude,
		Longitude: w.reading.Longitude,
		Speed:     w.cursor.Speed,
		Heading:   w.cursor.Heading,
		FuelLevel: w.cursor.Fuel,
		Route:     w.cursor.Route.Name,
		Timestamp: w.reading.Timestamp,
	}
	if err := e.notifier.SendToAll(ctx, notify.EventLocationUpdate, update); err != nil {
		logger.WithError(err).Error("Failed to send location update")
	}
	if err := e.notifier.SendToAll(ctx, notify.EventSensorDataUpdate, w.reading); err != nil {
		logger.WithError(err).Error("Failed to send sensor data update")
	}

	if !w.alerted {
		return
	}
	logger.WithFields(log.Fields{
		"severity":       w.alert.Severity,
		"autonomy_hours": w.alert.EstimatedAutonomyHours,
	}).Warn("Fuel alert")
	for _, group := range []string{notify.GroupAdmin, notify.VehicleGroup(w.vehicle.ID)} {
		if err := e.notifier.SendToGroup(ctx, group, notify.EventFuelAlert, w.alert); err != nil {
			logger.WithError(err).WithField("group", group).Error("Failed to send fuel alert")
		}
	}
}

// enforceRetention deletes the oldest readings beyond the cap and returns how
// many were removed.
func (e *Engine) enforceRetention(ctx context.Context, vehicleID string) int {
	readings, err := e.store.ListReadingsForVehicle(ctx, vehicleID, true)
	if err != nil {
		e.log.WithError(err).WithField("vehicle_id", vehicleID).Error("Failed to list readings for retention")
		return 0
	}
	if len(readings) <= e.retention {
		return 0
	}

	stale := readings[e.retention:]
	ids := make([]string, len(stale))
	for i, r := range stale {
		ids[i] = r.ID
	}
	if err := e.store.DeleteReadings(ctx, ids); err != nil {
		e.log.WithError(err).WithField("vehicle_id", vehicleID).Error("Failed to prune readings")
		return 0
	}
	return len(ids)
}
