package simulation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/db"
	"github.com/ukydev/iotfleet/internal/models"
)

const defaultTickTimeout = 30 * time.Second

// Status describes the scheduler.
type Status struct {
	IsRunning         bool       `json:"is_running"`
	SimulatedVehicles int        `json:"simulated_vehicles"`
	TickInterval      string     `json:"tick_interval"`
	Ticks             int64      `json:"ticks"`
	SkippedTicks      int64      `json:"skipped_ticks"`
	LastTickAt        *time.Time `json:"last_tick_at,omitempty"`
	LastTick          TickResult `json:"last_tick"`
}

// Diagnostics summarizes the stored data.
type Diagnostics struct {
	VehiclesInDatabase int64      `json:"vehicles_in_database"`
	TotalReadings      int64      `json:"total_readings"`
	LatestReadingAt    *time.Time `json:"latest_reading_at,omitempty"`
	LatestVehicleID    string     `json:"latest_vehicle_id,omitempty"`
	IsRunning          bool       `json:"is_running"`
	SimulatedVehicles  int        `json:"simulated_vehicles"`
}

// Controller drives an Engine from a recurring timer. At most one tick is in
// flight; a tick that falls due while another is running is skipped.
type Controller struct {
	engine      *Engine
	interval    time.Duration
	tickTimeout time.Duration
	log         log.FieldLogger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	inFlight   sync.WaitGroup
	inProgress atomic.Bool
	ticks      atomic.Int64
	skipped    atomic.Int64

	lastMu   sync.RWMutex
	lastAt   time.Time
	lastTick TickResult
}

// NewController wraps engine. The tick period equals the engine tick interval.
func NewController(engine *Engine) *Controller {
	return &Controller{
		engine:      engine,
		interval:    engine.TickInterval(),
		tickTimeout: defaultTickTimeout,
		log:         engine.log,
	}
}

// Start begins a run and the recurring timer. Starting a running controller
// is a no-op. ErrNoVehicles is returned when there is nothing to simulate.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if err := c.engine.StartRun(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.loop(loopCtx, c.done)

	c.log.WithField("interval", c.interval).Info("Simulation scheduler started")
	return nil
}

// Stop halts the timer, waits for an in-flight tick and discards the cursors.
// Stopping a stopped controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.cancel()
	<-c.done
	c.inFlight.Wait()
	c.engine.StopRun()
	c.running = false

	c.log.Info("Simulation scheduler stopped")
}

// IsRunning reports whether the scheduler is active.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ListSimulatedVehicles returns the current roster; empty when stopped.
func (c *Controller) ListSimulatedVehicles() []models.Vehicle {
	return c.engine.Roster()
}

// Cursors returns snapshots of the simulated vehicles' motion state.
func (c *Controller) Cursors() []Cursor {
	return c.engine.Cursors()
}

// SkippedTicks returns how many due ticks were skipped due to overlap.
func (c *Controller) SkippedTicks() int64 {
	return c.skipped.Load()
}

// Status reports the scheduler state.
func (c *Controller) Status() Status {
	s := Status{
		IsRunning:         c.IsRunning(),
		SimulatedVehicles: len(c.engine.Roster()),
		TickInterval:      c.interval.String(),
		Ticks:             c.ticks.Load(),
		SkippedTicks:      c.skipped.Load(),
	}

	c.lastMu.RLock()
	if !c.lastAt.IsZero() {
		at := c.lastAt
		s.LastTickAt = &at
		s.LastTick = c.lastTick
	}
	c.lastMu.RUnlock()
	return s
}

// LatestReading returns the newest stored reading of a vehicle.
func (c *Controller) LatestReading(ctx context.Context, vehicleID string) (*models.SensorReading, error) {
	return c.engine.store.LatestReading(ctx, vehicleID)
}

// LatestReadings returns the newest reading of every simulated vehicle, or of
// every stored vehicle when no run is active. Vehicles without readings are
// left out.
func (c *Controller) LatestReadings(ctx context.Context) ([]models.SensorReading, error) {
	vehicles := c.engine.Roster()
	if len(vehicles) == 0 {
		var err error
		vehicles, err = c.engine.store.ListVehicles(ctx)
		if err != nil {
			return nil, err
		}
	}

	out := make([]models.SensorReading, 0, len(vehicles))
	for _, v := range vehicles {
		r, err := c.engine.store.LatestReading(ctx, v.ID)
		if errors.Is(err, db.ErrNoReadings) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// Diagnostics summarizes stored vehicles and readings.
func (c *Controller) Diagnostics(ctx context.Context) (Diagnostics, error) {
	vehicles, err := c.engine.store.ListVehicles(ctx)
	if err != nil {
		return Diagnostics{}, err
	}
	total, err := c.engine.store.CountReadings(ctx)
	if err != nil {
		return Diagnostics{}, err
	}

	d := Diagnostics{
		VehiclesInDatabase: int64(len(vehicles)),
		TotalReadings:      total,
		IsRunning:          c.IsRunning(),
		SimulatedVehicles:  len(c.engine.Roster()),
	}

	newest, err := c.engine.store.NewestReading(ctx)
	switch {
	case errors.Is(err, db.ErrNoReadings):
	case err != nil:
		return Diagnostics{}, err
	default:
		at := newest.Timestamp
		d.LatestReadingAt = &at
		d.LatestVehicleID = newest.VehicleID
	}
	return d, nil
}

func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.trigger(ctx)
		}
	}
}

// trigger starts a tick unless one is still running or the loop was stopped.
// select picks randomly when the ticker and ctx are ready together, so ctx is
// checked again here.
func (c *Controller) trigger(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !c.inProgress.CompareAndSwap(false, true) {
		n := c.skipped.Add(1)
		c.log.WithField("skipped_ticks", n).Warn("Previous tick still running, skipping")
		return
	}

	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Done()
		defer c.inProgress.Store(false)

		// ticks are not cancelled by Stop; they run to completion
		ctx, cancel := context.WithTimeout(context.Background(), c.tickTimeout)
		defer cancel()

		res, err := c.engine.Tick(ctx)
		if err != nil {
			c.log.WithError(err).Error("Simulation tick failed")
		}
		c.ticks.Add(1)

		c.lastMu.Lock()
		c.lastAt = time.Now().UTC()
		c.lastTick = res
		c.lastMu.Unlock()
	}()
}
