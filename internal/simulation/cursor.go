package simulation

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ukydev/iotfleet/internal/catalog"
	"github.com/ukydev/iotfleet/internal/geo"
	"github.com/ukydev/iotfleet/internal/models"
)

// Speed model constants, km/h.
const (
	baseSpeedKmh     = 35.0
	speedNoiseKmh    = 8.0
	stopPenaltyKmh   = 15.0
	maxAccelKmh      = 0.5
	maxSpeedKmh      = 60.0
	fuelPerKmPercent = 0.1
)

// Cursor is the motion state of one simulated vehicle.
//
// SegmentIndex is always a valid waypoint index, Progress stays in [0,1) and
// is the fraction travelled from SegmentIndex toward the next waypoint in
// Direction. Fuel is a percentage and never negative.
type Cursor struct {
	VehicleID    string           `json:"vehicle_id"`
	Route        catalog.Route    `json:"route"`
	SegmentIndex int              `json:"segment_index"`
	Progress     float64          `json:"progress"`
	Direction    int              `json:"direction"`
	Speed        float64          `json:"speed"`
	Fuel         float64          `json:"fuel"`
	Heading      float64          `json:"heading"`
	Behavior     catalog.Behavior `json:"behavior"`
	Position     models.Location  `json:"position"`
	LastTick     time.Time        `json:"last_tick"`

	rng *rand.Rand
}

// newCursor places a vehicle on a random route with random initial state.
func newCursor(vehicleID string, rng *rand.Rand) *Cursor {
	route := catalog.RandomRoute(rng)
	idx := rng.Intn(len(route.Waypoints))
	c := &Cursor{
		VehicleID:    vehicleID,
		Route:        route,
		SegmentIndex: idx,
		Direction:    1,
		Fuel:         30 + rng.Float64()*70,
		Speed:        20 + rng.Float64()*40,
		Behavior:     catalog.RandomBehavior(rng),
		Position:     route.Waypoints[idx],
		rng:          rng,
	}
	if rng.Intn(2) == 0 {
		c.Direction = -1
	}
	return c
}

// snapshot returns a copy that shares no mutable state with c.
func (c *Cursor) snapshot() Cursor {
	cp := *c
	cp.Route.Waypoints = append([]models.Location(nil), c.Route.Waypoints...)
	cp.rng = nil
	return cp
}

// nextIndex returns the waypoint the cursor is heading to, flipping Direction
// when continuing would leave the route.
func (c *Cursor) nextIndex() int {
	next := c.SegmentIndex + c.Direction
	if next < 0 || next >= len(c.Route.Waypoints) {
		c.Direction = -c.Direction
		next = c.SegmentIndex + c.Direction
	}
	return next
}

// advance moves the cursor distanceKm along its current segment. Reaching or
// passing the end of the segment commits the next waypoint and resets
// progress; a zero-length segment counts as completed.
func (c *Cursor) advance(distanceKm float64) {
	next := c.nextIndex()
	from := c.Route.Waypoints[c.SegmentIndex]
	to := c.Route.Waypoints[next]

	segment := geo.HaversineKm(from, to)
	if segment <= 0 {
		c.Progress = 1
	} else {
		c.Heading = geo.BearingDeg(from, to)
		c.Progress += math.Max(0, distanceKm) / segment
	}

	if c.Progress >= 1 {
		c.SegmentIndex = next
		c.Progress = 0
		c.Position = to
		return
	}
	c.Position = geo.Lerp(from, to, c.Progress)
}

// updateSpeed drifts speed toward a behavior-dependent target by at most
// maxAccelKmh per tick.
func (c *Cursor) updateSpeed() {
	target := baseSpeedKmh*c.Behavior.SpeedMultiplier + (c.rng.Float64()-0.5)*speedNoiseKmh
	if c.rng.Float64() < c.Behavior.StopProbability {
		target = math.Max(0, target-stopPenaltyKmh)
	}

	diff := target - c.Speed
	change := math.Copysign(math.Min(math.Abs(diff), maxAccelKmh), diff)
	c.Speed = math.Max(0, math.Min(maxSpeedKmh, c.Speed+change))
}

// consumeFuel burns fuel proportional to distance covered in the tick.
func (c *Cursor) consumeFuel(tickSeconds float64) {
	c.Fuel = math.Max(0, c.Fuel-c.Speed*tickSeconds/3600*fuelPerKmPercent)
}

// reading synthesizes a sensor sample at the current position.
func (c *Cursor) reading(now time.Time) models.SensorReading {
	return models.SensorReading{
		ID:                 uuid.NewString(),
		VehicleID:          c.VehicleID,
		Latitude:           c.Position.Lat,
		Longitude:          c.Position.Lon,
		Altitude:           models.Float(2600 + (c.rng.Float64()-0.5)*20),
		Speed:              models.Float(c.Speed),
		FuelLevel:          c.Fuel,
		FuelConsumption:    models.Float(8.5 + (c.rng.Float64()-0.5)*0.3),
		EngineTemperature:  85 + (c.rng.Float64()-0.5)*3,
		AmbientTemperature: models.Float(22 + (c.rng.Float64()-0.5)*2),
		Timestamp:          now,
	}
}

// step runs one tick of motion and returns the synthesized reading.
func (c *Cursor) step(interval time.Duration, now time.Time) models.SensorReading {
	seconds := interval.Seconds()
	c.advance(c.Speed * seconds / 3600)
	c.updateSpeed()
	c.consumeFuel(seconds)
	c.LastTick = now
	return c.reading(now)
}
