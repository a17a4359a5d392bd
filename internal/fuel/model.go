// Package fuel estimates remaining autonomy from a sensor reading and turns
// low estimates into severity-tiered alerts.
package fuel

import (
	"fmt"
	"math"

	"github.com/ukydev/iotfleet/internal/models"
)

// AlertType tags every alert produced by the model.
const AlertType = "FUEL_AUTONOMY"

const (
	defaultSpeedKmh   = 50.0
	referenceSpeedKmh = 60.0
	minSpeedFactor    = 0.5
	maxSpeedFactor    = 2.0
	hotEngineCelsius  = 90.0
	hotEngineFactor   = 1.2
	fallbackFactor    = 50.0
)

// Thresholds are the tier boundaries. A tier applies when autonomy or fuel
// level is strictly below its bound; the first matching tier wins.
type Thresholds struct {
	// AlertHours is the horizon: no alert at or above it.
	AlertHours    float64 `json:"alert_hours"`
	CriticalHours float64 `json:"critical_hours"`
	HighHours     float64 `json:"high_hours"`
	MediumHours   float64 `json:"medium_hours"`
	CriticalFuel  float64 `json:"critical_fuel"`
	HighFuel      float64 `json:"high_fuel"`
	MediumFuel    float64 `json:"medium_fuel"`
}

// DefaultThresholds returns the production tiers.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AlertHours:    1.0,
		CriticalHours: 0.25,
		HighHours:     0.5,
		MediumHours:   0.75,
		CriticalFuel:  5,
		HighFuel:      10,
		MediumFuel:    15,
	}
}

// Model evaluates readings against Thresholds. The zero value is not usable,
// use NewModel.
type Model struct {
	Thresholds Thresholds
}

// NewModel returns a model with default thresholds and the given alert horizon.
// A non-positive horizon keeps the default of one hour.
func NewModel(horizonHours float64) *Model {
	t := DefaultThresholds()
	if horizonHours > 0 && !math.IsNaN(horizonHours) {
		t.AlertHours = horizonHours
	}
	return &Model{Thresholds: t}
}

// Estimate is the intermediate result of the autonomy calculation.
type Estimate struct {
	FuelLiters          float64
	ConsumptionLph      float64
	AutonomyHours       float64
	RemainingDistanceKm float64
}

// clean maps NaN and negative values to zero.
func clean(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Estimate computes autonomy without deciding on an alert.
func (m *Model) Estimate(v models.Vehicle, r models.SensorReading) Estimate {
	fuelLevel := clamp(clean(r.FuelLevel), 0, 100)
	capacity := clean(v.FuelCapacity)
	avg := clean(v.AverageConsumption)
	speed := clean(r.SpeedOr(defaultSpeedKmh))

	liters := fuelLevel / 100 * capacity

	var consumption float64
	if r.FuelConsumption != nil && clean(*r.FuelConsumption) > 0 {
		consumption = clean(*r.FuelConsumption)
	} else {
		consumption = avg * clamp(speed/referenceSpeedKmh, minSpeedFactor, maxSpeedFactor)
		if r.EngineTemperature > hotEngineCelsius {
			consumption *= hotEngineFactor
		}
		if consumption <= 0 {
			consumption = avg * fallbackFactor
		}
	}

	autonomy := 0.0
	if consumption > 0 {
		autonomy = liters / consumption
	}

	return Estimate{
		FuelLiters:          liters,
		ConsumptionLph:      consumption,
		AutonomyHours:       autonomy,
		RemainingDistanceKm: autonomy * speed,
	}
}

// Evaluate returns an alert when estimated autonomy falls below the horizon.
// It never fails: malformed inputs degrade to zero and yield a CRITICAL alert
// rather than an error.
func (m *Model) Evaluate(v models.Vehicle, r models.SensorReading) (models.FuelAlert, bool) {
	est := m.Estimate(v, r)
	if est.AutonomyHours >= m.Thresholds.AlertHours {
		return models.FuelAlert{}, false
	}

	fuelLevel := clamp(clean(r.FuelLevel), 0, 100)
	severity := m.Severity(est.AutonomyHours, fuelLevel)

	return models.FuelAlert{
		VehicleID:              v.ID,
		LicensePlate:           v.LicensePlate,
		FuelLevel:              fuelLevel,
		EstimatedAutonomyHours: est.AutonomyHours,
		Timestamp:              r.Timestamp,
		Severity:               severity,
		Message:                Message(severity, est.AutonomyHours, est.RemainingDistanceKm),
		RemainingDistanceKm:    est.RemainingDistanceKm,
		AlertType:              AlertType,
	}, true
}

// Severity picks the first tier whose hour or fuel bound is exceeded.
func (m *Model) Severity(autonomyHours, fuelLevel float64) models.Severity {
	t := m.Thresholds
	switch {
	case autonomyHours < t.CriticalHours || fuelLevel < t.CriticalFuel:
		return models.SeverityCritical
	case autonomyHours < t.HighHours || fuelLevel < t.HighFuel:
		return models.SeverityHigh
	case autonomyHours < t.MediumHours || fuelLevel < t.MediumFuel:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// FormatDuration renders autonomy as whole minutes below one hour, otherwise
// as hours with one decimal.
func FormatDuration(hours float64) string {
	if hours < 1 {
		return fmt.Sprintf("%d minutes", int(hours*60))
	}
	return fmt.Sprintf("%.1f hours", hours)
}

// Message builds the human-readable alert text.
func Message(severity models.Severity, hours, distanceKm float64) string {
	remaining := fmt.Sprintf("%s of autonomy remaining (%.0f km)", FormatDuration(hours), math.Round(distanceKm))
	switch severity {
	case models.SeverityCritical:
		return "CRITICAL ALERT! Fuel very low. Only " + remaining + "."
	case models.SeverityHigh:
		return "High alert: fuel low. Approximately " + remaining + "."
	case models.SeverityMedium:
		return "Medium alert: moderate fuel level. " + remaining + "."
	case models.SeverityLow:
		return "Low alert: fuel level dropping. " + remaining + "."
	default:
		return "Fuel alert: " + remaining + "."
	}
}
