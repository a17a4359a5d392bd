package fuel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/iotfleet/internal/models"
)

func vehicle(capacity, avg float64) models.Vehicle {
	return models.Vehicle{ID: "veh-1", LicensePlate: "ABC123", FuelCapacity: capacity, AverageConsumption: avg}
}

func reading(fuel float64, consumption, speed *float64, engine float64) models.SensorReading {
	return models.SensorReading{
		ID:                "r-1",
		VehicleID:         "veh-1",
		FuelLevel:         fuel,
		FuelConsumption:   consumption,
		Speed:             speed,
		EngineTemperature: engine,
		Timestamp:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEvaluate_AutonomyExactlyAtBoundaryIsHigh(t *testing.T) {
	m := NewModel(0)
	alert, ok := m.Evaluate(vehicle(20, 8), reading(50, models.Float(40), nil, 85))

	require.True(t, ok)
	assert.Equal(t, 0.25, alert.EstimatedAutonomyHours)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, "15 minutes", FormatDuration(alert.EstimatedAutonomyHours))
}

func TestEvaluate_DerivedConsumptionAtBoundaryIsHigh(t *testing.T) {
	m := NewModel(0)
	alert, ok := m.Evaluate(vehicle(50, 10), reading(5, nil, models.Float(60), 85))

	require.True(t, ok)
	assert.Equal(t, 0.25, alert.EstimatedAutonomyHours)
	assert.Equal(t, models.SeverityHigh, alert.Severity)

	alert, ok = m.Evaluate(vehicle(50, 10), reading(4.99, nil, models.Float(60), 85))
	require.True(t, ok)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
}

func TestEvaluate_FuelBelowFiveIsCritical(t *testing.T) {
	m := NewModel(0)
	alert, ok := m.Evaluate(vehicle(400, 8), reading(4.99, models.Float(40), nil, 85))

	require.True(t, ok)
	assert.InDelta(t, 0.499, alert.EstimatedAutonomyHours, 1e-9)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
}

func TestEvaluate_NoAlertAboveHorizon(t *testing.T) {
	m := NewModel(0)

	_, ok := m.Evaluate(vehicle(60, 8), reading(50, models.Float(10), nil, 85))
	assert.False(t, ok)

	// exactly one hour is not below the horizon
	_, ok = m.Evaluate(vehicle(20, 8), reading(50, models.Float(10), nil, 85))
	assert.False(t, ok)
}

func TestEvaluate_EmptyTankIsCritical(t *testing.T) {
	m := NewModel(0)
	alert, ok := m.Evaluate(vehicle(50, 8), reading(0, nil, models.Float(40), 85))

	require.True(t, ok)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, 0.0, alert.EstimatedAutonomyHours)
	assert.Equal(t, 0.0, alert.RemainingDistanceKm)
}

func TestEvaluate_NonPositiveConsumptionNeverDivides(t *testing.T) {
	m := NewModel(0)

	tests := []struct {
		name    string
		vehicle models.Vehicle
		reading models.SensorReading
	}{
		{"zero average, no sensor rate", vehicle(50, 0), reading(80, nil, nil, 85)},
		{"zero sensor rate, zero average", vehicle(50, 0), reading(80, models.Float(0), nil, 85)},
		{"negative sensor rate", vehicle(50, 0), reading(80, models.Float(-3), nil, 85)},
		{"negative average", vehicle(50, -8), reading(80, nil, models.Float(30), 85)},
		{"NaN everywhere", vehicle(math.NaN(), math.NaN()), reading(math.NaN(), models.Float(math.NaN()), models.Float(math.NaN()), math.NaN())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert, ok := m.Evaluate(tt.vehicle, tt.reading)
			require.True(t, ok)
			assert.False(t, math.IsNaN(alert.EstimatedAutonomyHours))
			assert.False(t, math.IsInf(alert.EstimatedAutonomyHours, 0))
			assert.False(t, math.IsNaN(alert.RemainingDistanceKm))
			assert.Equal(t, models.SeverityCritical, alert.Severity)
		})
	}
}

func TestEvaluate_NegativeFuelClamped(t *testing.T) {
	m := NewModel(0)
	alert, ok := m.Evaluate(vehicle(50, 8), reading(-10, nil, nil, 85))

	require.True(t, ok)
	assert.Equal(t, 0.0, alert.FuelLevel)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
}

func TestEstimate_ConsumptionFromSpeed(t *testing.T) {
	m := NewModel(0)
	v := vehicle(50, 10)

	tests := []struct {
		name     string
		speed    *float64
		engine   float64
		expected float64
	}{
		{"no speed uses 50 km/h", nil, 85, 10 * 50.0 / 60.0},
		{"cruising", models.Float(60), 85, 10},
		{"fast clamps at 2x", models.Float(180), 85, 20},
		{"standing clamps at 0.5x", models.Float(0), 85, 5},
		{"hot engine adds 20 percent", models.Float(60), 95, 12},
		{"90 degrees is not hot", models.Float(60), 90, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := m.Estimate(v, reading(50, nil, tt.speed, tt.engine))
			assert.InDelta(t, tt.expected, est.ConsumptionLph, 1e-9)
		})
	}
}

func TestEstimate_SensorRateWins(t *testing.T) {
	m := NewModel(0)
	est := m.Estimate(vehicle(50, 10), reading(50, models.Float(25), models.Float(180), 120))

	assert.Equal(t, 25.0, est.ConsumptionLph)
	assert.Equal(t, 25.0, est.FuelLiters)
	assert.Equal(t, 1.0, est.AutonomyHours)
	assert.Equal(t, 180.0, est.RemainingDistanceKm)
}

func TestSeverity_Tiers(t *testing.T) {
	m := NewModel(0)

	tests := []struct {
		hours    float64
		fuel     float64
		expected models.Severity
	}{
		{0.1, 50, models.SeverityCritical},
		{0.9, 4, models.SeverityCritical},
		{0.25, 50, models.SeverityHigh},
		{0.9, 9.9, models.SeverityHigh},
		{0.5, 50, models.SeverityMedium},
		{0.9, 14, models.SeverityMedium},
		{0.75, 15, models.SeverityLow},
		{0.99, 80, models.SeverityLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, m.Severity(tt.hours, tt.fuel), "hours=%v fuel=%v", tt.hours, tt.fuel)
	}
}

func TestEvaluate_AlertCarriesReadingFields(t *testing.T) {
	m := NewModel(0)
	r := reading(50, models.Float(40), nil, 85)
	alert, ok := m.Evaluate(vehicle(20, 8), r)

	require.True(t, ok)
	assert.Equal(t, "veh-1", alert.VehicleID)
	assert.Equal(t, "ABC123", alert.LicensePlate)
	assert.Equal(t, r.Timestamp, alert.Timestamp)
	assert.Equal(t, AlertType, alert.AlertType)
	assert.Equal(t, 12.5, alert.RemainingDistanceKm)
	assert.Contains(t, alert.Message, "15 minutes")
	assert.Contains(t, alert.Message, "(13 km)")
}

func TestEvaluate_Deterministic(t *testing.T) {
	m := NewModel(0)
	v := vehicle(55, 9)
	r := reading(12, nil, models.Float(33), 91)

	a1, ok1 := m.Evaluate(v, r)
	a2, ok2 := m.Evaluate(v, r)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, a1, a2)
}

func TestNewModel_Horizon(t *testing.T) {
	m := NewModel(2)
	alert, ok := m.Evaluate(vehicle(30, 8), reading(50, models.Float(10), nil, 85))

	require.True(t, ok)
	assert.Equal(t, 1.5, alert.EstimatedAutonomyHours)
	assert.Equal(t, models.SeverityLow, alert.Severity)
	assert.Contains(t, alert.Message, "1.5 hours")

	assert.Equal(t, 1.0, NewModel(-1).Thresholds.AlertHours)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0 minutes", FormatDuration(0))
	assert.Equal(t, "29 minutes", FormatDuration(0.499))
	assert.Equal(t, "59 minutes", FormatDuration(0.999))
	assert.Equal(t, "2.0 hours", FormatDuration(2))
}

func TestMessage(t *testing.T) {
	assert.Equal(t,
		"CRITICAL ALERT! Fuel very low. Only 6 minutes of autonomy remaining (5 km).",
		Message(models.SeverityCritical, 0.1, 4.6))
	assert.Equal(t,
		"High alert: fuel low. Approximately 18 minutes of autonomy remaining (15 km).",
		Message(models.SeverityHigh, 0.3, 15))
}
