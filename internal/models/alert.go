package models

import (
	"time"
)

// Severity classifies how urgent a fuel alert is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// IsValidSeverity checks if a severity is one of the known tiers
func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// FuelAlert is derived from a (Vehicle, SensorReading) pair and only ever broadcast.
type FuelAlert struct {
	VehicleID              string    `json:"vehicle_id"`
	LicensePlate           string    `json:"license_plate"`
	FuelLevel              float64   `json:"fuel_level"`
	EstimatedAutonomyHours float64   `json:"estimated_autonomy_hours"`
	Timestamp              time.Time `json:"timestamp"`
	Severity               Severity  `json:"severity"`
	Message                string    `json:"message"`
	RemainingDistanceKm    float64   `json:"remaining_distance_km"`
	AlertType              string    `json:"alert_type"`
}

// FuelStatistics aggregates fuel readings of one vehicle over a period.
type FuelStatistics struct {
	VehicleID          string    `json:"vehicle_id"`
	AverageFuelLevel   float64   `json:"average_fuel_level"`
	MinFuelLevel       float64   `json:"min_fuel_level"`
	MaxFuelLevel       float64   `json:"max_fuel_level"`
	TotalFuelConsumed  float64   `json:"total_fuel_consumed"`
	AverageConsumption float64   `json:"average_consumption"`
	DataPointsCount    int       `json:"data_points_count"`
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
}
