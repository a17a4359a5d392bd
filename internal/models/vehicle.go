package models

import (
	"time"
)

// Vehicle represents a fleet vehicle as seen by the telemetry pipeline.
type Vehicle struct {
	ID                 string     `bson:"_id" json:"id"`
	LicensePlate       string     `bson:"license_plate" json:"license_plate"`
	Brand              string     `bson:"brand" json:"brand"`
	Model              string     `bson:"model" json:"model"`
	FuelCapacity       float64    `bson:"fuel_capacity" json:"fuel_capacity"`             // liters
	AverageConsumption float64    `bson:"average_consumption" json:"average_consumption"` // liters per hour
	FleetID            *string    `bson:"fleet_id,omitempty" json:"fleet_id,omitempty"`
	CreatedAt          time.Time  `bson:"created_at" json:"created_at"`
	LastMaintenance    *time.Time `bson:"last_maintenance,omitempty" json:"last_maintenance,omitempty"`
}

// InFleet reports whether the vehicle belongs to the given fleet.
func (v Vehicle) InFleet(fleetID string) bool {
	return v.FleetID != nil && *v.FleetID == fleetID
}
