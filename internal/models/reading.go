package models

import (
	"time"
)

// SensorReading is one telemetry sample, either synthesized by the simulator
// or submitted by a real device. Optional sensor values are nil when absent.
// Speed is in km/h, FuelLevel in percent and FuelConsumption in liters per hour.
type SensorReading struct {
	ID                 string    `bson:"_id" json:"id"`
	VehicleID          string    `bson:"vehicle_id" json:"vehicle_id"`
	Latitude           float64   `bson:"latitude" json:"latitude"`
	Longitude          float64   `bson:"longitude" json:"longitude"`
	Altitude           *float64  `bson:"altitude,omitempty" json:"altitude,omitempty"`
	Speed              *float64  `bson:"speed,omitempty" json:"speed,omitempty"`
	FuelLevel          float64   `bson:"fuel_level" json:"fuel_level"`
	FuelConsumption    *float64  `bson:"fuel_consumption,omitempty" json:"fuel_consumption,omitempty"`
	EngineTemperature  float64   `bson:"engine_temperature" json:"engine_temperature"`
	AmbientTemperature *float64  `bson:"ambient_temperature,omitempty" json:"ambient_temperature,omitempty"`
	Timestamp          time.Time `bson:"timestamp" json:"timestamp"`
}

// Location returns the reading position.
func (r SensorReading) Location() Location {
	return Location{Lat: r.Latitude, Lon: r.Longitude}
}

// SpeedOr returns the reported speed, or fallback when the device sent none.
func (r SensorReading) SpeedOr(fallback float64) float64 {
	if r.Speed == nil {
		return fallback
	}
	return *r.Speed
}

// Float returns a pointer to v, for populating optional reading fields.
func Float(v float64) *float64 {
	return &v
}

// ReadingPage is one page of a reading history.
type ReadingPage struct {
	Items           []SensorReading `json:"items"`
	Page            int             `json:"page"`
	PageSize        int             `json:"page_size"`
	TotalCount      int             `json:"total_count"`
	TotalPages      int             `json:"total_pages"`
	HasNextPage     bool            `json:"has_next_page"`
	HasPreviousPage bool            `json:"has_previous_page"`
}
