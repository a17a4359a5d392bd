package db

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ukydev/iotfleet/internal/models"
)

// demoNamespace derives stable ids so repeated seeding upserts instead of
// duplicating vehicles.
var demoNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ukydev/iotfleet/demo"))

// DemoFleetID is the fleet every demo vehicle belongs to.
var DemoFleetID = uuid.NewSHA1(demoNamespace, []byte("fleet")).String()

// DemoVehicles returns the demo roster. Ids are deterministic.
func DemoVehicles(now time.Time) []models.Vehicle {
	specs := []struct {
		plate, brand, model string
		capacity, avg       float64
		serviced            int
	}{
		{"ABC-123", "Mercedes", "Sprinter", 75.0, 8.5, 30},
		{"DEF-456", "Ford", "Transit", 80.0, 9.2, 15},
		{"GHI-789", "Renault", "Master", 70.0, 7.8, 7},
	}

	fleetID := DemoFleetID
	out := make([]models.Vehicle, 0, len(specs))
	for _, s := range specs {
		serviced := now.AddDate(0, 0, -s.serviced)
		out = append(out, models.Vehicle{
			ID:                 uuid.NewSHA1(demoNamespace, []byte(s.plate)).String(),
			LicensePlate:       s.plate,
			Brand:              s.brand,
			Model:              s.model,
			FuelCapacity:       s.capacity,
			AverageConsumption: s.avg,
			FleetID:            &fleetID,
			CreatedAt:          now,
			LastMaintenance:    &serviced,
		})
	}
	return out
}

// DemoHistory synthesizes hourly readings around Bogota covering the given
// number of days before now. Fuel drains through each day and traffic slows
// in rush hours.
func DemoHistory(rng *rand.Rand, vehicles []models.Vehicle, now time.Time, days int) []models.SensorReading {
	var out []models.SensorReading
	for _, v := range vehicles {
		for day := 0; day < days; day++ {
			for hour := 0; hour < 24; hour++ {
				speed := float64(40 + rng.Intn(40))
				if (hour >= 6 && hour <= 9) || (hour >= 17 && hour <= 19) {
					speed = float64(20 + rng.Intn(20))
				}
				fuel := 100 - float64(day*15) - float64(hour*2) + float64(rng.Intn(10)-5)
				if fuel < 5 {
					fuel = 5
				}
				out = append(out, models.SensorReading{
					ID:                 uuid.NewString(),
					VehicleID:          v.ID,
					Latitude:           4.6097 + (rng.Float64()-0.5)*0.1,
					Longitude:          -74.0817 + (rng.Float64()-0.5)*0.1,
					Altitude:           models.Float(float64(2600 + rng.Intn(200) - 100)),
					Speed:              models.Float(speed),
					FuelLevel:          fuel,
					FuelConsumption:    models.Float(v.AverageConsumption * (speed / 60) * (1 + rng.Float64()*0.3)),
					EngineTemperature:  float64(85 + rng.Intn(25) - 10),
					AmbientTemperature: models.Float(float64(18 + rng.Intn(15) - 5)),
					Timestamp:          now.Add(-time.Duration(day*24+23-hour) * time.Hour),
				})
			}
		}
	}
	return out
}

// Seed upserts the demo roster and, when history is true, appends a week of
// hourly readings. It returns the number of vehicles and readings written.
func Seed(ctx context.Context, store Store, rng *rand.Rand, now time.Time, history bool) (int, int, error) {
	vehicles := DemoVehicles(now)
	for _, v := range vehicles {
		if err := store.InsertVehicle(ctx, v); err != nil {
			return 0, 0, fmt.Errorf("insert vehicle %s: %w", v.LicensePlate, err)
		}
	}
	if !history {
		return len(vehicles), 0, nil
	}

	readings := DemoHistory(rng, vehicles, now, 7)
	for _, r := range readings {
		if err := store.AppendReading(ctx, r); err != nil {
			return len(vehicles), 0, err
		}
	}
	if err := store.CommitBatch(ctx); err != nil {
		return len(vehicles), 0, fmt.Errorf("commit history: %w", err)
	}
	return len(vehicles), len(readings), nil
}
