package fuel

import (
	"errors"
	"sort"
	"time"

	"github.com/ukydev/iotfleet/internal/models"
)

// ErrNoData is returned by Statistics when no reading falls in the period.
var ErrNoData = errors.New("no sensor data in period")

// Statistics aggregates the readings of vehicleID whose timestamp lies in
// [from, to]. Readings of other vehicles are ignored.
func Statistics(vehicleID string, readings []models.SensorReading, from, to time.Time) (models.FuelStatistics, error) {
	in := make([]models.SensorReading, 0, len(readings))
	for _, r := range readings {
		if r.VehicleID != vehicleID {
			continue
		}
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		in = append(in, r)
	}
	if len(in) == 0 {
		return models.FuelStatistics{}, ErrNoData
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].Timestamp.Before(in[j].Timestamp) })

	stats := models.FuelStatistics{
		VehicleID:       vehicleID,
		MinFuelLevel:    in[0].FuelLevel,
		MaxFuelLevel:    in[0].FuelLevel,
		DataPointsCount: len(in),
		PeriodStart:     from,
		PeriodEnd:       to,
	}

	var sum, consumptionSum float64
	var consumptionCount int
	for _, r := range in {
		sum += r.FuelLevel
		if r.FuelLevel < stats.MinFuelLevel {
			stats.MinFuelLevel = r.FuelLevel
		}
		if r.FuelLevel > stats.MaxFuelLevel {
			stats.MaxFuelLevel = r.FuelLevel
		}
		if r.FuelConsumption != nil {
			consumptionSum += *r.FuelConsumption
			consumptionCount++
		}
	}
	stats.AverageFuelLevel = sum / float64(len(in))
	stats.TotalFuelConsumed = in[0].FuelLevel - in[len(in)-1].FuelLevel
	if consumptionCount > 0 {
		stats.AverageConsumption = consumptionSum / float64(consumptionCount)
	}
	return stats, nil
}
