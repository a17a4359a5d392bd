// Package geo holds the small amount of spherical geometry the simulator needs.
package geo

import (
	"math"
	"math/rand"

	"github.com/ukydev/iotfleet/internal/models"
)

// EarthRadiusKm is the mean earth radius used by HaversineKm.
const EarthRadiusKm = 6371.0

const metersPerDegree = 111320.0

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b models.Location) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return EarthRadiusKm * c
}

// Lerp interpolates linearly between a and b. t is clamped to [0,1].
func Lerp(a, b models.Location, t float64) models.Location {
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return models.Location{Lat: a.Lat + (b.Lat-a.Lat)*t, Lon: a.Lon + (b.Lon-a.Lon)*t}
}

// BearingDeg returns the initial compass bearing from a to b in [0,360).
// Identical points yield 0.
func BearingDeg(a, b models.Location) float64 {
	if a == b {
		return 0
	}
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// JitterLocation moves base by up to meters in each axis.
func JitterLocation(rng *rand.Rand, base models.Location, meters float64) models.Location {
	lonMetersPerDeg := metersPerDegree * math.Cos(toRad(base.Lat))
	dLat := (rng.Float64()*2 - 1) * (meters / metersPerDegree)
	dLon := (rng.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return models.Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}
