// Package catalog contains the built-in routes and driver behavior profiles
// the simulator draws from. Both sets are fixed at compile time.
package catalog

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/ukydev/iotfleet/internal/geo"
	"github.com/ukydev/iotfleet/internal/models"
)

// Route is a named polyline of waypoints.
type Route struct {
	Name      string            `json:"name"`
	Waypoints []models.Location `json:"waypoints"`
}

// LengthKm sums the haversine length of every segment.
func (r Route) LengthKm() float64 {
	total := 0.0
	for i := 0; i+1 < len(r.Waypoints); i++ {
		total += geo.HaversineKm(r.Waypoints[i], r.Waypoints[i+1])
	}
	return total
}

// Behavior is a driver profile applied to the speed model.
type Behavior struct {
	Name            string  `json:"name"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
	StopProbability float64 `json:"stop_probability"`
}

// Bogota city routes
var routes = []Route{
	{
		Name: "Route1",
		Waypoints: []models.Location{
			{Lat: 4.60971, Lon: -74.08175},
			{Lat: 4.6112, Lon: -74.0815},
			{Lat: 4.6127, Lon: -74.08125},
			{Lat: 4.6142, Lon: -74.081},
			{Lat: 4.6157, Lon: -74.08075},
			{Lat: 4.6172, Lon: -74.0805},
			{Lat: 4.6187, Lon: -74.08025},
			{Lat: 4.6202, Lon: -74.08},
		},
	},
	{
		Name: "Route2",
		Waypoints: []models.Location{
			{Lat: 4.6, Lon: -74.09},
			{Lat: 4.601, Lon: -74.088},
			{Lat: 4.602, Lon: -74.086},
			{Lat: 4.603, Lon: -74.084},
			{Lat: 4.604, Lon: -74.082},
			{Lat: 4.605, Lon: -74.08},
			{Lat: 4.606, Lon: -74.078},
		},
	},
	{
		Name: "Route3",
		Waypoints: []models.Location{
			{Lat: 4.608, Lon: -74.088},
			{Lat: 4.61, Lon: -74.086},
			{Lat: 4.612, Lon: -74.084},
			{Lat: 4.614, Lon: -74.082},
			{Lat: 4.616, Lon: -74.08},
			{Lat: 4.618, Lon: -74.078},
			{Lat: 4.62, Lon: -74.076},
		},
	},
}

var behaviors = []Behavior{
	{Name: "aggressive", SpeedMultiplier: 1.3, StopProbability: 0.05},
	{Name: "normal", SpeedMultiplier: 1.0, StopProbability: 0.15},
	{Name: "cautious", SpeedMultiplier: 0.7, StopProbability: 0.25},
}

func init() {
	for _, r := range routes {
		if len(r.Waypoints) < 2 {
			panic(fmt.Sprintf("catalog: route %s needs at least 2 waypoints", r.Name))
		}
	}
}

// Routes returns a copy of the built-in routes, sorted by name.
func Routes() []Route {
	out := make([]Route, len(routes))
	for i, r := range routes {
		out[i] = Route{Name: r.Name, Waypoints: append([]models.Location(nil), r.Waypoints...)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RouteByName looks up a route by name.
func RouteByName(name string) (Route, bool) {
	for _, r := range routes {
		if r.Name == name {
			return Route{Name: r.Name, Waypoints: append([]models.Location(nil), r.Waypoints...)}, true
		}
	}
	return Route{}, false
}

// Behaviors returns the built-in driver profiles.
func Behaviors() []Behavior {
	return append([]Behavior(nil), behaviors...)
}

// BehaviorByName looks up a driver profile by name.
func BehaviorByName(name string) (Behavior, bool) {
	for _, b := range behaviors {
		if b.Name == name {
			return b, true
		}
	}
	return Behavior{}, false
}

// RandomRoute picks a route uniformly.
func RandomRoute(rng *rand.Rand) Route {
	r := routes[rng.Intn(len(routes))]
	return Route{Name: r.Name, Waypoints: append([]models.Location(nil), r.Waypoints...)}
}

// RandomBehavior picks a driver profile uniformly.
func RandomBehavior(rng *rand.Rand) Behavior {
	return behaviors[rng.Intn(len(behaviors))]
}
