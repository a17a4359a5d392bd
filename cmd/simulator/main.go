// Command simulator stands in for real vehicle gateways: it drives each
// configured vehicle along a catalog route and submits readings to the
// ingestion endpoint, or to the MQTT broker when MQTT_BROKER is set.
package main

import (
	"context"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/catalog"
	"github.com/ukydev/iotfleet/internal/db"
	"github.com/ukydev/iotfleet/internal/geo"
	"github.com/ukydev/iotfleet/internal/models"
)

// VehicleState is the emulator's view of one device.
type VehicleState struct {
	VehicleID string
	Route     catalog.Route
	SegIndex  int
	SegOffset float64 // km along current segment
	Position  models.Location
	SpeedKmh  float64
	FuelPct   float64

	rng *rand.Rand
}

func newVehicleState(vehicleID string, seed int64) *VehicleState {
	rng := rand.New(rand.NewSource(seed))
	route := catalog.RandomRoute(rng)
	return &VehicleState{
		VehicleID: vehicleID,
		Route:     route,
		Position:  route.Waypoints[0],
		SpeedKmh:  30 + rng.Float64()*30,
		FuelPct:   50 + rng.Float64()*50,
		rng:       rng,
	}
}

// reverse turns the vehicle around at the end of its route.
func (s *VehicleState) reverse() {
	n := len(s.Route.Waypoints)
	pts := make([]models.Location, n)
	for i, p := range s.Route.Waypoints {
		pts[n-1-i] = p
	}
	s.Route.Waypoints = pts
	s.SegIndex = 0
	s.SegOffset = 0
}

func stepAlongRoute(s *VehicleState, tickSec float64) {
	remKm := s.SpeedKmh * (tickSec / 3600.0)
	pts := s.Route.Waypoints
	for remKm > 0 && s.SegIndex < len(pts)-1 {
		a := pts[s.SegIndex]
		b := pts[s.SegIndex+1]
		segLen := geo.HaversineKm(a, b)
		leftOnSeg := segLen - s.SegOffset
		if remKm >= leftOnSeg {
			// advance to next segment
			s.Position = b
			s.SegIndex++
			s.SegOffset = 0
			remKm -= leftOnSeg
			continue
		}
		s.SegOffset += remKm
		s.Position = geo.Lerp(a, b, s.SegOffset/segLen)
		remKm = 0
	}
	if s.SegIndex >= len(pts)-1 {
		s.reverse()
	}
}

func (s *VehicleState) tick(tickSec float64) {
	// small speed noise
	s.SpeedKmh += (s.rng.Float64()*2 - 1) * 1.5
	s.SpeedKmh = math.Max(15, math.Min(90, s.SpeedKmh))

	stepAlongRoute(s, tickSec)

	km := s.SpeedKmh * (tickSec / 3600.0)
	s.FuelPct -= km * 0.4
	if s.FuelPct < 2 {
		// refuel
		s.FuelPct = 100
	}
}

func readingFromState(s *VehicleState, now time.Time) models.SensorReading {
	pos := geo.JitterLocation(s.rng, s.Position, 5)
	return models.SensorReading{
		VehicleID:          s.VehicleID,
		Latitude:           pos.Lat,
		Longitude:          pos.Lon,
		Altitude:           models.Float(2600 + (s.rng.Float64()*2-1)*10),
		Speed:              models.Float(s.SpeedKmh),
		FuelLevel:          s.FuelPct,
		FuelConsumption:    models.Float(6 + s.SpeedKmh*0.05),
		EngineTemperature:  85 + (s.rng.Float64()*2-1)*3,
		AmbientTemperature: models.Float(18 + s.rng.Float64()*6),
		Timestamp:          now.UTC(),
	}
}

func simulateVehicle(ctx context.Context, pub Publisher, s *VehicleState, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			s.tick(interval.Seconds())
			r := readingFromState(s, now)
			if err := pub.Publish(ctx, r); err != nil {
				log.WithError(err).WithField("vehicle_id", s.VehicleID).Error("Failed to send reading")
				continue
			}
			log.WithFields(log.Fields{
				"vehicle_id": s.VehicleID,
				"fuel_level": math.Round(r.FuelLevel*10) / 10,
			}).Debug("Sent reading")
		}
	}
}

// parseVehicleIDs splits a comma separated list; empty input yields the demo roster.
func parseVehicleIDs(v string) []string {
	var ids []string
	for _, id := range strings.Split(v, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		for _, dv := range db.DemoVehicles(time.Now()) {
			ids = append(ids, dv.ID)
		}
	}
	return ids
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if lvl, err := log.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}

	interval := 2 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	ids := parseVehicleIDs(os.Getenv("VEHICLE_IDS"))

	var pub Publisher
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		mp, err := newMQTTPublisher(broker, getEnv("MQTT_CLIENT_ID", "iotfleet-device-emulator"))
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to MQTT broker")
		}
		defer mp.Close()
		pub = mp
		log.WithField("broker", broker).Info("Publishing readings over MQTT")
	} else {
		apiURL := getEnv("API_BASE_URL", "http://localhost:8080/api")
		pub = newHTTPPublisher(apiURL, os.Getenv("SIM_AUTH_TOKEN"))
		log.WithField("api_url", apiURL).Info("Posting readings over HTTP")
	}

	log.WithFields(log.Fields{
		"vehicles": len(ids),
		"interval": interval,
	}).Info("Starting device emulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed := time.Now().UnixNano()
	var wg sync.WaitGroup
	for i, id := range ids {
		s := newVehicleState(id, seed+int64(i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			simulateVehicle(ctx, pub, s, interval)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	log.Info("Device emulation stopped")
}
