package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/auth"
	"github.com/ukydev/iotfleet/internal/middleware"
	"github.com/ukydev/iotfleet/internal/models"
)

// Deps are the collaborators NewRouter wires into the HTTP surface.
type Deps struct {
	Auth       *auth.Service
	Simulation SimulationController
	Readings   ReadingService
	Vehicles   VehicleLookup
	WS         WSServer
	Logger     log.FieldLogger

	// IngestRateLimit requests per IngestRateWindow and client IP are
	// accepted on POST /api/sensor-data. Zero disables the limit.
	IngestRateLimit  int
	IngestRateWindow time.Duration
}

// Route describes one registered endpoint.
type Route struct {
	Pattern    string
	Method     string
	Permission string
}

// Routes lists the endpoints NewRouter registers, in registration order.
var Routes = []Route{
	{"/api/simulation/start", http.MethodPost, models.ActionControlSimulation},
	{"/api/simulation/stop", http.MethodPost, models.ActionControlSimulation},
	{"/api/simulation/status", http.MethodGet, models.ActionViewTelemetry},
	{"/api/simulation/vehicles", http.MethodGet, models.ActionViewTelemetry},
	{"/api/simulation/realtime-data", http.MethodGet, models.ActionViewTelemetry},
	{"/api/simulation/realtime-data/{vehicleID}", http.MethodGet, models.ActionViewTelemetry},
	{"/api/simulation/diagnostics", http.MethodGet, models.ActionViewDiagnostics},
	{"/api/sensor-data", http.MethodPost, models.ActionIngestReadings},
	{"/api/sensor-data/latest/{vehicleID}", http.MethodGet, models.ActionViewTelemetry},
	{"/api/sensor-data/fuel-alerts", http.MethodGet, models.ActionViewAlerts},
	{"/api/sensor-data/fuel-stats/{vehicleID}", http.MethodGet, models.ActionViewAlerts},
	{"/api/sensor-data/vehicle/{vehicleID}", http.MethodGet, models.ActionViewTelemetry},
	{"/api/sensor-data/fleet/{fleetID}", http.MethodGet, models.ActionViewTelemetry},
	{"/ws", http.MethodGet, models.ActionViewTelemetry},
	{"/health", http.MethodGet, ""},
}

// NewRouter builds the HTTP handler. Every /api route requires a bearer
// token carrying the route's permission.
func NewRouter(d Deps) http.Handler {
	authMW := middleware.NewAuthMiddleware(d.Auth)
	limiter := middleware.NewRateLimitMiddleware()

	sim := NewSimulationHandler(d.Simulation, d.Readings, d.Vehicles)
	sensor := NewSensorHandler(d.Readings)

	handlers := map[string]http.Handler{
		"/api/simulation/start":                     http.HandlerFunc(sim.Start),
		"/api/simulation/stop":                      http.HandlerFunc(sim.Stop),
		"/api/simulation/status":                    http.HandlerFunc(sim.Status),
		"/api/simulation/vehicles":                  http.HandlerFunc(sim.Vehicles),
		"/api/simulation/realtime-data":             http.HandlerFunc(sim.RealtimeData),
		"/api/simulation/realtime-data/{vehicleID}": http.HandlerFunc(sim.RealtimeDataForVehicle),
		"/api/simulation/diagnostics":               http.HandlerFunc(sim.Diagnostics),
		"/api/sensor-data":                          limiter.RateLimit(d.IngestRateLimit, d.IngestRateWindow)(http.HandlerFunc(sensor.Ingest)),
		"/api/sensor-data/latest/{vehicleID}":       http.HandlerFunc(sensor.Latest),
		"/api/sensor-data/fuel-alerts":              http.HandlerFunc(sensor.FuelAlerts),
		"/api/sensor-data/fuel-stats/{vehicleID}":   http.HandlerFunc(sensor.FuelStats),
		"/api/sensor-data/vehicle/{vehicleID}":      http.HandlerFunc(sensor.ByVehicle),
		"/api/sensor-data/fleet/{fleetID}":          http.HandlerFunc(sensor.ByFleet),
		"/ws":                                       NewWSHandler(d.Auth, d.WS),
		"/health":                                   NewHealthHandler(d.Simulation, d.WS),
	}

	mux := http.NewServeMux()
	for _, rt := range Routes {
		h := handlers[rt.Pattern]
		if rt.Permission != "" && rt.Pattern != "/ws" {
			h = authMW.RequirePermission(rt.Permission)(h)
		}
		mux.Handle(rt.Pattern, h)
	}

	return middleware.RequestLogger(d.Logger)(authMW.Authenticate(mux))
}
