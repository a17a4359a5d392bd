package handlers

import (
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/db"
	"github.com/ukydev/iotfleet/internal/models"
	"github.com/ukydev/iotfleet/internal/simulation"
)

// RealtimeData is the latest reading of a vehicle joined with its metadata.
type RealtimeData struct {
	VehicleID          string    `json:"vehicle_id"`
	LicensePlate       string    `json:"license_plate"`
	Brand              string    `json:"brand"`
	Model              string    `json:"model"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           *float64  `json:"altitude,omitempty"`
	Speed              *float64  `json:"speed,omitempty"`
	FuelLevel          float64   `json:"fuel_level"`
	FuelConsumption    *float64  `json:"fuel_consumption,omitempty"`
	EngineTemperature  float64   `json:"engine_temperature"`
	AmbientTemperature *float64  `json:"ambient_temperature,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

func newRealtimeData(v models.Vehicle, r models.SensorReading) RealtimeData {
	return RealtimeData{
		VehicleID:          v.ID,
		LicensePlate:       v.LicensePlate,
		Brand:              v.Brand,
		Model:              v.Model,
		Latitude:           r.Latitude,
		Longitude:          r.Longitude,
		Altitude:           r.Altitude,
		Speed:              r.Speed,
		FuelLevel:          r.FuelLevel,
		FuelConsumption:    r.FuelConsumption,
		EngineTemperature:  r.EngineTemperature,
		AmbientTemperature: r.AmbientTemperature,
		Timestamp:          r.Timestamp,
	}
}

// SimulationHandler serves /api/simulation/*.
type SimulationHandler struct {
	controller SimulationController
	readings   ReadingService
	vehicles   VehicleLookup
}

// NewSimulationHandler creates a new simulation handler
func NewSimulationHandler(controller SimulationController, readings ReadingService, vehicles VehicleLookup) *SimulationHandler {
	return &SimulationHandler{
		controller: controller,
		readings:   readings,
		vehicles:   vehicles,
	}
}

// Start handles POST /api/simulation/start
func (h *SimulationHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.controller.Start(r.Context()); err != nil {
		if errors.Is(err, simulation.ErrNoVehicles) {
			http.Error(w, "No vehicles to simulate", http.StatusConflict)
			return
		}
		log.WithError(err).Error("Failed to start simulation")
		http.Error(w, "Failed to start simulation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Simulation started successfully"})
}

// Stop handles POST /api/simulation/stop
func (h *SimulationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.controller.Stop()
	writeJSON(w, http.StatusOK, messageResponse{Message: "Simulation stopped successfully"})
}

// Status handles GET /api/simulation/status
func (h *SimulationHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// Vehicles handles GET /api/simulation/vehicles
func (h *SimulationHandler) Vehicles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	vehicles := h.controller.ListSimulatedVehicles()
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// RealtimeData handles GET /api/simulation/realtime-data
func (h *SimulationHandler) RealtimeData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	readings, err := h.controller.LatestReadings(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to load realtime data")
		http.Error(w, "Failed to load realtime data", http.StatusInternalServerError)
		return
	}
	vehicles, err := h.vehicles.ListVehicles(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to list vehicles")
		http.Error(w, "Failed to load realtime data", http.StatusInternalServerError)
		return
	}

	byID := make(map[string]models.Vehicle, len(vehicles))
	for _, v := range vehicles {
		byID[v.ID] = v
	}

	out := make([]RealtimeData, 0, len(readings))
	for _, rd := range readings {
		v, ok := byID[rd.VehicleID]
		if !ok {
			v = models.Vehicle{ID: rd.VehicleID}
		}
		out = append(out, newRealtimeData(v, rd))
	}
	writeJSON(w, http.StatusOK, out)
}

// RealtimeDataForVehicle handles GET /api/simulation/realtime-data/{vehicleID}
func (h *SimulationHandler) RealtimeDataForVehicle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	vehicleID := r.PathValue("vehicleID")
	vehicle, err := h.vehicles.FindVehicleByID(r.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, db.ErrVehicleNotFound) {
			http.Error(w, "Vehicle not found", http.StatusNotFound)
			return
		}
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Failed to find vehicle")
		http.Error(w, "Failed to load realtime data", http.StatusInternalServerError)
		return
	}

	reading, err := h.readings.LatestReading(r.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, db.ErrNoReadings) {
			http.Error(w, "No sensor data found for this vehicle", http.StatusNotFound)
			return
		}
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Failed to load latest reading")
		http.Error(w, "Failed to load realtime data", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newRealtimeData(*vehicle, *reading))
}

// Diagnostics handles GET /api/simulation/diagnostics
func (h *SimulationHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d, err := h.controller.Diagnostics(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to collect diagnostics")
		http.Error(w, "Failed to collect diagnostics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
