package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/db"
	"github.com/ukydev/iotfleet/internal/fuel"
	"github.com/ukydev/iotfleet/internal/ingest"
	"github.com/ukydev/iotfleet/internal/models"
)

// DefaultStatsWindow is the fuel-stats period when from is omitted.
const DefaultStatsWindow = 7 * 24 * time.Hour

// SensorHandler serves /api/sensor-data/*.
type SensorHandler struct {
	readings ReadingService
	now      func() time.Time
}

// NewSensorHandler creates a new sensor data handler
func NewSensorHandler(readings ReadingService) *SensorHandler {
	return &SensorHandler{
		readings: readings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ingest handles POST /api/sensor-data
func (h *SensorHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	var reading models.SensorReading
	if err := json.Unmarshal(body, &reading); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	res, err := h.readings.Ingest(r.Context(), reading)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidReading):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, db.ErrVehicleNotFound):
			http.Error(w, "Vehicle not found", http.StatusNotFound)
		default:
			log.WithError(err).WithField("vehicle_id", reading.VehicleID).Error("Failed to ingest reading")
			http.Error(w, "Failed to store reading", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// Latest handles GET /api/sensor-data/latest/{vehicleID}
func (h *SensorHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	vehicleID := r.PathValue("vehicleID")
	reading, err := h.readings.LatestReading(r.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, db.ErrNoReadings) {
			http.Error(w, "No sensor data found for this vehicle", http.StatusNotFound)
			return
		}
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Failed to load latest reading")
		http.Error(w, "Failed to load latest reading", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// FuelAlerts handles GET /api/sensor-data/fuel-alerts
// Query: fleet_id, vehicle_id, severity, from, to (RFC 3339).
func (h *SensorHandler) FuelAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := ingest.AlertFilter{
		FleetID:   q.Get("fleet_id"),
		VehicleID: q.Get("vehicle_id"),
	}
	if s := q.Get("severity"); s != "" {
		sev := models.Severity(strings.ToUpper(s))
		if !models.IsValidSeverity(sev) {
			http.Error(w, "Invalid severity", http.StatusBadRequest)
			return
		}
		filter.Severity = sev
	}

	var err error
	if filter.From, err = parseTime(q.Get("from")); err != nil {
		http.Error(w, "Invalid from: expected RFC 3339", http.StatusBadRequest)
		return
	}
	if filter.To, err = parseTime(q.Get("to")); err != nil {
		http.Error(w, "Invalid to: expected RFC 3339", http.StatusBadRequest)
		return
	}

	alerts, err := h.readings.FuelAlerts(r.Context(), filter)
	if err != nil {
		log.WithError(err).Error("Failed to evaluate fuel alerts")
		http.Error(w, "Failed to evaluate fuel alerts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// FuelStats handles GET /api/sensor-data/fuel-stats/{vehicleID}
// The period defaults to the last seven days.
func (h *SensorHandler) FuelStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	vehicleID := r.PathValue("vehicleID")
	q := r.URL.Query()

	to := h.now()
	if t, err := parseTime(q.Get("to")); err != nil {
		http.Error(w, "Invalid to: expected RFC 3339", http.StatusBadRequest)
		return
	} else if t != nil {
		to = *t
	}
	from := to.Add(-DefaultStatsWindow)
	if t, err := parseTime(q.Get("from")); err != nil {
		http.Error(w, "Invalid from: expected RFC 3339", http.StatusBadRequest)
		return
	} else if t != nil {
		from = *t
	}
	if from.After(to) {
		http.Error(w, "from must not be after to", http.StatusBadRequest)
		return
	}

	stats, err := h.readings.FuelStatistics(r.Context(), vehicleID, from, to)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrVehicleNotFound):
			http.Error(w, "Vehicle not found", http.StatusNotFound)
		case errors.Is(err, fuel.ErrNoData):
			http.Error(w, "No fuel data found for the specified period", http.StatusNotFound)
		default:
			log.WithError(err).WithField("vehicle_id", vehicleID).Error("Failed to compute fuel statistics")
			http.Error(w, "Failed to compute fuel statistics", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ByVehicle handles GET /api/sensor-data/vehicle/{vehicleID}
// Query: from, to (RFC 3339), page, page_size.
func (h *SensorHandler) ByVehicle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q, err := parseHistoryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vehicleID := r.PathValue("vehicleID")
	page, err := h.readings.ReadingsByVehicle(r.Context(), vehicleID, q)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidQuery):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, db.ErrVehicleNotFound):
			http.Error(w, "Vehicle not found", http.StatusNotFound)
		default:
			log.WithError(err).WithField("vehicle_id", vehicleID).Error("Failed to load reading history")
			http.Error(w, "Failed to load reading history", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ByFleet handles GET /api/sensor-data/fleet/{fleetID}
func (h *SensorHandler) ByFleet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q, err := parseHistoryQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fleetID := r.PathValue("fleetID")
	page, err := h.readings.ReadingsByFleet(r.Context(), fleetID, q)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidQuery) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.WithError(err).WithField("fleet_id", fleetID).Error("Failed to load fleet reading history")
		http.Error(w, "Failed to load reading history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseHistoryQuery(r *http.Request) (ingest.HistoryQuery, error) {
	values := r.URL.Query()
	var (
		q   ingest.HistoryQuery
		err error
	)
	if q.From, err = parseTime(values.Get("from")); err != nil {
		return q, errors.New("invalid from: expected RFC 3339")
	}
	if q.To, err = parseTime(values.Get("to")); err != nil {
		return q, errors.New("invalid to: expected RFC 3339")
	}
	if s := values.Get("page"); s != "" {
		if q.Page, err = strconv.Atoi(s); err != nil {
			return q, errors.New("invalid page")
		}
	}
	if s := values.Get("page_size"); s != "" {
		if q.PageSize, err = strconv.Atoi(s); err != nil {
			return q, errors.New("invalid page_size")
		}
	}
	return q, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
