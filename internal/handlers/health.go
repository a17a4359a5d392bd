package handlers

import (
	"net/http"
	"time"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status            string    `json:"status"`
	Time              time.Time `json:"time"`
	SimulationRunning bool      `json:"simulation_running"`
	WebsocketClients  int       `json:"websocket_clients"`
	DroppedMessages   int64     `json:"dropped_messages"`
}

// HealthHandler reports liveness without touching storage.
type HealthHandler struct {
	controller SimulationController
	server     WSServer
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(controller SimulationController, server WSServer) *HealthHandler {
	return &HealthHandler{controller: controller, server: server}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{Status: "healthy", Time: time.Now().UTC()}
	if h.controller != nil {
		resp.SimulationRunning = h.controller.IsRunning()
	}
	if h.server != nil {
		resp.WebsocketClients = h.server.ClientCount()
		resp.DroppedMessages = h.server.Dropped()
	}
	writeJSON(w, http.StatusOK, resp)
}
