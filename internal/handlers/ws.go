package handlers

import (
	"net/http"

	"github.com/ukydev/iotfleet/internal/auth"
	"github.com/ukydev/iotfleet/internal/models"
)

// WSServer accepts websocket subscribers.
type WSServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, claims *models.Claims)
	ClientCount() int
	// Dropped counts messages discarded for slow subscribers.
	Dropped() int64
}

// WSHandler authenticates and upgrades GET /ws. Browsers cannot set headers
// on a websocket handshake, so the token may also come in the access_token
// query parameter.
type WSHandler struct {
	authService *auth.Service
	server      WSServer
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(authService *auth.Service, server WSServer) *WSHandler {
	return &WSHandler{authService: authService, server: server}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := r.URL.Query().Get("access_token")
	if header := r.Header.Get("Authorization"); header != "" {
		t, err := h.authService.ExtractTokenFromHeader(header)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		token = t
	}
	if token == "" {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	if !claims.HasPermission(models.ActionViewTelemetry) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	h.server.ServeWS(w, r, claims)
}
