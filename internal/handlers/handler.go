package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MeiCorl/mall-relay/internal/broker"
	"github.com/MeiCorl/mall-relay/internal/relay"
	"github.com/MeiCorl/mall-relay/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	registry  *relay.Registry
	broker    *broker.Broker
	directory store.Directory // may be nil
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(registry *relay.Registry, b *broker.Broker, directory store.Directory) *Handler {
	return &Handler{registry: registry, broker: b, directory: directory}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
