package handlers

import (
	"net/http"

	"github.com/fmuellner/telepathy-mission-control/pkg/dispatcher"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: is the process running?
//   - Readiness probe: is the dispatcher accepting new channels?
type HealthHandler struct {
	dispatcher *dispatcher.Dispatcher
	registry   *registry.Registry
}

// NewHealthHandler creates a new health handler. Either argument may be
// nil, in which case readiness reports unhealthy.
func NewHealthHandler(d *dispatcher.Dispatcher, reg *registry.Registry) *HealthHandler {
	return &HealthHandler{dispatcher: d, registry: reg}
}

// Liveness handles GET /health - always succeeds while the process is
// responsive. Intended for Kubernetes liveness probes.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dispatchd",
	}))
}

// Readiness handles GET /health/ready - reports whether the dispatcher
// event loop and client registry are wired up and tracking state.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("dispatcher not initialized"))
		return
	}
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("client registry not initialized"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"active_dispatch_operations": len(h.dispatcher.List()),
	}))
}
