package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/originblock/blockcache/pkg/originmap"
	"github.com/originblock/blockcache/pkg/store/block"
)

// HealthCheckTimeout is the maximum time allowed for health check operations.
// This timeout applies to store health checks to prevent a slow block store
// from blocking health probes indefinitely.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the server ready to accept requests?
//   - Store health: Detailed health status of the block store
type HealthHandler struct {
	origins *originmap.Map
	store   block.Store
}

// NewHealthHandler creates a new health handler.
//
// origins and store may be nil, in which case readiness and store health
// checks will return unhealthy status.
func NewHealthHandler(origins *originmap.Map, store block.Store) *HealthHandler {
	return &HealthHandler{origins: origins, store: store}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. This endpoint is designed
// for Kubernetes liveness probes and should always succeed as long as the
// HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "blockcached",
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK if the server is ready to accept requests: the origin map
// is initialized and at least one origin is configured.
//
// Returns 503 Service Unavailable if the server is not ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.origins == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("origin map not initialized"))
		return
	}

	count := h.origins.Count()
	if count == 0 {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no origins configured"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"origins": count,
	}))
}

// StoreHealth represents the health status of a single store.
type StoreHealth struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// StoresResponse represents the detailed store health response.
type StoresResponse struct {
	BlockStore *StoreHealth `json:"block_store,omitempty"`
}

// Stores handles GET /health/stores - detailed store health.
//
// Checks the health of the block store by calling its HealthCheck method.
//
// Returns 200 OK if the store is healthy, 503 Service Unavailable otherwise.
func (h *HealthHandler) Stores(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("block store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := h.store.HealthCheck(ctx)
	latency := time.Since(start)

	blockHealth := &StoreHealth{
		Name:    "block-store",
		Type:    "block",
		Latency: latency.String(),
	}

	response := StoresResponse{BlockStore: blockHealth}

	if err != nil {
		blockHealth.Status = "unhealthy"
		blockHealth.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(response))
		return
	}

	blockHealth.Status = "healthy"
	writeJSON(w, http.StatusOK, healthyResponse(response))
}
