package api

import (
	"net/http"

	"github.com/sungwon/lead-relay/internal/provider"
)

// HealthzHandler handles GET /healthz.
// Always returns 200 OK with {"status":"ok"}.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz.
// Checks ESP reachability via the provider health check.
// Returns 200 if healthy, 503 with Retry-After header if unhealthy.
func ReadyzHandler(esp provider.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if esp == nil {
			w.Header().Set("Retry-After", "30")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no provider configured"})
			return
		}
		if err := esp.HealthCheck(r.Context()); err != nil {
			w.Header().Set("Retry-After", "30")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "provider unavailable"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
