package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// respondText writes a plaintext response with the given status code.
// The webhook caller only ever gets a status code and a short line; all
// diagnostic detail stays in the logs.
func respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, message)
}

// respondJSON writes a JSON response with the given status code and data.
// Used by the operational endpoints (health, readiness).
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
