// health_handler.go - HTTP handlers for /health/liveness, /health/readiness, /nodehealth
package server

import (
	"encoding/json"
	"net/http"
)

// LivenessResponse for /health/liveness
type LivenessResponse struct {
	Alive bool `json:"alive"`
}

// ReadinessResponse for /health/readiness
type ReadinessResponse struct {
	Ready bool `json:"ready"`
}

// NodeLiveness returns true while the process is serving requests.
func (s *Server) NodeLiveness() bool {
	return true
}

// NodeReadiness returns true once the store is reachable; without it the
// registry cannot answer and verification would fail closed on every scan.
func (s *Server) NodeReadiness() bool {
	return s.GetNodeMetrics().StoreOK
}

// HandleLiveness responds to /health/liveness
func (s *Server) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{Alive: s.NodeLiveness()}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleReadiness responds to /health/readiness
func (s *Server) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{Ready: s.NodeReadiness()}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// NodeHealthResponse is the response type for the /nodehealth endpoint
type NodeHealthResponse struct {
	Status  string      `json:"status"`
	Metrics NodeMetrics `json:"metrics"`
}

// HandleNodeHealth responds to /nodehealth (summary health)
func (s *Server) HandleNodeHealth(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()

	status := "healthy"
	if !metrics.StoreOK {
		status = "degraded"
	} else if metrics.PendingAnchors > 1000 {
		status = "anchor-backlog"
	}

	resp := NodeHealthResponse{Status: status, Metrics: metrics}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
