// status_handler.go - HTTP handler for /status
package server

import (
	"encoding/json"
	"net/http"
)

// StatusResponse represents the JSON structure for the /status endpoint
type StatusResponse struct {
	Status         string      `json:"status"`
	Uptime         int64       `json:"uptime_seconds"`
	PendingAnchors int         `json:"pending_anchors"`
	Version        string      `json:"version"`
	APIVersion     string      `json:"api_version"`
	Metrics        NodeMetrics `json:"metrics"`
}

// NodeVersion returns the current node software version.
func NodeVersion() string {
	return "v0.1.0"
}

// APIVersion returns the current API version.
func APIVersion() string {
	return "v1"
}

// HandleStatus responds to /status with node status
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()

	status := "healthy"
	if !metrics.StoreOK {
		status = "degraded"
	}

	resp := StatusResponse{
		Status:         status,
		Uptime:         metrics.UptimeSeconds,
		PendingAnchors: metrics.PendingAnchors,
		Version:        NodeVersion(),
		APIVersion:     APIVersion(),
		Metrics:        metrics,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
