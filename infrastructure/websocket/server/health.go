package server

import (
	"chat-signal/observability"
	"encoding/json"
	"net/http"
)

type HealthHandler struct {
	monitoring *observability.MonitoringManager
}

func NewHealthHandler(monitoring *observability.MonitoringManager) *HealthHandler {
	return &HealthHandler{monitoring: monitoring}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status string                        `json:"status"`
		Stats  observability.MonitoringStats `json:"stats"`
	}{Status: "ok", Stats: h.monitoring.GetLatest()})
}
