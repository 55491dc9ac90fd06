package handlers

import (
	"net/http"
	"time"
)

// Version is reported by the health and discovery endpoints
const Version = "1.0.0"

// LivenessSource is the local state /health reports. Reading it must not
// touch the upstream feeds.
type LivenessSource interface {
	CacheStats() (int, int)
	BreakerState() string
}

type HealthHandler struct {
	feeds     LivenessSource
	startTime time.Time
}

func NewHealthHandler(feeds LivenessSource) *HealthHandler {
	return &HealthHandler{feeds: feeds, startTime: time.Now()}
}

// Health is a liveness check. An open breaker marks the process degraded but
// still answers 200: cached data keeps being served.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.feeds.BreakerState()
	status := "OK"
	if state == "open" {
		status = "degraded"
	}
	reference, realtime := h.feeds.CacheStats()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"version":         Version,
		"uptime":          time.Since(h.startTime).Round(time.Second).String(),
		"circuit_breaker": state,
		"cached_stations": map[string]int{
			"reference": reference,
			"realtime":  realtime,
		},
	})
}
