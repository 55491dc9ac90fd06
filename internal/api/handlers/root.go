package handlers

import (
	"net/http"

	"github.com/randytsao24/velib/internal/query"
)

type RootHandler struct{}

func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

func (h *RootHandler) Index(w http.ResponseWriter, r *http.Request) {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "velib",
		"description": "Real-time Velib Metropole bike-share station search for Paris",
		"version":     Version,
		"endpoints": map[string]string{
			"GET /":                    "API information",
			"GET /api":                 "API information",
			"GET /health":              "Liveness check",
			"GET /api/stations/nearby": "Stations near a point (lat, lon, radius, limit, bike_type, min_bikes, min_docks)",
			"GET /api/stations/search": "Search stations by name (q, limit, fuzzy)",
			"GET /api/stations/area":   "Statistics for a bounding box (north, south, east, west, realtime)",
			"GET /api/stations/{code}": "One station by code (realtime)",
			"GET /api/journey":         "Journey plan (from_lat, from_lon, to_lat, to_lon, bike_type, max_walk)",
			"POST /api/journey":        "Journey plan from a JSON body",
			"GET /resources/reference": "Reference data for every station",
			"GET /resources/realtime":  "Real-time availability for every station",
			"GET /resources/complete":  "Merged reference and real-time data",
			"GET /resources/health":    "Cache, circuit breaker and upstream status",
			"POST /rpc":                "JSON-RPC 2.0 (initialize, tools/list, tools/call, resources/list, resources/read)",
		},
		"tools": names,
		"limits": map[string]int{
			"max_search_radius_meters": query.MaxSearchRadius,
			"max_result_limit":         query.MaxResultLimit,
			"max_name_results":         query.MaxNameResults,
			"min_query_length":         query.MinQueryLength,
			"max_walk_distance_meters": query.MaxWalkDistance,
			"journey_candidates":       query.JourneyCandidates,
		},
		"defaults": map[string]int{
			"radius_meters":     query.DefaultRadius,
			"limit":             query.DefaultLimit,
			"max_walk_distance": query.DefaultWalkDistance,
		},
	})
}

func (h *RootHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":   "Route not found",
		"message": "Check the root endpoint (/api) for available routes",
	})
}
