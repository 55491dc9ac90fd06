package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/geo"
	"github.com/randytsao24/velib/internal/models"
	"github.com/randytsao24/velib/internal/query"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

type StationHandler struct {
	q StationQuerier
}

func NewStationHandler(q StationQuerier) *StationHandler {
	return &StationHandler{q: q}
}

// GetNearby returns operational stations around lat/lon
// Query params: lat, lon, radius (meters), limit, bike_type, min_bikes, min_docks
func (h *StationHandler) GetNearby(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	req := query.NearbyRequest{
		Latitude:     p.requiredFloat("lat"),
		Longitude:    p.requiredFloat("lon"),
		RadiusMeters: p.integer("radius"),
		Limit:        p.integer("limit"),
	}
	if p.has("bike_type") || p.has("min_bikes") || p.has("min_docks") {
		req.Filter = &query.AvailabilityFilter{
			BikeType: models.BikeTypeFilter(p.str("bike_type")),
			MinBikes: p.integer("min_bikes"),
			MinDocks: p.integer("min_docks"),
		}
	}
	if p.err != nil {
		writeError(w, r, p.err)
		return
	}

	result, err := h.q.FindNearbyStations(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"stations":        result.Stations,
		"search_metadata": result.Metadata,
	})
}

// GetByCode returns one station; unknown codes are a 404
func (h *StationHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	req := query.CodeRequest{
		StationCode:     chi.URLParam(r, "code"),
		IncludeRealtime: p.boolean("realtime", true),
	}
	if p.err != nil {
		writeError(w, r, p.err)
		return
	}

	result, err := h.q.GetStationByCode(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Found {
		writeError(w, r, apperr.NotFound(req.StationCode))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"station": result.Station,
	})
}

// Search matches station names
// Query params: q, limit, fuzzy
func (h *StationHandler) Search(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	req := query.NameRequest{
		Query: p.values.Get("q"),
		Limit: p.integer("limit"),
		Fuzzy: p.boolean("fuzzy", true),
	}
	if p.err != nil {
		writeError(w, r, p.err)
		return
	}

	result, err := h.q.SearchStationsByName(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"stations":        result.Stations,
		"search_metadata": result.Metadata,
	})
}

// GetArea aggregates availability inside a bounding box
// Query params: north, south, east, west, realtime
func (h *StationHandler) GetArea(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	req := query.AreaRequest{
		Bounds: geo.Bounds{
			North: p.requiredFloat("north"),
			South: p.requiredFloat("south"),
			East:  p.requiredFloat("east"),
			West:  p.requiredFloat("west"),
		},
		IncludeRealtime: p.boolean("realtime", true),
	}
	if p.err != nil {
		writeError(w, r, p.err)
		return
	}

	result, err := h.q.GetAreaStatistics(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"area_stats": result.Stats,
		"bounds":     result.Bounds,
	})
}

// PlanJourney accepts a JSON journey request body
func (h *StationHandler) PlanJourney(w http.ResponseWriter, r *http.Request) {
	var req query.JourneyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindJSON, err, "invalid journey request body"))
		return
	}
	h.planJourney(w, r, req)
}

// PlanJourneyQuery is the query string form of PlanJourney
// Query params: from_lat, from_lon, to_lat, to_lon, bike_type, max_walk
func (h *StationHandler) PlanJourneyQuery(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	req := query.JourneyRequest{
		Origin:      models.Coordinates{Latitude: p.requiredFloat("from_lat"), Longitude: p.requiredFloat("from_lon")},
		Destination: models.Coordinates{Latitude: p.requiredFloat("to_lat"), Longitude: p.requiredFloat("to_lon")},
	}
	if p.has("bike_type") || p.has("max_walk") {
		req.Preferences = &query.JourneyPreferences{
			BikeType:        models.BikeTypeFilter(p.str("bike_type")),
			MaxWalkDistance: p.integer("max_walk"),
		}
	}
	if p.err != nil {
		writeError(w, r, p.err)
		return
	}
	h.planJourney(w, r, req)
}

func (h *StationHandler) planJourney(w http.ResponseWriter, r *http.Request, req query.JourneyRequest) {
	result, err := h.q.PlanBikeJourney(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"journey": result.Journey,
	})
}
