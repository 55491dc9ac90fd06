// Package query answers station queries over the aggregator's merged view.
package query

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/geo"
	"github.com/randytsao24/velib/internal/models"
	"github.com/randytsao24/velib/internal/velib"
)

// Hard limits enforced on every query
const (
	MaxSearchRadius   = 5000
	MaxResultLimit    = 100
	MaxNameResults    = 50
	MinQueryLength    = 2
	MaxWalkDistance   = 2000
	JourneyCandidates = 3
)

// Defaults applied when a request leaves a field unset
const (
	DefaultRadius       = 500
	DefaultLimit        = 10
	DefaultWalkDistance = 500
)

// StationSource provides the merged station view
type StationSource interface {
	GetAllStations(ctx context.Context, includeRealtime bool) (velib.Snapshot, error)
	GetStationByCode(ctx context.Context, code string, includeRealtime bool) (*models.Station, error)
}

// Engine runs read-only queries against a StationSource
type Engine struct {
	source StationSource
}

// NewEngine creates a new query engine
func NewEngine(source StationSource) *Engine {
	return &Engine{source: source}
}

// AvailabilityFilter narrows nearby results to stations with live availability
type AvailabilityFilter struct {
	MinBikes int                   `json:"min_bikes,omitempty"`
	MinDocks int                   `json:"min_docks,omitempty"`
	BikeType models.BikeTypeFilter `json:"bike_type,omitempty"`
}

func (f *AvailabilityFilter) matches(s models.Station) bool {
	if f == nil {
		return true
	}
	if f.MinBikes > 0 || (f.BikeType != "" && f.BikeType != models.BikeTypeAny) {
		if !s.HasBikes(f.BikeType, f.MinBikes) {
			return false
		}
	}
	if f.MinDocks > 0 && !s.HasDocks(f.MinDocks) {
		return false
	}
	return true
}

// NearbyRequest is the input of FindNearbyStations
type NearbyRequest struct {
	Latitude     float64             `json:"latitude"`
	Longitude    float64             `json:"longitude"`
	RadiusMeters int                 `json:"radius_meters"`
	Limit        int                 `json:"limit"`
	Filter       *AvailabilityFilter `json:"availability_filter,omitempty"`
}

// SearchMetadata describes a nearby search
type SearchMetadata struct {
	QueryPoint   models.Coordinates `json:"query_point"`
	RadiusMeters int                `json:"radius_meters"`
	TotalFound   int                `json:"total_found"`
	SearchTimeMs int64              `json:"search_time_ms"`
}

// NearbyResult is the output of FindNearbyStations
type NearbyResult struct {
	Stations []models.StationWithDistance `json:"stations"`
	Metadata SearchMetadata               `json:"search_metadata"`
}

// FindNearbyStations returns operational stations within the radius, nearest
// first. TotalFound counts matches before the limit is applied.
func (e *Engine) FindNearbyStations(ctx context.Context, req NearbyRequest) (*NearbyResult, error) {
	start := time.Now()

	if req.RadiusMeters == 0 {
		req.RadiusMeters = DefaultRadius
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.RadiusMeters > MaxSearchRadius {
		return nil, apperr.RadiusTooLarge(req.RadiusMeters, MaxSearchRadius)
	}
	if req.RadiusMeters < 0 {
		return nil, apperr.Validation("radius_meters", req.RadiusMeters, "radius must be positive")
	}
	if req.Limit > MaxResultLimit {
		return nil, apperr.LimitExceeded(req.Limit, MaxResultLimit)
	}
	if req.Limit < 0 {
		return nil, apperr.Validation("limit", req.Limit, "limit must be positive")
	}
	center := models.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude}
	if err := geo.ValidatePoint("coordinates", center); err != nil {
		return nil, err
	}
	if req.Filter != nil {
		if req.Filter.MinBikes < 0 || req.Filter.MinDocks < 0 {
			return nil, apperr.Validation("availability_filter", req.Filter, "minimum counts must not be negative")
		}
		bikeType, err := models.ParseBikeTypeFilter(string(req.Filter.BikeType))
		if err != nil {
			return nil, err
		}
		f := *req.Filter
		f.BikeType = bikeType
		req.Filter = &f
	}

	snap, err := e.source.GetAllStations(ctx, true)
	if err != nil {
		return nil, err
	}

	results := within(snap.Stations, center, float64(req.RadiusMeters), func(s models.Station) bool {
		return s.IsOperational() && req.Filter.matches(s)
	})
	total := len(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	return &NearbyResult{
		Stations: results,
		Metadata: SearchMetadata{
			QueryPoint:   center,
			RadiusMeters: req.RadiusMeters,
			TotalFound:   total,
			SearchTimeMs: time.Since(start).Milliseconds(),
		},
	}, nil
}

// within returns the stations within radius of center that satisfy keep,
// sorted by distance with ties broken by station code. Stations carrying a
// geohash are prefiltered against the cells covering the search disk.
func within(stations []models.Station, center models.Coordinates, radius float64, keep func(models.Station) bool) []models.StationWithDistance {
	cells := geo.CoveringCells(center, radius)

	results := []models.StationWithDistance{}
	for _, s := range stations {
		if s.Reference.Geohash != "" && !geo.InCells(s.Reference.Geohash, cells) {
			continue
		}
		dist := geo.Distance(center, s.Reference.Coordinates)
		if dist > radius || !keep(s) {
			continue
		}
		results = append(results, models.StationWithDistance{
			Station:        s,
			DistanceMeters: dist,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceMeters != results[j].DistanceMeters {
			return results[i].DistanceMeters < results[j].DistanceMeters
		}
		return results[i].Code() < results[j].Code()
	})
	return results
}

// CodeRequest is the input of GetStationByCode
type CodeRequest struct {
	StationCode     string `json:"station_code"`
	IncludeRealtime bool   `json:"include_real_time"`
}

// CodeResult is the output of GetStationByCode. Found is false for unknown codes.
type CodeResult struct {
	Station *models.Station `json:"station"`
	Found   bool            `json:"found"`
}

// GetStationByCode looks up one station
func (e *Engine) GetStationByCode(ctx context.Context, req CodeRequest) (*CodeResult, error) {
	code := strings.TrimSpace(req.StationCode)
	if code == "" {
		return nil, apperr.Validation("station_code", req.StationCode, "station code must not be empty")
	}

	station, err := e.source.GetStationByCode(ctx, code, req.IncludeRealtime)
	if err != nil {
		return nil, err
	}
	return &CodeResult{Station: station, Found: station != nil}, nil
}

// NameRequest is the input of SearchStationsByName
type NameRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	// Fuzzy matches anywhere in the name; otherwise only name prefixes match
	Fuzzy bool `json:"fuzzy"`
}

// TextSearchMetadata describes a name search
type TextSearchMetadata struct {
	Query        string `json:"query"`
	TotalFound   int    `json:"total_found"`
	FuzzyEnabled bool   `json:"fuzzy_enabled"`
	SearchTimeMs int64  `json:"search_time_ms"`
}

// NameResult is the output of SearchStationsByName
type NameResult struct {
	Stations []models.Station   `json:"stations"`
	Metadata TextSearchMetadata `json:"search_metadata"`
}

// SearchStationsByName matches names case-insensitively. Names starting with
// the query rank first, then results are ordered by name and code.
func (e *Engine) SearchStationsByName(ctx context.Context, req NameRequest) (*NameResult, error) {
	start := time.Now()

	q := strings.TrimSpace(req.Query)
	if utf8.RuneCountInString(q) < MinQueryLength {
		return nil, apperr.QueryTooShort(req.Query, MinQueryLength)
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxNameResults {
		return nil, apperr.LimitExceeded(req.Limit, MaxNameResults)
	}
	if req.Limit < 0 {
		return nil, apperr.Validation("limit", req.Limit, "limit must be positive")
	}

	snap, err := e.source.GetAllStations(ctx, true)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(q)
	type match struct {
		station models.Station
		name    string
		prefix  bool
	}
	var matches []match
	for _, s := range snap.Stations {
		name := strings.ToLower(s.Reference.Name)
		prefix := strings.HasPrefix(name, needle)
		if prefix || (req.Fuzzy && strings.Contains(name, needle)) {
			matches = append(matches, match{station: s, name: name, prefix: prefix})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.prefix != b.prefix {
			return a.prefix
		}
		if a.name != b.name {
			return a.name < b.name
		}
		return a.station.Code() < b.station.Code()
	})

	total := len(matches)
	if len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	stations := make([]models.Station, len(matches))
	for i, m := range matches {
		stations[i] = m.station
	}

	return &NameResult{
		Stations: stations,
		Metadata: TextSearchMetadata{
			Query:        q,
			TotalFound:   total,
			FuzzyEnabled: req.Fuzzy,
			SearchTimeMs: time.Since(start).Milliseconds(),
		},
	}, nil
}
