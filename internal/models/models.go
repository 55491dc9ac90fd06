// Package models defines shared data types
package models

import (
	"fmt"
	"time"

	"github.com/randytsao24/velib/internal/apperr"
)

// MaxStationCapacity is the sanity bound on dock count for a single station
const MaxStationCapacity = 200

// Coordinates is a point in decimal degrees
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ServiceCapabilities are the service flags reported for a station
type ServiceCapabilities struct {
	RentingEnabled   bool `json:"renting_enabled"`
	ReturningEnabled bool `json:"returning_enabled"`
	Installed        bool `json:"installed"`
}

// Status derives the operating state from the flags
func (c ServiceCapabilities) Status() StationStatus {
	return DeriveStatus(c.Installed, c.RentingEnabled, c.ReturningEnabled)
}

// StationReference is the static part of a station, from the reference feed
type StationReference struct {
	Code        string      `json:"station_code"`
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
	Capacity    int         `json:"capacity"`
	Geohash     string      `json:"geohash,omitempty"`
}

// Validate checks the fields every reference record must carry
func (r StationReference) Validate() error {
	if r.Code == "" {
		return apperr.Validation("station_code", r.Code, "station code must not be empty")
	}
	if r.Capacity <= 0 || r.Capacity > MaxStationCapacity {
		return apperr.Validation("capacity", r.Capacity, "station %s: capacity %d outside 1..%d", r.Code, r.Capacity, MaxStationCapacity)
	}
	return nil
}

// BikeAvailability counts available bikes by kind
type BikeAvailability struct {
	Mechanical int `json:"mechanical"`
	Electric   int `json:"electric"`
}

// Total returns the number of available bikes of any kind
func (b BikeAvailability) Total() int {
	return b.Mechanical + b.Electric
}

// HasAny reports whether at least one bike is available
func (b BikeAvailability) HasAny() bool {
	return b.Total() > 0
}

func (b BikeAvailability) HasMechanical() bool {
	return b.Mechanical > 0
}

func (b BikeAvailability) HasElectric() bool {
	return b.Electric > 0
}

// Count returns the bikes matching filter
func (b BikeAvailability) Count(filter BikeTypeFilter) int {
	switch filter {
	case BikeTypeMechanical:
		return b.Mechanical
	case BikeTypeElectric:
		return b.Electric
	default:
		return b.Total()
	}
}

// StationStatus is the operating state reported by the real-time feed
type StationStatus string

const (
	StatusOperational  StationStatus = "operational"
	StatusInstalled    StationStatus = "installed"
	StatusMaintenance  StationStatus = "maintenance"
	StatusOutOfService StationStatus = "out_of_service"
)

// DeriveStatus maps the upstream installed/renting/returning flags to a status
func DeriveStatus(installed, renting, returning bool) StationStatus {
	switch {
	case !installed:
		return StatusOutOfService
	case renting && returning:
		return StatusOperational
	case renting || returning:
		return StatusInstalled
	default:
		return StatusMaintenance
	}
}

// Freshness buckets the age of a real-time record
type Freshness string

const (
	FreshnessFresh     Freshness = "fresh"
	FreshnessRecent    Freshness = "recent"
	FreshnessStale     Freshness = "stale"
	FreshnessVeryStale Freshness = "very_stale"
)

// FreshnessFromAge classifies age: <5m fresh, <15m recent, <60m stale
func FreshnessFromAge(age time.Duration) Freshness {
	switch {
	case age < 5*time.Minute:
		return FreshnessFresh
	case age < 15*time.Minute:
		return FreshnessRecent
	case age < time.Hour:
		return FreshnessStale
	default:
		return FreshnessVeryStale
	}
}

// RealTimeStatus is one station's live availability
type RealTimeStatus struct {
	Code           string              `json:"station_code"`
	Bikes          BikeAvailability    `json:"bikes"`
	AvailableDocks int                 `json:"available_docks"`
	Service        ServiceCapabilities `json:"service"`
	Status         StationStatus       `json:"status"`
	LastUpdate     time.Time           `json:"last_update"`
	Freshness      Freshness           `json:"data_freshness"`
}

// Refresh recomputes Freshness relative to now
func (s *RealTimeStatus) Refresh(now time.Time) {
	s.Freshness = FreshnessFromAge(now.Sub(s.LastUpdate))
}

// Station is the merged view. RealTime is nil when no live data is known,
// which means the status is unknown rather than closed.
type Station struct {
	Reference StationReference `json:"reference"`
	RealTime  *RealTimeStatus  `json:"real_time,omitempty"`
}

// Code returns the station code
func (s Station) Code() string {
	return s.Reference.Code
}

// IsOperational reports whether the station can be used. Stations without
// real-time data count as operational.
func (s Station) IsOperational() bool {
	if s.RealTime == nil {
		return true
	}
	return s.RealTime.Status == StatusOperational
}

// HasBikes reports whether live data shows at least min bikes matching filter
func (s Station) HasBikes(filter BikeTypeFilter, min int) bool {
	if s.RealTime == nil {
		return false
	}
	if min < 1 {
		min = 1
	}
	return s.RealTime.Bikes.Count(filter) >= min
}

// HasDocks reports whether live data shows at least min free docks
func (s Station) HasDocks(min int) bool {
	if s.RealTime == nil {
		return false
	}
	if min < 1 {
		min = 1
	}
	return s.RealTime.AvailableDocks >= min
}

// Validate checks the reference record and, when live data is present, that
// bikes plus docks fit within capacity.
func (s Station) Validate() error {
	if err := s.Reference.Validate(); err != nil {
		return err
	}
	if s.RealTime == nil {
		return nil
	}
	rt := s.RealTime
	if rt.Bikes.Mechanical < 0 || rt.Bikes.Electric < 0 || rt.AvailableDocks < 0 {
		return apperr.Validation("bikes", rt.Bikes, "station %s: negative availability", s.Code())
	}
	if used := rt.Bikes.Total() + rt.AvailableDocks; used > s.Reference.Capacity {
		return &apperr.Error{
			Kind:    apperr.KindCapacityViolation,
			Message: fmt.Sprintf("station %s: %d bikes + %d docks exceeds capacity %d", s.Code(), rt.Bikes.Total(), rt.AvailableDocks, s.Reference.Capacity),
			Field:   "capacity",
			Value:   used,
			Limit:   s.Reference.Capacity,
		}
	}
	return nil
}

// BikeTypeFilter selects bikes by kind. The zero value matches any bike.
type BikeTypeFilter string

const (
	BikeTypeAny        BikeTypeFilter = "any"
	BikeTypeMechanical BikeTypeFilter = "mechanical"
	BikeTypeElectric   BikeTypeFilter = "electric"
)

// ParseBikeTypeFilter accepts "", any, mechanical or electric (ebike is an alias)
func ParseBikeTypeFilter(s string) (BikeTypeFilter, error) {
	switch s {
	case "", string(BikeTypeAny):
		return BikeTypeAny, nil
	case string(BikeTypeMechanical):
		return BikeTypeMechanical, nil
	case string(BikeTypeElectric), "ebike":
		return BikeTypeElectric, nil
	default:
		return "", apperr.Validation("bike_type", s, "unknown bike type %q (want any, mechanical or electric)", s)
	}
}

// StationWithDistance is a Station with distance from a reference point
type StationWithDistance struct {
	Station
	DistanceMeters float64 `json:"distance_meters"`
}
