// Package geo provides distance, bounding and service-area checks for the
// Paris metro area.
package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/models"
)

const earthRadiusMeters = 6371000

// ServiceRadiusMeters is the maximum distance from the reference point
const ServiceRadiusMeters = 25000

// ParisCenter (Hôtel de Ville) is the service-area reference point
var ParisCenter = models.Coordinates{Latitude: 48.8565, Longitude: 2.3514}

// MetroBounds is the coarse plausibility rectangle for the metro area
var MetroBounds = Bounds{North: 49.0, South: 48.7, East: 2.6, West: 2.0}

// Bounds is a lat/lon rectangle, inclusive on every edge
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Contains reports whether p lies inside b
func (b Bounds) Contains(p models.Coordinates) bool {
	return p.Latitude >= b.South && p.Latitude <= b.North &&
		p.Longitude >= b.West && p.Longitude <= b.East
}

// Validate checks the rectangle is well formed
func (b Bounds) Validate() error {
	if b.North < b.South {
		return apperr.Validation("bounds", b, "north (%.6f) must be >= south (%.6f)", b.North, b.South)
	}
	if b.East < b.West {
		return apperr.Validation("bounds", b, "east (%.6f) must be >= west (%.6f)", b.East, b.West)
	}
	if b.North > 90 || b.South < -90 || b.East > 180 || b.West < -180 {
		return apperr.Validation("bounds", b, "bounds outside valid latitude/longitude range")
	}
	return nil
}

// Distance returns the Haversine distance in meters between two points
func Distance(a, b models.Coordinates) float64 {
	lat1Rad := a.Latitude * math.Pi / 180
	lat2Rad := b.Latitude * math.Pi / 180
	deltaLat := (b.Latitude - a.Latitude) * math.Pi / 180
	deltaLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// IsValid reports whether p is a finite point on the globe
func IsValid(p models.Coordinates) bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude) &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// IsWithinServiceArea reports whether p is within ServiceRadiusMeters of ParisCenter
func IsWithinServiceArea(p models.Coordinates) bool {
	return Distance(p, ParisCenter) <= ServiceRadiusMeters
}

// IsPlausibleRegion reports whether p falls inside MetroBounds
func IsPlausibleRegion(p models.Coordinates) bool {
	return IsValid(p) && MetroBounds.Contains(p)
}

// ValidatePoint applies both checks. Failing the rectangle is reported as
// invalid_coordinates; passing it but failing the radius as outside_service_area.
func ValidatePoint(field string, p models.Coordinates) error {
	if !IsPlausibleRegion(p) {
		return apperr.InvalidCoordinates(field, p.Latitude, p.Longitude)
	}
	if d := Distance(p, ParisCenter); d > ServiceRadiusMeters {
		return apperr.OutsideServiceArea(field, d/1000, ServiceRadiusMeters/1000)
	}
	return nil
}

// StationPrecision is the geohash length stored on each station (~5m cells)
const StationPrecision = 9

// Encode returns the station-precision geohash of p
func Encode(p models.Coordinates) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, StationPrecision)
}

// CoveringCells returns the geohash cells that together cover the disk of
// radiusMeters around center: the finest cell at least radiusMeters on each
// side, plus its eight neighbors.
func CoveringCells(center models.Coordinates, radiusMeters float64) []string {
	var chars uint = 1
	for p := uint(1); p <= StationPrecision; p++ {
		box := geohash.BoundingBox(geohash.EncodeWithPrecision(center.Latitude, center.Longitude, p))
		height := Distance(
			models.Coordinates{Latitude: box.MinLat, Longitude: center.Longitude},
			models.Coordinates{Latitude: box.MaxLat, Longitude: center.Longitude},
		)
		width := Distance(
			models.Coordinates{Latitude: center.Latitude, Longitude: box.MinLng},
			models.Coordinates{Latitude: center.Latitude, Longitude: box.MaxLng},
		)
		if height < radiusMeters || width < radiusMeters {
			break
		}
		chars = p
	}

	cell := geohash.EncodeWithPrecision(center.Latitude, center.Longitude, chars)
	return append([]string{cell}, geohash.Neighbors(cell)...)
}

// InCells reports whether hash falls inside any of cells
func InCells(hash string, cells []string) bool {
	for _, c := range cells {
		if len(hash) >= len(c) && hash[:len(c)] == c {
			return true
		}
	}
	return false
}
