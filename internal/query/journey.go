package query

import (
	"context"
	"math"
	"sort"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/geo"
	"github.com/randytsao24/velib/internal/models"
)

// Confidence weighting. Walk score halves at walkHalfScoreMeters; availability
// saturates at availabilityCap bikes or docks.
const (
	walkWeight          = 0.6
	availabilityWeight  = 0.4
	walkHalfScoreMeters = 250.0
	availabilityCap     = 5
)

// JourneyPreferences tunes candidate selection
type JourneyPreferences struct {
	BikeType        models.BikeTypeFilter `json:"bike_type"`
	MaxWalkDistance int                   `json:"max_walk_distance"`
}

// JourneyRequest is the input of PlanBikeJourney
type JourneyRequest struct {
	Origin      models.Coordinates  `json:"origin"`
	Destination models.Coordinates  `json:"destination"`
	Preferences *JourneyPreferences `json:"preferences,omitempty"`
}

// Recommendation pairs a pickup station with a dropoff station
type Recommendation struct {
	Pickup             models.Station `json:"pickup_station"`
	Dropoff            models.Station `json:"dropoff_station"`
	WalkToPickup       float64        `json:"walk_to_pickup"`
	WalkFromDropoff    float64        `json:"walk_from_dropoff"`
	BikeDistanceMeters float64        `json:"bike_distance_meters"`
	Confidence         float64        `json:"confidence_score"`
}

// Journey lists candidate stations at both ends and the ranked pairings
type Journey struct {
	PickupStations  []models.StationWithDistance `json:"pickup_stations"`
	DropoffStations []models.StationWithDistance `json:"dropoff_stations"`
	Recommendations []Recommendation             `json:"recommendations"`
}

// JourneyResult is the output of PlanBikeJourney
type JourneyResult struct {
	Journey Journey `json:"journey"`
}

// PlanBikeJourney picks up to JourneyCandidates pickup stations near the
// origin with a matching bike and dropoff stations near the destination with
// a free dock, then ranks every distinct pair by confidence.
func (e *Engine) PlanBikeJourney(ctx context.Context, req JourneyRequest) (*JourneyResult, error) {
	prefs := JourneyPreferences{BikeType: models.BikeTypeAny, MaxWalkDistance: DefaultWalkDistance}
	if req.Preferences != nil {
		if req.Preferences.BikeType != "" {
			prefs.BikeType = req.Preferences.BikeType
		}
		if req.Preferences.MaxWalkDistance != 0 {
			prefs.MaxWalkDistance = req.Preferences.MaxWalkDistance
		}
	}

	if err := geo.ValidatePoint("origin", req.Origin); err != nil {
		return nil, err
	}
	if err := geo.ValidatePoint("destination", req.Destination); err != nil {
		return nil, err
	}
	bikeType, err := models.ParseBikeTypeFilter(string(prefs.BikeType))
	if err != nil {
		return nil, err
	}
	if prefs.MaxWalkDistance < 0 || prefs.MaxWalkDistance > MaxWalkDistance {
		err := apperr.Validation("max_walk_distance", prefs.MaxWalkDistance,
			"max walk distance must be between 1 and %d meters", MaxWalkDistance)
		err.Limit = MaxWalkDistance
		return nil, err
	}

	snap, err := e.source.GetAllStations(ctx, true)
	if err != nil {
		return nil, err
	}

	walk := float64(prefs.MaxWalkDistance)
	pickups := within(snap.Stations, req.Origin, walk, func(s models.Station) bool {
		return s.IsOperational() && s.HasBikes(bikeType, 1)
	})
	dropoffs := within(snap.Stations, req.Destination, walk, func(s models.Station) bool {
		return s.IsOperational() && s.HasDocks(1)
	})
	if len(pickups) > JourneyCandidates {
		pickups = pickups[:JourneyCandidates]
	}
	if len(dropoffs) > JourneyCandidates {
		dropoffs = dropoffs[:JourneyCandidates]
	}

	recs := []Recommendation{}
	for _, p := range pickups {
		for _, d := range dropoffs {
			if p.Code() == d.Code() {
				continue
			}
			recs = append(recs, Recommendation{
				Pickup:             p.Station,
				Dropoff:            d.Station,
				WalkToPickup:       p.DistanceMeters,
				WalkFromDropoff:    d.DistanceMeters,
				BikeDistanceMeters: geo.Distance(p.Reference.Coordinates, d.Reference.Coordinates),
				Confidence: confidence(
					p.DistanceMeters, d.DistanceMeters,
					p.RealTime.Bikes.Count(bikeType), d.RealTime.AvailableDocks,
				),
			})
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Pickup.Code() != b.Pickup.Code() {
			return a.Pickup.Code() < b.Pickup.Code()
		}
		return a.Dropoff.Code() < b.Dropoff.Code()
	})
	if len(recs) > JourneyCandidates {
		recs = recs[:JourneyCandidates]
	}

	return &JourneyResult{
		Journey: Journey{
			PickupStations:  pickups,
			DropoffStations: dropoffs,
			Recommendations: recs,
		},
	}, nil
}

// confidence scores a pairing in [0, 1]. It strictly decreases as either
// walk grows and increases with bikes and docks up to availabilityCap.
func confidence(walkToPickup, walkFromDropoff float64, bikes, docks int) float64 {
	walkScore := (walkScore(walkToPickup) + walkScore(walkFromDropoff)) / 2
	availScore := (availabilityScore(bikes) + availabilityScore(docks)) / 2
	score := walkWeight*walkScore + availabilityWeight*availScore
	return math.Max(0, math.Min(1, score))
}

func walkScore(meters float64) float64 {
	if meters < 0 {
		meters = 0
	}
	return 1 / (1 + meters/walkHalfScoreMeters)
}

func availabilityScore(n int) float64 {
	if n <= 0 {
		return 0
	}
	if n > availabilityCap {
		n = availabilityCap
	}
	return float64(n) / availabilityCap
}
