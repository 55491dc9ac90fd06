package query

import (
	"context"

	"github.com/randytsao24/velib/internal/geo"
)

// AreaRequest is the input of GetAreaStatistics
type AreaRequest struct {
	Bounds          geo.Bounds `json:"bounds"`
	IncludeRealtime bool       `json:"include_real_time"`
}

// BikeTotals sums available bikes by kind
type BikeTotals struct {
	Mechanical int `json:"mechanical"`
	Electric   int `json:"electric"`
	Total      int `json:"total"`
}

// AreaStatistics aggregates every station inside a rectangle
type AreaStatistics struct {
	TotalStations       int        `json:"total_stations"`
	OperationalStations int        `json:"operational_stations"`
	TotalCapacity       int        `json:"total_capacity"`
	AvailableBikes      BikeTotals `json:"available_bikes"`
	AvailableDocks      int        `json:"available_docks"`
	// OccupancyRate is available bikes over capacity, 0 when capacity is 0
	OccupancyRate float64 `json:"occupancy_rate"`
}

// AreaResult is the output of GetAreaStatistics
type AreaResult struct {
	Stats  AreaStatistics `json:"area_stats"`
	Bounds geo.Bounds     `json:"bounds"`
}

// GetAreaStatistics sums capacity and availability over the stations inside
// the bounds
func (e *Engine) GetAreaStatistics(ctx context.Context, req AreaRequest) (*AreaResult, error) {
	if err := req.Bounds.Validate(); err != nil {
		return nil, err
	}

	snap, err := e.source.GetAllStations(ctx, req.IncludeRealtime)
	if err != nil {
		return nil, err
	}

	var stats AreaStatistics
	for _, s := range snap.Stations {
		if !req.Bounds.Contains(s.Reference.Coordinates) {
			continue
		}
		stats.TotalStations++
		stats.TotalCapacity += s.Reference.Capacity
		if s.IsOperational() {
			stats.OperationalStations++
		}
		if rt := s.RealTime; rt != nil {
			stats.AvailableBikes.Mechanical += rt.Bikes.Mechanical
			stats.AvailableBikes.Electric += rt.Bikes.Electric
			stats.AvailableDocks += rt.AvailableDocks
		}
	}
	stats.AvailableBikes.Total = stats.AvailableBikes.Mechanical + stats.AvailableBikes.Electric

	if stats.TotalCapacity > 0 {
		stats.OccupancyRate = float64(stats.AvailableBikes.Total) / float64(stats.TotalCapacity)
	}

	return &AreaResult{Stats: stats, Bounds: req.Bounds}, nil
}
