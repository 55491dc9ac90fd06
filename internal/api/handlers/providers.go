package handlers

import (
	"context"
	"time"

	"github.com/randytsao24/velib/internal/models"
	"github.com/randytsao24/velib/internal/query"
	"github.com/randytsao24/velib/internal/velib"
)

// StationQuerier abstracts the query engine for testability.
type StationQuerier interface {
	FindNearbyStations(ctx context.Context, req query.NearbyRequest) (*query.NearbyResult, error)
	GetStationByCode(ctx context.Context, req query.CodeRequest) (*query.CodeResult, error)
	SearchStationsByName(ctx context.Context, req query.NameRequest) (*query.NameResult, error)
	GetAreaStatistics(ctx context.Context, req query.AreaRequest) (*query.AreaResult, error)
	PlanBikeJourney(ctx context.Context, req query.JourneyRequest) (*query.JourneyResult, error)
}

// FeedProvider abstracts the data aggregator behind the resource and health endpoints.
type FeedProvider interface {
	GetAllStations(ctx context.Context, includeRealtime bool) (velib.Snapshot, error)
	ReferenceStations(ctx context.Context) (map[string]models.StationReference, bool, error)
	RealtimeStatuses(ctx context.Context) (map[string]models.RealTimeStatus, bool, error)
	CacheStats() (int, int)
	TestConnectivity(ctx context.Context) (time.Duration, error)
	BreakerState() string
}

// ErrorStats exposes counted failures by kind.
type ErrorStats interface {
	Snapshot() map[string]int
}
