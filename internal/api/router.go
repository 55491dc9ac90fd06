package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/randytsao24/velib/internal/api/handlers"
	"github.com/randytsao24/velib/internal/config"
)

// NewRouter creates and configures the HTTP router with all routes and middleware
func NewRouter(
	cfg *config.Config,
	stations handlers.StationQuerier,
	feeds handlers.FeedProvider,
	errs handlers.ErrorStats,
) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID, Recovery, Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "Retry-After"},
		MaxAge:         300,
	}))
	if cfg.HTTPTimeout > 0 {
		r.Use(Timeout(cfg.HTTPTimeout))
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(feeds)
	rootHandler := handlers.NewRootHandler()
	stationHandler := handlers.NewStationHandler(stations)
	resourceHandler := handlers.NewResourceHandler(feeds, errs)
	rpcHandler := handlers.NewRPCHandler(stations, resourceHandler)

	r.NotFound(rootHandler.NotFound)

	// Core routes
	r.Get("/", rootHandler.Index)
	r.Get("/api", rootHandler.Index)
	r.Get("/health", healthHandler.Health)

	// Station queries
	r.Route("/api/stations", func(r chi.Router) {
		r.Get("/nearby", stationHandler.GetNearby)
		r.Get("/search", stationHandler.Search)
		r.Get("/area", stationHandler.GetArea)
		r.Get("/{code}", stationHandler.GetByCode)
	})
	r.Get("/api/journey", stationHandler.PlanJourneyQuery)
	r.Post("/api/journey", stationHandler.PlanJourney)

	// Resources
	r.Get("/resources/reference", resourceHandler.Reference)
	r.Get("/resources/realtime", resourceHandler.Realtime)
	r.Get("/resources/complete", resourceHandler.Complete)
	r.Get("/resources/health", resourceHandler.Health)

	// JSON-RPC
	r.Post("/rpc", rpcHandler.Serve)

	return r
}
