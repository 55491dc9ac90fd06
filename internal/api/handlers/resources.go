package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/models"
)

// Resource URIs readable over HTTP and JSON-RPC
const (
	URIReference = "velib://stations/reference"
	URIRealtime  = "velib://stations/realtime"
	URIComplete  = "velib://stations/complete"
	URIHealth    = "velib://health"
)

// Resource describes one readable data set
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

var resources = []Resource{
	{URIReference, "Velib Station Reference Data", "Catalog of Velib stations with static metadata", "application/json"},
	{URIRealtime, "Velib Real-time Availability", "Current bike and dock availability for all stations", "application/json"},
	{URIComplete, "Velib Complete Station Data", "Combined reference and real-time data for all stations", "application/json"},
	{URIHealth, "Service Health Status", "Cache, circuit breaker and upstream connectivity status", "application/json"},
}

type ResourceHandler struct {
	feeds     FeedProvider
	errs      ErrorStats
	startTime time.Time
}

func NewResourceHandler(feeds FeedProvider, errs ErrorStats) *ResourceHandler {
	return &ResourceHandler{feeds: feeds, errs: errs, startTime: time.Now()}
}

func (h *ResourceHandler) Reference(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, URIReference)
}

func (h *ResourceHandler) Realtime(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, URIRealtime)
}

func (h *ResourceHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, URIComplete)
}

// Health reports cache sizes, breaker state, error counts and a live probe
// of the upstream API. It answers 503 when the probe fails.
func (h *ResourceHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := h.health(r.Context())
	status := http.StatusOK
	if body["status"] != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func (h *ResourceHandler) serve(w http.ResponseWriter, r *http.Request, uri string) {
	body, err := h.Read(r.Context(), uri)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// Read returns the contents of the resource at uri
func (h *ResourceHandler) Read(ctx context.Context, uri string) (map[string]any, error) {
	switch uri {
	case URIReference:
		refs, stale, err := h.feeds.ReferenceStations(ctx)
		if err != nil {
			return nil, err
		}
		list := make([]models.StationReference, 0, len(refs))
		for _, ref := range refs {
			list = append(list, ref)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
		return map[string]any{
			"stations": list,
			"metadata": map[string]any{
				"total_stations": len(list),
				"stale":          stale,
				"generated_at":   time.Now().UTC().Format(time.RFC3339),
			},
		}, nil

	case URIRealtime:
		statuses, stale, err := h.feeds.RealtimeStatuses(ctx)
		if err != nil {
			return nil, err
		}
		list := make([]models.RealTimeStatus, 0, len(statuses))
		for _, s := range statuses {
			list = append(list, s)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
		return map[string]any{
			"stations": list,
			"metadata": map[string]any{
				"total_stations": len(list),
				"stale":          stale,
				"generated_at":   time.Now().UTC().Format(time.RFC3339),
			},
		}, nil

	case URIComplete:
		snap, err := h.feeds.GetAllStations(ctx, true)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"stations": snap.Stations,
			"metadata": map[string]any{
				"total_stations":    len(snap.Stations),
				"realtime_included": snap.RealtimeIncluded,
				"stale":             snap.Stale,
				"dropped":           snap.Dropped,
				"generated_at":      snap.GeneratedAt.UTC().Format(time.RFC3339),
			},
		}, nil

	case URIHealth:
		return h.health(ctx), nil

	default:
		return nil, apperr.Validation("uri", uri, "unknown resource %q", uri)
	}
}

func (h *ResourceHandler) health(ctx context.Context) map[string]any {
	refEntries, rtEntries := h.feeds.CacheStats()

	upstream := map[string]any{"status": "healthy"}
	status := "healthy"
	latency, err := h.feeds.TestConnectivity(ctx)
	if err != nil {
		status = "degraded"
		upstream = map[string]any{
			"status":     "degraded",
			"error_type": string(apperr.KindOf(err)),
			"message":    err.Error(),
		}
	} else {
		upstream["latency_ms"] = latency.Milliseconds()
	}

	body := map[string]any{
		"status":         status,
		"version":        Version,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"upstream":       upstream,
		"circuit_breaker": map[string]any{
			"state": h.feeds.BreakerState(),
		},
		"cache_stats": map[string]any{
			"entries":              refEntries + rtEntries,
			"reference_cache_size": refEntries,
			"realtime_cache_size":  rtEntries,
		},
	}
	if h.errs != nil {
		body["errors"] = h.errs.Snapshot()
	}
	return body
}
