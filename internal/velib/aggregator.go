package velib

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/cache"
	"github.com/randytsao24/velib/internal/metrics"
	"github.com/randytsao24/velib/internal/models"
	"github.com/randytsao24/velib/internal/retry"
)

// Config controls feed locations, pagination and cache lifetimes
type Config struct {
	ReferenceURL string
	RealtimeURL  string
	PageSize     int
	// MaxOffset stops pagination once the offset passes it
	MaxOffset    int
	ReferenceTTL time.Duration
	RealtimeTTL  time.Duration
	// FetchTimeout bounds one complete feed fetch, all pages and retries included
	FetchTimeout time.Duration
}

// DefaultConfig returns the production feed settings
func DefaultConfig() Config {
	return Config{
		ReferenceURL: DefaultReferenceURL,
		RealtimeURL:  DefaultRealtimeURL,
		PageSize:     100,
		MaxOffset:    10000,
		ReferenceTTL: time.Hour,
		RealtimeTTL:  2 * time.Minute,
		FetchTimeout: 30 * time.Second,
	}
}

// Snapshot is the merged station set returned to queries
type Snapshot struct {
	Stations []models.Station `json:"stations"`
	// RealtimeIncluded is false when live data was not requested or could not be fetched
	RealtimeIncluded bool `json:"realtime_included"`
	// RealtimeError holds the soft failure that degraded the result to reference-only
	RealtimeError error `json:"-"`
	// Stale is set when an expired cached copy was served after a failed fetch
	Stale bool `json:"stale"`
	// Dropped counts stations excluded for failing validation
	Dropped int `json:"dropped"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Aggregator owns both feed caches and the policies used to refresh them.
// Safe for concurrent use.
type Aggregator struct {
	cfg       Config
	fetcher   PageFetcher
	policy    *retry.Policy
	breaker   *retry.Breaker
	reference *cache.Cache[models.StationReference]
	realtime  *cache.Cache[models.RealTimeStatus]
	flight    singleflight.Group
	logger    *slog.Logger
	sink      metrics.ErrorSink
	now       func() time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

func WithErrorSink(s metrics.ErrorSink) Option {
	return func(a *Aggregator) { a.sink = s }
}

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(p *retry.Policy) Option {
	return func(a *Aggregator) { a.policy = p }
}

// WithBreaker guards every page fetch with b. Nil disables the breaker.
func WithBreaker(b *retry.Breaker) Option {
	return func(a *Aggregator) { a.breaker = b }
}

// WithClock sets the time source used by the caches and freshness buckets
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an Aggregator reading pages through fetcher
func NewAggregator(fetcher PageFetcher, cfg Config, opts ...Option) *Aggregator {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxOffset <= 0 {
		cfg.MaxOffset = def.MaxOffset
	}
	if cfg.ReferenceTTL <= 0 {
		cfg.ReferenceTTL = def.ReferenceTTL
	}
	if cfg.RealtimeTTL <= 0 {
		cfg.RealtimeTTL = def.RealtimeTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}

	a := &Aggregator{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  slog.Default(),
		sink:    metrics.Discard,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.policy == nil {
		a.policy = retry.New(retry.DefaultConfig(), retry.WithLogger(a.logger), retry.WithErrorSink(a.sink))
	}

	a.reference = cache.New[models.StationReference](cfg.ReferenceTTL, cache.WithClock(a.now))
	a.realtime = cache.New[models.RealTimeStatus](cfg.RealtimeTTL, cache.WithClock(a.now))
	return a
}

// ReferenceStations returns the reference feed keyed by station code. The
// bool reports whether an expired copy was served after a failed refresh.
func (a *Aggregator) ReferenceStations(ctx context.Context) (map[string]models.StationReference, bool, error) {
	return loadFeed(ctx, a, a.reference, "reference", a.cfg.ReferenceURL, func(raw json.RawMessage, _ time.Time) (models.StationReference, string, error) {
		ref, err := parseReference(raw)
		return ref, ref.Code, err
	})
}

// RealtimeStatuses returns the real-time feed keyed by station code, with
// freshness recomputed against the current time.
func (a *Aggregator) RealtimeStatuses(ctx context.Context) (map[string]models.RealTimeStatus, bool, error) {
	statuses, stale, err := loadFeed(ctx, a, a.realtime, "realtime", a.cfg.RealtimeURL, func(raw json.RawMessage, now time.Time) (models.RealTimeStatus, string, error) {
		st, err := parseRealtime(raw, now)
		return st, st.Code, err
	})
	if err != nil {
		return nil, false, err
	}
	now := a.now()
	for code, st := range statuses {
		st.Refresh(now)
		statuses[code] = st
	}
	return statuses, stale, nil
}

// GetAllStations returns every valid station sorted by code. Real-time
// failures degrade the result to reference-only instead of failing it.
func (a *Aggregator) GetAllStations(ctx context.Context, includeRealtime bool) (Snapshot, error) {
	var (
		refs         map[string]models.StationReference
		refStale     bool
		statuses     map[string]models.RealTimeStatus
		realtimeErr  error
		realtimeSeen bool
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		refs, refStale, err = a.ReferenceStations(ctx)
		return err
	})
	if includeRealtime {
		g.Go(func() error {
			var err error
			statuses, _, err = a.RealtimeStatuses(ctx)
			if err != nil {
				realtimeErr = err
				return nil
			}
			realtimeSeen = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	if realtimeErr != nil {
		a.logger.Warn("real-time data unavailable, serving reference data only",
			"error", realtimeErr,
			"kind", apperr.KindOf(realtimeErr),
		)
	}

	snap := Snapshot{
		Stations:         make([]models.Station, 0, len(refs)),
		RealtimeIncluded: realtimeSeen,
		RealtimeError:    realtimeErr,
		Stale:            refStale,
		GeneratedAt:      a.now(),
	}
	for _, ref := range refs {
		station := models.Station{Reference: ref}
		if st, ok := statuses[ref.Code]; ok {
			station.RealTime = &st
		}
		if err := station.Validate(); err != nil {
			a.sink.Record(string(apperr.KindOf(err)))
			a.logger.Debug("dropping invalid station", "station_code", ref.Code, "error", err)
			snap.Dropped++
			continue
		}
		snap.Stations = append(snap.Stations, station)
	}
	sort.Slice(snap.Stations, func(i, j int) bool {
		return snap.Stations[i].Code() < snap.Stations[j].Code()
	})
	return snap, nil
}

// GetStationByCode returns one station, or nil when the code is unknown. A
// station whose live counts exceed its capacity is reported as an error
// rather than dropped.
func (a *Aggregator) GetStationByCode(ctx context.Context, code string, includeRealtime bool) (*models.Station, error) {
	refs, _, err := a.ReferenceStations(ctx)
	if err != nil {
		return nil, err
	}
	ref, ok := refs[code]
	if !ok {
		return nil, nil
	}

	station := &models.Station{Reference: ref}
	if includeRealtime {
		statuses, _, err := a.RealtimeStatuses(ctx)
		if err != nil {
			a.logger.Warn("real-time data unavailable for station lookup", "station_code", code, "error", err)
		} else if st, ok := statuses[code]; ok {
			station.RealTime = &st
		}
	}
	if err := station.Validate(); err != nil {
		a.sink.Record(string(apperr.KindOf(err)))
		return nil, err
	}
	return station, nil
}

// CacheStats returns the number of cached reference and real-time entries
func (a *Aggregator) CacheStats() (int, int) {
	return a.reference.Size(), a.realtime.Size()
}

// CleanupCache sweeps expired entries from both caches. Swept entries are no
// longer available as a stale fallback.
func (a *Aggregator) CleanupCache() {
	ref := a.reference.RemoveExpired()
	rt := a.realtime.RemoveExpired()
	if ref > 0 || rt > 0 {
		a.logger.Info("cache cleanup", "reference_removed", ref, "realtime_removed", rt)
	}
}

// TestConnectivity fetches a single reference record, bypassing the cache
func (a *Aggregator) TestConnectivity(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	_, err := retry.Guard(a.breaker, func() (*Page, error) {
		return a.fetcher.FetchPage(ctx, a.cfg.ReferenceURL, 0, 1)
	})
	if err != nil {
		a.sink.Record(string(apperr.KindOf(err)))
		return 0, err
	}
	return time.Since(start), nil
}

// BreakerState reports the upstream circuit state
func (a *Aggregator) BreakerState() string {
	return a.breaker.State()
}

// loadFeed serves a fresh cached feed, or refreshes it. Concurrent refreshes
// of one feed share a single fetch. When the refresh fails, the last cached
// copy is served even if expired; with nothing cached the call fails.
func loadFeed[T any](
	ctx context.Context,
	a *Aggregator,
	c *cache.Cache[T],
	name, feedURL string,
	parse func(json.RawMessage, time.Time) (T, string, error),
) (map[string]T, bool, error) {
	cached, fresh := c.Snapshot()
	if fresh {
		return cached, false, nil
	}

	ch := a.flight.DoChan(name, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.FetchTimeout)
		defer cancel()

		records, err := a.fetchFeed(fetchCtx, name, feedURL)
		if err != nil {
			return nil, err
		}

		now := a.now()
		items := make(map[string]T, len(records))
		for _, raw := range records {
			v, key, err := parse(raw, now)
			if err != nil {
				a.logger.Debug("dropping malformed record", "feed", name, "error", err)
				continue
			}
			items[key] = v
		}
		c.ReplaceAll(items, c.TTL())
		a.logger.Info("feed refreshed", "feed", name, "records", len(records), "stations", len(items))
		return items, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		// The refresh keeps running for later callers
		err := apperr.Wrap(apperr.KindTimeout, ctx.Err(), "waiting for %s feed", name)
		if len(cached) > 0 {
			a.sink.Record(string(apperr.KindTimeout))
			a.logger.Warn("feed refresh still running, serving stale cache",
				"feed", name,
				"cached", len(cached),
				"error", err,
			)
			return cached, true, nil
		}
		return nil, false, err
	}

	if res.Err == nil {
		// Shared result: hand each caller its own map
		items := res.Val.(map[string]T)
		out := make(map[string]T, len(items))
		for k, v := range items {
			out[k] = v
		}
		return out, false, nil
	}

	a.sink.Record(string(apperr.KindOf(res.Err)))
	if len(cached) > 0 {
		a.logger.Warn("feed refresh failed, serving stale cache",
			"feed", name,
			"cached", len(cached),
			"error", res.Err,
		)
		return cached, true, nil
	}
	return nil, false, apperr.Wrap(apperr.KindCacheMiss, res.Err, "%s feed unavailable and nothing cached", name)
}

// fetchFeed walks the feed page by page until a short or empty page, with
// each page retried independently.
func (a *Aggregator) fetchFeed(ctx context.Context, name, feedURL string) ([]json.RawMessage, error) {
	var records []json.RawMessage

	for offset := 0; ; offset += a.cfg.PageSize {
		if offset > a.cfg.MaxOffset {
			a.logger.Warn("hit pagination safety limit", "feed", name, "records", len(records), "offset", offset)
			break
		}

		op := fmt.Sprintf("fetch %s offset=%d", name, offset)
		page, err := retry.Do(ctx, a.policy, op, func(ctx context.Context) (*Page, error) {
			return retry.Guard(a.breaker, func() (*Page, error) {
				return a.fetcher.FetchPage(ctx, feedURL, offset, a.cfg.PageSize)
			})
		})
		if err != nil {
			return nil, err
		}

		records = append(records, page.Results...)
		if len(page.Results) < a.cfg.PageSize {
			break
		}
	}
	return records, nil
}
