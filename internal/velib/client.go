// Package velib fetches the Vélib Opendatasoft feeds and merges them into a
// cached station view.
package velib

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/randytsao24/velib/internal/apperr"
)

// Opendatasoft v2.1 record endpoints
const (
	DefaultReferenceURL = "https://opendata.paris.fr/api/explore/v2.1/catalog/datasets/velib-emplacement-des-stations/records"
	DefaultRealtimeURL  = "https://opendata.paris.fr/api/explore/v2.1/catalog/datasets/velib-disponibilite-en-temps-reel/records"
)

const userAgent = "velib-aggregator/1.0"

// Page is one page of records from a records endpoint
type Page struct {
	TotalCount int               `json:"total_count"`
	Results    []json.RawMessage `json:"results"`
}

// PageFetcher fetches a single page of a feed
type PageFetcher interface {
	FetchPage(ctx context.Context, feedURL string, offset, limit int) (*Page, error)
}

// Client fetches feed pages over HTTP, throttled by a token bucket
type Client struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new feed client. ratePerSecond <= 0 disables throttling.
func NewClient(timeout time.Duration, ratePerSecond float64) *Client {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchPage requests records [offset, offset+limit) from feedURL
func (c *Client) FetchPage(ctx context.Context, feedURL string, offset, limit int) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindTimeout, err, "waiting for upstream rate limiter")
	}

	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid feed url %q", feedURL)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isTimeout(err) {
			return nil, apperr.Wrap(apperr.KindTimeout, err, "fetching %s", u.Path)
		}
		return nil, apperr.Wrap(apperr.KindHTTP, err, "fetching %s", u.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.RateLimited(u.Path, parseRetryAfter(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindHTTP, "feed %s returned status %d", u.Path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindHTTP, err, "reading response")
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, apperr.Wrap(apperr.KindJSON, err, "decoding page at offset %d", offset)
	}
	return &page, nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
