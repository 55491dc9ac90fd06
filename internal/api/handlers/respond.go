// Package handlers contains HTTP request handlers
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/randytsao24/velib/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// errorDetails returns the machine-readable context of err, shared by the
// HTTP and JSON-RPC transports
func errorDetails(err error) map[string]any {
	details := map[string]any{"error_type": string(apperr.KindOf(err))}

	var e *apperr.Error
	if errors.As(err, &e) {
		if e.Field != "" {
			details["field"] = e.Field
		}
		if e.Value != nil {
			details["value"] = e.Value
		}
		if e.Limit != nil {
			details["limit"] = e.Limit
		}
	}
	if d, ok := apperr.RetryAfter(err); ok {
		details["retry_after_seconds"] = retryAfterSeconds(d.Seconds())
	}
	return details
}

func retryAfterSeconds(s float64) int {
	return int(math.Ceil(s))
}

// writeError responds with the status matching the error kind
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"path", r.URL.Path,
			"kind", kind,
			"error", err,
		)
	}
	if d, ok := apperr.RetryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.Seconds())))
	}

	body := errorDetails(err)
	body["error"] = string(kind)
	body["message"] = err.Error()
	delete(body, "error_type")
	writeJSON(w, status, body)
}

// queryParams reads typed query string values, keeping the first parse error
type queryParams struct {
	values url.Values
	err    error
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{values: r.URL.Query()}
}

func (p *queryParams) has(name string) bool {
	return p.values.Get(name) != ""
}

func (p *queryParams) str(name string) string {
	return strings.TrimSpace(p.values.Get(name))
}

func (p *queryParams) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// requiredFloat parses a mandatory decimal parameter
func (p *queryParams) requiredFloat(name string) float64 {
	s := p.str(name)
	if s == "" {
		p.fail(apperr.Validation(name, nil, "%s is required", name))
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(apperr.Validation(name, s, "%s must be a number", name))
		return 0
	}
	return f
}

// integer parses an optional integer parameter, 0 when absent
func (p *queryParams) integer(name string) int {
	s := p.str(name)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(apperr.Validation(name, s, "%s must be an integer", name))
		return 0
	}
	return n
}

func (p *queryParams) boolean(name string, def bool) bool {
	s := p.str(name)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(apperr.Validation(name, s, "%s must be true or false", name))
		return def
	}
	return b
}
