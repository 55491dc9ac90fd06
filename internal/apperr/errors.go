// Package apperr defines the classified errors shared by the data and query layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is a stable, machine-readable error class.
type Kind string

const (
	KindHTTP               Kind = "http_error"
	KindRateLimited        Kind = "rate_limited"
	KindJSON               Kind = "json_error"
	KindInvalidCoordinates Kind = "invalid_coordinates"
	KindOutsideServiceArea Kind = "outside_service_area"
	KindRadiusTooLarge     Kind = "search_radius_too_large"
	KindLimitExceeded      Kind = "result_limit_exceeded"
	KindQueryTooShort      Kind = "query_too_short"
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "station_not_found"
	KindCapacityViolation  Kind = "capacity_violation"
	KindCacheMiss          Kind = "cache_miss"
	KindRetryExhausted     Kind = "retry_exhausted"
	KindTimeout            Kind = "timeout"
	KindCircuitOpen        Kind = "circuit_open"
	KindInternal           Kind = "internal_error"
)

// Error is a classified error. Field, Value and Limit are set for validation
// failures so callers can build an actionable message.
type Error struct {
	Kind       Kind
	Message    string
	Field      string
	Value      any
	Limit      any
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// InvalidCoordinates reports a point outside the plausible metro rectangle.
func InvalidCoordinates(field string, lat, lon float64) *Error {
	return &Error{
		Kind:    KindInvalidCoordinates,
		Message: fmt.Sprintf("invalid coordinates: latitude %.6f, longitude %.6f", lat, lon),
		Field:   field,
		Value:   [2]float64{lat, lon},
	}
}

// OutsideServiceArea reports a point beyond the service radius.
func OutsideServiceArea(field string, distanceKm, maxKm float64) *Error {
	return &Error{
		Kind:    KindOutsideServiceArea,
		Message: fmt.Sprintf("coordinates outside service area: %.1fkm from reference point (max: %.0fkm)", distanceKm, maxKm),
		Field:   field,
		Value:   distanceKm,
		Limit:   maxKm,
	}
}

// RadiusTooLarge reports a search radius above the hard maximum.
func RadiusTooLarge(radius, max int) *Error {
	return &Error{
		Kind:    KindRadiusTooLarge,
		Message: fmt.Sprintf("search radius too large: %dm (max: %dm)", radius, max),
		Field:   "radius_meters",
		Value:   radius,
		Limit:   max,
	}
}

// LimitExceeded reports a result limit above the hard maximum.
func LimitExceeded(limit, max int) *Error {
	return &Error{
		Kind:    KindLimitExceeded,
		Message: fmt.Sprintf("result limit exceeded: %d (max: %d)", limit, max),
		Field:   "limit",
		Value:   limit,
		Limit:   max,
	}
}

// QueryTooShort reports a name query under the minimum length.
func QueryTooShort(query string, min int) *Error {
	return &Error{
		Kind:    KindQueryTooShort,
		Message: fmt.Sprintf("search query too short: %q (min: %d characters)", query, min),
		Field:   "query",
		Value:   query,
		Limit:   min,
	}
}

// Validation reports an invalid field value.
func Validation(field string, value any, format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
		Value:   value,
	}
}

// NotFound reports a missing station code.
func NotFound(code string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("station not found: %s", code),
		Field:   "station_code",
		Value:   code,
	}
}

// RateLimited reports an upstream 429. retryAfter is zero when no hint was given.
func RateLimited(endpoint string, retryAfter time.Duration) *Error {
	msg := "rate limited by upstream API (HTTP 429)"
	if retryAfter > 0 {
		msg = fmt.Sprintf("%s: retry after %s", msg, retryAfter)
	}
	return &Error{Kind: KindRateLimited, Message: msg, Field: "endpoint", Value: endpoint, RetryAfter: retryAfter}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether the retry policy may attempt the operation again.
// Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindHTTP, KindRateLimited, KindTimeout, KindInternal:
		return true
	default:
		return false
	}
}

// RetryAfter returns the upstream retry hint carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// IsValidation reports whether err was caused by caller input.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindInvalidCoordinates, KindOutsideServiceArea, KindRadiusTooLarge,
		KindLimitExceeded, KindQueryTooShort, KindValidation:
		return true
	default:
		return false
	}
}

// RPCCode maps a kind to a JSON-RPC error code.
func RPCCode(kind Kind) int {
	switch kind {
	case KindJSON:
		return -32700
	case KindInvalidCoordinates, KindOutsideServiceArea, KindRadiusTooLarge,
		KindLimitExceeded, KindQueryTooShort, KindValidation:
		return -32602
	case KindNotFound:
		return -32600
	case KindHTTP, KindRetryExhausted, KindTimeout, KindCircuitOpen:
		return -32001
	case KindRateLimited:
		return -32000
	default:
		return -32603
	}
}

// HTTPStatus maps a kind to the status the HTTP transport responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidCoordinates, KindOutsideServiceArea, KindRadiusTooLarge,
		KindLimitExceeded, KindQueryTooShort, KindValidation, KindJSON:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindCapacityViolation:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindHTTP, KindRetryExhausted, KindCircuitOpen, KindCacheMiss:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
