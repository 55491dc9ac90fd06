// Package retry runs fallible operations under an exponential-backoff policy
// and an optional circuit breaker.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/metrics"
)

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the number of retries after the initial try, so the
	// operation runs at most MaxAttempts+1 times.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// UseJitter adds up to 25% random delay on top of the backoff.
	UseJitter bool
	// AttemptTimeout bounds a single attempt. Zero disables it.
	AttemptTimeout time.Duration
}

// DefaultConfig returns 3 retries, 1s base, 60s cap and jitter on.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		UseJitter:   true,
	}
}

// Policy executes operations with retries. Safe for concurrent use.
type Policy struct {
	cfg    Config
	logger *slog.Logger
	sink   metrics.ErrorSink
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the logger used for attempt failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) { p.logger = l }
}

// WithErrorSink sets the sink that receives one record per failed attempt.
func WithErrorSink(s metrics.ErrorSink) Option {
	return func(p *Policy) { p.sink = s }
}

// New creates a Policy.
func New(cfg Config, opts ...Option) *Policy {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	p := &Policy{
		cfg:    cfg,
		logger: slog.Default(),
		sink:   metrics.Discard,
		sleep:  sleepContext,
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the policy configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// CalculateDelay returns the backoff before retry number attempt+1:
// min(BaseDelay*2^attempt, MaxDelay), plus jitter when enabled.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	delay := p.cfg.BaseDelay
	for i := 0; i < attempt && delay < p.cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}
	if p.cfg.UseJitter && delay > 0 {
		delay += time.Duration(float64(delay) * 0.25 * p.jitter())
	}
	return delay
}

// Do runs fn until it succeeds, fails with a terminal error, or the retry
// budget is spent. An upstream retry-after hint takes precedence over the
// computed backoff, capped at MaxDelay. A timed-out final attempt surfaces as
// a timeout error; any other exhausted failure as retry_exhausted wrapping
// the last error.
func Do[T any](ctx context.Context, p *Policy, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		value, err := runAttempt(ctx, p, operation, fn)
		if err == nil {
			if attempt > 0 {
				p.logger.Debug("operation succeeded after retry", "operation", operation, "retries", attempt)
			}
			return value, nil
		}

		p.sink.Record(string(apperr.KindOf(err)))

		if ctx.Err() != nil {
			return zero, apperr.Wrap(apperr.KindTimeout, err, "%s: cancelled after %d attempts", operation, attempt+1)
		}
		if !apperr.IsRetryable(err) {
			return zero, err
		}
		if attempt >= p.cfg.MaxAttempts {
			p.logger.Warn("retry budget exhausted",
				"operation", operation,
				"attempts", attempt+1,
				"error", err,
			)
			if apperr.Is(err, apperr.KindTimeout) {
				return zero, err
			}
			p.sink.Record(string(apperr.KindRetryExhausted))
			return zero, apperr.Wrap(apperr.KindRetryExhausted, err, "%s failed after %d attempts", operation, attempt+1)
		}

		delay := p.CalculateDelay(attempt)
		if hint, ok := apperr.RetryAfter(err); ok {
			delay = hint
			if p.cfg.MaxDelay > 0 && delay > p.cfg.MaxDelay {
				delay = p.cfg.MaxDelay
			}
		}

		p.logger.Warn("attempt failed, retrying",
			"operation", operation,
			"attempt", attempt+1,
			"delay", delay.String(),
			"error", err,
		)

		if err := p.sleep(ctx, delay); err != nil {
			return zero, apperr.Wrap(apperr.KindTimeout, err, "%s: cancelled during backoff", operation)
		}
	}
}

// runAttempt calls fn once, bounded by AttemptTimeout when set
func runAttempt[T any](ctx context.Context, p *Policy, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.cfg.AttemptTimeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	value, err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !apperr.Is(err, apperr.KindTimeout) {
		err = &apperr.Error{
			Kind:    apperr.KindTimeout,
			Message: fmt.Sprintf("%s timed out after %s", operation, p.cfg.AttemptTimeout),
			Err:     err,
		}
	}
	return value, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
