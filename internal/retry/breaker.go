package retry

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/randytsao24/velib/internal/apperr"
)

// BreakerConfig controls when the circuit opens and for how long.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
}

// DefaultBreakerConfig opens after 5 consecutive failures for 30s.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{Name: name, FailureThreshold: 5, RecoveryTimeout: 30 * time.Second}
}

// Breaker fails fast while its circuit is open. Closed opens after
// FailureThreshold consecutive failures; after RecoveryTimeout a single trial
// call is let through (half-open), which closes the circuit on success and
// re-opens it on failure.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreaker creates a Breaker. Only retryable failures count toward the
// threshold; caller mistakes such as validation errors do not.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperr.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Breaker{
		name: cfg.Name,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	if b == nil {
		return gobreaker.StateClosed.String()
	}
	return b.cb.State().String()
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() uint32 {
	if b == nil {
		return 0
	}
	return b.cb.Counts().ConsecutiveFailures
}

// Guard runs fn through the breaker. A nil breaker runs fn directly. While the
// circuit is open fn is not invoked and a circuit_open error is returned.
func Guard[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	var zero T
	value, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, apperr.Wrap(apperr.KindCircuitOpen, err, "circuit %q is open", b.name)
	}
	if err != nil {
		return zero, err
	}
	result, _ := value.(T)
	return result, nil
}
