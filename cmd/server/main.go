// Package main is the entry point for the velib server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/randytsao24/velib/internal/api"
	"github.com/randytsao24/velib/internal/config"
	"github.com/randytsao24/velib/internal/metrics"
	"github.com/randytsao24/velib/internal/query"
	"github.com/randytsao24/velib/internal/retry"
	"github.com/randytsao24/velib/internal/velib"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	errs := metrics.NewErrorCounter()

	policy := retry.New(retry.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		UseJitter:      cfg.Retry.Jitter,
		AttemptTimeout: cfg.HTTPTimeout,
	}, retry.WithLogger(logger), retry.WithErrorSink(errs))

	opts := []velib.Option{
		velib.WithLogger(logger),
		velib.WithErrorSink(errs),
		velib.WithRetryPolicy(policy),
	}
	if cfg.Breaker.Enabled {
		opts = append(opts, velib.WithBreaker(retry.NewBreaker(retry.BreakerConfig{
			Name:             "velib-upstream",
			FailureThreshold: uint32(cfg.Breaker.FailureThreshold),
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		}, logger)))
	}

	aggregator := velib.NewAggregator(
		velib.NewClient(cfg.HTTPTimeout, cfg.Upstream.RatePerSecond),
		velib.Config{
			ReferenceURL: cfg.Upstream.ReferenceURL,
			RealtimeURL:  cfg.Upstream.RealtimeURL,
			PageSize:     cfg.Upstream.PageSize,
			ReferenceTTL: cfg.ReferenceTTL,
			RealtimeTTL:  cfg.RealtimeTTL,
			FetchTimeout: cfg.FetchTimeout,
		},
		opts...,
	)
	engine := query.NewEngine(aggregator)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(cfg, engine, aggregator, errs),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTPTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go runCleanup(ctx, aggregator, cfg.CleanupInterval)

	// Start server in background.
	go func() {
		slog.Info("velib server starting",
			"addr", cfg.Addr(),
			"env", cfg.Env,
			"breaker", cfg.Breaker.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal then gracefully shut down.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shut down", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped", "errors", errs.Snapshot())
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// runCleanup sweeps expired cache entries until ctx is cancelled
func runCleanup(ctx context.Context, aggregator *velib.Aggregator, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			aggregator.CleanupCache()
		}
	}
}
