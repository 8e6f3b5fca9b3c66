// Package app wires configuration, infrastructure, and every domain
// component into a running server, mirroring the same startup order a
// production deployment would use: config, telemetry, storage, domain
// components, then the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ticketsync/backend/internal/analytics"
	"github.com/ticketsync/backend/internal/boundary"
	"github.com/ticketsync/backend/internal/breaker"
	"github.com/ticketsync/backend/internal/config"
	"github.com/ticketsync/backend/internal/lockmanager"
	"github.com/ticketsync/backend/internal/notifier"
	"github.com/ticketsync/backend/internal/orchestrator"
	"github.com/ticketsync/backend/internal/platform"
	"github.com/ticketsync/backend/internal/ratelimiter"
	"github.com/ticketsync/backend/internal/sourcefeed"
	"github.com/ticketsync/backend/internal/store"
	"github.com/ticketsync/backend/internal/syncengine"
	"github.com/ticketsync/backend/internal/telemetry"
)

// Run reads configuration, connects to infrastructure, wires every domain
// component, and serves HTTP until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting ticketsync", "listen", cfg.ListenAddr())

	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	var rdb *redis.Client
	rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, health check will skip it", "error", err)
		rdb = nil
	} else {
		defer func() { _ = rdb.Close() }()
	}

	metricsReg := telemetry.NewMetricsRegistry()

	locks := lockmanager.New(st.Locks)
	limiter := ratelimiter.New(cfg.RateLimitPerMinute, time.Minute)
	breakers := breaker.NewRegistry()
	breakers.Get("webhook").OnTrip(func(name string) {
		telemetry.BreakerTripsTotal.WithLabelValues(name).Inc()
	})
	breakers.Get("slack").OnTrip(func(name string) {
		telemetry.BreakerTripsTotal.WithLabelValues(name).Inc()
	})

	var sinks []notifier.Sink
	if cfg.NotifyWebhookURL != "" {
		sinks = append(sinks, notifier.NewWebhookSink(cfg.NotifyWebhookURL))
	}
	slackSink := notifier.NewSlackSink(cfg.SlackBotToken, cfg.SlackAlertChannel)
	if slackSink.IsEnabled() {
		sinks = append(sinks, slackSink)
	} else {
		logger.Info("slack notification sink disabled (SLACK_BOT_TOKEN or SLACK_ALERT_CHANNEL not set)")
	}
	notifyPool := notifier.New(logger, limiter, breakers, sinks...)
	defer notifyPool.Close()

	syncEngine := syncengine.New(st.Tickets, st.History)
	feed := sourcefeed.NewClient(cfg.SourceBaseURL, cfg.SourceAPIKey)
	orch := orchestrator.New(st, locks, limiter, feed, syncEngine, notifyPool, logger)
	analyticsEngine := analytics.New(st.Pool)

	srv := boundary.NewServer(
		boundary.Config{CORSAllowedOrigins: cfg.CORSAllowedOrigins},
		logger, st.Pool, rdb, metricsReg,
		st, locks, limiter, breakers, orch, analyticsEngine,
	)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
