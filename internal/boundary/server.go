// Package boundary is the HTTP surface: request dispatch, JSON envelopes,
// and the status/health endpoints consuming every domain component.
package boundary

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ticketsync/backend/internal/analytics"
	"github.com/ticketsync/backend/internal/breaker"
	"github.com/ticketsync/backend/internal/lockmanager"
	"github.com/ticketsync/backend/internal/orchestrator"
	"github.com/ticketsync/backend/internal/ratelimiter"
	"github.com/ticketsync/backend/internal/store"
)

// Config holds the parameters NewServer needs, decoupled from the process
// configuration struct.
type Config struct {
	CORSAllowedOrigins []string
}

// Server wires the HTTP surface to every domain component it dispatches to.
type Server struct {
	Router *chi.Mux

	logger       *slog.Logger
	db           *pgxpool.Pool
	redis        *redis.Client
	store        *store.Store
	locks        *lockmanager.LockManager
	limiter      *ratelimiter.RateLimiter
	breakers     *breaker.Registry
	orchestrator *orchestrator.Orchestrator
	analytics    *analytics.Engine
	startedAt    time.Time
}

// NewServer creates the HTTP server with middleware, health endpoints, and
// every domain route mounted.
func NewServer(
	cfg Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	st *store.Store,
	locks *lockmanager.LockManager,
	limiter *ratelimiter.RateLimiter,
	breakers *breaker.Registry,
	orch *orchestrator.Orchestrator,
	analyticsEngine *analytics.Engine,
) *Server {
	s := &Server{
		Router:       chi.NewRouter(),
		logger:       logger,
		db:           db,
		redis:        rdb,
		store:        st,
		locks:        locks,
		limiter:      limiter,
		breakers:     breakers,
		orchestrator: orch,
		analytics:    analyticsEngine,
		startedAt:    time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Tenant-Slug"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/health", s.handleHealth)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/", func(r chi.Router) {
		r.Use(TenantResolver)

		r.Post("/ingest/run", s.handleIngestRun)
		r.Get("/ingest/status", s.handleIngestStatus)
		r.Get("/ingest/progress/{job_id}", s.handleIngestProgress)
		r.Delete("/ingest/{job_id}", s.handleIngestCancel)
		r.Get("/ingest/lock/{tenant_id}", s.handleIngestLock)

		r.Get("/tickets", s.handleTicketsList)
		r.Get("/tickets/urgent", s.handleTicketsUrgent)
		r.Get("/tickets/{external_id}", s.handleTicketGet)
		r.Get("/tickets/{external_id}/history", s.handleTicketHistory)

		r.Get("/tenants/{tenant_id}/stats", s.handleTenantStats)

		r.Get("/circuit/notify/status", s.handleCircuitStatus)
		r.Post("/circuit/{name}/reset", s.handleCircuitReset)

		r.Get("/rate-limiter/status", s.handleRateLimiterStatus)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	type checkResult struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	var checks []checkResult
	allOK := true

	if err := s.db.Ping(ctx); err != nil {
		checks = append(checks, checkResult{Name: "store", Status: "fail", Error: err.Error()})
		allOK = false
	} else {
		checks = append(checks, checkResult{Name: "store", Status: "ok"})
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			checks = append(checks, checkResult{Name: "redis", Status: "fail", Error: err.Error()})
			allOK = false
		} else {
			checks = append(checks, checkResult{Name: "redis", Status: "ok"})
		}
	}

	status := http.StatusOK
	body := "ok"
	if !allOK {
		status = http.StatusServiceUnavailable
		body = "degraded"
	}
	Respond(w, status, map[string]any{"status": body, "checks": checks})
}
