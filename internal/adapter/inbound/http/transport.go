package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snipvault/snipvault/internal/domain/admission"
	"github.com/snipvault/snipvault/internal/domain/auth"
)

// gaugeRefreshInterval is how often store-size gauges are resampled.
const gaugeRefreshInterval = 15 * time.Second

// Server is the inbound HTTP adapter serving the snippet API.
// Every /api route passes the caller-resolution and admission middleware;
// operational endpoints (/health, /metrics) sit outside the quota tiers.
type Server struct {
	addr          string
	logger        *slog.Logger
	server        *http.Server
	registry      *prometheus.Registry
	metrics       *Metrics
	adm           *AdmissionMiddleware
	handlers      *Handlers
	sessions      auth.SessionStore
	healthChecker *HealthChecker
	sessionCount  func() int
	counterCount  func() int
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the logger for the HTTP server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(s *Server) {
		s.healthChecker = hc
	}
}

// WithMetrics sets a pre-built registry and metrics set, shared with the
// middleware and handlers. When unset, Start creates a private registry.
func WithMetrics(reg *prometheus.Registry, metrics *Metrics) Option {
	return func(s *Server) {
		s.registry = reg
		s.metrics = metrics
	}
}

// WithGaugeSources sets the size callbacks behind the active_sessions and
// rate_limit_keys gauges. The gauges are resampled on a fixed interval while
// the server runs.
func WithGaugeSources(sessionCount, counterCount func() int) Option {
	return func(s *Server) {
		s.sessionCount = sessionCount
		s.counterCount = counterCount
	}
}

// NewServer creates the HTTP server over the given middleware and handlers.
func NewServer(adm *AdmissionMiddleware, handlers *Handlers, sessions auth.SessionStore, opts ...Option) *Server {
	s := &Server{
		addr:     "127.0.0.1:8080",
		logger:   slog.Default(),
		adm:      adm,
		handlers: handlers,
		sessions: sessions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// router builds the route tree with the middleware chain.
//
// Middleware order (outermost first):
//  1. Metrics - record duration and status (outermost to capture full duration)
//  2. RequestID - extract/generate request ID and enrich logger
//  3. Caller - resolve client IP and session identity
//  4. Admission - per-tier quota checks on /api routes
func (s *Server) router(reg *prometheus.Registry) chi.Router {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(s.metrics))
	r.Use(RequestIDMiddleware(s.logger))
	r.Use(CallerMiddleware(s.sessions))

	r.Route("/api", func(r chi.Router) {
		// The general tier shapes all API traffic; endpoint tiers stack on top.
		r.Use(s.adm.Require(admission.PolicyGeneral))

		r.Post("/auth/login", s.handlers.Login)
		r.Post("/auth/logout", s.handlers.Logout)

		r.Route("/snippets", func(r chi.Router) {
			r.With(s.adm.Require(admission.PolicySnippetCreate)).Post("/", s.handlers.CreateSnippet)
			r.Get("/{id}", s.handlers.GetSnippet)
			r.With(s.adm.Require(admission.PolicyCommentCreate)).Post("/{id}/comments", s.handlers.CreateComment)
			r.With(s.adm.Require(admission.PolicyStarToggle)).Post("/{id}/star", s.handlers.ToggleStar)
		})

		r.With(s.adm.Require(admission.PolicyExecute)).Post("/execute", s.handlers.Execute)
		r.With(s.adm.Require(admission.PolicyWebhook)).Post("/webhooks/{source}", s.handlers.Webhook)
	})

	r.Get("/admin/audit", s.handlers.RecentDenials)

	if s.healthChecker != nil {
		r.Method(http.MethodGet, "/health", s.healthChecker.Handler())
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	r.Get("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = NewMetrics(s.registry)
	}
	s.adm.metrics = s.metrics
	s.handlers.metrics = s.metrics

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router(s.registry),
	}

	if s.sessionCount != nil || s.counterCount != nil {
		go s.refreshGauges(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

// refreshGauges periodically samples store sizes into the gauges.
func (s *Server) refreshGauges(ctx context.Context) {
	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.sessionCount != nil {
				s.metrics.ActiveSessions.Set(float64(s.sessionCount()))
			}
			if s.counterCount != nil {
				s.metrics.RateLimitKeys.Set(float64(s.counterCount()))
			}
		}
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.shutdown()
}
