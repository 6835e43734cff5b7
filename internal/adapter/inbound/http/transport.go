package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// protectedRoute binds a mux pattern to its admission rule and handler.
type protectedRoute struct {
	pattern string
	rule    RouteRule
	handler http.Handler
}

// Server is the inbound adapter exposing the admission pipeline over HTTP.
// Protected routes pass through the admission middleware; /healthz and
// /metrics are always served unguarded.
type Server struct {
	admitter      Admitter
	addr          string
	logger        *slog.Logger
	legacyHeaders bool
	keyTable      map[string]string
	health        *HealthChecker
	routes        []protectedRoute

	registry *prometheus.Registry
	metrics  *Metrics
	server   *http.Server
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address. Default is "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithLegacyHeaders duplicates rate limit headers under the X-RateLimit-*
// names for clients that predate the draft standard names.
func WithLegacyHeaders(enabled bool) Option {
	return func(s *Server) { s.legacyHeaders = enabled }
}

// WithAPIKeys sets the hash-to-principal table consulted by the API key
// middleware. Keys are hex SHA-256 digests, never raw keys.
func WithAPIKeys(principalByHash map[string]string) Option {
	return func(s *Server) { s.keyTable = principalByHash }
}

// WithHealthChecker sets the checker behind /healthz.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(s *Server) { s.health = hc }
}

// WithProtectedRoute mounts handler at pattern behind the admission
// middleware configured by rule.
func WithProtectedRoute(pattern string, rule RouteRule, handler http.Handler) Option {
	return func(s *Server) {
		s.routes = append(s.routes, protectedRoute{pattern: pattern, rule: rule, handler: handler})
	}
}

// NewServer creates the HTTP server around the given admitter.
// Metrics are registered at construction so Handler can be built repeatedly.
func NewServer(admitter Admitter, opts ...Option) *Server {
	s := &Server{
		admitter: admitter,
		addr:     "127.0.0.1:8080",
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = NewMetrics(s.registry)
	return s
}

// Registry exposes the server's metric registry so callers can register
// additional collectors (e.g. context cache stats) before Start.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler assembles the full middleware chain and route table.
//
// Per-route chain (outermost first): RequestID, RealIP, APIKey, Admission.
// RequestID is outermost so every later log line carries the correlation ID.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.health != nil {
		mux.Handle("/healthz", s.health.Handler())
	} else {
		mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	}
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry: s.registry,
	}))

	for _, route := range s.routes {
		h := AdmissionMiddleware(s.admitter, route.rule, s.metrics, s.legacyHeaders)(route.handler)
		h = APIKeyMiddleware(s.keyTable)(h)
		h = RealIPMiddleware(h)
		h = RequestIDMiddleware(s.logger)(h)
		mux.Handle(route.pattern, h)
	}

	return mux
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
