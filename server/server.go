package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/metrics"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/store"
	"github.com/smallnest/kgqa/tracing"
)

// Asker answers one question. *pipeline.Pipeline implements it.
type Asker interface {
	Ask(ctx context.Context, q pipeline.Question) *pipeline.AnswerRecord
}

// Pinger reports whether the graph store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the pipeline over HTTP.
type Server struct {
	asker     Asker
	store     store.RecordStore
	pinger    Pinger
	collector *metrics.Collector
	registry  *prometheus.Registry
	tp        trace.TracerProvider
	mcp       http.Handler
	origins   []string
	timeout   time.Duration
	logger    log.Logger
	validate  *validator.Validate

	router chi.Router
	srv    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithStore serves the saved records under /v1/records.
func WithStore(s store.RecordStore) Option {
	return func(srv *Server) {
		srv.store = s
	}
}

// WithPinger makes /healthz check the graph store.
func WithPinger(p Pinger) Option {
	return func(srv *Server) {
		srv.pinger = p
	}
}

// WithMetrics records HTTP metrics into reg, serves it on /metrics and
// observes every answered question with c.
func WithMetrics(c *metrics.Collector, reg *prometheus.Registry) Option {
	return func(srv *Server) {
		srv.collector = c
		srv.registry = reg
	}
}

// WithTracerProvider wraps every request in a server span.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(srv *Server) {
		srv.tp = tp
	}
}

// WithMCP mounts an MCP streamable HTTP handler on /mcp.
func WithMCP(h http.Handler) Option {
	return func(srv *Server) {
		srv.mcp = h
	}
}

// WithCORSOrigins sets the allowed origins. Empty allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(srv *Server) {
		srv.origins = origins
	}
}

// WithRequestTimeout bounds the handling of one request.
func WithRequestTimeout(d time.Duration) Option {
	return func(srv *Server) {
		srv.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(srv *Server) {
		srv.logger = l
	}
}

// New builds the server and its routes.
func New(asker Asker, opts ...Option) *Server {
	s := &Server{
		asker:    asker,
		timeout:  2 * time.Minute,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.tp != nil {
		r.Use(tracing.Middleware("kgqa", s.tp))
	}
	if s.registry != nil {
		r.Use(newHTTPMetrics(s.registry).handler)
	}

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "MCP-Protocol-Version", "Last-Event-ID"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.Timeout(s.timeout)).Post("/ask", s.handleAskPost)
		r.With(middleware.Timeout(s.timeout)).Get("/ask", s.handleAskGet)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Get("/{id}", s.handleGetRecord)
			r.Delete("/{id}", s.handleDeleteRecord)
		})
	})

	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
		r.Handle("/mcp/*", s.mcp)
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		_ = s.srv.Close()
		return err
	}
	return nil
}
