// Package api exposes the vault operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/wilhg/vault/pkg/metrics"
	"github.com/wilhg/vault/pkg/record"
)

// Vault is the record service behind the HTTP surface.
type Vault interface {
	Add(ctx context.Context, fields map[string]any) (record.Record, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, keyword string) ([]record.Record, error)
	Sort(ctx context.Context, field, order string) ([]record.Record, error)
	Export(ctx context.Context) (string, error)
	Stats(ctx context.Context) (record.Stats, error)
	Ping(ctx context.Context) error
}

// Todos fetches upstream todo items as raw JSON.
type Todos interface {
	Get(ctx context.Context, id string) (json.RawMessage, error)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	vault   Vault
	todos   Todos
	logger  *zap.Logger
	metrics *metrics.Collector
	mcp     http.Handler
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables request instrumentation and the /metrics endpoint.
func WithMetrics(c *metrics.Collector) Option { return func(s *Server) { s.metrics = c } }

// WithMCP mounts h on /mcp.
func WithMCP(h http.Handler) Option { return func(s *Server) { s.mcp = h } }

func NewServer(v Vault, todos Todos, opts ...Option) *Server {
	s := &Server{vault: v, todos: todos, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with every route and middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(instrument(s.metrics))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/todo/{id}", s.handleTodo)
	r.Get("/search", s.handleSearch)
	r.Get("/sort", s.handleSort)
	r.Get("/export", s.handleExport)
	r.Post("/add", s.handleAdd)
	r.Delete("/delete/{id}", s.handleDelete)
	r.Get("/stats", s.handleStats)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
		r.Handle("/mcp/*", s.mcp)
	}
	return r
}

// Handler wraps Router with server-side tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), "vault.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
