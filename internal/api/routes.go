package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Jobs       JobReader
	Dispatcher Dispatcher
	// Checks are run by /readyz, keyed by dependency name.
	Checks         map[string]CheckFunc
	Metrics        HTTPMetrics
	MetricsHandler http.Handler
	Timeout        time.Duration
	Logger         *slog.Logger
}

// NewRouter creates the worker's HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	h := NewHandler(cfg.Jobs, cfg.Dispatcher, cfg.Checks, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/livez", h.Livez)
	r.Get("/readyz", h.Readyz)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Post("/process", h.Process)
	r.Get("/jobs/{sessionId}", h.GetJob)

	return r
}
