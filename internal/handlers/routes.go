package handlers

import (
	"net/http"
	"time"

	"github.com/Brownie44l1/facenet-api/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions controls optional parts of the HTTP surface.
type RouterOptions struct {
	MaxBodyBytes int64
	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string
	Metrics     metrics.Metrics
}

// NewRouter builds the chi router for h.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoopMetrics()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Observe(m))
	r.Use(Recoverer)
	r.Use(CORS)
	r.Use(middleware.NoCache)
	r.Use(middleware.GetHead)
	if opts.MaxBodyBytes > 0 {
		r.Use(MaxBodySize(opts.MaxBodyBytes))
	}

	r.Get("/", h.Home)
	r.Get("/health", h.Health)
	r.Post("/generate-embedding", h.GenerateEmbedding)
	r.Post("/generate-embedding/upload", h.GenerateEmbeddingFromUpload)

	if opts.MetricsPath != "" {
		r.Method(http.MethodGet, opts.MetricsPath, metrics.NewMetricsHandler(m))
	}

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return r
}

// NewServer wraps the router in an http.Server.
func NewServer(addr string, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
