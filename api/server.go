package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-rentals/logging"
)

// NewRouter mounts the controllers. A nil gatherer leaves /metrics unmounted.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, logger logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Nop()
	}

	r := chi.NewRouter()
	r.Use(LoggerMiddleware(logger), middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", h.SearchGet)
		r.Post("/search", h.SearchPost)
		r.Get("/export", h.Export)

		r.Get("/properties/{source}/{id}", h.GetProperty)
		r.Get("/locations", h.Locations)

		r.Get("/queue/stats", h.QueueStats)
		r.Post("/jobs", h.SubmitJob)
		r.Get("/jobs/{id}", h.GetJob)
		r.Delete("/jobs/{id}", h.CancelJob)

		r.Delete("/cache", h.InvalidateCache)
	})
	return r
}

// Server is the HTTP listener for the API.
type Server struct {
	httpServer *http.Server
	log        logging.Logger
}

// NewServer binds handler to addr.
func NewServer(addr string, handler http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger,
	}
}

// Start serves until Stop. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.Info("starting http server", slog.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping http server")
	return s.httpServer.Shutdown(ctx)
}
