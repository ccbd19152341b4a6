// internal/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loan-eligibility/internal/common/config"
	"loan-eligibility/internal/common/logger"
)

// Server is the public JSON API in front of the scoring service.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

// NewRouter wires the routes and middleware without binding a port.
func NewRouter(cfg config.HTTPConfig, handler *Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handler.Health)
	r.Get("/ready", handler.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/predictions", handler.CreatePrediction)
		r.Get("/models", handler.ListModels)
		if handler.records != nil {
			r.Get("/predictions", handler.ListPredictions)
			r.Get("/predictions/{id}", handler.GetPrediction)
		}
		if handler.search != nil {
			r.Get("/predictions/search", handler.SearchPredictions)
		}
	})

	return r
}

func NewServer(cfg config.HTTPConfig, handler *Handler, log logger.Logger) *Server {
	port := cfg.Port
	if port == 0 {
		port = 8080
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(cfg, handler),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: log.WithFields(map[string]interface{}{"component": "http"}),
	}
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down", nil)
	return s.httpServer.Shutdown(ctx)
}
