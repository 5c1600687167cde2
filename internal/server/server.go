// Package server provides the HTTP review API for yomitori.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/metrics"
	"github.com/hyperjump/yomitori/internal/storage"
	"github.com/hyperjump/yomitori/pkg/utils"
)

// WatchService reports the inbox directories being watched.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the review API.
type Server struct {
	ledger storage.Ledger
	index  keyword.Index
	config *config.Config
	watch  WatchService
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server. index and watch may be nil.
func NewServer(
	ledger storage.Ledger,
	index keyword.Index,
	cfg *config.Config,
	logger *zap.Logger,
	watch WatchService,
) *Server {
	return &Server{
		ledger: ledger,
		index:  index,
		config: cfg,
		watch:  watch,
		logger: utils.LoggerOrNop(logger),
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/review", s.handleReview)
		r.Get("/pages/{id}", s.handleGetPage)
		r.Post("/search", s.handleSearch)
		r.Get("/watch/directories", s.handleWatchDirectories)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
