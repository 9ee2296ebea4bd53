// Package server provides the HTTP API for Mikke.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/mikke/internal/catalog"
	"github.com/hyperjump/mikke/internal/config"
	"github.com/hyperjump/mikke/internal/keyword"
	"github.com/hyperjump/mikke/internal/recognition"
)

// Server is the HTTP server for the Mikke API.
type Server struct {
	svc     *recognition.Service
	catalog catalog.Catalog
	keyword keyword.Index
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	svc *recognition.Service,
	cat catalog.Catalog,
	kw keyword.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		svc:     svc,
		catalog: cat,
		keyword: kw,
		config:  cfg,
		logger:  logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Routes builds the chi router. Split out of Start for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/recognize", s.handleRecognize)
	r.Post("/api/v1/books", s.handleAddBook)
	r.Get("/api/v1/books", s.handleListBooks)
	r.Get("/api/v1/books/{id}", s.handleGetBook)
	r.Delete("/api/v1/books/{id}", s.handleDeleteBook)
	r.Get("/api/v1/search", s.handleSearchBooks)
	r.Post("/api/v1/reindex", s.handleReindex)
	r.Get("/api/v1/reindex/status", s.handleReindexStatus)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/health", s.handleHealth)

	return r
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
