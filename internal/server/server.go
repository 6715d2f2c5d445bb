// Package server provides the HTTP API for tasuke.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/admin"
	"github.com/hyperjump/tasuke/internal/config"
	"github.com/hyperjump/tasuke/internal/metrics"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/storage"
	"github.com/hyperjump/tasuke/pkg/utils"
)

// Engine answers ask and needs requests.
type Engine interface {
	Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error)
	Needs(ctx context.Context, story string) *models.NeedsResponse
}

// Sizer reports the number of entries in an index.
type Sizer interface {
	Size() int
}

// Server is the HTTP server for the tasuke API.
type Server struct {
	engine  Engine
	admin   *admin.Service
	storage storage.Store
	vectors Sizer
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. vectors may be nil.
func NewServer(
	engine Engine,
	adminSvc *admin.Service,
	store storage.Store,
	vectors Sizer,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:  engine,
		admin:   adminSvc,
		storage: store,
		vectors: vectors,
		config:  cfg,
		logger:  utils.OrNop(logger),
	}
}

// Routes returns the router with all endpoints mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/ask", s.handleAsk)
	r.Post("/needs", s.handleNeeds)

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/summary", s.handleAdminSummary)
		r.Get("/record", s.handleAdminRecord)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/update", s.handleAdminUpdate)
			r.Post("/save", s.handleAdminSave)
			r.Post("/upsert", s.handleAdminUpsert)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("namespace", s.config.Retrieval.Namespace))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.admin.RequireToken(r.Header.Get("X-Admin-Token")); err != nil {
			s.logger.Warn("admin request rejected", zap.String("path", r.URL.Path), zap.String("request_id", middleware.GetReqID(r.Context())))
			s.respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
