// Package web serves the HTTP API and the live dashboard.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/mouthtrack/internal/config"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/web/handlers"
	"github.com/kozaktomas/mouthtrack/internal/web/middleware"
)

// Coach runs sessions and owns the calibration file stores.
// *coach.Coach implements it.
type Coach interface {
	handlers.Runner
	handlers.CalibrationStores
}

// Deps are the collaborators of a Server. Sessions may be nil when
// persistence is disabled.
type Deps struct {
	Config        *config.Config
	Coach         Coach
	Sessions      database.Store
	Backend       string // "postgres", "sqlite" or ""
	DefaultSource string
	// AllowedSources are the frame sources API clients may request besides
	// DefaultSource.
	AllowedSources []string
	Logger         logrus.FieldLogger
}

// Server represents the web server
type Server struct {
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	runs       *handlers.RunManager
	origins    middleware.Origins
	log        logrus.FieldLogger
}

// NewServer creates a new web server
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	cfg := deps.Config
	r := chi.NewRouter()

	s := &Server{
		deps:    deps,
		router:  r,
		runs:    handlers.NewRunManager(),
		origins: middleware.ParseOrigins(cfg.Web.AllowedOrigins),
		log:     deps.Logger.WithField("component", "web"),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(s.origins))
	r.Use(middleware.SecurityHeaders())

	// Set up routes
	s.setupRoutes()

	// Create HTTP server. Event streams last as long as a run, so only
	// reads are bounded here; handlers are bounded by the Timeout middleware.
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops active runs, waits for them to persist and then gracefully
// shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")

	if err := s.runs.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("runs did not finish before shutdown deadline")
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Runs returns the run manager
func (s *Server) Runs() *handlers.RunManager {
	return s.runs
}
