package web

import (
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/mouthtrack/internal/web/handlers"
	"github.com/kozaktomas/mouthtrack/internal/web/static"
)

// requestTimeout bounds every non-streaming request.
const requestTimeout = time.Minute

func (s *Server) setupRoutes() {
	log := s.log
	configHandler := handlers.NewConfigHandler(s.deps.Config, s.deps.Backend)
	calibrationHandler := handlers.NewCalibrationHandler(s.deps.Coach, log)
	sources := handlers.Sources{Default: s.deps.DefaultSource, Allowed: s.deps.AllowedSources}
	runsHandler := handlers.NewRunsHandler(s.deps.Coach, s.runs, sources, s.origins.CheckOrigin, log)
	sessionsHandler := handlers.NewSessionsHandler(s.deps.Sessions, log)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Event streams stay open for the whole run
		r.Get("/runs/{runId}/events", runsHandler.Events)
		r.Get("/runs/{runId}/ws", runsHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			r.Get("/health", handlers.HealthCheck)
			r.Get("/config", configHandler.Get)

			// Calibration file
			r.Get("/calibration", calibrationHandler.Get)
			r.Put("/calibration", calibrationHandler.Put)
			r.Delete("/calibration", calibrationHandler.Delete)

			// Runs (long-running operations)
			r.Post("/runs", runsHandler.Start)
			r.Get("/runs", runsHandler.List)
			r.Get("/runs/{runId}", runsHandler.Status)
			r.Delete("/runs/{runId}", runsHandler.Cancel)

			// Stored sessions
			r.Get("/sessions", sessionsHandler.List)
			r.Get("/sessions/{id}", sessionsHandler.Get)
			r.Get("/sessions/{id}/measurements", sessionsHandler.Measurements)
			r.Get("/sessions/{id}/chart", sessionsHandler.Chart)
			r.Delete("/sessions/{id}", sessionsHandler.Delete)
		})
	})

	// Serve the dashboard
	s.router.Get("/*", s.serveSPA)
}

// serveSPA serves the embedded dashboard. Extensionless paths that match no
// file are dashboard pages and get the index.
func (s *Server) serveSPA(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := static.Asset(r.URL.Path)
	if err != nil && path.Ext(r.URL.Path) == "" {
		data, contentType, err = static.Asset(static.IndexFile)
	}
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
