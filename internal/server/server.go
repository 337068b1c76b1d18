// Package server provides the HTTP surface of repcoach: exercise tables,
// feedback settings, session control, live updates and exports.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/logging"
	"github.com/ayusman/repcoach/internal/server/api"
	"github.com/ayusman/repcoach/internal/session"
	"github.com/ayusman/repcoach/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Registry  *exercise.Registry
	Sessions  *session.Manager
	// Devices lists usable camera indices; nil disables probing.
	Devices    func(max int) []int
	MaxDevices int
	Logger     zerolog.Logger
}

// Server represents the HTTP server for the repcoach application.
type Server struct {
	config Config
	router chi.Router
	log    zerolog.Logger
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.MaxDevices <= 0 {
		config.MaxDevices = 4
	}
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		log:    logging.Component(config.Logger, "server"),
		start:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	if s.config.Registry != nil {
		exercises := api.NewExerciseHandler(s.config.Registry, s.config.Store)
		s.router.Route("/api/exercises", func(r chi.Router) {
			r.Get("/", exercises.List)
			r.Get("/{id}", exercises.Get)
			if s.config.Store != nil {
				r.Get("/{id}/feedback", exercises.GetFeedback)
				r.Put("/{id}/feedback", exercises.PutFeedback)
			}
		})
	}

	if s.config.Devices != nil {
		cameras := api.NewCameraHandler(s.config.Devices, s.config.MaxDevices)
		s.router.Get("/api/cameras", cameras.List)
	}

	if s.config.Sessions != nil && s.config.Store != nil {
		sessions := api.NewSessionHandler(s.config.Sessions, s.config.Store, s.config.Registry)
		live := NewLiveHandler(s.config.Sessions, s.log)
		stream := NewStreamHandler(s.config.Sessions)

		s.router.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", sessions.List)
			r.Post("/", sessions.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessions.Get)
				r.Delete("/", sessions.Delete)
				r.Post("/finish", sessions.Finish)
				r.Get("/events", sessions.Events)
				r.Post("/views", sessions.OpenView)
				r.Delete("/views/{view}", sessions.CloseView)
				r.Get("/live", live.ServeHTTP)
				r.Get("/stream", stream.ServeHTTP)
				r.Get("/export.fit", sessions.ExportFIT)
				r.Get("/chart.png", sessions.Chart)
			})
		})
	}

	if s.config.StaticDir != "" {
		s.router.NotFound(http.FileServer(http.Dir(s.config.StaticDir)).ServeHTTP)
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	live := 0
	if s.config.Sessions != nil {
		live = len(s.config.Sessions.List())
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.start).String(),
		"sessions": live,
	})
}
