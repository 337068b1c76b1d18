// Package app wires the repcoach components into a running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/repcoach/internal/analysis"
	"github.com/ayusman/repcoach/internal/capture"
	"github.com/ayusman/repcoach/internal/config"
	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/feedback"
	"github.com/ayusman/repcoach/internal/logging"
	"github.com/ayusman/repcoach/internal/pose"
	"github.com/ayusman/repcoach/internal/server"
	"github.com/ayusman/repcoach/internal/session"
	"github.com/ayusman/repcoach/internal/store"
	"github.com/ayusman/repcoach/internal/tracker"
)

// ErrNotMonitoring is returned by FinishActive when no tray session is running.
var ErrNotMonitoring = errors.New("not monitoring")

// Option overrides a default dependency of App.
type Option func(*App)

// WithCameras replaces the device camera factory.
func WithCameras(f capture.Factory) Option {
	return func(a *App) { a.cameras = f }
}

// WithDetectors replaces the MediaPipe detector factory.
func WithDetectors(f session.DetectorFactory) Option {
	return func(a *App) { a.detectors = f }
}

// WithDevices replaces the camera probe used by the camera listing endpoint.
func WithDevices(f func(max int) []int) Option {
	return func(a *App) { a.devices = f }
}

// App holds the store, the exercise registry, live sessions, cue delivery and
// the HTTP server.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	store    *store.Store
	registry *exercise.Registry
	plugins  *feedback.Manager
	cues     *feedback.Dispatcher
	sessions *session.Manager
	server   *server.Server

	cameras   capture.Factory
	detectors session.DetectorFactory
	devices   func(max int) []int

	fallbackOnce sync.Once

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	active   string
	onUpdate func(tracker.Update)
}

// New opens the data directory and builds every component. Sessions left
// active by a previous run are closed.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		log:     logging.Component(log, "app"),
		devices: capture.Devices,
	}
	a.cameras = capture.NewFactory(cfg.Camera.FPS)
	a.detectors = a.newDetector
	for _, opt := range opts {
		opt(a)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	registry, err := exercise.Load(cfg.Exercises.File)
	if err != nil {
		return nil, err
	}
	a.registry = registry

	st, err := store.New(cfg.DBPath(), store.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st

	a.plugins = feedback.NewManager(cfg.Feedback.PluginDir, log)
	if err := a.plugins.Discover(); err != nil {
		a.log.Warn().Err(err).Str("dir", cfg.Feedback.PluginDir).Msg("plugin discovery failed")
	}
	a.cues = feedback.NewDispatcher(a.plugins, feedback.NewExecutor(cfg.Feedback.Timeout), st.Feedback(), log)

	a.sessions = session.NewManager(session.Config{
		Store:     st,
		Registry:  registry,
		Cameras:   a.cameras,
		Detectors: a.detectors,
		Feedback:  a.cues,
		Interval:  cfg.RefreshInterval(),
		Logger:    log,
	})
	if err := a.sessions.Recover(); err != nil {
		a.cues.Close()
		st.Close()
		return nil, err
	}

	a.server = server.New(server.Config{
		StaticDir: cfg.Server.StaticDir,
		Store:     st,
		Registry:  registry,
		Sessions:  a.sessions,
		Devices:   a.devices,
		Logger:    log,
	})

	a.log.Info().
		Str("data_dir", cfg.DataDir).
		Int("exercises", len(registry.List())).
		Int("plugins", len(a.plugins.List())).
		Msg("application initialized")
	return a, nil
}

// newDetector tries MediaPipe first and falls back to a mock detector that
// reports no body, so sessions still run without the Python service.
func (a *App) newDetector() (pose.Detector, error) {
	rt, err := pose.EnsureRuntime(a.cfg.Pose.Python, a.cfg.Pose.Script)
	if err != nil {
		a.fallbackOnce.Do(func() {
			a.log.Warn().Err(err).Msg("MediaPipe not available, using mock detector")
		})
		return pose.NewMockDetector(), nil
	}

	pc := pose.DefaultConfig()
	if a.cfg.Pose.IdleTimeout > 0 {
		pc.IdleTimeout = a.cfg.Pose.IdleTimeout
	}
	if a.cfg.Pose.ResponseTimeout > 0 {
		pc.ResponseTimeout = a.cfg.Pose.ResponseTimeout
	}
	return pose.NewMediaPipeDetector(pc, rt), nil
}

// Start binds the configured address and serves HTTP in the background.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.http != nil {
		return nil
	}

	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.Addr, err)
	}

	a.listener = ln
	a.http = &http.Server{
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("http server failed")
		}
	}(a.http)

	a.log.Info().Str("addr", ln.Addr().String()).Msg("server listening")
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop shuts down the HTTP server, finishes live sessions and closes the store.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.http
	a.http = nil
	a.listener = nil
	a.active = ""
	a.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := a.sessions.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	a.cues.Close()
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	a.log.Info().Msg("application stopped")
	return errors.Join(errs...)
}

// OnUpdate registers fn to receive main-view updates of tray-started sessions.
func (a *App) OnUpdate(fn func(tracker.Update)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onUpdate = fn
}

// TrayTarget returns the exercise and camera the tray starts: those of the
// last started session, or the configured defaults.
func (a *App) TrayTarget() (string, int) {
	exerciseID, cameraID, err := a.store.Settings().LastTarget()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.log.Warn().Err(err).Msg("failed to read last exercise")
		}
		return a.cfg.Tray.DefaultExercise, a.cfg.Camera.Device
	}
	if _, err := a.registry.Get(exerciseID); err != nil {
		return a.cfg.Tray.DefaultExercise, a.cfg.Camera.Device
	}
	return exerciseID, cameraID
}

// ToggleMonitoring starts a session for TrayTarget, or finishes the running one.
func (a *App) ToggleMonitoring(ctx context.Context, enabled bool) error {
	if !enabled {
		_, err := a.FinishActive(ctx)
		if errors.Is(err, ErrNotMonitoring) {
			return nil
		}
		return err
	}

	a.mu.Lock()
	running := a.active != ""
	a.mu.Unlock()
	if running {
		return nil
	}

	exerciseID, cameraID := a.TrayTarget()
	s, err := a.sessions.Start(ctx, exerciseID, cameraID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.active = s.ID
	fn := a.onUpdate
	a.mu.Unlock()

	if fn != nil {
		updates, cancel := s.Subscribe()
		go func() {
			defer cancel()
			for u := range updates {
				fn(u)
			}
		}()
	}
	return nil
}

// Monitoring reports whether a tray-started session is running.
func (a *App) Monitoring() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != ""
}

// FinishActive finishes the tray-started session and returns its summary.
func (a *App) FinishActive(ctx context.Context) (analysis.Summary, error) {
	a.mu.Lock()
	id := a.active
	a.active = ""
	a.mu.Unlock()

	if id == "" {
		return analysis.Summary{}, ErrNotMonitoring
	}

	summary, err := a.sessions.Finish(ctx, id)
	if errors.Is(err, session.ErrSessionFinished) {
		// already finished through the API
		return summary, nil
	}
	return summary, err
}

// Store returns the application store.
func (a *App) Store() *store.Store {
	return a.store
}

// Registry returns the exercise registry.
func (a *App) Registry() *exercise.Registry {
	return a.registry
}

// Sessions returns the live session manager.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Handler returns the HTTP handler without starting a listener.
func (a *App) Handler() http.Handler {
	return a.server
}
