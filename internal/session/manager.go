// Package session manages the lifecycle of live monitoring sessions: the
// owned camera, the main and secondary views, recording and persistence.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayusman/repcoach/internal/analysis"
	"github.com/ayusman/repcoach/internal/capture"
	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/feedback"
	"github.com/ayusman/repcoach/internal/logging"
	"github.com/ayusman/repcoach/internal/metrics"
	"github.com/ayusman/repcoach/internal/pipeline"
	"github.com/ayusman/repcoach/internal/pose"
	"github.com/ayusman/repcoach/internal/render"
	"github.com/ayusman/repcoach/internal/store"
	"github.com/ayusman/repcoach/internal/tracker"
)

var (
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFinished is returned when acting on a session that has ended.
	ErrSessionFinished = errors.New("session already finished")
)

// DetectorFactory creates a pose detector for one view.
type DetectorFactory func() (pose.Detector, error)

// Config holds the dependencies of a Manager.
type Config struct {
	Store      *store.Store
	Registry   *exercise.Registry
	Cameras    capture.Factory
	Detectors  DetectorFactory
	Feedback   *feedback.Dispatcher
	Interval   time.Duration
	MaxSamples int
	Logger     zerolog.Logger
}

// Manager owns the live sessions.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager with no live sessions.
func NewManager(cfg Config) *Manager {
	if cfg.Cameras == nil {
		cfg.Cameras = capture.NewCamera
	}
	return &Manager{
		cfg:      cfg,
		log:      logging.Component(cfg.Logger, "session"),
		sessions: make(map[string]*Session),
	}
}

// Recover marks sessions left active by a previous process as finished.
func (m *Manager) Recover() error {
	sessions, err := m.cfg.Store.Sessions().List(0)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	for _, sess := range sessions {
		if sess.Status != store.SessionActive {
			continue
		}
		m.mu.RLock()
		_, live := m.sessions[sess.ID]
		m.mu.RUnlock()
		if live {
			continue
		}

		if err := m.cfg.Store.Sessions().Finish(sess.ID, sess.Reps, sess.StartedAt, nil); err != nil {
			return fmt.Errorf("recover session %s: %w", sess.ID, err)
		}
		m.log.Warn().Str("session", sess.ID).Msg("closed orphaned session")
	}
	return nil
}

// Start creates a session for exerciseID on cameraID and starts its main view.
// A camera that fails to open is retried by the view's driver.
func (m *Manager) Start(ctx context.Context, exerciseID string, cameraID int) (*Session, error) {
	ex, err := m.cfg.Registry.Get(exerciseID)
	if err != nil {
		return nil, err
	}

	row := &store.Session{
		ID:         uuid.New().String(),
		ExerciseID: ex.ID,
		CameraID:   cameraID,
		StartedAt:  time.Now(),
	}
	if err := m.cfg.Store.Sessions().Create(row); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log := m.log.With().Str("session", row.ID).Logger()
	if err := m.cfg.Store.Settings().SetLastTarget(ex.ID, cameraID); err != nil {
		log.Warn().Err(err).Msg("failed to remember exercise and camera")
	}

	cam := m.cfg.Cameras(cameraID)
	if err := cam.Open(); err != nil {
		log.Warn().Err(err).Int("camera", cameraID).Msg("camera not ready, will retry")
	}

	s := &Session{
		ID:        row.ID,
		Exercise:  ex,
		CameraID:  cameraID,
		StartedAt: row.StartedAt,
		camera:    cam,
		hub:       newHub(),
		views:     make(map[string]*view),
		log:       log,
	}
	s.recorder = NewRecorder(row.ID, ex.ID, m.cfg.Store.Events(), m.cfg.Feedback, m.cfg.MaxSamples, log)
	s.newView = func(ctx context.Context, id string, cam capture.Camera, sink render.Sink) (*view, error) {
		return m.startView(ctx, ex, id, cam, sink, log)
	}

	mainView, err := s.newView(ctx, MainView, cam, render.Multi{s.recorder, s.hub})
	if err != nil {
		cam.Close()
		if ferr := m.cfg.Store.Sessions().Finish(row.ID, 0, time.Now(), nil); ferr != nil {
			log.Error().Err(ferr).Msg("failed to close session row")
		}
		return nil, err
	}
	s.main = mainView

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	log.Info().Str("exercise", ex.ID).Int("camera", cameraID).Msg("session started")
	return s, nil
}

// startView builds and starts a driver whose frames feed a fresh tracker, the
// extra sink, then an overlay into the view's Latest buffer.
func (m *Manager) startView(ctx context.Context, ex *exercise.Exercise, id string, cam capture.Camera, sink render.Sink, log zerolog.Logger) (*view, error) {
	det, err := m.cfg.Detectors()
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}

	v := &view{
		id:      id,
		tracker: tracker.New(ex, log),
		latest:  render.NewLatest(),
	}
	v.driver = pipeline.NewDriver(pipeline.Config{
		Camera:   cam,
		Detector: det,
		Tracker:  v.tracker,
		Sink:     render.Multi{sink, &render.Overlay{Next: v.latest}},
		Interval: m.cfg.Interval,
		Logger:   log.With().Str("view", id).Logger(),
	})

	// Detached from the request context; the view lives until stopped.
	if err := v.driver.Start(context.WithoutCancel(ctx)); err != nil {
		v.driver.Stop()
		return nil, err
	}
	return v, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns live sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Finish stops a live session, persists its samples and summary, and returns
// the summary. Finishing a session that already ended returns ErrSessionFinished.
func (m *Manager) Finish(ctx context.Context, id string) (analysis.Summary, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		if _, err := m.cfg.Store.Sessions().GetByID(id); err == nil {
			return analysis.Summary{}, ErrSessionFinished
		}
		return analysis.Summary{}, ErrSessionNotFound
	}

	metrics.ActiveSessions.Dec()
	s.stop()

	samples := s.recorder.Samples()
	summary := analysis.Summarize(samples)
	reps := s.main.tracker.Snapshot().Reps

	if err := ctx.Err(); err != nil {
		s.log.Warn().Err(err).Msg("finishing session after context ended")
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return summary, fmt.Errorf("encode summary: %w", err)
	}

	if err := m.cfg.Store.Samples().Create(id, storeSamples(samples)); err != nil {
		return summary, fmt.Errorf("save samples: %w", err)
	}
	if err := m.cfg.Store.Sessions().Finish(id, reps, time.Now(), data); err != nil {
		return summary, fmt.Errorf("finish session: %w", err)
	}

	s.log.Info().
		Int("reps", reps).
		Int("frames", summary.Frames).
		Float64("form_accuracy", summary.FormAccuracy).
		Msg("session finished")
	return summary, nil
}

// Shutdown finishes every live session.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range m.List() {
		if _, err := m.Finish(ctx, s.ID); err != nil && !errors.Is(err, ErrSessionFinished) {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}
