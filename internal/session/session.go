package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayusman/repcoach/internal/capture"
	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/pipeline"
	"github.com/ayusman/repcoach/internal/render"
	"github.com/ayusman/repcoach/internal/tracker"
)

// MainView names a session's primary view.
const MainView = "main"

// ErrViewNotFound is returned for an unknown view ID.
var ErrViewNotFound = errors.New("view not found")

// view is one independent driver over the session's camera.
type view struct {
	id      string
	driver  *pipeline.Driver
	tracker *tracker.Tracker
	latest  *render.Latest
}

// Session is a live monitoring session. The main view owns the camera;
// secondary views borrow it.
type Session struct {
	ID        string
	Exercise  *exercise.Exercise
	CameraID  int
	StartedAt time.Time

	camera   capture.Camera
	recorder *Recorder
	hub      *hub
	newView  func(ctx context.Context, id string, cam capture.Camera, sink render.Sink) (*view, error)
	log      zerolog.Logger

	mu       sync.Mutex
	main     *view
	views    map[string]*view
	finished bool
}

// Info is a point-in-time description of a live session.
type Info struct {
	ID         string          `json:"id"`
	ExerciseID string          `json:"exerciseId"`
	CameraID   int             `json:"cameraId"`
	StartedAt  time.Time       `json:"startedAt"`
	Status     pipeline.Status `json:"status"`
	Reps       int             `json:"reps"`
	Phase      string          `json:"phase"`
	Views      []string        `json:"views"`
}

// Info returns the session's current state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.main.tracker.Snapshot()
	views := make([]string, 0, len(s.views))
	for id := range s.views {
		views = append(views, id)
	}
	sort.Strings(views)

	return Info{
		ID:         s.ID,
		ExerciseID: s.Exercise.ID,
		CameraID:   s.CameraID,
		StartedAt:  s.StartedAt,
		Status:     s.main.driver.Status(),
		Reps:       st.Reps,
		Phase:      st.Phase,
		Views:      views,
	}
}

// OpenView starts a secondary view on a borrowed camera with its own tracker.
func (s *Session) OpenView(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return "", ErrSessionFinished
	}

	id := uuid.New().String()
	v, err := s.newView(ctx, id, capture.Borrow(s.camera), nil)
	if err != nil {
		return "", err
	}
	s.views[id] = v

	s.log.Info().Str("view", id).Msg("view opened")
	return id, nil
}

// CloseView stops one secondary view. The camera and other views keep running.
func (s *Session) CloseView(id string) error {
	s.mu.Lock()
	v, ok := s.views[id]
	delete(s.views, id)
	s.mu.Unlock()

	if !ok {
		return ErrViewNotFound
	}

	if err := v.driver.Stop(); err != nil {
		s.log.Warn().Err(err).Str("view", id).Msg("error closing view detector")
	}
	s.log.Info().Str("view", id).Msg("view closed")
	return nil
}

// Latest returns the render buffer of the given view; MainView or "" selects
// the main view.
func (s *Session) Latest(viewID string) (*render.Latest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if viewID == "" || viewID == MainView {
		return s.main.latest, nil
	}
	v, ok := s.views[viewID]
	if !ok {
		return nil, ErrViewNotFound
	}
	return v.latest, nil
}

// Subscribe returns a channel of main view updates and a cancel function.
// Updates are dropped for subscribers that fall behind. The channel is closed
// when cancel is called or the session finishes.
func (s *Session) Subscribe() (<-chan tracker.Update, func()) {
	return s.hub.subscribe()
}

// stop halts every view, then the main driver, then closes the owned camera.
func (s *Session) stop() {
	s.mu.Lock()
	s.finished = true
	views := s.views
	s.views = make(map[string]*view)
	s.mu.Unlock()

	for id, v := range views {
		if err := v.driver.Stop(); err != nil {
			s.log.Warn().Err(err).Str("view", id).Msg("error closing view detector")
		}
	}

	if err := s.main.driver.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("error closing detector")
	}

	if err := s.camera.Close(); err != nil {
		s.log.Warn().Err(err).Msg("error closing camera")
	}

	s.hub.close()
}
