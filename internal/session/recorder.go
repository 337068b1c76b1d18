package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/repcoach/internal/analysis"
	"github.com/ayusman/repcoach/internal/feedback"
	"github.com/ayusman/repcoach/internal/logging"
	"github.com/ayusman/repcoach/internal/metrics"
	"github.com/ayusman/repcoach/internal/store"
	"github.com/ayusman/repcoach/internal/tracker"
)

// DefaultMaxSamples caps recorded samples per session (20 minutes at 30 fps).
const DefaultMaxSamples = 36000

// Recorder is the main view's sink. It keeps an angle sample per frame,
// persists fired transitions as phase events and raises feedback cues.
type Recorder struct {
	sessionID  string
	exerciseID string
	events     *store.EventRepository
	cues       *feedback.Dispatcher
	log        zerolog.Logger
	max        int

	mu          sync.Mutex
	start       time.Time
	samples     []analysis.Sample
	seq         int
	lastCorrect bool
}

// NewRecorder creates a recorder for one session. events and cues may be nil.
func NewRecorder(sessionID, exerciseID string, events *store.EventRepository, cues *feedback.Dispatcher, max int, log zerolog.Logger) *Recorder {
	if max <= 0 {
		max = DefaultMaxSamples
	}
	return &Recorder{
		sessionID:   sessionID,
		exerciseID:  exerciseID,
		events:      events,
		cues:        cues,
		max:         max,
		log:         logging.Component(log, "recorder").With().Str("session", sessionID).Logger(),
		lastCorrect: true,
	}
}

// Render implements render.Sink.
func (r *Recorder) Render(u tracker.Update, _ *gocv.Mat) {
	r.mu.Lock()
	if r.start.IsZero() {
		r.start = u.At
	}
	at := u.At.Sub(r.start)
	if len(r.samples) < r.max {
		r.samples = append(r.samples, analysis.Sample{
			At:      at,
			Angle:   u.TrackedAngle,
			Visible: u.Tracking,
			Correct: u.Correct(),
			Reps:    u.Reps,
		})
	}

	formSlipped := u.Tracking && r.lastCorrect && !u.Correct()
	if u.Tracking {
		r.lastCorrect = u.Correct()
	}

	var seq int
	if u.Transition.Fired {
		r.seq++
		seq = r.seq
	}
	r.mu.Unlock()

	if u.Transition.Fired {
		r.transition(u, seq, at)
	}

	if formSlipped {
		r.cues.Send(feedback.Cue{
			Kind:     feedback.KindForm,
			Exercise: r.exerciseID,
			Message:  formMessage(u),
			Reps:     u.Reps,
		})
	}
}

func (r *Recorder) transition(u tracker.Update, seq int, at time.Duration) {
	tr := u.Transition
	metrics.PhaseTransitions.WithLabelValues(r.exerciseID, tr.Phase).Inc()
	if tr.RepDelta > 0 {
		metrics.Reps.WithLabelValues(r.exerciseID).Add(float64(tr.RepDelta))
		r.log.Info().Int("reps", u.Reps).Msg("rep counted")
	}

	if r.events != nil {
		err := r.events.Append(&store.PhaseEvent{
			SessionID: r.sessionID,
			Seq:       seq,
			FromState: string(tr.From),
			ToState:   string(tr.To),
			Phase:     tr.Phase,
			Angle:     u.TrackedAngle,
			Reps:      u.Reps,
			AtMs:      at.Milliseconds(),
		})
		if err != nil {
			r.log.Error().Err(err).Msg("failed to persist phase event")
		}
	}

	r.cues.Send(feedback.Cue{
		Kind:     feedback.KindPhase,
		Exercise: r.exerciseID,
		Phase:    tr.Phase,
		Message:  tr.Phase,
		Reps:     u.Reps,
	})
}

// Samples returns a copy of the recorded samples.
func (r *Recorder) Samples() []analysis.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]analysis.Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// storeSamples converts samples to their persisted form.
func storeSamples(samples []analysis.Sample) []store.AngleSample {
	out := make([]store.AngleSample, len(samples))
	for i, s := range samples {
		out[i] = store.AngleSample{
			Seq:     i,
			AtMs:    s.At.Milliseconds(),
			Angle:   s.Angle,
			Visible: s.Visible,
			Correct: s.Correct,
			Reps:    s.Reps,
		}
	}
	return out
}

func formMessage(u tracker.Update) string {
	switch {
	case u.LeftVisible && !u.LeftCorrect && u.RightVisible && !u.RightCorrect:
		return "Check both arms"
	case u.LeftVisible && !u.LeftCorrect:
		return fmt.Sprintf("Check your left arm, %.0f degrees", u.LeftAngle)
	case u.RightVisible && !u.RightCorrect:
		return fmt.Sprintf("Check your right arm, %.0f degrees", u.RightAngle)
	default:
		return "Check your form"
	}
}
