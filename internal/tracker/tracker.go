package tracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/kinematics"
	"github.com/ayusman/repcoach/internal/logging"
	"github.com/ayusman/repcoach/internal/pose"
)

// Update is the per-frame result handed to render sinks.
type Update struct {
	Exercise        string            `json:"exercise"`
	LeftAngle       float64           `json:"leftAngle"`
	RightAngle      float64           `json:"rightAngle"`
	LeftCorrect     bool              `json:"leftCorrect"`
	RightCorrect    bool              `json:"rightCorrect"`
	LeftVisible     bool              `json:"leftVisible"`
	RightVisible    bool              `json:"rightVisible"`
	LeftElbowAngle  float64           `json:"leftElbowAngle"`
	RightElbowAngle float64           `json:"rightElbowAngle"`
	TrackedAngle    float64           `json:"trackedAngle"`
	TrackedSide     string            `json:"trackedSide,omitempty"`
	Tracking        bool              `json:"tracking"`
	CurrentPhase    string            `json:"currentPhase"`
	RepState        exercise.RepState `json:"repState"`
	Reps            int               `json:"reps"`
	Transition      Transition        `json:"transition"`
	Frame           uint64            `json:"frame"`
	At              time.Time         `json:"at"`
	Pose            *pose.Pose        `json:"pose,omitempty"`
}

// Correct reports whether every visible arm is within its thresholds.
func (u Update) Correct() bool {
	return u.LeftCorrect && u.RightCorrect
}

// Tracker runs one exercise's rep machine over a stream of poses. One Tracker
// belongs to one view; it is safe for concurrent use but expects frames in order.
type Tracker struct {
	ex  *exercise.Exercise
	log zerolog.Logger

	mu    sync.Mutex
	state State
	frame uint64
	now   func() time.Time
}

// New creates a tracker for ex in its initial state.
func New(ex *exercise.Exercise, log zerolog.Logger) *Tracker {
	t := &Tracker{
		ex:  ex,
		log: logging.Component(log, "tracker").With().Str("exercise", ex.ID).Logger(),
		now: time.Now,
	}
	if !ex.Tracked() {
		t.log.Warn().Msg("exercise has no rep table; phase will stay unknown")
	}
	t.state = t.initial()
	return t
}

// Exercise returns the exercise being tracked.
func (t *Tracker) Exercise() *exercise.Exercise {
	return t.ex
}

func (t *Tracker) initial() State {
	if !t.ex.Tracked() {
		return State{Rep: exercise.StateStart, Phase: exercise.PhaseUnknown}
	}
	return Initial(t.ex.Machine)
}

// Process evaluates one pose and advances the rep machine. A nil pose or one
// missing a required landmark stalls the machine and reports the unknown phase.
func (t *Tracker) Process(p *pose.Pose) Update {
	left, right := kinematics.EvaluateArms(p, t.ex.ShoulderThreshold, t.ex.ElbowThreshold, t.ex.View)
	angle, side, ok := kinematics.TrackedAngle(p)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.frame++
	var tr Transition
	switch {
	case !ok:
		t.state.Phase = exercise.PhaseUnknown
	case !t.ex.Tracked():
		t.state.Phase = exercise.PhaseUnknown
	default:
		t.state, tr = Step(t.ex.Machine, t.state, angle)
	}

	u := Update{
		Exercise:        t.ex.ID,
		LeftAngle:       left.Angle,
		RightAngle:      right.Angle,
		LeftCorrect:     left.Correct,
		RightCorrect:    right.Correct,
		LeftVisible:     left.Visible,
		RightVisible:    right.Visible,
		LeftElbowAngle:  left.ElbowAngle,
		RightElbowAngle: right.ElbowAngle,
		Tracking:        ok,
		CurrentPhase:    t.state.Phase,
		RepState:        t.state.Rep,
		Reps:            t.state.Reps,
		Transition:      tr,
		Frame:           t.frame,
		At:              t.now(),
		Pose:            p,
	}
	if ok {
		u.TrackedAngle = angle
		u.TrackedSide = side.String()
	}

	if tr.Fired {
		t.log.Debug().
			Str("from", string(tr.From)).
			Str("to", string(tr.To)).
			Str("phase", tr.Phase).
			Float64("angle", angle).
			Int("reps", t.state.Reps).
			Msg("phase transition")
	}

	return u
}

// Snapshot returns the current machine state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reset returns the tracker to the machine's initial state with zero reps.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = t.initial()
	t.frame = 0
}
