package tracker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/pose"
)

const (
	lifting  = "Lifting Phase (Concentric)"
	lowering = "Lowering Phase (Eccentric)"
	starting = "Starting Position"

	setup   = "Setup/Start Position"
	descent = "Descent Phase (Eccentric)"
	ascent  = "Ascent Phase (Concentric)"
)

func mustExercise(t *testing.T, id string) *exercise.Exercise {
	t.Helper()
	ex, err := exercise.Default().Get(id)
	require.NoError(t, err)
	return ex
}

// run feeds angles through Step and returns the emitted phases.
func run(m *exercise.Machine, s State, angles []float64) (State, []string) {
	var phases []string
	for _, a := range angles {
		var tr Transition
		s, tr = Step(m, s, a)
		if tr.Fired {
			phases = append(phases, tr.Phase)
		}
	}
	return s, phases
}

func TestStep_LateralRaiseSequence(t *testing.T) {
	m := mustExercise(t, "lateral-raise").Machine

	s, phases := run(m, Initial(m), []float64{10, 50, 90, 70, 20})

	want := []string{lifting, lifting, lowering, starting}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, s.Reps)
	assert.Equal(t, exercise.StateStart, s.Rep)
	assert.Equal(t, starting, s.Phase)
}

func TestStep_NoDoubleCount(t *testing.T) {
	m := mustExercise(t, "lateral-raise").Machine
	elevated := []float64{50, 90, 70}

	s, _ := run(m, Initial(m), elevated)
	s, _ = run(m, s, elevated)

	assert.Equal(t, 0, s.Reps)
	assert.Equal(t, exercise.StateLowering, s.Rep)

	// oscillating above the start threshold keeps the count steady
	s, _ = run(m, s, []float64{40, 60, 35, 50})
	assert.Equal(t, 0, s.Reps)

	s, _ = run(m, s, []float64{25})
	assert.Equal(t, 1, s.Reps)
}

func TestStep_InclineFlyCycle(t *testing.T) {
	m := mustExercise(t, "incline-fly").Machine

	s, phases := run(m, Initial(m), []float64{170, 140, 90, 120, 165})

	want := []string{descent, descent, ascent, setup}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, s.Reps)
	assert.Equal(t, exercise.StateStart, s.Rep)
}

func TestStep_Boundaries(t *testing.T) {
	lr := mustExercise(t, "lateral-raise").Machine
	fly := mustExercise(t, "incline-fly").Machine

	tests := []struct {
		name  string
		m     *exercise.Machine
		from  exercise.RepState
		angle float64
		fired bool
		to    exercise.RepState
		delta int
	}{
		{"start at 30 stays", lr, exercise.StateStart, 30, false, exercise.StateStart, 0},
		{"start at 85 stays", lr, exercise.StateStart, 85, false, exercise.StateStart, 0},
		{"start at 31 lifts", lr, exercise.StateStart, 31, true, exercise.StateLifting, 0},
		{"lifting at 85 holds", lr, exercise.StateLifting, 85, false, exercise.StateLifting, 0},
		{"lifting above 85 peaks", lr, exercise.StateLifting, 85.5, true, exercise.StatePeak, 0},
		{"peak at 85 holds", lr, exercise.StatePeak, 85, false, exercise.StatePeak, 0},
		{"peak below 85 lowers", lr, exercise.StatePeak, 84.9, true, exercise.StateLowering, 0},
		{"lowering at 30 counts", lr, exercise.StateLowering, 30, true, exercise.StateStart, 1},
		{"lowering at 31 holds", lr, exercise.StateLowering, 31, false, exercise.StateLowering, 0},

		{"fly start at 160 stays", fly, exercise.StateStart, 160, false, exercise.StateStart, 0},
		{"fly start at 95 stays", fly, exercise.StateStart, 95, false, exercise.StateStart, 0},
		{"fly start at 120 descends", fly, exercise.StateStart, 120, true, exercise.StateDescending, 0},
		{"fly descending at 95 bottoms", fly, exercise.StateDescending, 95, true, exercise.StateBottom, 0},
		{"fly bottom at 95 holds", fly, exercise.StateBottom, 95, false, exercise.StateBottom, 0},
		{"fly bottom above 95 ascends", fly, exercise.StateBottom, 96, true, exercise.StateAscending, 0},
		{"fly ascending at 160 counts", fly, exercise.StateAscending, 160, true, exercise.StateStart, 1},
		{"fly ascending at 159 holds", fly, exercise.StateAscending, 159, false, exercise.StateAscending, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{Rep: tt.from, Reps: 3, Phase: "before"}
			next, tr := Step(tt.m, s, tt.angle)

			assert.Equal(t, tt.fired, tr.Fired)
			assert.Equal(t, tt.to, next.Rep)
			assert.Equal(t, 3+tt.delta, next.Reps)
			assert.Equal(t, tt.delta, tr.RepDelta)
			if !tt.fired {
				assert.Equal(t, s, next)
			}
		})
	}
}

func TestStep_FirstMatchWins(t *testing.T) {
	m := &exercise.Machine{
		Initial: exercise.StateStart,
		Rules: []exercise.Rule{
			{From: exercise.StateStart, When: exercise.Condition{Op: exercise.OpGreater, Value: 10}, To: exercise.StatePeak, Phase: "first"},
			{From: exercise.StateStart, When: exercise.Condition{Op: exercise.OpGreater, Value: 5}, To: exercise.StateLifting, Phase: "second"},
		},
	}

	next, tr := Step(m, Initial(m), 20)
	assert.Equal(t, "first", tr.Phase)
	assert.Equal(t, exercise.StatePeak, next.Rep)

	next, tr = Step(m, Initial(m), 7)
	assert.Equal(t, "second", tr.Phase)
	assert.Equal(t, exercise.StateLifting, next.Rep)
}

func TestStep_NilMachine(t *testing.T) {
	s := State{Rep: exercise.StateStart, Phase: exercise.PhaseUnknown}
	next, tr := Step(nil, s, 50)
	assert.False(t, tr.Fired)
	assert.Equal(t, s, next)
}

func TestTracker_Process(t *testing.T) {
	tr := New(mustExercise(t, "lateral-raise"), zerolog.Nop())

	assert.Equal(t, starting, tr.Snapshot().Phase)

	var phases []string
	var last Update
	for _, a := range []float64{10, 50, 90, 70, 20} {
		last = tr.Process(pose.LateralRaisePose(a, pose.SideLeft))
		if last.Transition.Fired {
			phases = append(phases, last.CurrentPhase)
		}
	}

	if diff := cmp.Diff([]string{lifting, lifting, lowering, starting}, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, last.Reps)
	assert.Equal(t, uint64(5), last.Frame)
	assert.Equal(t, "left", last.TrackedSide)
	assert.True(t, last.LeftVisible)
	assert.False(t, last.RightVisible)
	assert.InDelta(t, 20, last.TrackedAngle, 1e-6)
}

func TestTracker_MissingLandmarks(t *testing.T) {
	tr := New(mustExercise(t, "lateral-raise"), zerolog.Nop())

	tr.Process(pose.LateralRaisePose(50, pose.SideRight))
	tr.Process(pose.LateralRaisePose(90, pose.SideRight))
	before := tr.Snapshot()
	require.Equal(t, exercise.StatePeak, before.Rep)

	empty := pose.LateralRaisePose(60, pose.SideRight).Without(
		pose.LeftShoulder, pose.RightShoulder,
		pose.LeftHip, pose.RightHip,
		pose.LeftElbow, pose.RightElbow,
	)
	u := tr.Process(empty)

	assert.Equal(t, exercise.PhaseUnknown, u.CurrentPhase)
	assert.Equal(t, before.Reps, u.Reps)
	assert.Equal(t, before.Rep, u.RepState)
	assert.False(t, u.Transition.Fired)
	assert.False(t, u.Tracking)
	assert.True(t, u.LeftCorrect)
	assert.True(t, u.RightCorrect)

	t.Run("nil pose stalls too", func(t *testing.T) {
		u := tr.Process(nil)
		assert.Equal(t, exercise.PhaseUnknown, u.CurrentPhase)
		assert.Equal(t, before.Rep, u.RepState)
	})

	t.Run("machine resumes where it stalled", func(t *testing.T) {
		u := tr.Process(pose.LateralRaisePose(60, pose.SideRight))
		assert.True(t, u.Transition.Fired)
		assert.Equal(t, exercise.StateLowering, u.RepState)
	})
}

func TestTracker_UntrackedExercise(t *testing.T) {
	tr := New(mustExercise(t, "shoulder-press"), zerolog.Nop())

	for _, a := range []float64{170, 120, 90, 120, 170} {
		u := tr.Process(pose.InclineFlyPose(a))
		assert.Equal(t, exercise.PhaseUnknown, u.CurrentPhase)
		assert.Zero(t, u.Reps)
		assert.True(t, u.Tracking)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := New(mustExercise(t, "incline-fly"), zerolog.Nop())

	for _, a := range []float64{170, 140, 90, 120, 165, 140} {
		tr.Process(pose.InclineFlyPose(a))
	}
	require.Equal(t, 1, tr.Snapshot().Reps)

	tr.Reset()

	s := tr.Snapshot()
	assert.Equal(t, 0, s.Reps)
	assert.Equal(t, exercise.StateStart, s.Rep)
	assert.Equal(t, setup, s.Phase)
}

func TestTracker_RepsNeverDecrease(t *testing.T) {
	tr := New(mustExercise(t, "lateral-raise"), zerolog.Nop())

	angles := []float64{10, 40, 60, 90, 100, 80, 50, 20, 5, 45, 95, 70, 10, 50, 60, 80, 86, 84, 31, 29}
	prev := 0
	for _, a := range angles {
		u := tr.Process(pose.LateralRaisePose(a, pose.SideLeft))
		assert.GreaterOrEqual(t, u.Reps, prev)
		prev = u.Reps
	}
	assert.Equal(t, 3, prev)
}
