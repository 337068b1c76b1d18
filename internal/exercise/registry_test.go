package exercise

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/repcoach/internal/kinematics"
)

func TestLoad_Builtin(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	ids := make([]string, 0)
	for _, ex := range r.List() {
		ids = append(ids, ex.ID)
	}
	assert.Equal(t, []string{"bicep-curl", "front-raise", "incline-fly", "lateral-raise", "shoulder-press"}, ids)

	lr, err := r.Get("lateral-raise")
	require.NoError(t, err)
	assert.Equal(t, kinematics.ViewSide, lr.View)
	assert.True(t, lr.Tracked())
	require.Len(t, lr.Machine.Rules, 4)
	assert.Equal(t, StateLifting, lr.Machine.Rules[0].From)
	assert.Equal(t, StatePeak, lr.Machine.Rules[0].To)
	assert.True(t, lr.Machine.Rules[1].CountRep)

	fly, err := r.Get("incline-fly")
	require.NoError(t, err)
	assert.Equal(t, kinematics.ViewFront, fly.View)
	assert.Equal(t, Condition{Op: OpGreaterEqual, Value: 160}, fly.Machine.Rules[1].When)

	press, err := r.Get("shoulder-press")
	require.NoError(t, err)
	assert.False(t, press.Tracked())
	assert.NotNil(t, press.ShoulderThreshold)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := Default()
	_, err := r.Get("deadlift")
	assert.ErrorIs(t, err, ErrUnknownExercise)
}

func TestLoad_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exercises.yaml")
	data := `
exercises:
  - id: lateral-raise
    name: Light Lateral Raise
    view: side
    shoulder_threshold: {min: 0, max: 80}
  - id: face-pull
    name: Face Pull
    view: front
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	r, err := Load(path)
	require.NoError(t, err)

	lr, err := r.Get("lateral-raise")
	require.NoError(t, err)
	assert.Equal(t, "Light Lateral Raise", lr.Name)
	assert.False(t, lr.Tracked())

	_, err = r.Get("face-pull")
	assert.NoError(t, err)
	assert.Len(t, r.List(), 6)
}

func TestLoad_MissingOverride(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "duplicate id",
			yaml: "exercises:\n  - {id: a, view: side}\n  - {id: a, view: side}\n",
		},
		{
			name: "null entry",
			yaml: "exercises:\n  - ~\n",
		},
		{
			name: "missing id",
			yaml: "exercises:\n  - {name: x, view: side}\n",
		},
		{
			name: "bad view",
			yaml: "exercises:\n  - {id: a, view: top}\n",
		},
		{
			name: "inverted threshold",
			yaml: "exercises:\n  - {id: a, view: side, shoulder_threshold: {min: 90, max: 10}}\n",
		},
		{
			name: "unknown state",
			yaml: `exercises:
  - id: a
    view: side
    machine:
      initial: start
      rules:
        - {from: start, to: hovering, phase: P, when: {op: gt, value: 1}}
`,
		},
		{
			name: "unknown op",
			yaml: `exercises:
  - id: a
    view: side
    machine:
      initial: start
      rules:
        - {from: start, to: peak, phase: P, when: {op: eq, value: 1}}
`,
		},
		{
			name: "empty between",
			yaml: `exercises:
  - id: a
    view: side
    machine:
      initial: start
      rules:
        - {from: start, to: peak, phase: P, when: {op: between, low: 5, high: 5}}
`,
		},
		{
			name: "malformed yaml",
			yaml: "exercises: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestCondition_Match(t *testing.T) {
	tests := []struct {
		cond  Condition
		angle float64
		want  bool
	}{
		{Condition{Op: OpGreater, Value: 85}, 85, false},
		{Condition{Op: OpGreater, Value: 85}, 85.01, true},
		{Condition{Op: OpGreaterEqual, Value: 160}, 160, true},
		{Condition{Op: OpLess, Value: 85}, 85, false},
		{Condition{Op: OpLessEqual, Value: 30}, 30, true},
		{Condition{Op: OpBetween, Low: 30, High: 85}, 30, false},
		{Condition{Op: OpBetween, Low: 30, High: 85}, 85, false},
		{Condition{Op: OpBetween, Low: 30, High: 85}, 50, true},
		{Condition{Op: "bogus"}, 50, false},
	}

	for _, tt := range tests {
		t.Run(tt.cond.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Match(tt.angle), "angle %v", tt.angle)
		})
	}
}

func TestExercise_PhaseNames(t *testing.T) {
	lr, err := Default().Get("lateral-raise")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Starting Position",
		"Lifting Phase (Concentric)",
		"Lowering Phase (Eccentric)",
	}, lr.PhaseNames())
}
