// Package tracker turns a per-frame tracked angle into phase transitions and
// repetition counts.
package tracker

import "github.com/ayusman/repcoach/internal/exercise"

// State is the mutable part of a rep machine.
type State struct {
	Rep   exercise.RepState `json:"repState"`
	Reps  int               `json:"reps"`
	Phase string            `json:"phase"`
}

// Transition describes what a single Step did. Fired is false when no rule matched.
type Transition struct {
	Fired    bool              `json:"fired"`
	From     exercise.RepState `json:"from,omitempty"`
	To       exercise.RepState `json:"to,omitempty"`
	Phase    string            `json:"phase,omitempty"`
	RepDelta int               `json:"repDelta,omitempty"`
}

// Initial returns the starting state of m.
func Initial(m *exercise.Machine) State {
	if m == nil {
		return State{Rep: exercise.StateStart, Phase: exercise.PhaseUnknown}
	}
	return State{Rep: m.Initial, Phase: m.InitialPhase}
}

// Step applies the first rule of m whose source state is s.Rep and whose
// condition matches angle. It does not modify s.
func Step(m *exercise.Machine, s State, angle float64) (State, Transition) {
	if m == nil {
		return s, Transition{}
	}

	for _, r := range m.Rules {
		if r.From != s.Rep || !r.When.Match(angle) {
			continue
		}

		t := Transition{
			Fired: true,
			From:  r.From,
			To:    r.To,
			Phase: r.Phase,
		}
		if r.CountRep {
			t.RepDelta = 1
		}

		next := State{
			Rep:   r.To,
			Reps:  s.Reps + t.RepDelta,
			Phase: r.Phase,
		}
		return next, t
	}

	return s, Transition{}
}
