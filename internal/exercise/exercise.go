// Package exercise holds the per-exercise configuration tables: form thresholds,
// phase definitions and the rep state machine rules.
package exercise

import (
	"fmt"

	"github.com/ayusman/repcoach/internal/kinematics"
)

// PhaseUnknown is reported when the phase cannot be determined, either because
// landmarks are missing or the exercise has no state machine.
const PhaseUnknown = "Unknown"

// RepState is the position within the current repetition cycle.
type RepState string

const (
	StateStart      RepState = "start"
	StateLifting    RepState = "lifting"
	StatePeak       RepState = "peak"
	StateLowering   RepState = "lowering"
	StateDescending RepState = "descending"
	StateBottom     RepState = "bottom"
	StateAscending  RepState = "ascending"
)

var knownStates = map[RepState]bool{
	StateStart:      true,
	StateLifting:    true,
	StatePeak:       true,
	StateLowering:   true,
	StateDescending: true,
	StateBottom:     true,
	StateAscending:  true,
}

// Op is a comparison used by a rule condition.
type Op string

const (
	OpGreater      Op = "gt"
	OpGreaterEqual Op = "ge"
	OpLess         Op = "lt"
	OpLessEqual    Op = "le"
	OpBetween      Op = "between"
)

// Condition is an angle predicate. Between is exclusive at both ends.
type Condition struct {
	Op    Op      `json:"op" yaml:"op"`
	Value float64 `json:"value,omitempty" yaml:"value"`
	Low   float64 `json:"low,omitempty" yaml:"low"`
	High  float64 `json:"high,omitempty" yaml:"high"`
}

// Match reports whether angle satisfies the condition.
func (c Condition) Match(angle float64) bool {
	switch c.Op {
	case OpGreater:
		return angle > c.Value
	case OpGreaterEqual:
		return angle >= c.Value
	case OpLess:
		return angle < c.Value
	case OpLessEqual:
		return angle <= c.Value
	case OpBetween:
		return angle > c.Low && angle < c.High
	default:
		return false
	}
}

func (c Condition) String() string {
	if c.Op == OpBetween {
		return fmt.Sprintf("%g < angle < %g", c.Low, c.High)
	}
	sym := map[Op]string{OpGreater: ">", OpGreaterEqual: ">=", OpLess: "<", OpLessEqual: "<="}[c.Op]
	return fmt.Sprintf("angle %s %g", sym, c.Value)
}

// Rule moves the machine from one state to another when its condition holds.
type Rule struct {
	From     RepState  `json:"from" yaml:"from"`
	When     Condition `json:"when" yaml:"when"`
	To       RepState  `json:"to" yaml:"to"`
	Phase    string    `json:"phase" yaml:"phase"`
	CountRep bool      `json:"countRep,omitempty" yaml:"count_rep"`
}

// Machine is an ordered rule table. Rules are tried in order and the first
// match wins, so the order is part of the behavior.
type Machine struct {
	Initial      RepState `json:"initial" yaml:"initial"`
	InitialPhase string   `json:"initialPhase" yaml:"initial_phase"`
	Rules        []Rule   `json:"rules" yaml:"rules"`
}

// AngleRange bounds a phase definition.
type AngleRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// PhaseDefinition names a segment of a repetition.
type PhaseDefinition struct {
	Name       string     `json:"name" yaml:"name"`
	AngleRange AngleRange `json:"angleRange" yaml:"angle_range"`
}

// Exercise is the static configuration for one selectable exercise.
type Exercise struct {
	ID                string                `json:"id" yaml:"id"`
	Name              string                `json:"name" yaml:"name"`
	View              kinematics.View       `json:"view" yaml:"view"`
	Category          string                `json:"category" yaml:"category"`
	ShoulderThreshold *kinematics.Threshold `json:"shoulderThreshold,omitempty" yaml:"shoulder_threshold"`
	ElbowThreshold    *kinematics.Threshold `json:"elbowThreshold,omitempty" yaml:"elbow_threshold"`
	Phases            []PhaseDefinition     `json:"phases" yaml:"phases"`
	Machine           *Machine              `json:"machine,omitempty" yaml:"machine"`
}

// Tracked reports whether the exercise has a state machine.
func (e *Exercise) Tracked() bool {
	return e.Machine != nil && len(e.Machine.Rules) > 0
}

// PhaseNames returns the distinct phases the exercise can emit, in first-seen order.
func (e *Exercise) PhaseNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	if e.Machine != nil {
		add(e.Machine.InitialPhase)
		for _, r := range e.Machine.Rules {
			add(r.Phase)
		}
	}
	for _, p := range e.Phases {
		add(p.Name)
	}
	return names
}

// Validate checks the exercise for structural errors.
func (e *Exercise) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("exercise id is required")
	}
	if e.View != kinematics.ViewSide && e.View != kinematics.ViewFront {
		return fmt.Errorf("exercise %s: unknown view %q", e.ID, e.View)
	}
	for name, th := range map[string]*kinematics.Threshold{"shoulder": e.ShoulderThreshold, "elbow": e.ElbowThreshold} {
		if th != nil && th.Min > th.Max {
			return fmt.Errorf("exercise %s: %s threshold min %g > max %g", e.ID, name, th.Min, th.Max)
		}
	}
	if e.Machine == nil {
		return nil
	}
	if !knownStates[e.Machine.Initial] {
		return fmt.Errorf("exercise %s: unknown initial state %q", e.ID, e.Machine.Initial)
	}
	for i, r := range e.Machine.Rules {
		if !knownStates[r.From] || !knownStates[r.To] {
			return fmt.Errorf("exercise %s: rule %d: unknown state %q -> %q", e.ID, i, r.From, r.To)
		}
		switch r.When.Op {
		case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		case OpBetween:
			if r.When.Low >= r.When.High {
				return fmt.Errorf("exercise %s: rule %d: empty range %g..%g", e.ID, i, r.When.Low, r.When.High)
			}
		default:
			return fmt.Errorf("exercise %s: rule %d: unknown op %q", e.ID, i, r.When.Op)
		}
		if r.Phase == "" {
			return fmt.Errorf("exercise %s: rule %d: phase is required", e.ID, i)
		}
	}
	return nil
}
