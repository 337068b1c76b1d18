package kinematics

import "github.com/ayusman/repcoach/internal/pose"

// Threshold is an inclusive joint-angle range, in degrees, that counts as correct form.
type Threshold struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Within reports whether angle lies in t. A nil threshold accepts every angle.
func Within(angle float64, t *Threshold) bool {
	if t == nil {
		return true
	}
	return angle >= t.Min && angle <= t.Max
}

// View is the camera placement an exercise is filmed from.
type View string

const (
	ViewSide  View = "side"
	ViewFront View = "front"
)

// ArmReading is the evaluated state of one arm for a single frame.
type ArmReading struct {
	Angle      float64 `json:"angle"`
	ElbowAngle float64 `json:"elbowAngle"`
	Visible    bool    `json:"visible"`
	Correct    bool    `json:"correct"`
}

// hidden is the reading for an arm that cannot be measured or is suppressed.
var hidden = ArmReading{Visible: false, Correct: true}

// EvaluateArms measures both arms and checks them against the shoulder and elbow
// thresholds. From the side view only the arm whose shoulder is more visible is
// reported; the other is returned hidden.
func EvaluateArms(p *pose.Pose, shoulder, elbow *Threshold, view View) (left, right ArmReading) {
	left = evaluateArm(p, pose.SideLeft, shoulder, elbow)
	right = evaluateArm(p, pose.SideRight, shoulder, elbow)

	if view != ViewSide {
		return left, right
	}
	if p.Visibility(pose.LeftShoulder) > p.Visibility(pose.RightShoulder) {
		return left, hidden
	}
	return hidden, right
}

func evaluateArm(p *pose.Pose, side pose.Side, shoulder, elbow *Threshold) ArmReading {
	j := jointsFor(side)
	if !p.Has(j.hip, j.shoulder, j.elbow) {
		return hidden
	}

	r := ArmReading{
		Angle:   ShoulderAngle(p, side),
		Visible: true,
	}
	r.Correct = Within(r.Angle, shoulder)

	if p.Has(j.wrist) {
		r.ElbowAngle = ElbowAngle(p, side)
		r.Correct = r.Correct && Within(r.ElbowAngle, elbow)
	}
	return r
}

// requiredLandmarks must all be present before a tracked angle is produced.
var requiredLandmarks = []int{
	pose.LeftShoulder, pose.RightShoulder,
	pose.LeftHip, pose.RightHip,
	pose.LeftElbow, pose.RightElbow,
}

// TrackedAngle picks the side whose shoulder is strictly more visible, ties going
// right, and returns its hip-shoulder-elbow angle. ok is false if any required
// landmark is missing.
func TrackedAngle(p *pose.Pose) (angle float64, side pose.Side, ok bool) {
	if !p.Has(requiredLandmarks...) {
		return 0, pose.SideRight, false
	}

	side = pose.SideRight
	if p.Visibility(pose.LeftShoulder) > p.Visibility(pose.RightShoulder) {
		side = pose.SideLeft
	}
	return ShoulderAngle(p, side), side, true
}
