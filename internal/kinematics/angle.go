// Package kinematics computes joint angles from pose landmarks and checks them
// against form thresholds.
package kinematics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/repcoach/internal/pose"
)

// Angle returns the angle ABC in degrees, in the range [0, 180]. B is the vertex.
// It returns 0 if any point is nil.
func Angle(a, b, c *pose.Landmark) float64 {
	if a == nil || b == nil || c == nil {
		return 0
	}

	vertex := r2.Vec{X: b.X, Y: b.Y}
	ba := r2.Sub(r2.Vec{X: a.X, Y: a.Y}, vertex)
	bc := r2.Sub(r2.Vec{X: c.X, Y: c.Y}, vertex)

	deg := math.Abs(math.Atan2(bc.Y, bc.X)-math.Atan2(ba.Y, ba.X)) * 180 / math.Pi
	if deg > 180 {
		deg = 360 - deg
	}
	return deg
}

// ShoulderAngle returns the hip-shoulder-elbow angle for one side.
func ShoulderAngle(p *pose.Pose, side pose.Side) float64 {
	j := jointsFor(side)
	return Angle(p.At(j.hip), p.At(j.shoulder), p.At(j.elbow))
}

// ElbowAngle returns the shoulder-elbow-wrist angle for one side.
func ElbowAngle(p *pose.Pose, side pose.Side) float64 {
	j := jointsFor(side)
	return Angle(p.At(j.shoulder), p.At(j.elbow), p.At(j.wrist))
}

type joints struct {
	shoulder, elbow, wrist, hip int
}

func jointsFor(side pose.Side) joints {
	if side == pose.SideLeft {
		return joints{pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist, pose.LeftHip}
	}
	return joints{pose.RightShoulder, pose.RightElbow, pose.RightWrist, pose.RightHip}
}
