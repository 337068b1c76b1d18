// Package pose provides the pose landmark source consumed by the rep tracker.
package pose

// Body landmark indices following the MediaPipe Pose 33-point convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose          = 0
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16
	LeftHip       = 23
	RightHip      = 24
	LeftKnee      = 25
	RightKnee     = 26
	NumLandmarks  = 33
)

// Landmark is a single tracked body point. X and Y are normalized to the frame
// dimensions; Visibility is the detector's confidence in [0,1].
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Pose is one detector result. A nil entry means the landmark was not produced
// for this frame.
type Pose struct {
	Landmarks []*Landmark `json:"landmarks"`
}

// At returns the landmark at index i, or nil when it is absent.
func (p *Pose) At(i int) *Landmark {
	if p == nil || i < 0 || i >= len(p.Landmarks) {
		return nil
	}
	return p.Landmarks[i]
}

// Has reports whether every listed landmark is present.
func (p *Pose) Has(indices ...int) bool {
	for _, i := range indices {
		if p.At(i) == nil {
			return false
		}
	}
	return true
}

// Visibility returns the visibility of landmark i, or 0 when absent.
func (p *Pose) Visibility(i int) float64 {
	if lm := p.At(i); lm != nil {
		return lm.Visibility
	}
	return 0
}

// Without returns a copy of p with the listed landmarks removed.
func (p *Pose) Without(indices ...int) *Pose {
	if p == nil {
		return nil
	}
	out := &Pose{Landmarks: make([]*Landmark, len(p.Landmarks))}
	copy(out.Landmarks, p.Landmarks)
	for _, i := range indices {
		if i >= 0 && i < len(out.Landmarks) {
			out.Landmarks[i] = nil
		}
	}
	return out
}
