package pose

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu         sync.Mutex
	pose       *Pose
	script     []*Pose
	err        error
	calls      int
	closeCalls int
	gate       chan struct{}
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPose sets the pose returned by Detect once any scripted poses are used up.
func (m *MockDetector) SetPose(p *Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pose = p
}

// Script queues poses that are returned in order, one per Detect call.
func (m *MockDetector) Script(poses ...*Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, poses...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Hold makes subsequent Detect calls block until Release is called.
func (m *MockDetector) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Release unblocks every Detect call waiting on Hold.
func (m *MockDetector) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Detect returns the next scripted pose, the pre-configured pose, or the error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Pose, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) > 0 {
		p := m.script[0]
		m.script = m.script[1:]
		return p, nil
	}
	return m.pose, nil
}

// Calls returns the number of Detect invocations so far.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// CloseCalls returns how many times Close was called.
func (m *MockDetector) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// Close records the call and otherwise does nothing.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// Side identifies the left or right half of the body.
type Side int

const (
	SideRight Side = iota
	SideLeft
)

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

const (
	segment = 0.15

	highVisibility = 0.95
	lowVisibility  = 0.30
)

// ArmPose returns a pose with both arms raised so that the hip-shoulder-elbow
// angle equals leftDeg and rightDeg. Each wrist continues the upper arm, so the
// elbows are straight.
func ArmPose(leftDeg, rightDeg, leftVis, rightVis float64) *Pose {
	p := &Pose{Landmarks: make([]*Landmark, NumLandmarks)}

	p.Landmarks[Nose] = &Landmark{X: 0.5, Y: 0.2, Visibility: 0.99}

	place := func(shoulder, elbow, wrist, hip int, x, dir, deg, vis float64) {
		rad := deg * math.Pi / 180
		dx := dir * math.Sin(rad) * segment
		dy := math.Cos(rad) * segment

		p.Landmarks[shoulder] = &Landmark{X: x, Y: 0.35, Visibility: vis}
		p.Landmarks[hip] = &Landmark{X: x, Y: 0.65, Visibility: vis}
		p.Landmarks[elbow] = &Landmark{X: x + dx, Y: 0.35 + dy, Visibility: vis}
		p.Landmarks[wrist] = &Landmark{X: x + 2*dx, Y: 0.35 + 2*dy, Visibility: vis}
	}

	// Image coordinates: the subject's left side appears on the right of the frame.
	place(LeftShoulder, LeftElbow, LeftWrist, LeftHip, 0.6, 1, leftDeg, leftVis)
	place(RightShoulder, RightElbow, RightWrist, RightHip, 0.4, -1, rightDeg, rightVis)

	return p
}

// LateralRaisePose returns a side-view pose with the given side facing the camera.
func LateralRaisePose(angleDeg float64, facing Side) *Pose {
	if facing == SideLeft {
		return ArmPose(angleDeg, angleDeg, highVisibility, lowVisibility)
	}
	return ArmPose(angleDeg, angleDeg, lowVisibility, highVisibility)
}

// InclineFlyPose returns a front-view pose with both arms at angleDeg and equal visibility.
func InclineFlyPose(angleDeg float64) *Pose {
	return ArmPose(angleDeg, angleDeg, 0.9, 0.9)
}
