package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

// fakeSource stands in for a capture device.
type fakeSource struct {
	opened bool
	frames int
	closed bool
	props  map[gocv.VideoCaptureProperties]float64
}

func (s *fakeSource) IsOpened() bool { return s.opened }

func (s *fakeSource) Read(m *gocv.Mat) bool {
	if s.frames == 0 {
		return false
	}
	s.frames--
	blank := gocv.NewMatWithSize(DefaultHeight, DefaultWidth, gocv.MatTypeCV8UC3)
	blank.CopyTo(m)
	blank.Close()
	return true
}

func (s *fakeSource) Set(prop gocv.VideoCaptureProperties, v float64) {
	if s.props == nil {
		s.props = make(map[gocv.VideoCaptureProperties]float64)
	}
	s.props[prop] = v
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// withSources routes openSource to the given per-device results for one test.
func withSources(t *testing.T, devices map[int]*fakeSource) map[int]int {
	t.Helper()
	opens := make(map[int]int)
	prev := openSource
	openSource = func(id int) (source, error) {
		opens[id]++
		src, ok := devices[id]
		if !ok {
			return nil, errors.New("no such device")
		}
		return src, nil
	}
	t.Cleanup(func() { openSource = prev })
	return opens
}

func TestDevices(t *testing.T) {
	present := &fakeSource{opened: true}
	dead := &fakeSource{opened: false}
	opens := withSources(t, map[int]*fakeSource{0: present, 2: dead, 3: {opened: true}})

	got := Devices(4)
	if len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Errorf("Devices(4) = %v, want [0 3]", got)
	}
	for id := 0; id < 4; id++ {
		if opens[id] != 1 {
			t.Errorf("device %d probed %d times, want 1", id, opens[id])
		}
	}
	if !present.closed || !dead.closed {
		t.Error("probed devices should be released")
	}

	if got := Devices(0); len(got) != 0 {
		t.Errorf("Devices(0) = %v, want none", got)
	}
}

func TestCamera_OpenErrors(t *testing.T) {
	dead := &fakeSource{opened: false}
	withSources(t, map[int]*fakeSource{1: dead})

	err := NewCamera(7).Open()
	if err == nil || err.Error() != "open camera 7: no such device" {
		t.Errorf("Open() on missing device error = %v", err)
	}

	cam := NewCamera(1)
	err = cam.Open()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Open() error = %v, want ErrDeviceUnavailable", err)
	}
	if !dead.closed {
		t.Error("an unopened device should be released")
	}
	if cam.IsOpen() {
		t.Error("IsOpen() should be false after a failed Open")
	}
}

func TestCamera_OpenAppliesSettings(t *testing.T) {
	src := &fakeSource{opened: true, frames: 1}
	opens := withSources(t, map[int]*fakeSource{0: src})

	cam := NewCamera(0)
	cam.SetFPS(12)
	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := cam.Open(); err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if opens[0] != 1 {
		t.Errorf("device opened %d times, want 1", opens[0])
	}

	want := map[gocv.VideoCaptureProperties]float64{
		gocv.VideoCaptureFrameWidth:  DefaultWidth,
		gocv.VideoCaptureFrameHeight: DefaultHeight,
		gocv.VideoCaptureFPS:         12,
	}
	for prop, v := range want {
		if src.props[prop] != v {
			t.Errorf("property %v = %v, want %v", prop, src.props[prop], v)
		}
	}

	cam.SetFPS(24)
	if src.props[gocv.VideoCaptureFPS] != 24 {
		t.Errorf("SetFPS on an open camera should reach the device, got %v", src.props[gocv.VideoCaptureFPS])
	}
	cam.SetFPS(-1)
	if cam.FPS() != 24 {
		t.Errorf("FPS() = %d after a negative SetFPS, want 24", cam.FPS())
	}
}

func TestCamera_ReadFrame(t *testing.T) {
	src := &fakeSource{opened: true, frames: 1}
	withSources(t, map[int]*fakeSource{0: src})

	cam := NewCamera(0)
	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() before Open error = %v, want ErrCameraNotOpen", err)
	}

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	mat, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if mat.Cols() != DefaultWidth || mat.Rows() != DefaultHeight {
		t.Errorf("frame = %dx%d, want %dx%d", mat.Cols(), mat.Rows(), DefaultWidth, DefaultHeight)
	}
	mat.Close()

	if _, err := cam.ReadFrame(); err == nil {
		t.Error("ReadFrame() should fail once the device stops delivering")
	}

	if err := cam.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !src.closed || cam.IsOpen() {
		t.Error("Close() should release the device")
	}
	if err := cam.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewFactory(t *testing.T) {
	factory := NewFactory(15)

	a, b := factory(0), factory(1)
	if a == b {
		t.Fatal("factory should return a new camera per call")
	}
	for _, cam := range []Camera{a, b} {
		if cam.FPS() != 15 {
			t.Errorf("FPS() = %d, want 15", cam.FPS())
		}
		if cam.IsOpen() {
			t.Error("factory cameras start closed")
		}
	}

	if got := NewFactory(0)(0).FPS(); got != DefaultFPS {
		t.Errorf("FPS() with a zero rate = %d, want %d", got, DefaultFPS)
	}
}
