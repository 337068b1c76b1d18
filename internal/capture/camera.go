// Package capture provides camera capture for monitoring views using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrDeviceUnavailable is returned by Open when the device index has no camera.
	ErrDeviceUnavailable = errors.New("device unavailable")
)

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Factory opens camera handles by device index.
type Factory func(deviceID int) Camera

// NewFactory returns a Factory whose cameras request fps frames per second.
func NewFactory(fps int) Factory {
	return func(deviceID int) Camera {
		cam := NewCamera(deviceID)
		cam.SetFPS(fps)
		return cam
	}
}

// source is the part of gocv.VideoCapture a deviceCamera drives.
type source interface {
	IsOpened() bool
	Read(m *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, param float64)
	Close() error
}

// videoCapture adapts gocv.VideoCapture to source.
type videoCapture struct {
	*gocv.VideoCapture
}

func (v videoCapture) Set(prop gocv.VideoCaptureProperties, param float64) {
	v.VideoCapture.Set(prop, param)
}

// openSource opens a capture device. Tests replace it.
var openSource = func(deviceID int) (source, error) {
	vc, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, err
	}
	return videoCapture{vc}, nil
}

// deviceCamera streams frames from a capture device at the requested rate.
type deviceCamera struct {
	deviceID int

	mu  sync.Mutex
	src source
	fps int
}

// NewCamera returns a closed Camera for the given device index.
func NewCamera(deviceID int) Camera {
	return &deviceCamera{deviceID: deviceID, fps: DefaultFPS}
}

// Open starts capture at DefaultWidth x DefaultHeight. Opening an open camera
// is a no-op.
func (c *deviceCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.src != nil {
		return nil
	}

	src, err := openSource(c.deviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, err)
	}
	if !src.IsOpened() {
		src.Close()
		return fmt.Errorf("open camera %d: %w", c.deviceID, ErrDeviceUnavailable)
	}

	src.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	src.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
	src.Set(gocv.VideoCaptureFPS, float64(c.fps))
	c.src = src
	return nil
}

// Close releases the device.
func (c *deviceCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.src == nil {
		return nil
	}
	err := c.src.Close()
	c.src = nil
	return err
}

// ReadFrame grabs the next frame. The caller closes the returned Mat.
func (c *deviceCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.src == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if !c.src.Read(&mat) {
		mat.Close()
		return nil, fmt.Errorf("read frame from camera %d", c.deviceID)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("camera %d returned an empty frame", c.deviceID)
	}
	return &mat, nil
}

// SetFPS changes the requested rate, applying it to an open device at once.
// Non-positive values are ignored.
func (c *deviceCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.src != nil {
		c.src.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *deviceCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *deviceCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src != nil
}

// Devices probes device indices 0..max-1 and returns those that open.
func Devices(max int) []int {
	var found []int
	for id := 0; id < max; id++ {
		src, err := openSource(id)
		if err != nil {
			continue
		}
		if src.IsOpened() {
			found = append(found, id)
		}
		src.Close()
	}
	return found
}
