package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/repcoach/internal/capture"
	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/pose"
	"github.com/ayusman/repcoach/internal/tracker"
)

const testInterval = 5 * time.Millisecond

type recordingSink struct {
	mu      sync.Mutex
	updates []tracker.Update
}

func (s *recordingSink) Render(u tracker.Update, frame *gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func (s *recordingSink) Last() tracker.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[len(s.updates)-1]
}

type fixture struct {
	camera   *capture.MockCamera
	detector *pose.MockDetector
	sink     *recordingSink
	driver   *Driver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ex, err := exercise.Default().Get("lateral-raise")
	require.NoError(t, err)

	f := &fixture{
		camera:   capture.NewSyntheticCamera(64, 48),
		detector: pose.NewMockDetector(),
		sink:     &recordingSink{},
	}
	f.driver = NewDriver(Config{
		Camera:    f.camera,
		Detector:  f.detector,
		Tracker:   tracker.New(ex, zerolog.Nop()),
		Sink:      f.sink,
		Interval:  testInterval,
		OpenRetry: testInterval,
		Logger:    zerolog.Nop(),
	})
	return f
}

func TestDriver_ProcessesFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping driver loop test in short mode")
	}

	f := newFixture(t)
	f.detector.Script(
		pose.LateralRaisePose(10, pose.SideRight),
		pose.LateralRaisePose(50, pose.SideRight),
		pose.LateralRaisePose(90, pose.SideRight),
		pose.LateralRaisePose(70, pose.SideRight),
	)
	f.detector.SetPose(pose.LateralRaisePose(20, pose.SideRight))

	require.NoError(t, f.driver.Start(context.Background()))
	require.Eventually(t, func() bool { return f.sink.Len() >= 6 }, 2*time.Second, testInterval)
	require.NoError(t, f.driver.Stop())

	last := f.sink.Last()
	assert.Equal(t, 1, last.Reps)
	assert.Equal(t, "Starting Position", last.CurrentPhase)
	assert.Equal(t, StatusStopped, f.driver.Status())
}

func TestDriver_SubmissionsConstantAfterStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping driver loop test in short mode")
	}

	f := newFixture(t)
	f.detector.SetPose(pose.LateralRaisePose(10, pose.SideRight))

	require.NoError(t, f.driver.Start(context.Background()))
	require.Eventually(t, func() bool { return f.driver.Submissions() >= 3 }, 2*time.Second, testInterval)
	require.NoError(t, f.driver.Stop())

	after := f.driver.Submissions()
	time.Sleep(10 * testInterval)
	assert.Equal(t, after, f.driver.Submissions())
	assert.Equal(t, int(after), f.detector.Calls())
}

func TestDriver_OneSubmissionInFlight(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping driver loop test in short mode")
	}

	f := newFixture(t)
	f.detector.SetPose(pose.LateralRaisePose(10, pose.SideRight))
	f.detector.Hold()

	require.NoError(t, f.driver.Start(context.Background()))
	require.Eventually(t, func() bool { return f.detector.Calls() == 1 }, 2*time.Second, testInterval)

	time.Sleep(20 * testInterval)
	assert.Equal(t, 1, f.detector.Calls(), "ticks during a pending detection must be skipped")
	assert.Equal(t, uint64(1), f.driver.Submissions())

	f.detector.Release()
	require.Eventually(t, func() bool { return f.detector.Calls() >= 2 }, 2*time.Second, testInterval)
	require.NoError(t, f.driver.Stop())
}

func TestDriver_DetectorErrorsDoNotStopLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping driver loop test in short mode")
	}

	f := newFixture(t)
	f.detector.SetError(errors.New("inference failed"))

	require.NoError(t, f.driver.Start(context.Background()))
	require.Eventually(t, func() bool { return f.detector.Calls() >= 5 }, 2*time.Second, testInterval)
	require.NoError(t, f.driver.Stop())

	assert.Zero(t, f.sink.Len())
}

func TestDriver_StopTwice(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.camera.Open())
	require.NoError(t, f.driver.Start(context.Background()))
	require.NoError(t, f.driver.Start(context.Background()))

	require.NoError(t, f.driver.Stop())
	require.NoError(t, f.driver.Stop())

	assert.Equal(t, 1, f.detector.CloseCalls())
	assert.Zero(t, f.camera.CloseCalls(), "driver must not close the camera")
	assert.True(t, f.camera.IsOpen())
}

func TestDriver_StopWithoutStart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.driver.Stop())
	assert.Equal(t, 1, f.detector.CloseCalls())
	assert.Zero(t, f.driver.Submissions())
}

func TestDriver_CameraOpenRetried(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping driver loop test in short mode")
	}

	f := newFixture(t)
	busy := errors.New("device busy")
	f.camera.FailOpen(busy, busy)

	require.NoError(t, f.driver.Start(context.Background()))
	require.Eventually(t, func() bool { return f.driver.Status() == StatusLoadingCamera }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.driver.Submissions() > 0 }, 2*time.Second, testInterval)
	require.NoError(t, f.driver.Stop())

	assert.GreaterOrEqual(t, f.camera.OpenCalls(), 3)
}

func TestDriver_BorrowedCameraWaitsForOwner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping driver loop test in short mode")
	}

	f := newFixture(t)
	f.driver.camera = capture.Borrow(f.camera)

	require.NoError(t, f.driver.Start(context.Background()))
	time.Sleep(10 * testInterval)
	assert.Zero(t, f.driver.Submissions())
	assert.Equal(t, StatusLoadingCamera, f.driver.Status())

	require.NoError(t, f.camera.Open())
	require.Eventually(t, func() bool { return f.driver.Submissions() > 0 }, 2*time.Second, testInterval)
	require.NoError(t, f.driver.Stop())
	assert.True(t, f.camera.IsOpen())
}

func TestDriver_DiscardsResultAfterStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping driver loop test in short mode")
	}

	f := newFixture(t)
	f.detector.SetPose(pose.LateralRaisePose(10, pose.SideRight))
	f.detector.Hold()

	require.NoError(t, f.driver.Start(context.Background()))
	require.Eventually(t, func() bool { return f.detector.Calls() == 1 }, 2*time.Second, testInterval)

	done := make(chan error, 1)
	go func() { done <- f.driver.Stop() }()

	require.Eventually(t, func() bool { return f.driver.stopping.Load() }, time.Second, time.Millisecond)
	f.detector.Release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the pending detection finished")
	}
	assert.Zero(t, f.sink.Len())
}

func TestDriver_ContextCancelStopsLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping driver loop test in short mode")
	}

	f := newFixture(t)
	f.detector.SetPose(pose.LateralRaisePose(10, pose.SideRight))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.driver.Start(ctx))
	require.Eventually(t, func() bool { return f.driver.Submissions() > 0 }, 2*time.Second, testInterval)
	cancel()

	time.Sleep(5 * testInterval)
	n := f.driver.Submissions()
	time.Sleep(10 * testInterval)
	assert.Equal(t, n, f.driver.Submissions())
	require.NoError(t, f.driver.Stop())
}

// stuckDetector blocks every Detect until Close is called.
type stuckDetector struct {
	calls   atomic.Int32
	closed  chan struct{}
	closeMu sync.Once
}

func (d *stuckDetector) Detect(*gocv.Mat) (*pose.Pose, error) {
	d.calls.Add(1)
	<-d.closed
	return nil, pose.ErrDetectorClosed
}

func (d *stuckDetector) Close() error {
	d.closeMu.Do(func() { close(d.closed) })
	return nil
}

func TestDriver_StopInterruptsStuckDetector(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping driver loop test in short mode")
	}

	ex, err := exercise.Default().Get("lateral-raise")
	require.NoError(t, err)

	det := &stuckDetector{closed: make(chan struct{})}
	d := NewDriver(Config{
		Camera:    capture.NewSyntheticCamera(64, 48),
		Detector:  det,
		Tracker:   tracker.New(ex, zerolog.Nop()),
		Interval:  testInterval,
		OpenRetry: testInterval,
		StopGrace: 50 * time.Millisecond,
		Logger:    zerolog.Nop(),
	})

	require.NoError(t, d.Start(context.Background()))
	require.Eventually(t, func() bool { return det.calls.Load() == 1 }, 2*time.Second, testInterval)

	done := make(chan error, 1)
	go func() { done <- d.Stop() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung on a detector that never answers")
	}
	assert.Equal(t, StatusStopped, d.Status())
	assert.Equal(t, int32(1), det.calls.Load())
}
