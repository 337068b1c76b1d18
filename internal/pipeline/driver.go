// Package pipeline pumps camera frames through pose detection and the rep
// tracker at a fixed refresh rate.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/repcoach/internal/capture"
	"github.com/ayusman/repcoach/internal/logging"
	"github.com/ayusman/repcoach/internal/metrics"
	"github.com/ayusman/repcoach/internal/pose"
	"github.com/ayusman/repcoach/internal/render"
	"github.com/ayusman/repcoach/internal/tracker"
)

// Driver timing defaults.
const (
	// DefaultInterval is the tick period when none is configured (~30 fps).
	DefaultInterval = 33 * time.Millisecond
	// DefaultOpenRetry is the minimum gap between camera open attempts.
	DefaultOpenRetry = time.Second
	// DefaultStopGrace is how long Stop waits for a pending detection before
	// closing the detector under it.
	DefaultStopGrace = 2 * time.Second
)

// Status is the driver's externally visible state.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusLoadingCamera Status = "loading_camera"
	StatusRunning       Status = "running"
	StatusStopped       Status = "stopped"
)

// Config holds the collaborators of a Driver.
type Config struct {
	Camera    capture.Camera
	Detector  pose.Detector
	Tracker   *tracker.Tracker
	Sink      render.Sink
	Interval  time.Duration
	OpenRetry time.Duration
	StopGrace time.Duration
	Logger    zerolog.Logger
}

// Driver runs one view's frame loop. At most one frame is in detection at a
// time; ticks that arrive while one is pending are skipped.
type Driver struct {
	camera    capture.Camera
	detector  pose.Detector
	tracker   *tracker.Tracker
	sink      render.Sink
	interval  time.Duration
	openRetry time.Duration
	stopGrace time.Duration
	log       zerolog.Logger

	mu       sync.Mutex
	status   Status
	started  bool
	stopCh   chan struct{}
	lastOpen time.Time

	inFlight    atomic.Bool
	stopping    atomic.Bool
	submissions atomic.Uint64

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// NewDriver creates a stopped Driver.
func NewDriver(cfg Config) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.OpenRetry <= 0 {
		cfg.OpenRetry = DefaultOpenRetry
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.Sink == nil {
		cfg.Sink = render.Discard
	}
	return &Driver{
		camera:    cfg.Camera,
		detector:  cfg.Detector,
		tracker:   cfg.Tracker,
		sink:      cfg.Sink,
		interval:  cfg.Interval,
		openRetry: cfg.OpenRetry,
		stopGrace: cfg.StopGrace,
		log:       logging.Component(cfg.Logger, "driver"),
		status:    StatusIdle,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the frame loop. It returns immediately; a camera that cannot be
// opened yet is retried from the loop. Calling Start again is a no-op.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil
	}
	d.started = true

	d.wg.Add(1)
	go d.run(ctx)

	d.log.Info().Dur("interval", d.interval).Msg("frame driver started")
	return nil
}

// Stop halts scheduling, waits for the loop and any pending detection, then
// releases the detector. A detection still pending after the stop grace is
// interrupted by closing the detector. The camera is left open; it belongs to
// the caller. Stop is safe to call more than once.
func (d *Driver) Stop() error {
	d.stopOnce.Do(func() {
		d.stopping.Store(true)
		close(d.stopCh)

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(d.stopGrace):
			d.log.Warn().Dur("grace", d.stopGrace).Msg("detection still pending, closing detector")
			d.closeDetector()
			<-done
		}

		d.setStatus(StatusStopped)
		d.log.Info().Uint64("submissions", d.submissions.Load()).Msg("frame driver stopped")
	})

	d.closeDetector()
	return d.closeErr
}

func (d *Driver) closeDetector() {
	d.closeOnce.Do(func() {
		if d.detector != nil {
			d.closeErr = d.detector.Close()
		}
	})
}

// Submissions returns how many frames have been handed to the detector.
func (d *Driver) Submissions() uint64 {
	return d.submissions.Load()
}

// Status returns the driver's current status.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Tracker returns the tracker fed by this driver.
func (d *Driver) Tracker() *tracker.Tracker {
	return d.tracker
}

func (d *Driver) setStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

func (d *Driver) run(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Driver) tick() {
	if d.inFlight.Load() {
		metrics.FramesSkipped.Inc()
		return
	}

	if !d.camera.IsOpen() && !d.openCamera() {
		return
	}

	frame, err := d.camera.ReadFrame()
	if err != nil {
		d.log.Warn().Err(err).Msg("error reading frame")
		return
	}

	d.inFlight.Store(true)
	d.submissions.Add(1)
	metrics.FramesSubmitted.Inc()

	d.wg.Add(1)
	go d.detect(frame)
}

// openCamera tries to open the camera at most once per openRetry.
func (d *Driver) openCamera() bool {
	d.mu.Lock()
	if time.Since(d.lastOpen) < d.openRetry {
		d.mu.Unlock()
		return false
	}
	d.lastOpen = time.Now()
	d.status = StatusLoadingCamera
	d.mu.Unlock()

	if err := d.camera.Open(); err != nil {
		d.log.Warn().Err(err).Msg("camera not ready")
		return false
	}

	// borrowed cameras report the owner's state
	if !d.camera.IsOpen() {
		return false
	}

	d.setStatus(StatusRunning)
	return true
}

func (d *Driver) detect(frame *gocv.Mat) {
	defer d.wg.Done()
	defer d.inFlight.Store(false)
	defer frame.Close()

	start := time.Now()
	p, err := d.detector.Detect(frame)
	metrics.DetectLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.DetectorErrors.Inc()
		d.log.Warn().Err(err).Msg("error detecting pose")
		return
	}

	// results arriving after Stop began are discarded
	if d.stopping.Load() {
		return
	}

	if d.Status() != StatusRunning {
		d.setStatus(StatusRunning)
	}

	u := d.tracker.Process(p)
	d.sink.Render(u, frame)
}
