package pose

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// shutdownGrace is how long an idle subprocess gets to exit after stdin closes.
const shutdownGrace = 2 * time.Second

// MediaPipeDetector implements Detector using a Python MediaPipe Pose subprocess.
// One frame is exchanged at a time; Close never waits behind a pending frame.
type MediaPipeDetector struct {
	config  Config
	runtime Runtime

	// reqMu serializes frame round trips.
	reqMu sync.Mutex

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	busy      bool
	closed    bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewMediaPipeDetector creates a new MediaPipe pose detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config, rt Runtime) *MediaPipeDetector {
	defaults := DefaultConfig()
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = defaults.ResponseTimeout
	}
	return &MediaPipeDetector{
		config:  config,
		runtime: rt,
	}
}

// Detect analyzes a frame and returns the detected pose.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) (*Pose, error) {
	d.reqMu.Lock()
	defer d.reqMu.Unlock()

	if d.isClosed() {
		return nil, ErrDetectorClosed
	}
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	stdin, stdout, err := d.acquire()
	if err != nil {
		return nil, err
	}

	timer := time.AfterFunc(d.config.ResponseTimeout, d.kill)
	line, err := exchange(stdin, stdout, buf.GetBytes())
	expired := !timer.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false

	if err != nil || expired || d.closed {
		d.shutdownLocked()
		switch {
		case d.closed:
			return nil, ErrDetectorClosed
		case expired:
			return nil, fmt.Errorf("%w within %s", ErrResponseTimeout, d.config.ResponseTimeout)
		}
		return nil, err
	}

	pose, err := decodeResponse(line)
	if err != nil {
		return nil, err
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return pose, nil
}

// exchange writes one length-prefixed frame and reads the response line.
func exchange(stdin io.Writer, stdout *bufio.Reader, data []byte) ([]byte, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// Close shuts down the Python process. A frame in flight is aborted by
// killing the process; Detect then returns ErrDetectorClosed. Later calls are
// no-ops.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.busy {
		d.killLocked()
		return nil
	}
	return d.shutdownLocked()
}

func (d *MediaPipeDetector) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// acquire starts the subprocess if needed and marks a frame in flight.
func (d *MediaPipeDetector) acquire() (io.Writer, *bufio.Reader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, nil, ErrDetectorClosed
	}
	if err := d.ensureStarted(); err != nil {
		return nil, nil, err
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	d.busy = true
	return d.stdin, d.stdout, nil
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	cmd := exec.Command(d.runtime.Python, d.runtime.Script,
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinDetectionConf, 'f', 2, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', 2, 64),
		"--model-complexity", strconv.Itoa(d.config.ModelComplexity),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

func (d *MediaPipeDetector) kill() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killLocked()
}

func (d *MediaPipeDetector) killLocked() {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
}

// shutdownLocked closes stdin and reaps the subprocess, killing it if it has
// not exited within shutdownGrace. Callers hold d.mu and no read is pending.
func (d *MediaPipeDetector) shutdownLocked() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	d.stdin.Close()

	cmd := d.cmd
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(shutdownGrace):
		cmd.Process.Kill()
		err = <-done
	}

	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.busy {
			d.shutdownLocked()
		}
	})
}

// jsonResponse is the line-delimited JSON emitted by pose_service.py.
type jsonResponse struct {
	Landmarks []*jsonLandmark `json:"landmarks"`
	Error     string          `json:"error,omitempty"`
}

type jsonLandmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

func decodeResponse(line []byte) (*Pose, error) {
	var resp jsonResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("pose service: %s", resp.Error)
	}
	if resp.Landmarks == nil {
		return nil, nil
	}

	p := &Pose{Landmarks: make([]*Landmark, len(resp.Landmarks))}
	for i, lm := range resp.Landmarks {
		if lm == nil {
			continue
		}
		p.Landmarks[i] = &Landmark{X: lm.X, Y: lm.Y, Z: lm.Z, Visibility: lm.Visibility}
	}
	return p, nil
}
