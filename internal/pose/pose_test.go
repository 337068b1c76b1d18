package pose

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestPose_At(t *testing.T) {
	t.Run("nil pose", func(t *testing.T) {
		var p *Pose
		assert.Nil(t, p.At(LeftShoulder))
		assert.False(t, p.Has(LeftShoulder))
		assert.Zero(t, p.Visibility(LeftShoulder))
	})

	t.Run("index past end is absent", func(t *testing.T) {
		p := &Pose{Landmarks: make([]*Landmark, 5)}
		assert.Nil(t, p.At(LeftHip))
		assert.Nil(t, p.At(-1))
	})

	t.Run("present landmark", func(t *testing.T) {
		p := InclineFlyPose(120)
		require.NotNil(t, p.At(LeftShoulder))
		assert.True(t, p.Has(LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftHip, RightHip))
		assert.InDelta(t, 0.9, p.Visibility(RightShoulder), 1e-9)
	})
}

func TestPose_Without(t *testing.T) {
	p := InclineFlyPose(120)
	stripped := p.Without(LeftShoulder, RightHip, 99)

	assert.Nil(t, stripped.At(LeftShoulder))
	assert.Nil(t, stripped.At(RightHip))
	assert.NotNil(t, stripped.At(RightShoulder))

	// original is untouched
	assert.NotNil(t, p.At(LeftShoulder))
	assert.NotNil(t, p.At(RightHip))
}

func TestLateralRaisePose_Visibility(t *testing.T) {
	left := LateralRaisePose(45, SideLeft)
	assert.Greater(t, left.Visibility(LeftShoulder), left.Visibility(RightShoulder))

	right := LateralRaisePose(45, SideRight)
	assert.Greater(t, right.Visibility(RightShoulder), right.Visibility(LeftShoulder))
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantNil   bool
		wantErr   bool
		wantCount int
	}{
		{name: "no body", line: `{"landmarks":null}`, wantNil: true},
		{name: "empty object", line: `{}`, wantNil: true},
		{name: "service error", line: `{"error":"bad frame"}`, wantErr: true},
		{name: "malformed", line: `{"landmarks":`, wantErr: true},
		{
			name:      "partial landmarks",
			line:      `{"landmarks":[{"x":0.1,"y":0.2,"z":0,"visibility":0.9},null]}`,
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodeResponse([]byte(tt.line))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.Len(t, p.Landmarks, tt.wantCount)
			assert.NotNil(t, p.At(0))
			assert.Nil(t, p.At(1))
			assert.InDelta(t, 0.9, p.Visibility(0), 1e-9)
		})
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("returns nil pose by default", func(t *testing.T) {
		mock := NewMockDetector()

		p, err := mock.Detect(nil)

		require.NoError(t, err)
		assert.Nil(t, p)
		assert.Equal(t, 1, mock.Calls())
	})

	t.Run("scripted poses then fallback", func(t *testing.T) {
		mock := NewMockDetector()
		a := InclineFlyPose(100)
		b := InclineFlyPose(150)
		fallback := InclineFlyPose(170)
		mock.Script(a, b)
		mock.SetPose(fallback)

		for _, want := range []*Pose{a, b, fallback, fallback} {
			got, err := mock.Detect(nil)
			require.NoError(t, err)
			assert.Same(t, want, got)
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		wantErr := errors.New("detection failed")
		mock.SetError(wantErr)

		_, err := mock.Detect(nil)

		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("hold blocks until release", func(t *testing.T) {
		mock := NewMockDetector()
		mock.Hold()

		var wg sync.WaitGroup
		done := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			mock.Detect(nil)
			close(done)
		}()

		select {
		case <-done:
			t.Fatal("Detect returned while held")
		case <-time.After(50 * time.Millisecond):
		}

		mock.Release()
		wg.Wait()
		assert.Equal(t, 1, mock.Calls())
	})

	t.Run("counts close calls", func(t *testing.T) {
		mock := NewMockDetector()
		require.NoError(t, mock.Close())
		require.NoError(t, mock.Close())
		assert.Equal(t, 2, mock.CloseCalls())
	})
}

func TestMediaPipeDetector_ClosedDetectorRejectsFrames(t *testing.T) {
	d := NewMediaPipeDetector(DefaultConfig(), Runtime{Python: "python3", Script: "missing.py"})

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err := d.Detect(nil)
	assert.ErrorIs(t, err, ErrDetectorClosed)
}

func TestNewMediaPipeDetector_DefaultsIdleTimeout(t *testing.T) {
	d := NewMediaPipeDetector(Config{}, Runtime{})
	assert.Equal(t, DefaultConfig().IdleTimeout, d.config.IdleTimeout)
}

func TestResolveRuntime_MissingScript(t *testing.T) {
	_, err := resolveRuntime("python3", "/nonexistent/pose_service.py")
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
}

// stalledService returns a runtime whose process never answers a frame.
func stalledService(t *testing.T) Runtime {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pose service stand-in is a shell script")
	}
	script := filepath.Join(t.TempDir(), "stalled.sh")
	require.NoError(t, os.WriteFile(script, []byte("exec sleep 1000\n"), 0755))
	return Runtime{Python: "/bin/sh", Script: script}
}

func testFrame(t *testing.T) *gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(16, 16, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return &m
}

func TestMediaPipeDetector_CloseInterruptsPendingDetect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResponseTimeout = time.Minute
	d := NewMediaPipeDetector(cfg, stalledService(t))
	frame := testFrame(t)

	result := make(chan error, 1)
	go func() {
		_, err := d.Detect(frame)
		result <- err
	}()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.busy
	}, 2*time.Second, time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- d.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a pending Detect")
	}

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrDetectorClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Detect did not return after Close")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.False(t, d.started, "subprocess should be reaped")
}

func TestMediaPipeDetector_ResponseTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResponseTimeout = 100 * time.Millisecond
	d := NewMediaPipeDetector(cfg, stalledService(t))
	defer d.Close()
	frame := testFrame(t)

	for i := 0; i < 2; i++ {
		start := time.Now()
		_, err := d.Detect(frame)
		assert.ErrorIs(t, err, ErrResponseTimeout)
		assert.Less(t, time.Since(start), 2*time.Second)
	}

	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	assert.False(t, started, "a timed out subprocess is torn down until the next frame")
}

func TestNewMediaPipeDetector_DefaultsResponseTimeout(t *testing.T) {
	d := NewMediaPipeDetector(Config{}, Runtime{})
	assert.Equal(t, DefaultConfig().ResponseTimeout, d.config.ResponseTimeout)
}
