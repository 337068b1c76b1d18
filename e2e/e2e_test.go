package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/repcoach/internal/app"
	"github.com/ayusman/repcoach/internal/capture"
	"github.com/ayusman/repcoach/internal/config"
	"github.com/ayusman/repcoach/internal/feedback"
	"github.com/ayusman/repcoach/internal/pose"
	"github.com/ayusman/repcoach/internal/store"
)

// installCuePlugin writes a plugin that appends every request to the returned file.
func installCuePlugin(t *testing.T, pluginDir string) string {
	t.Helper()

	dir := filepath.Join(pluginDir, "recorder")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "cues.log")

	manifest := feedback.Manifest{
		Name:       "recorder",
		Version:    "1.0.0",
		Executable: "run.sh",
		Actions:    []string{feedback.KindPhase, feedback.KindForm},
	}
	data, _ := json.Marshal(manifest)
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	script := fmt.Sprintf("#!/bin/sh\ncat >> %q\necho >> %q\necho '{\"success\":true}'\n", out, out)
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return out
}

func newApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()

	a, err := app.New(cfg, zerolog.Nop(),
		app.WithCameras(func(int) capture.Camera { return capture.NewSyntheticCamera(64, 48) }),
		app.WithDetectors(func() (pose.Detector, error) {
			d := pose.NewMockDetector()
			var script []*pose.Pose
			for rep := 0; rep < 2; rep++ {
				for _, a := range []float64{10, 50, 90, 70, 20} {
					script = append(script, pose.LateralRaisePose(a, pose.SideRight))
				}
			}
			d.Script(script...)
			d.SetPose(pose.LateralRaisePose(15, pose.SideRight))
			return d, nil
		}),
		app.WithDevices(func(int) []int { return []int{0, 1} }),
	)
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	return a
}

func doJSON(t *testing.T, client *http.Client, method, url, body string, want int, out any) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s status = %d, want %d: %s", method, url, resp.StatusCode, want, b)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", url, err)
		}
	}
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("cue plugin is a shell script")
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Feedback.PluginDir = filepath.Join(cfg.DataDir, "plugins")
	cfg.Driver.RefreshHz = 200
	cues := installCuePlugin(t, cfg.Feedback.PluginDir)

	a := newApp(t, cfg)
	ts := httptest.NewServer(a.Handler())
	client := ts.Client()

	var sessionID string

	t.Run("ConfigureFeedback", func(t *testing.T) {
		body := `{"settings":{"Starting Position":3,"Lifting Phase (Concentric)":0,"Lowering Phase (Eccentric)":0,"form":0}}`
		doJSON(t, client, http.MethodPut, ts.URL+"/api/exercises/lateral-raise/feedback", body, http.StatusOK, nil)
	})

	t.Run("ListCameras", func(t *testing.T) {
		var got struct {
			Cameras []int `json:"cameras"`
		}
		doJSON(t, client, http.MethodGet, ts.URL+"/api/cameras", "", http.StatusOK, &got)
		if len(got.Cameras) != 2 {
			t.Errorf("cameras = %v, want [0 1]", got.Cameras)
		}
	})

	t.Run("StartSession", func(t *testing.T) {
		var got struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		doJSON(t, client, http.MethodPost, ts.URL+"/api/sessions", `{"exercise":"lateral-raise","camera":0}`, http.StatusCreated, &got)
		if got.ID == "" || got.Status != string(store.SessionActive) {
			t.Fatalf("created session = %+v", got)
		}
		sessionID = got.ID
	})

	t.Run("CountsReps", func(t *testing.T) {
		deadline := time.Now().Add(5 * time.Second)
		for {
			var got struct {
				Live struct {
					Reps  int    `json:"reps"`
					Phase string `json:"phase"`
				} `json:"live"`
			}
			doJSON(t, client, http.MethodGet, ts.URL+"/api/sessions/"+sessionID, "", http.StatusOK, &got)
			if got.Live.Reps == 2 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("reps = %d after 5s, want 2", got.Live.Reps)
			}
			time.Sleep(20 * time.Millisecond)
		}
	})

	t.Run("FinishSession", func(t *testing.T) {
		var got struct {
			Summary struct {
				Reps int `json:"reps"`
			} `json:"summary"`
		}
		doJSON(t, client, http.MethodPost, ts.URL+"/api/sessions/"+sessionID+"/finish", "", http.StatusOK, &got)
		if got.Summary.Reps != 2 {
			t.Errorf("summary reps = %d, want 2", got.Summary.Reps)
		}
	})

	t.Run("PhaseEvents", func(t *testing.T) {
		var got struct {
			Events []store.PhaseEvent `json:"events"`
		}
		doJSON(t, client, http.MethodGet, ts.URL+"/api/sessions/"+sessionID+"/events", "", http.StatusOK, &got)
		if len(got.Events) != 8 {
			t.Fatalf("events = %d, want 8", len(got.Events))
		}
		last := got.Events[len(got.Events)-1]
		if last.Phase != "Starting Position" || last.Reps != 2 {
			t.Errorf("last event = %+v", last)
		}
	})

	t.Run("CuesDelivered", func(t *testing.T) {
		var data string
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if b, err := os.ReadFile(cues); err == nil && len(strings.TrimSpace(string(b))) > 0 {
				data = string(b)
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		if data == "" {
			t.Fatal("no cue reached the plugin")
		}

		// muted phases never reach the plugin
		for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
			var req feedback.Request
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				t.Fatalf("cue line %q: %v", line, err)
			}
			if req.Phase != "Starting Position" || req.Intensity != 3 {
				t.Errorf("cue = %+v, want Starting Position at intensity 3", req)
			}
		}
	})

	t.Run("ExportFIT", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/sessions/" + sessionID + "/export.fit")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || len(data) < 14 || string(data[8:12]) != ".FIT" {
			t.Errorf("export status = %d, %d bytes", resp.StatusCode, len(data))
		}
	})

	ts.Close()
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	t.Run("RecoverAfterRestart", func(t *testing.T) {
		st, err := store.New(cfg.DBPath())
		if err != nil {
			t.Fatal(err)
		}
		err = st.Sessions().Create(&store.Session{ID: "orphan", ExerciseID: "incline-fly", StartedAt: time.Now()})
		st.Close()
		if err != nil {
			t.Fatal(err)
		}

		restarted := newApp(t, cfg)
		defer restarted.Stop(context.Background())

		row, err := restarted.Store().Sessions().GetByID("orphan")
		if err != nil {
			t.Fatal(err)
		}
		if row.Status != store.SessionFinished {
			t.Errorf("orphan status = %q, want finished", row.Status)
		}

		prev, err := restarted.Store().Sessions().GetByID(sessionID)
		if err != nil || prev.Reps != 2 {
			t.Errorf("previous session = %+v, %v", prev, err)
		}
	})
}
