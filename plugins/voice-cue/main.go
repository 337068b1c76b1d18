// Package main provides a voice cue plugin. It speaks phase changes and form
// corrections with the platform speech engine (say on macOS, espeak elsewhere).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Request represents the input from the cue dispatcher.
type Request struct {
	Action    string          `json:"action"`
	Exercise  string          `json:"exercise"`
	Phase     string          `json:"phase"`
	Message   string          `json:"message"`
	Intensity int             `json:"intensity"`
	Reps      int             `json:"reps"`
	Config    json.RawMessage `json:"config"`
}

// Response represents the output to the cue dispatcher.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config holds optional per-plugin settings.
type Config struct {
	Voice string `json:"voice"`
	Rate  int    `json:"rate"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
	}

	var text string
	switch req.Action {
	case "phase":
		text = phaseText(req)
	case "form":
		text = req.Message
		if text == "" {
			text = "Check your form"
		}
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	if err := speak(text, cfg, req.Intensity); err != nil {
		writeErrorResponse(err.Error())
		return
	}

	data, _ := json.Marshal(map[string]string{"spoken": text})
	writeResponse(Response{Success: true, Data: data})
}

// phaseText builds the utterance for a phase change. Low intensity speaks only
// the rep count; higher levels add the phase name.
func phaseText(req Request) string {
	if req.Message != "" && req.Intensity >= 2 {
		return req.Message
	}
	if req.Intensity <= 1 && req.Reps > 0 {
		return strconv.Itoa(req.Reps)
	}
	if req.Phase != "" {
		return req.Phase
	}
	return strconv.Itoa(req.Reps)
}

// speak runs the speech engine. Intensity 3 speaks faster and louder where the
// engine supports it.
func speak(text string, cfg Config, intensity int) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		args := []string{}
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		if cfg.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(cfg.Rate))
		}
		cmd = exec.Command("say", append(args, text)...)
	default:
		args := []string{}
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		if cfg.Rate > 0 {
			args = append(args, "-s", strconv.Itoa(cfg.Rate))
		}
		if intensity >= 3 {
			args = append(args, "-a", "200")
		}
		cmd = exec.Command("espeak", append(args, text)...)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("speech failed: %w: %s", err, out)
	}
	return nil
}

func writeErrorResponse(msg string) {
	writeResponse(Response{Success: false, Error: msg})
}

func writeResponse(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
