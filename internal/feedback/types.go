// Package feedback delivers coaching cues (spoken prompts, sounds) through
// external cue plugins when the rep tracker changes phase or form slips.
package feedback

import "encoding/json"

// Cue kinds. A plugin lists the kinds it handles in its manifest actions.
const (
	KindPhase = "phase"
	KindForm  = "form"
)

// Manifest describes a cue plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Supports reports whether the plugin handles the given action.
func (m Manifest) Supports(action string) bool {
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Request is the JSON document written to a plugin's stdin.
type Request struct {
	Action    string          `json:"action"`
	Exercise  string          `json:"exercise"`
	Phase     string          `json:"phase,omitempty"`
	Message   string          `json:"message"`
	Intensity int             `json:"intensity"`
	Reps      int             `json:"reps"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
