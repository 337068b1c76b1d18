package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/feedback"
	"github.com/ayusman/repcoach/internal/store"
)

// ExerciseHandler serves the exercise tables and their feedback settings.
type ExerciseHandler struct {
	registry *exercise.Registry
	store    *store.Store
}

// NewExerciseHandler creates a new ExerciseHandler.
func NewExerciseHandler(registry *exercise.Registry, s *store.Store) *ExerciseHandler {
	return &ExerciseHandler{registry: registry, store: s}
}

type exerciseSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	View     string `json:"view"`
	Category string `json:"category"`
	Tracked  bool   `json:"tracked"`
}

type listExercisesResponse struct {
	Exercises []exerciseSummary `json:"exercises"`
}

type phaseSetting struct {
	Phase      string `json:"phase"`
	Intensity  int    `json:"intensity"`
	Configured bool   `json:"configured"`
}

type feedbackResponse struct {
	Exercise string         `json:"exercise"`
	Settings []phaseSetting `json:"settings"`
}

type updateFeedbackRequest struct {
	Settings map[string]int `json:"settings"`
}

// List handles GET /api/exercises.
func (h *ExerciseHandler) List(w http.ResponseWriter, r *http.Request) {
	exercises := h.registry.List()
	response := listExercisesResponse{
		Exercises: make([]exerciseSummary, 0, len(exercises)),
	}
	for _, ex := range exercises {
		response.Exercises = append(response.Exercises, exerciseSummary{
			ID:       ex.ID,
			Name:     ex.Name,
			View:     string(ex.View),
			Category: ex.Category,
			Tracked:  ex.Tracked(),
		})
	}
	WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/exercises/{id} and returns the full table.
func (h *ExerciseHandler) Get(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, ex)
}

// GetFeedback handles GET /api/exercises/{id}/feedback. Every phase of the
// exercise is listed, with the default intensity where nothing is configured.
func (h *ExerciseHandler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.lookup(w, r)
	if !ok {
		return
	}

	configured, err := h.store.Feedback().Get(ex.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load feedback settings")
		return
	}

	response := feedbackResponse{Exercise: ex.ID}
	for _, phase := range feedbackPhases(ex) {
		v, ok := configured[phase]
		if !ok {
			v = feedback.DefaultIntensity
		}
		response.Settings = append(response.Settings, phaseSetting{Phase: phase, Intensity: v, Configured: ok})
	}
	WriteJSON(w, http.StatusOK, response)
}

// PutFeedback handles PUT /api/exercises/{id}/feedback and replaces every
// setting of the exercise.
func (h *ExerciseHandler) PutFeedback(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req updateFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	known := make(map[string]bool)
	for _, p := range feedbackPhases(ex) {
		known[p] = true
	}
	for phase, v := range req.Settings {
		if !known[phase] {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unknown phase %q", phase))
			return
		}
		if v < 0 || v > store.MaxIntensity {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("Intensity must be between 0 and %d", store.MaxIntensity))
			return
		}
	}

	if err := h.store.Feedback().Replace(ex.ID, req.Settings); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to save feedback settings")
		return
	}

	h.GetFeedback(w, r)
}

func (h *ExerciseHandler) lookup(w http.ResponseWriter, r *http.Request) (*exercise.Exercise, bool) {
	ex, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, exercise.ErrUnknownExercise) {
			WriteError(w, http.StatusNotFound, "Exercise not found")
			return nil, false
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get exercise")
		return nil, false
	}
	return ex, true
}

// feedbackPhases lists the settings keys of an exercise: its phases plus the
// form cue.
func feedbackPhases(ex *exercise.Exercise) []string {
	return append(ex.PhaseNames(), feedback.FormPhase)
}
