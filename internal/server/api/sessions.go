package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/repcoach/internal/analysis"
	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/report"
	"github.com/ayusman/repcoach/internal/session"
	"github.com/ayusman/repcoach/internal/store"
)

// SessionHandler controls monitoring sessions and serves their history.
type SessionHandler struct {
	sessions *session.Manager
	store    *store.Store
	registry *exercise.Registry
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *session.Manager, s *store.Store, registry *exercise.Registry) *SessionHandler {
	return &SessionHandler{sessions: sessions, store: s, registry: registry}
}

type createSessionRequest struct {
	Exercise string `json:"exercise"`
	Camera   int    `json:"camera"`
}

type sessionResponse struct {
	*store.Session
	Live *session.Info `json:"live,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type finishResponse struct {
	ID      string           `json:"id"`
	Summary analysis.Summary `json:"summary"`
}

type viewResponse struct {
	View string `json:"view"`
}

type eventsResponse struct {
	Events []store.PhaseEvent `json:"events"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrViewNotFound),
		errors.Is(err, exercise.ErrUnknownExercise):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionFinished),
		errors.Is(err, report.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, report.ErrNoSamples):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal error"
	}
	WriteError(w, status, msg)
}

// Create handles POST /api/sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Exercise == "" {
		WriteError(w, http.StatusBadRequest, "Exercise is required")
		return
	}
	if req.Camera < 0 {
		WriteError(w, http.StatusBadRequest, "Camera must not be negative")
		return
	}

	sess, err := h.sessions.Start(r.Context(), req.Exercise, req.Camera)
	if err != nil {
		if errors.Is(err, exercise.ErrUnknownExercise) {
			WriteError(w, http.StatusBadRequest, "Unknown exercise")
			return
		}
		writeDomainError(w, err)
		return
	}

	info := sess.Info()
	row, err := h.store.Sessions().GetByID(sess.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sessionResponse{Session: row, Live: &info})
}

// List handles GET /api/sessions. The limit query parameter caps the history.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	rows, err := h.store.Sessions().List(limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(rows))}
	for _, row := range rows {
		response.Sessions = append(response.Sessions, h.withLive(row))
	}
	WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	row, err := h.store.Sessions().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.withLive(row))
}

// Delete handles DELETE /api/sessions/{id}. Live sessions must be finished first.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.sessions.Get(id); err == nil {
		WriteError(w, http.StatusConflict, "Session is still live")
		return
	}
	if err := h.store.Sessions().Delete(id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Finish handles POST /api/sessions/{id}/finish.
func (h *SessionHandler) Finish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := h.sessions.Finish(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, finishResponse{ID: id, Summary: summary})
}

// Events handles GET /api/sessions/{id}/events.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.Sessions().GetByID(id); err != nil {
		writeDomainError(w, err)
		return
	}
	events, err := h.store.Events().ListBySession(id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	if events == nil {
		events = []store.PhaseEvent{}
	}
	WriteJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// OpenView handles POST /api/sessions/{id}/views.
func (h *SessionHandler) OpenView(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	viewID, err := sess.OpenView(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, viewResponse{View: viewID})
}

// CloseView handles DELETE /api/sessions/{id}/views/{view}.
func (h *SessionHandler) CloseView(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := sess.CloseView(chi.URLParam(r, "view")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportFIT handles GET /api/sessions/{id}/export.fit.
func (h *SessionHandler) ExportFIT(w http.ResponseWriter, r *http.Request) {
	row, ex, ok := h.finished(w, r)
	if !ok {
		return
	}

	var summary analysis.Summary
	if len(row.Summary) > 0 {
		if err := json.Unmarshal(row.Summary, &summary); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to decode summary")
			return
		}
	}

	data, err := report.FIT(row, summary, ex)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.ant.fit")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.fit"`, row.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Chart handles GET /api/sessions/{id}/chart.png.
func (h *SessionHandler) Chart(w http.ResponseWriter, r *http.Request) {
	row, ex, ok := h.finished(w, r)
	if !ok {
		return
	}

	samples, err := h.store.Samples().GetBySession(row.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load samples")
		return
	}

	chart, err := report.Chart(samples, ex)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	chart.WriteTo(w)
}

// finished loads a session row and its exercise, rejecting live sessions.
func (h *SessionHandler) finished(w http.ResponseWriter, r *http.Request) (*store.Session, *exercise.Exercise, bool) {
	row, err := h.store.Sessions().GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return nil, nil, false
	}
	if row.Status != store.SessionFinished {
		WriteError(w, http.StatusConflict, "Session is still live")
		return nil, nil, false
	}

	// An exercise removed from the tables still exports, without a category.
	var ex *exercise.Exercise
	if h.registry != nil {
		ex, _ = h.registry.Get(row.ExerciseID)
	}
	return row, ex, true
}

func (h *SessionHandler) withLive(row *store.Session) sessionResponse {
	resp := sessionResponse{Session: row}
	if sess, err := h.sessions.Get(row.ID); err == nil {
		info := sess.Info()
		resp.Live = &info
	}
	return resp
}
