package api

import "net/http"

// CameraHandler lists camera devices that can be opened.
type CameraHandler struct {
	probe func(max int) []int
	max   int
}

// NewCameraHandler creates a CameraHandler that probes up to max indices.
func NewCameraHandler(probe func(max int) []int, max int) *CameraHandler {
	return &CameraHandler{probe: probe, max: max}
}

type listCamerasResponse struct {
	Cameras []int `json:"cameras"`
}

// List handles GET /api/cameras.
func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	devices := h.probe(h.max)
	if devices == nil {
		devices = []int{}
	}
	WriteJSON(w, http.StatusOK, listCamerasResponse{Cameras: devices})
}
