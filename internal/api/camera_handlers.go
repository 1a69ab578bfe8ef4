package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
)

// CameraObserver is notified when a camera is removed so per-camera
// state (ring buffers, analysis loops) can be released.
type CameraObserver interface {
	RemoveCamera(cameraID string)
}

type CameraHandler struct {
	Registry  *media.Registry
	Observers []CameraObserver
}

func NewCameraHandler(reg *media.Registry, observers ...CameraObserver) *CameraHandler {
	return &CameraHandler{Registry: reg, Observers: observers}
}

type cameraRequest struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	SourceURI         string `json:"source_uri"`
	Width             int    `json:"width,omitempty"`
	Height            int    `json:"height,omitempty"`
	FPS               int    `json:"fps,omitempty"`
	ReconnectInterval int    `json:"reconnect_interval_seconds,omitempty"`
}

type cameraStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SourceURI  string `json:"source_uri"`
	State      string `json:"state"`
	Reconnects uint64 `json:"reconnects"`
}

// POST /api/v1/cameras
func (h *CameraHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ID == "" || req.SourceURI == "" {
		respondError(w, http.StatusBadRequest, "id and source_uri are required")
		return
	}

	cfg := media.ConnectionConfig{
		ID:                req.ID,
		DisplayName:       req.Name,
		SourceURI:         req.SourceURI,
		TargetWidth:       req.Width,
		TargetHeight:      req.Height,
		TargetFPS:         req.FPS,
		ReconnectInterval: time.Duration(req.ReconnectInterval) * time.Second,
	}
	if err := h.Registry.Add(cfg); err != nil {
		if errors.Is(err, media.ErrAlreadyExists) {
			respondError(w, http.StatusConflict, "camera already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// GET /api/v1/cameras
func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := h.Registry.List()
	out := make([]cameraStatus, 0, len(ids))
	for _, id := range ids {
		conn, ok := h.Registry.Get(id)
		if !ok {
			continue
		}
		out = append(out, statusOf(conn))
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /api/v1/cameras/{id}
func (h *CameraHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.Registry.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "camera not found")
		return
	}
	respondJSON(w, http.StatusOK, statusOf(conn))
}

// POST /api/v1/cameras/{id}/start
func (h *CameraHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Registry.Start(id); err != nil {
		respondError(w, http.StatusNotFound, "camera not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "started"})
}

// POST /api/v1/cameras/{id}/stop
func (h *CameraHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Registry.Stop(id); err != nil {
		respondError(w, http.StatusNotFound, "camera not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "stopped"})
}

// DELETE /api/v1/cameras/{id}
func (h *CameraHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Registry.Remove(id); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			respondError(w, http.StatusNotFound, "camera not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, obs := range h.Observers {
		obs.RemoveCamera(id)
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
}

func statusOf(conn *media.CameraConnection) cameraStatus {
	cfg := conn.Config()
	return cameraStatus{
		ID:         cfg.ID,
		Name:       cfg.DisplayName,
		SourceURI:  media.SanitizeURI(cfg.SourceURI),
		State:      conn.State().String(),
		Reconnects: conn.Reconnects(),
	}
}
