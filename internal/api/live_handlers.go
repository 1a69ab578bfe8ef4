package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/live"
)

type LiveHandler struct {
	Sessions *live.Registry
	Cache    *live.DetectionCache
	Defaults detect.Params
}

func NewLiveHandler(sessions *live.Registry, cache *live.DetectionCache, defaults detect.Params) *LiveHandler {
	return &LiveHandler{Sessions: sessions, Cache: cache, Defaults: defaults}
}

// POST /api/v1/live
func (h *LiveHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label      string   `json:"label"`
		SourceURI  string   `json:"source_uri"`
		Classes    []string `json:"classes,omitempty"`
		Confidence *float64 `json:"confidence,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	params := h.Defaults
	if req.Classes != nil {
		params.Classes = req.Classes
	}
	if req.Confidence != nil {
		params.MinConfidence = *req.Confidence
	}

	var (
		s   *live.Session
		err error
	)
	if req.SourceURI != "" {
		s, err = h.Sessions.StartSource(req.Label, req.SourceURI, params)
	} else {
		s, err = h.Sessions.StartPush(req.Label, params)
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"session_id": s.ID()})
}

// GET /api/v1/live
func (h *LiveHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"sessions": h.Sessions.List()})
}

// POST /api/v1/live/{session_id}/configure
func (h *LiveHandler) Configure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	s, err := h.Sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	var req struct {
		Classes    []string `json:"classes,omitempty"`
		Confidence *float64 `json:"confidence,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	s.Configure(req.Classes, req.Confidence)

	p := s.Params()
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"classes":    p.Classes,
		"confidence": p.MinConfidence,
	})
}

// DELETE /api/v1/live/{session_id}
func (h *LiveHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if err := h.Sessions.Stop(id); err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "stopped"})
}

// GET /api/v1/cameras/{id}/detections/latest
func (h *LiveHandler) LatestDetections(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "id")
	entry, err := h.Cache.Latest(r.Context(), cameraID)
	if err != nil {
		if errors.Is(err, live.ErrNoDetections) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entry)
}
