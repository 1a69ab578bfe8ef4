package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/storage"
)

// EventReader is the slice of the event store the API needs.
type EventReader interface {
	List(ctx context.Context, filter storage.EventFilter, limit, offset int) ([]*storage.StoredEvent, error)
	GetByID(ctx context.Context, id int64) (*storage.StoredEvent, error)
}

type EventHandler struct {
	Events EventReader
}

func NewEventHandler(events EventReader) *EventHandler {
	return &EventHandler{Events: events}
}

// GET /api/v1/events?camera_id=&event_type=&since=&limit=&offset=
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.EventFilter{
		CameraID:  q.Get("camera_id"),
		EventType: q.Get("event_type"),
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = &t
	}

	limit := 50
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v < 200 {
			limit = v
		}
	}
	offset := 0
	if o := q.Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	events, err := h.Events.List(r.Context(), filter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*storage.StoredEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

// GET /api/v1/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

// GET /api/v1/events/{id}/clip
func (h *EventHandler) Clip(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.serveArtifact(w, r, ev.ClipPath)
}

// GET /api/v1/events/{id}/thumbnail
func (h *EventHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.serveArtifact(w, r, ev.ThumbnailPath)
}

func (h *EventHandler) lookup(w http.ResponseWriter, r *http.Request) (*storage.StoredEvent, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "id must be an integer")
		return nil, false
	}
	ev, err := h.Events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "event not found")
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return ev, true
}

// serveArtifact streams a recorded file from disk. The row can outlive
// the file (retention prunes rows, operators prune disk), so a missing
// file is a 404, not a 500.
func (h *EventHandler) serveArtifact(w http.ResponseWriter, r *http.Request, path string) {
	if path == "" {
		respondError(w, http.StatusNotFound, "no artifact for this event")
		return
	}
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "artifact file missing")
		return
	}
	http.ServeFile(w, r, path)
}
