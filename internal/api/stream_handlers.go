package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/live"
)

const (
	viewerFPS     = 30
	writeDeadline = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for dev; restrict in prod
	},
}

// streamPayload is one preview frame pushed to a viewer.
type streamPayload struct {
	Frame     string  `json:"f"`
	FPS       float64 `json:"fps"`
	SessionID string  `json:"sid"`
	Timestamp int64   `json:"t"`
}

type StreamHandler struct {
	Sessions *live.Registry
	Logger   *zap.Logger
}

func NewStreamHandler(sessions *live.Registry, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{Sessions: sessions, Logger: logger}
}

// GET /api/v1/live/{session_id}/stream
//
// Each viewer pulls from the session's latest-frame cell on its own
// cadence; a slow socket only stalls itself and skips to the newest frame
// when it catches up.
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	session, err := h.Sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.Logger.Info("viewer connected", zap.String("session_id", id))

	// Reader goroutine: we ignore inbound messages but need the read pump
	// to observe close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(viewerFPS), 1)
	var lastSeq uint64

	for {
		select {
		case <-done:
			h.Logger.Info("viewer disconnected", zap.String("session_id", id))
			return
		default:
		}

		if err := limiter.Wait(r.Context()); err != nil {
			return
		}

		f, seq, ok := session.Latest(lastSeq)
		if !ok {
			continue
		}
		lastSeq = seq

		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		err := conn.WriteJSON(streamPayload{
			Frame:     base64.StdEncoding.EncodeToString(f.Data),
			FPS:       f.FPS,
			SessionID: f.SessionID,
			Timestamp: f.CapturedAt.UnixMilli(),
		})
		if err != nil {
			h.Logger.Debug("ws write failed", zap.String("session_id", id), zap.Error(err))
			return
		}
	}
}
