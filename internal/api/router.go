package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Cameras *CameraHandler
	Live    *LiveHandler
	Events  *EventHandler
	Stream  *StreamHandler
}

// NewRouter wires all routes. The stream endpoint sits outside the
// timeout middleware: websocket connections are long-lived.
func NewRouter(h Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/v1/live/{session_id}/stream", h.Stream.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/cameras", func(r chi.Router) {
				r.Post("/", h.Cameras.Create)
				r.Get("/", h.Cameras.List)
				r.Get("/{id}", h.Cameras.Get)
				r.Delete("/{id}", h.Cameras.Delete)
				r.Post("/{id}/start", h.Cameras.Start)
				r.Post("/{id}/stop", h.Cameras.Stop)
				r.Get("/{id}/detections/latest", h.Live.LatestDetections)
			})

			r.Route("/live", func(r chi.Router) {
				r.Post("/", h.Live.StartSession)
				r.Get("/", h.Live.ListSessions)
				r.Delete("/{session_id}", h.Live.StopSession)
				r.Post("/{session_id}/configure", h.Live.Configure)
			})

			r.Route("/events", func(r chi.Router) {
				r.Get("/", h.Events.List)
				r.Get("/{id}", h.Events.Get)
				r.Get("/{id}/clip", h.Events.Clip)
				r.Get("/{id}/thumbnail", h.Events.Thumbnail)
			})
		})
	})

	return r
}
