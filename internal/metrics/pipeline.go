package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics. Labels are limited to camera_id / event_type to keep
// cardinality bounded.

var (
	FramesCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vfm_frames_captured_total",
			Help: "Frames captured per camera",
		},
		[]string{"camera_id"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vfm_frames_dropped_total",
			Help: "Frames skipped by pull-based consumers (latest-wins cells)",
		},
		[]string{"component"},
	)

	CameraReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vfm_camera_reconnects_total",
			Help: "Reconnect attempts per camera",
		},
		[]string{"camera_id"},
	)

	CameraState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vfm_camera_state",
			Help: "Connection state (0=disconnected 1=connecting 2=streaming 3=backoff)",
		},
		[]string{"camera_id"},
	)

	InferenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vfm_inference_latency_ms",
			Help:    "Single-frame inference latency in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2000},
		},
	)

	InferenceUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vfm_inference_unavailable_total",
			Help: "Inference calls that degraded because the model was unavailable",
		},
	)

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vfm_events_emitted_total",
			Help: "Domain events emitted after debounce",
		},
		[]string{"event_type"},
	)

	EventsDebounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vfm_events_debounced_total",
			Help: "Detections suppressed by the per camera+class debounce",
		},
	)

	Recordings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vfm_recordings_total",
			Help: "Recording jobs by terminal status",
		},
		[]string{"status"},
	)

	RecordingsDroppedTriggers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vfm_recording_triggers_dropped_total",
			Help: "Event triggers dropped because a recording was already active",
		},
	)

	LiveSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vfm_live_sessions_active",
			Help: "Currently active live sessions",
		},
	)
)
