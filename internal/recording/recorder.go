package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/events"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/metrics"
)

// JobStatus is the recording job lifecycle.
type JobStatus int32

const (
	StatusBuffering JobStatus = iota
	StatusPostCapture
	StatusFinalizing
	StatusDone
	StatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case StatusBuffering:
		return "buffering"
	case StatusPostCapture:
		return "post_capture"
	case StatusFinalizing:
		return "finalizing"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job tracks one in-flight recording. At most one job is active per camera.
type Job struct {
	CameraID  string
	Event     events.Event
	StartedAt time.Time

	status atomic.Int32
	ch     chan *media.Frame
	done   chan struct{}
}

func (j *Job) Status() JobStatus { return JobStatus(j.status.Load()) }

// Done is closed when the job reaches a terminal status and the camera's
// active-job slot has been cleared.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) setStatus(s JobStatus) { j.status.Store(int32(s)) }

// EventRecord is what gets persisted for a finalized recording.
type EventRecord struct {
	CameraID      string       `json:"camera_id"`
	EventType     string       `json:"event_type"`
	Confidence    float64      `json:"confidence"`
	ClipPath      string       `json:"clip_path"`
	ThumbnailPath string       `json:"thumbnail_path"`
	Timestamp     time.Time    `json:"timestamp"`
	Duration      float64      `json:"duration_seconds"`
	Box           *detect.BBox `json:"bbox,omitempty"`
}

// EventStore is the external persistence collaborator. Persist failures
// are logged by the recorder; the already-written clip is never rolled
// back.
type EventStore interface {
	PersistEvent(ctx context.Context, rec EventRecord) (int64, error)
}

// Config holds recorder parameters.
type Config struct {
	OutputDir        string
	PreEventSeconds  float64
	PostEventSeconds float64
	FPS              int
}

// Recorder keeps a bounded pre-event ring per camera and materializes
// event clips. It subscribes to camera connections for frames; it holds
// camera ids only, never connection lifetimes, so removing a camera simply
// stops frame delivery.
type Recorder struct {
	cfg    Config
	enc    ClipEncoder
	store  EventStore
	logger *zap.Logger

	mu     sync.Mutex
	rings  map[string]*FrameRing
	active map[string]*Job

	wg sync.WaitGroup
}

func NewRecorder(cfg Config, enc ClipEncoder, store EventStore, logger *zap.Logger) (*Recorder, error) {
	if cfg.FPS <= 0 {
		cfg.FPS = 20
	}
	if cfg.PreEventSeconds <= 0 {
		cfg.PreEventSeconds = 3
	}
	if cfg.PostEventSeconds <= 0 {
		cfg.PostEventSeconds = 5
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Recorder{
		cfg:    cfg,
		enc:    enc,
		store:  store,
		logger: logger,
		rings:  make(map[string]*FrameRing),
		active: make(map[string]*Job),
	}, nil
}

// OnFrame implements media.Subscriber: buffer the frame and, when a job is
// active, feed its post-event channel without ever blocking the capture
// path.
func (r *Recorder) OnFrame(cameraID string, f *media.Frame) {
	r.mu.Lock()
	ring, ok := r.rings[cameraID]
	if !ok {
		ring = NewFrameRing(int(r.cfg.PreEventSeconds * float64(r.cfg.FPS)))
		r.rings[cameraID] = ring
	}
	job := r.active[cameraID]
	r.mu.Unlock()

	ring.Append(f)

	if job != nil {
		select {
		case job.ch <- f:
		default:
			metrics.FramesDropped.WithLabelValues("recorder").Inc()
		}
	}
}

// OnError implements media.Subscriber. Capture errors are handled by the
// connection state machine; the recorder only needs frames.
func (r *Recorder) OnError(cameraID string, err error) {
	r.logger.Debug("capture error", zap.String("camera_id", cameraID), zap.Error(err))
}

// Trigger starts a recording for the event. If a job is already active for
// the camera the trigger is dropped (logged only, never queued). Returns
// the started job, or nil when the trigger was dropped.
func (r *Recorder) Trigger(ev events.Event) *Job {
	r.mu.Lock()
	if existing := r.active[ev.CameraID]; existing != nil {
		r.mu.Unlock()
		metrics.RecordingsDroppedTriggers.Inc()
		r.logger.Info("recording already active, dropping trigger",
			zap.String("camera_id", ev.CameraID), zap.String("event_type", ev.Type))
		return nil
	}

	ring := r.rings[ev.CameraID]
	if ring == nil || ring.Len() == 0 {
		r.mu.Unlock()
		r.logger.Warn("no buffered frames, dropping trigger",
			zap.String("camera_id", ev.CameraID))
		return nil
	}

	// Snapshot and slot installation are atomic with respect to OnFrame,
	// so no frame lands in both the snapshot and the post-event channel.
	snapshot := ring.Snapshot()
	job := &Job{
		CameraID:  ev.CameraID,
		Event:     ev,
		StartedAt: time.Now(),
		ch:        make(chan *media.Frame, int(r.cfg.PostEventSeconds*float64(r.cfg.FPS))+16),
		done:      make(chan struct{}),
	}
	job.setStatus(StatusBuffering)
	r.active[ev.CameraID] = job
	r.mu.Unlock()

	r.wg.Add(1)
	go r.record(job, snapshot)

	r.logger.Info("recording started",
		zap.String("camera_id", ev.CameraID),
		zap.String("event_type", ev.Type),
		zap.Int("pre_event_frames", len(snapshot)))
	return job
}

// Active returns the in-flight job for a camera, if any.
func (r *Recorder) Active(cameraID string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.active[cameraID]
	return j, ok
}

// RemoveCamera drops the camera's ring buffer. Any in-flight job finishes
// on its own.
func (r *Recorder) RemoveCamera(cameraID string) {
	r.mu.Lock()
	delete(r.rings, cameraID)
	r.mu.Unlock()
}

// Shutdown waits for in-flight jobs to finalize.
func (r *Recorder) Shutdown() {
	r.wg.Wait()
}

func (r *Recorder) record(job *Job, snapshot []*media.Frame) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.active, job.CameraID)
		r.mu.Unlock()
		close(job.done)
	}()

	base := clipBaseName(job.CameraID, job.Event.Type, job.Event.At)
	clipPath := filepath.Join(r.cfg.OutputDir, base+".mp4")
	thumbPath := filepath.Join(r.cfg.OutputDir, base+"_thumb.jpg")
	metaPath := filepath.Join(r.cfg.OutputDir, base+".json")

	first := snapshot[0]
	sink, err := r.enc.Begin(clipPath, first.Width, first.Height, float64(r.cfg.FPS))
	if err != nil {
		r.fail(job, err)
		return
	}

	last := first
	for _, f := range snapshot {
		if err := sink.Write(f); err != nil {
			sink.Close()
			r.fail(job, err)
			return
		}
		last = f
	}

	// Post-event window: keep appending newly arriving frames to the same
	// clip for the configured wall-clock duration.
	job.setStatus(StatusPostCapture)
	deadline := time.NewTimer(time.Duration(r.cfg.PostEventSeconds * float64(time.Second)))
	defer deadline.Stop()

post:
	for {
		select {
		case f := <-job.ch:
			if err := sink.Write(f); err != nil {
				sink.Close()
				r.fail(job, err)
				return
			}
			last = f
		case <-deadline.C:
			break post
		}
	}

	job.setStatus(StatusFinalizing)
	if err := sink.Close(); err != nil {
		r.fail(job, err)
		return
	}
	if err := r.enc.WriteThumbnail(thumbPath, last); err != nil {
		r.fail(job, err)
		return
	}

	rec := EventRecord{
		CameraID:      job.CameraID,
		EventType:     job.Event.Type,
		Confidence:    job.Event.Confidence,
		ClipPath:      clipPath,
		ThumbnailPath: thumbPath,
		Timestamp:     job.Event.At,
		Duration:      r.cfg.PreEventSeconds + r.cfg.PostEventSeconds,
		Box:           job.Event.Box,
	}
	if data, err := json.MarshalIndent(rec, "", "  "); err == nil {
		if err := os.WriteFile(metaPath, data, 0o644); err != nil {
			r.logger.Warn("metadata artifact write failed", zap.String("path", metaPath), zap.Error(err))
		}
	}

	if r.store != nil {
		if _, err := r.store.PersistEvent(context.Background(), rec); err != nil {
			// The clip stays on disk regardless.
			r.logger.Error("persist event failed", zap.String("camera_id", job.CameraID), zap.Error(err))
		}
	}

	job.setStatus(StatusDone)
	metrics.Recordings.WithLabelValues("done").Inc()
	r.logger.Info("recording finalized",
		zap.String("camera_id", job.CameraID),
		zap.String("clip", clipPath))
}

// fail marks the job Failed and leaves the active slot to be cleared by
// the deferred cleanup, so the camera is never permanently blocked.
func (r *Recorder) fail(job *Job, err error) {
	job.setStatus(StatusFailed)
	metrics.Recordings.WithLabelValues("failed").Inc()
	r.logger.Error("recording failed",
		zap.String("camera_id", job.CameraID),
		zap.String("event_type", job.Event.Type),
		zap.Error(err))
}

func clipBaseName(cameraID, eventType string, at time.Time) string {
	sanitize := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				return r
			default:
				return '_'
			}
		}, s)
	}
	return fmt.Sprintf("%s_%s_%s", sanitize(cameraID), sanitize(eventType), at.Format("20060102_150405"))
}
