package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/events"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/metrics"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/notify"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/recording"
)

const defaultInterval = 250 * time.Millisecond

// Triggerer starts a recording for an event. Satisfied by
// *recording.Recorder.
type Triggerer interface {
	Trigger(ev events.Event) *recording.Job
}

// DetectionCache stores the freshest detections per camera for query
// endpoints. Cache failures never stall the loop.
type DetectionCache interface {
	StoreDetections(ctx context.Context, cameraID string, dets []detect.Detection) error
}

// Config tunes the analyzer.
type Config struct {
	// Interval is the pacing between inference passes per camera.
	Interval time.Duration

	// Params filter raw detector output before policy evaluation.
	Params detect.Params
}

// Analyzer is the event-generation path: it subscribes to camera
// connections, keeps only the latest frame per camera, and runs a paced
// per-camera loop of detect, debounce, trigger, publish. Capture delivery
// never blocks on inference; the loop just sees the newest frame when it
// gets there.
type Analyzer struct {
	cfg      Config
	detector detect.Detector
	policy   *events.Policy
	recorder Triggerer
	pub      notify.Publisher
	cache    DetectionCache
	logger   *zap.Logger

	paramsMu sync.Mutex
	params   detect.Params

	mu    sync.Mutex
	cells map[string]*media.LatestFrame
	stops map[string]chan struct{}

	wg sync.WaitGroup
}

func NewAnalyzer(cfg Config, detector detect.Detector, policy *events.Policy, recorder Triggerer, pub notify.Publisher, cache DetectionCache, logger *zap.Logger) *Analyzer {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if pub == nil {
		pub = notify.NopPublisher{}
	}
	return &Analyzer{
		cfg:      cfg,
		detector: detector,
		policy:   policy,
		recorder: recorder,
		pub:      pub,
		cache:    cache,
		logger:   logger,
		params:   cfg.Params,
		cells:    make(map[string]*media.LatestFrame),
		stops:    make(map[string]chan struct{}),
	}
}

// SetParams swaps the detection filters. Applies to inference passes
// started after the call; config hot-reload uses this.
func (a *Analyzer) SetParams(p detect.Params) {
	a.paramsMu.Lock()
	a.params = p
	a.paramsMu.Unlock()
}

func (a *Analyzer) currentParams() detect.Params {
	a.paramsMu.Lock()
	defer a.paramsMu.Unlock()
	return a.params
}

// OnFrame implements media.Subscriber. The first frame from a camera
// starts its analysis loop.
func (a *Analyzer) OnFrame(cameraID string, f *media.Frame) {
	a.mu.Lock()
	cell, ok := a.cells[cameraID]
	if !ok {
		cell = &media.LatestFrame{}
		a.cells[cameraID] = cell
		stop := make(chan struct{})
		a.stops[cameraID] = stop
		a.wg.Add(1)
		go a.loop(cameraID, cell, stop)
	}
	a.mu.Unlock()

	if cell.Set(f) {
		metrics.FramesDropped.WithLabelValues("analyzer").Inc()
	}
}

// OnError implements media.Subscriber.
func (a *Analyzer) OnError(cameraID string, err error) {
	a.logger.Debug("capture error", zap.String("camera_id", cameraID), zap.Error(err))
}

// RemoveCamera stops the camera's analysis loop and drops its frame cell.
func (a *Analyzer) RemoveCamera(cameraID string) {
	a.mu.Lock()
	stop, ok := a.stops[cameraID]
	if ok {
		delete(a.stops, cameraID)
		delete(a.cells, cameraID)
	}
	a.mu.Unlock()
	if ok {
		close(stop)
	}
}

// Shutdown stops all loops and waits for them.
func (a *Analyzer) Shutdown() {
	a.mu.Lock()
	for id, stop := range a.stops {
		close(stop)
		delete(a.stops, id)
		delete(a.cells, id)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Analyzer) loop(cameraID string, cell *media.LatestFrame, stop chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	var lastSeq uint64
	degradedLogged := false

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		f, seq, ok := cell.Take(lastSeq)
		if !ok {
			continue
		}
		lastSeq = seq

		dets, err := a.detector.Detect(f, a.currentParams())
		if err != nil {
			if errors.Is(err, detect.ErrInferenceUnavailable) {
				if !degradedLogged {
					a.logger.Warn("detector unavailable, events disabled",
						zap.String("camera_id", cameraID))
					degradedLogged = true
				}
				continue
			}
			a.logger.Error("inference failed", zap.String("camera_id", cameraID), zap.Error(err))
			continue
		}
		degradedLogged = false

		if a.cache != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := a.cache.StoreDetections(ctx, cameraID, dets); err != nil {
				a.logger.Debug("detection cache update failed",
					zap.String("camera_id", cameraID), zap.Error(err))
			}
			cancel()
		}

		for _, ev := range a.policy.Evaluate(cameraID, dets) {
			a.recorder.Trigger(ev)
			if err := a.pub.PublishEvent(ev); err != nil {
				a.logger.Warn("event publish failed",
					zap.String("camera_id", cameraID),
					zap.String("event_type", ev.Type),
					zap.Error(err))
			}
		}
	}
}
