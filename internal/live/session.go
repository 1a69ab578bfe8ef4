package live

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/metrics"
)

const (
	grabTimeout  = 500 * time.Millisecond
	pollInterval = 5 * time.Millisecond
	errorBackoff = 100 * time.Millisecond
	stopGrace    = 5 * time.Second

	// Configure clamps confidence into this range; 0 would pass every
	// candidate box and 1 would pass none.
	minConfidenceFloor   = 0.05
	maxConfidenceCeiling = 0.99
)

// ErrPushUnsupported is returned by PushFrame on a session that owns its
// own capture source.
var ErrPushUnsupported = errors.New("session has its own capture source")

// EncodedFrame is one compressed preview frame ready for a viewer
// transport.
type EncodedFrame struct {
	Data       []byte
	FPS        float64
	SessionID  string
	CapturedAt time.Time
}

// encodedCell is a single-slot latest-value cell for encoded frames, same
// overwrite semantics as media.LatestFrame.
type encodedCell struct {
	mu  sync.Mutex
	f   *EncodedFrame
	seq uint64
}

func (c *encodedCell) set(f *EncodedFrame) {
	c.mu.Lock()
	c.f = f
	c.seq++
	c.mu.Unlock()
}

func (c *encodedCell) take(lastSeq uint64) (*EncodedFrame, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == lastSeq || c.f == nil {
		return nil, lastSeq, false
	}
	return c.f, c.seq, true
}

// SessionConfig binds a session to one source and one detector setup.
// A nil Source puts the session in push mode: frames arrive through
// PushFrame instead of a capture loop.
type SessionConfig struct {
	ID     string
	Label  string
	Source media.Source
	Params detect.Params
}

// Session is a self-contained preview pipeline: capture (or pushed
// frames) feeding a latest-frame cell, a detect/annotate/encode loop
// draining it, and an encoded-frame cell viewers pull from on their own
// cadence. Slow viewers never apply backpressure; they just see the most
// recent frame.
// annotateFunc draws detections (or a degraded-mode marker) on a frame.
type annotateFunc func(f *media.Frame, dets []detect.Detection, degraded bool) (*media.Frame, error)

type Session struct {
	id       string
	label    string
	src      media.Source
	detector detect.Detector
	encoder  FrameEncoder
	annotate annotateFunc
	logger   *zap.Logger

	paramsMu sync.Mutex
	params   detect.Params

	raw media.LatestFrame
	out encodedCell

	fpsMu    sync.Mutex
	fps      float64
	fpsCount int
	fpsSince time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSession(cfg SessionConfig, detector detect.Detector, encoder FrameEncoder, logger *zap.Logger) *Session {
	if encoder == nil {
		encoder = JPEGEncoder{}
	}
	return &Session{
		id:       cfg.ID,
		label:    cfg.Label,
		src:      cfg.Source,
		detector: detector,
		encoder:  encoder,
		annotate: detect.Annotate,
		logger:   logger.With(zap.String("session_id", cfg.ID)),
		params:   cfg.Params,
		fpsSince: time.Now(),
		stopCh:   make(chan struct{}),
	}
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Label() string { return s.label }

// Start opens the source (when the session owns one) and launches the
// capture and process loops.
func (s *Session) Start() error {
	if s.src != nil {
		if err := s.src.Open(); err != nil {
			return err
		}
		s.wg.Add(1)
		go s.captureLoop()
	}

	s.wg.Add(1)
	go s.processLoop()

	metrics.LiveSessionsActive.Inc()
	s.logger.Info("live session started", zap.String("label", s.label))
	return nil
}

// PushFrame feeds a frame into a push-mode session.
func (s *Session) PushFrame(f *media.Frame) error {
	if s.src != nil {
		return ErrPushUnsupported
	}
	select {
	case <-s.stopCh:
		return errors.New("session stopped")
	default:
	}
	if s.raw.Set(f) {
		metrics.FramesDropped.WithLabelValues("live").Inc()
	}
	return nil
}

// Configure updates the detector parameters for frames processed after
// the call. Frames already in flight keep the parameters they were
// captured under. Confidence is clamped to a sane range; a nil confidence
// leaves the current threshold untouched, a nil class list likewise.
func (s *Session) Configure(classes []string, confidence *float64) {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	if classes != nil {
		s.params.Classes = classes
	}
	if confidence != nil {
		c := *confidence
		if c < minConfidenceFloor {
			c = minConfidenceFloor
		}
		if c > maxConfidenceCeiling {
			c = maxConfidenceCeiling
		}
		s.params.MinConfidence = c
	}
}

// Params returns a snapshot of the current detector parameters.
func (s *Session) Params() detect.Params {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	p := s.params
	p.Classes = append([]string(nil), s.params.Classes...)
	return p
}

// Latest returns the newest encoded frame if its sequence advanced past
// lastSeq. Viewers poll this on their own cadence.
func (s *Session) Latest(lastSeq uint64) (*EncodedFrame, uint64, bool) {
	return s.out.take(lastSeq)
}

// FPS reports the measured processing rate.
func (s *Session) FPS() float64 {
	s.fpsMu.Lock()
	defer s.fpsMu.Unlock()
	return s.fps
}

// Stop is idempotent and safe to call from any goroutine. It signals both
// loops, waits a bounded grace period, and forces the capture handle
// closed if a loop is stuck mid-grab.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			if s.src != nil {
				if err := s.src.Close(); err != nil {
					s.logger.Warn("source close failed", zap.Error(err))
				}
			}
		case <-time.After(stopGrace):
			s.logger.Warn("session loops did not exit in time, forcing source release")
			if s.src != nil {
				_ = s.src.Close()
			}
			<-done
		}

		metrics.LiveSessionsActive.Dec()
		s.logger.Info("live session stopped")
	})
}

func (s *Session) captureLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		f, err := s.src.Grab(grabTimeout)
		if err != nil {
			if errors.Is(err, media.ErrGrabTimeout) {
				continue
			}
			s.logger.Debug("grab failed", zap.Error(err))
			select {
			case <-s.stopCh:
				return
			case <-time.After(errorBackoff):
			}
			continue
		}
		if s.raw.Set(f) {
			metrics.FramesDropped.WithLabelValues("live").Inc()
		}
	}
}

func (s *Session) processLoop() {
	defer s.wg.Done()

	var lastSeq uint64
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		f, seq, ok := s.raw.Take(lastSeq)
		if !ok {
			select {
			case <-s.stopCh:
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		lastSeq = seq

		params := s.Params()

		var dets []detect.Detection
		degraded := false
		if s.detector != nil {
			var err error
			dets, err = s.detector.Detect(f, params)
			if err != nil {
				if !errors.Is(err, detect.ErrInferenceUnavailable) {
					s.logger.Debug("inference failed", zap.Error(err))
				}
				degraded = true
			}
		} else {
			degraded = true
		}

		annotated, err := s.annotate(f, dets, degraded)
		if err != nil {
			s.logger.Debug("annotate failed", zap.Error(err))
			continue
		}

		data, err := encodeAdaptive(s.encoder, annotated)
		if err != nil {
			s.logger.Debug("encode failed", zap.Error(err))
			continue
		}

		s.out.set(&EncodedFrame{
			Data:       data,
			FPS:        s.tickFPS(),
			SessionID:  s.id,
			CapturedAt: f.CapturedAt,
		})
	}
}

// tickFPS counts processed frames over a rolling one-second window.
func (s *Session) tickFPS() float64 {
	s.fpsMu.Lock()
	defer s.fpsMu.Unlock()
	s.fpsCount++
	if elapsed := time.Since(s.fpsSince); elapsed >= time.Second {
		s.fps = float64(s.fpsCount) / elapsed.Seconds()
		s.fpsCount = 0
		s.fpsSince = time.Now()
	}
	return s.fps
}
