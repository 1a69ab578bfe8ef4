package media

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/metrics"
)

// ConnState is the connection lifecycle state. Transitions are the sole
// authority on whether frames are being produced.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateStreaming
	StateBackoff
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Subscriber receives frames and capture errors from a connection.
// Callbacks run on the capture goroutine; a panicking subscriber is
// isolated and never affects the loop or other subscribers.
type Subscriber interface {
	OnFrame(cameraID string, f *Frame)
	OnError(cameraID string, err error)
}

const (
	// Consecutive grab timeouts before Streaming drops to Backoff.
	maxReadFailures = 5
	// Consecutive disconnect-class failures before Backoff.
	maxDisconnectFailures = 3
	// Connect attempts at the base interval before the interval doubles.
	maxReconnectAttempts = 5

	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 60 * time.Second
	grabTimeout              = 500 * time.Millisecond
	idleSleep                = 10 * time.Millisecond
	readRetrySleep           = 100 * time.Millisecond
	stopGracePeriod          = 5 * time.Second
)

// nextBackoff implements the reconnect delay policy: the interval doubles
// once attempts exceed maxReconnectAttempts and is capped, otherwise it
// holds. Kept pure so the policy is testable in isolation.
func nextBackoff(current time.Duration, attempts int) (time.Duration, int) {
	if attempts < maxReconnectAttempts {
		return current, attempts
	}
	doubled := current * 2
	if doubled > maxReconnectInterval {
		doubled = maxReconnectInterval
	}
	return doubled, 0
}

// CameraConnection wraps a Source with a reconnect state machine and a
// dedicated capture loop that fans frames out to subscribers.
type CameraConnection struct {
	cfg     ConnectionConfig
	factory SourceFactory
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	src     Source
	subs    []Subscriber

	wg         sync.WaitGroup
	state      atomic.Int32
	reconnects atomic.Uint64
}

func NewCameraConnection(cfg ConnectionConfig, factory SourceFactory, logger *zap.Logger) *CameraConnection {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if factory == nil {
		factory = NewOpenCVSource
	}
	return &CameraConnection{
		cfg:     cfg,
		factory: factory,
		logger:  logger.With(zap.String("camera_id", cfg.ID)),
	}
}

// Config returns the immutable capture configuration.
func (c *CameraConnection) Config() ConnectionConfig { return c.cfg }

// State returns the current connection state.
func (c *CameraConnection) State() ConnState {
	return ConnState(c.state.Load())
}

// Reconnects returns the total number of reconnect attempts made.
func (c *CameraConnection) Reconnects() uint64 { return c.reconnects.Load() }

// Subscribe registers a subscriber. Frames already in flight are not
// redelivered.
func (c *CameraConnection) Subscribe(s Subscriber) {
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
}

// Start launches the capture loop. Starting an already-running connection
// is a no-op.
func (c *CameraConnection) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.logger.Warn("capture already running")
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.setState(StateConnecting)
	c.wg.Add(1)
	go c.run(c.stopCh)
	c.logger.Info("capture started", zap.String("source", SanitizeURI(c.cfg.SourceURI)))
}

// Stop terminates the capture loop and releases the source before
// returning. Safe to call from any goroutine and idempotent: a second
// call is a no-op.
func (c *CameraConnection) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		// The loop did not exit in time; force the handle closed so the
		// device is not leaked.
		c.logger.Warn("capture loop did not exit in time, forcing source release")
		if src := c.source(); src != nil {
			src.Close()
		}
		<-done
	}
	c.setState(StateDisconnected)
	c.logger.Info("capture stopped")
}

func (c *CameraConnection) run(stopCh chan struct{}) {
	defer c.wg.Done()

	base := c.cfg.ReconnectInterval
	backoff := base
	connectFailures := 0

	for {
		if stopped(stopCh) {
			break
		}

		c.setState(StateConnecting)
		src := c.factory(c.cfg)
		c.setSource(src)

		first, err := c.connect(src)
		if err != nil {
			src.Close()
			c.setSource(nil)
			c.notifyError(err)
			c.reconnects.Add(1)
			metrics.CameraReconnects.WithLabelValues(c.cfg.ID).Inc()
			connectFailures++
			backoff, connectFailures = nextBackoff(backoff, connectFailures)

			c.setState(StateBackoff)
			c.logger.Warn("connect failed, backing off",
				zap.Error(err), zap.Duration("backoff", backoff))
			if !c.sleep(stopCh, backoff) {
				break
			}
			continue
		}

		// Successful transition to Streaming resets the backoff policy.
		connectFailures = 0
		backoff = base
		c.setState(StateStreaming)
		c.logger.Info("streaming")
		c.publish(first)

		streamErr := c.streamLoop(stopCh, src)
		src.Close()
		c.setSource(nil)
		if streamErr == nil {
			break // stop requested
		}

		c.notifyError(streamErr)
		c.reconnects.Add(1)
		metrics.CameraReconnects.WithLabelValues(c.cfg.ID).Inc()
		c.setState(StateBackoff)
		c.logger.Warn("stream failed, backing off",
			zap.Error(streamErr), zap.Duration("backoff", backoff))
		if !c.sleep(stopCh, backoff) {
			break
		}
	}

	c.setState(StateDisconnected)
}

// connect opens the source and reads the first frame. Both must succeed
// for the Connecting -> Streaming transition.
func (c *CameraConnection) connect(src Source) (*Frame, error) {
	if err := src.Open(); err != nil {
		return nil, err
	}
	first, err := src.Grab(grabTimeout)
	if err != nil {
		return nil, fmt.Errorf("first frame: %w", err)
	}
	return first, nil
}

// streamLoop grabs frames at device rate until the failure policy trips
// (returns a non-nil error) or stop is requested (returns nil).
func (c *CameraConnection) streamLoop(stopCh chan struct{}, src Source) error {
	timeouts := 0
	disconnects := 0

	for {
		select {
		case <-stopCh:
			return nil
		default:
		}

		f, err := src.Grab(grabTimeout)
		switch {
		case err == nil:
			timeouts = 0
			disconnects = 0
			c.publish(f)
			time.Sleep(idleSleep)

		case errors.Is(err, ErrGrabTimeout):
			timeouts++
			if timeouts >= maxReadFailures {
				return fmt.Errorf("%d consecutive read failures: %w", timeouts, err)
			}
			time.Sleep(readRetrySleep)

		default:
			disconnects++
			if disconnects >= maxDisconnectFailures {
				return fmt.Errorf("%d consecutive capture errors: %w", disconnects, err)
			}
		}
	}
}

func (c *CameraConnection) publish(f *Frame) {
	if f.Empty() {
		return
	}
	metrics.FramesCaptured.WithLabelValues(c.cfg.ID).Inc()

	c.mu.Lock()
	subs := make([]Subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		c.deliver(s, f)
	}
}

// deliver isolates subscriber faults: a panic is logged and never aborts
// the capture loop or affects other subscribers.
func (c *CameraConnection) deliver(s Subscriber, f *Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("subscriber panicked on frame", zap.Any("panic", r))
		}
	}()
	s.OnFrame(c.cfg.ID, f)
}

func (c *CameraConnection) notifyError(err error) {
	c.mu.Lock()
	subs := make([]Subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("subscriber panicked on error", zap.Any("panic", r))
				}
			}()
			s.OnError(c.cfg.ID, err)
		}()
	}
}

func (c *CameraConnection) setState(s ConnState) {
	c.state.Store(int32(s))
	metrics.CameraState.WithLabelValues(c.cfg.ID).Set(float64(s))
}

func (c *CameraConnection) setSource(src Source) {
	c.mu.Lock()
	c.src = src
	c.mu.Unlock()
}

func (c *CameraConnection) source() Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src
}

// sleep waits for d or until stop. Returns false when stopped.
func (c *CameraConnection) sleep(stopCh chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stopCh:
		return false
	case <-t.C:
		return true
	}
}

func stopped(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}
