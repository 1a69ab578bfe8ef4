package media

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/logging"
)

// fakeSource is a scriptable Source: grabErrs is consumed in order, a nil
// entry yields a good frame, and an exhausted script keeps yielding frames.
type fakeSource struct {
	mu       sync.Mutex
	openErr  error
	grabErrs []error // consumed in order; nil entry means a good frame
	closes   int32
}

func (s *fakeSource) Open() error { return s.openErr }

func (s *fakeSource) Grab(timeout time.Duration) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.grabErrs) > 0 {
		err := s.grabErrs[0]
		s.grabErrs = s.grabErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &Frame{Data: []byte{1, 2, 3}, Width: 1, Height: 1, CapturedAt: time.Now()}, nil
}

func (s *fakeSource) Close() error {
	atomic.AddInt32(&s.closes, 1)
	return nil
}

type collector struct {
	mu     sync.Mutex
	frames int
	errs   []error
}

func (c *collector) OnFrame(cameraID string, f *Frame) {
	c.mu.Lock()
	c.frames++
	c.mu.Unlock()
}

func (c *collector) OnError(cameraID string, err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collector) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func testConfig() ConnectionConfig {
	return ConnectionConfig{
		ID:                "cam-test",
		SourceURI:         "fake://",
		ReconnectInterval: 20 * time.Millisecond,
	}
}

func TestNextBackoff(t *testing.T) {
	base := 5 * time.Second

	// Holds at the base interval for the first attempts.
	d, attempts := nextBackoff(base, 1)
	assert.Equal(t, base, d)
	assert.Equal(t, 1, attempts)

	// Doubles once attempts reach the threshold, resetting the counter.
	d, attempts = nextBackoff(base, 5)
	assert.Equal(t, 10*time.Second, d)
	assert.Equal(t, 0, attempts)

	// Capped at the maximum.
	d, _ = nextBackoff(40*time.Second, 5)
	assert.Equal(t, 60*time.Second, d)
}

func TestConnectionStreamsAndStops(t *testing.T) {
	src := &fakeSource{}
	conn := NewCameraConnection(testConfig(), func(ConnectionConfig) Source { return src }, logging.NewNop())

	sub := &collector{}
	conn.Subscribe(sub)

	conn.Start()
	require.Eventually(t, func() bool {
		return conn.State() == StateStreaming && sub.frameCount() > 2
	}, 2*time.Second, 5*time.Millisecond)

	conn.Stop()
	assert.Equal(t, StateDisconnected, conn.State())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&src.closes), int32(1))

	// Second stop is a no-op.
	conn.Stop()
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestConsecutiveTimeoutsTriggerReconnect(t *testing.T) {
	var built int32
	factory := func(ConnectionConfig) Source {
		n := atomic.AddInt32(&built, 1)
		if n == 1 {
			// First frame good, then grab timeouts until the policy trips.
			errs := []error{nil}
			for i := 0; i < 10; i++ {
				errs = append(errs, ErrGrabTimeout)
			}
			return &fakeSource{grabErrs: errs}
		}
		return &fakeSource{}
	}

	conn := NewCameraConnection(testConfig(), factory, logging.NewNop())
	sub := &collector{}
	conn.Subscribe(sub)

	conn.Start()
	defer conn.Stop()

	// The first source fails after 5 timeouts; the connection must pass
	// through Backoff and return to Streaming on the second source.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&built) >= 2 && conn.State() == StateStreaming
	}, 5*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, conn.Reconnects(), uint64(1))

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.NotEmpty(t, sub.errs)
	assert.ErrorIs(t, sub.errs[0], ErrGrabTimeout)
}

func TestOpenFailureBacksOffAndRetries(t *testing.T) {
	var built int32
	factory := func(ConnectionConfig) Source {
		if atomic.AddInt32(&built, 1) == 1 {
			return &fakeSource{openErr: errors.New("no route to host")}
		}
		return &fakeSource{}
	}

	conn := NewCameraConnection(testConfig(), factory, logging.NewNop())
	conn.Start()
	defer conn.Stop()

	require.Eventually(t, func() bool {
		return conn.State() == StateStreaming
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&built), int32(2))
}

type panicky struct{}

func (panicky) OnFrame(string, *Frame) { panic("boom") }
func (panicky) OnError(string, error)  { panic("boom") }

func TestSubscriberPanicIsIsolated(t *testing.T) {
	src := &fakeSource{}
	conn := NewCameraConnection(testConfig(), func(ConnectionConfig) Source { return src }, logging.NewNop())

	healthy := &collector{}
	conn.Subscribe(panicky{})
	conn.Subscribe(healthy)

	conn.Start()
	defer conn.Stop()

	// The panicking subscriber must not starve the healthy one or kill
	// the capture loop.
	require.Eventually(t, func() bool {
		return healthy.frameCount() > 3 && conn.State() == StateStreaming
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartTwiceIsNoOp(t *testing.T) {
	src := &fakeSource{}
	conn := NewCameraConnection(testConfig(), func(ConnectionConfig) Source { return src }, logging.NewNop())

	conn.Start()
	conn.Start()
	defer conn.Stop()

	require.Eventually(t, func() bool {
		return conn.State() == StateStreaming
	}, 2*time.Second, 5*time.Millisecond)
}
