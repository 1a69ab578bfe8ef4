package pipeline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/events"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/logging"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/recording"
)

type fixedDetector struct {
	dets []detect.Detection
	err  error
}

func (d *fixedDetector) Detect(f *media.Frame, p detect.Params) ([]detect.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	return detect.Filter(d.dets, p), nil
}

type countingTrigger struct {
	mu       sync.Mutex
	triggers []events.Event
}

func (c *countingTrigger) Trigger(ev events.Event) *recording.Job {
	c.mu.Lock()
	c.triggers = append(c.triggers, ev)
	c.mu.Unlock()
	return nil
}

func (c *countingTrigger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.triggers)
}

type countingPublisher struct{ n atomic.Int32 }

func (p *countingPublisher) PublishEvent(events.Event) error {
	p.n.Add(1)
	return nil
}

func testFrame() *media.Frame {
	return &media.Frame{Data: []byte{1, 2, 3}, Width: 1, Height: 1, CapturedAt: time.Now()}
}

func newTestAnalyzer(det detect.Detector, trig Triggerer, pub *countingPublisher) *Analyzer {
	return NewAnalyzer(Config{
		Interval: 10 * time.Millisecond,
		Params:   detect.Params{MinConfidence: 0.5},
	}, det, events.NewPolicy(5*time.Second, 0.5), trig, pub, nil, logging.NewNop())
}

func TestAnalyzerTriggersAndPublishesOnce(t *testing.T) {
	det := &fixedDetector{dets: []detect.Detection{{ClassName: "person", Confidence: 0.9}}}
	trig := &countingTrigger{}
	pub := &countingPublisher{}
	a := newTestAnalyzer(det, trig, pub)
	defer a.Shutdown()

	// Several frames inside one debounce window yield exactly one event.
	for i := 0; i < 5; i++ {
		a.OnFrame("cam1", testFrame())
		time.Sleep(15 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return trig.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), pub.n.Load())
	assert.Equal(t, "person", trig.triggers[0].Type)
	assert.Equal(t, "cam1", trig.triggers[0].CameraID)
}

func TestAnalyzerFiltersBelowThreshold(t *testing.T) {
	det := &fixedDetector{dets: []detect.Detection{{ClassName: "person", Confidence: 0.3}}}
	trig := &countingTrigger{}
	a := newTestAnalyzer(det, trig, &countingPublisher{})
	defer a.Shutdown()

	a.OnFrame("cam1", testFrame())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, trig.count())
}

func TestAnalyzerDegradesWhenInferenceUnavailable(t *testing.T) {
	det := &fixedDetector{err: detect.ErrInferenceUnavailable}
	trig := &countingTrigger{}
	a := newTestAnalyzer(det, trig, &countingPublisher{})
	defer a.Shutdown()

	for i := 0; i < 3; i++ {
		a.OnFrame("cam1", testFrame())
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 0, trig.count())
}

func TestAnalyzerCamerasAreIndependent(t *testing.T) {
	det := &fixedDetector{dets: []detect.Detection{{ClassName: "person", Confidence: 0.9}}}
	trig := &countingTrigger{}
	a := newTestAnalyzer(det, trig, &countingPublisher{})
	defer a.Shutdown()

	a.OnFrame("cam1", testFrame())
	a.OnFrame("cam2", testFrame())

	require.Eventually(t, func() bool {
		return trig.count() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAnalyzerSetParamsAppliesForward(t *testing.T) {
	det := &fixedDetector{dets: []detect.Detection{{ClassName: "person", Confidence: 0.9}}}
	trig := &countingTrigger{}
	a := newTestAnalyzer(det, trig, &countingPublisher{})
	defer a.Shutdown()

	// Raise the threshold above the detector's confidence before any
	// frame is seen; nothing should fire.
	a.SetParams(detect.Params{MinConfidence: 0.95})
	a.OnFrame("cam1", testFrame())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, trig.count())
}

func TestAnalyzerRemoveCameraStopsLoop(t *testing.T) {
	det := &fixedDetector{dets: []detect.Detection{{ClassName: "person", Confidence: 0.9}}}
	trig := &countingTrigger{}
	a := newTestAnalyzer(det, trig, &countingPublisher{})
	defer a.Shutdown()

	a.OnFrame("cam1", testFrame())
	require.Eventually(t, func() bool { return trig.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	a.RemoveCamera("cam1")

	// Frames after removal restart a fresh loop rather than reusing the
	// old cell.
	a.OnFrame("cam1", testFrame())
	require.Eventually(t, func() bool { return trig.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
