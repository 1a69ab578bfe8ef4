package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
)

func det(class string, conf float64) detect.Detection {
	return detect.Detection{
		ClassName:  class,
		Confidence: conf,
		Box:        detect.BBox{CX: 0.5, CY: 0.5, W: 0.2, H: 0.4},
	}
}

// policyAt returns a policy with a controllable clock.
func policyAt(minInterval time.Duration, minConf float64) (*Policy, *time.Time) {
	p := NewPolicy(minInterval, minConf)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestDebounceWithinInterval(t *testing.T) {
	p, now := policyAt(5*time.Second, 0.3)

	evs := p.Evaluate("cam1", []detect.Detection{det("person", 0.9)})
	require.Len(t, evs, 1)

	// 1s later: suppressed.
	*now = now.Add(time.Second)
	evs = p.Evaluate("cam1", []detect.Detection{det("person", 0.9)})
	assert.Empty(t, evs)

	// 6s after the first: fires again.
	*now = now.Add(5 * time.Second)
	evs = p.Evaluate("cam1", []detect.Detection{det("person", 0.9)})
	assert.Len(t, evs, 1)
}

func TestClassesDebounceIndependently(t *testing.T) {
	p, now := policyAt(5*time.Second, 0.3)

	evs := p.Evaluate("cam1", []detect.Detection{det("person", 0.8), det("car", 0.7)})
	require.Len(t, evs, 2)

	// Person is suppressed but a new class fires.
	*now = now.Add(time.Second)
	evs = p.Evaluate("cam1", []detect.Detection{det("person", 0.8), det("truck", 0.6)})
	require.Len(t, evs, 1)
	assert.Equal(t, "truck", evs[0].Type)
}

func TestCamerasDebounceIndependently(t *testing.T) {
	p, _ := policyAt(5*time.Second, 0.3)

	require.Len(t, p.Evaluate("cam1", []detect.Detection{det("person", 0.8)}), 1)
	assert.Len(t, p.Evaluate("cam2", []detect.Detection{det("person", 0.8)}), 1)
}

func TestBestConfidencePerClassWins(t *testing.T) {
	p, _ := policyAt(5*time.Second, 0.3)

	evs := p.Evaluate("cam1", []detect.Detection{
		det("person", 0.55),
		det("person", 0.92),
		det("person", 0.71),
	})
	require.Len(t, evs, 1)
	assert.Equal(t, 0.92, evs[0].Confidence)
}

func TestLowConfidenceFiltered(t *testing.T) {
	p, _ := policyAt(5*time.Second, 0.5)

	evs := p.Evaluate("cam1", []detect.Detection{det("person", 0.4)})
	assert.Empty(t, evs)
}

func TestEventCarriesBox(t *testing.T) {
	p, _ := policyAt(5*time.Second, 0.3)

	evs := p.Evaluate("cam1", []detect.Detection{det("person", 0.8)})
	require.Len(t, evs, 1)
	require.NotNil(t, evs[0].Box)
	assert.Equal(t, 0.5, evs[0].Box.CX)
}

func TestConcurrentEvaluateEmitsOnce(t *testing.T) {
	p := NewPolicy(5*time.Second, 0.3)

	results := make(chan int, 16)
	for i := 0; i < 16; i++ {
		go func() {
			results <- len(p.Evaluate("cam1", []detect.Detection{det("person", 0.9)}))
		}()
	}

	total := 0
	for i := 0; i < 16; i++ {
		total += <-results
	}
	assert.Equal(t, 1, total)
}
