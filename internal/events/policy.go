package events

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/metrics"
)

const (
	// DefaultMinEventInterval is the debounce window per (camera, class).
	DefaultMinEventInterval = 5 * time.Second

	// lastSeenCapacity bounds the debounce map; ~one entry per live
	// (camera, class) pair.
	lastSeenCapacity = 4096
)

// Policy turns detection batches into debounced domain events. For each
// batch it keeps the highest-confidence detection per class and emits an
// event only when the (camera, class) pair has been quiet for the minimum
// interval. The decision and the last-seen update happen under one lock so
// concurrent evaluation of the same camera cannot double-emit.
type Policy struct {
	minInterval   time.Duration
	minConfidence float64
	now           func() time.Time

	mu       sync.Mutex
	lastSeen *lru.Cache[string, time.Time]
}

func NewPolicy(minInterval time.Duration, minConfidence float64) *Policy {
	if minInterval <= 0 {
		minInterval = DefaultMinEventInterval
	}
	cache, _ := lru.New[string, time.Time](lastSeenCapacity)
	return &Policy{
		minInterval:   minInterval,
		minConfidence: minConfidence,
		now:           time.Now,
		lastSeen:      cache,
	}
}

// Evaluate processes one detection batch for a camera and returns the
// events that pass the debounce. Different classes on the same camera are
// debounced independently.
func (p *Policy) Evaluate(cameraID string, dets []detect.Detection) []Event {
	best := make(map[string]detect.Detection)
	for _, d := range dets {
		if d.Confidence < p.minConfidence {
			continue
		}
		if cur, ok := best[d.ClassName]; !ok || d.Confidence > cur.Confidence {
			best[d.ClassName] = d
		}
	}
	if len(best) == 0 {
		return nil
	}

	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Event
	for class, d := range best {
		key := debounceKey(cameraID, class)
		if last, ok := p.lastSeen.Get(key); ok && now.Sub(last) < p.minInterval {
			metrics.EventsDebounced.Inc()
			continue
		}
		p.lastSeen.Add(key, now)

		box := d.Box
		out = append(out, Event{
			CameraID:   cameraID,
			Type:       class,
			Confidence: d.Confidence,
			At:         now,
			Box:        &box,
		})
		metrics.EventsEmitted.WithLabelValues(class).Inc()
	}
	return out
}

func debounceKey(cameraID, class string) string {
	return fmt.Sprintf("%s|%s", cameraID, class)
}
