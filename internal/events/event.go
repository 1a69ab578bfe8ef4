package events

import (
	"time"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
)

// Event is a rate-limited domain event raised from a detection burst.
// Never mutated after creation.
type Event struct {
	CameraID   string       `json:"camera_id"`
	Type       string       `json:"event_type"`
	Confidence float64      `json:"confidence"`
	At         time.Time    `json:"triggered_at"`
	Box        *detect.BBox `json:"bbox,omitempty"`
}
