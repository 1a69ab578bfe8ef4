package detect

import (
	"errors"
	"image"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
)

// ErrInferenceUnavailable signals that the model is missing or broken.
// Callers degrade (annotate with an unavailable marker, keep capturing)
// instead of failing the pipeline.
var ErrInferenceUnavailable = errors.New("inference unavailable")

// BBox is a normalized bounding box: center x/y plus width/height, all in
// [0,1] relative to the source frame.
type BBox struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

// Clamped returns the box with every coordinate forced into [0,1].
func (b BBox) Clamped() BBox {
	return BBox{
		CX: clamp01(b.CX),
		CY: clamp01(b.CY),
		W:  clamp01(b.W),
		H:  clamp01(b.H),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Detection is one normalized object detection. Immutable; not persisted
// by the pipeline itself.
type Detection struct {
	ClassID     int     `json:"class_id"`
	ClassName   string  `json:"class_name"`
	Confidence  float64 `json:"confidence"`
	Box         BBox    `json:"bbox"`
	FrameWidth  int     `json:"frame_width"`
	FrameHeight int     `json:"frame_height"`
}

// PixelRect converts the normalized box to frame pixel coordinates,
// clipped to the frame bounds.
func (d Detection) PixelRect() image.Rectangle {
	w := d.Box.W * float64(d.FrameWidth)
	h := d.Box.H * float64(d.FrameHeight)
	x := d.Box.CX*float64(d.FrameWidth) - w/2
	y := d.Box.CY*float64(d.FrameHeight) - h/2
	r := image.Rect(int(x), int(y), int(x+w), int(y+h))
	return r.Intersect(image.Rect(0, 0, d.FrameWidth, d.FrameHeight))
}

// Params are the per-call detection filters. A nil/empty class list means
// all classes pass.
type Params struct {
	Classes       []string
	MinConfidence float64
}

// Detector converts raw frames to normalized detections. Implementations
// are safe for concurrent use and stateless per call apart from the loaded
// model.
type Detector interface {
	Detect(f *media.Frame, p Params) ([]Detection, error)
}

// Filter applies the class filter and confidence threshold. Boxes are
// clamped so downstream consumers can rely on [0,1] bounds.
func Filter(dets []Detection, p Params) []Detection {
	var allow map[string]bool
	if len(p.Classes) > 0 {
		allow = make(map[string]bool, len(p.Classes))
		for _, c := range p.Classes {
			allow[c] = true
		}
	}

	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < p.MinConfidence {
			continue
		}
		if allow != nil && !allow[d.ClassName] {
			continue
		}
		d.Box = d.Box.Clamped()
		out = append(out, d)
	}
	return out
}
